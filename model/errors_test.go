package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestParseErrorDetection(t *testing.T) {
	err := &ParseError{Format: "markdown", Reason: "no clause boundaries found"}

	if !IsParseError(err) {
		t.Error("Expected IsParseError to detect direct error")
	}

	wrapped := fmt.Errorf("ingest contract: %w", err)
	if !IsParseError(wrapped) {
		t.Error("Expected IsParseError to detect wrapped error")
	}

	if IsParseError(errors.New("other")) {
		t.Error("Expected IsParseError false for unrelated error")
	}

	if !strings.Contains(err.Error(), "markdown") {
		t.Errorf("Expected format in message, got '%s'", err.Error())
	}
}

func TestRuleConflictErrorMessage(t *testing.T) {
	err := &RuleConflictError{
		Jurisdiction: "GDPR",
		RuleA:        "gdpr-retention",
		VersionA:     2,
		RuleB:        "gdpr-storage",
		VersionB:     1,
	}

	if !IsRuleConflict(fmt.Errorf("publish: %w", err)) {
		t.Error("Expected IsRuleConflict to detect wrapped error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "gdpr-retention") || !strings.Contains(msg, "gdpr-storage") {
		t.Errorf("Expected both rule ids in message, got '%s'", msg)
	}
}

func TestScoringRangeErrorMessage(t *testing.T) {
	err := &ScoringRangeError{Field: "weight", Value: 12, Min: 0, Max: 10}

	if !IsScoringRange(err) {
		t.Error("Expected IsScoringRange to detect error")
	}
	if !strings.Contains(err.Error(), "weight") {
		t.Errorf("Expected field name in message, got '%s'", err.Error())
	}
}

func TestRecommendationTimeoutUnwrap(t *testing.T) {
	err := &RecommendationTimeout{
		Model:   "llama-3.3-70b-versatile",
		Elapsed: 30 * time.Second,
		Err:     context.DeadlineExceeded,
	}

	if !IsRecommendationTimeout(err) {
		t.Error("Expected IsRecommendationTimeout to detect error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("Expected timeout to unwrap to context.DeadlineExceeded")
	}
}
