package model

import (
	"errors"
	"fmt"
	"time"
)

// ParseError reports a document that could not be segmented into recognizable
// clauses. It is unrecoverable for that document; the contract is marked
// failed-ingestion.
type ParseError struct {
	Format string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s document: %s", e.Format, e.Reason)
}

// IsParseError reports whether err is or wraps a ParseError
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// RuleConflictError reports two active rules of different lineages claiming
// the same jurisdiction and clause-type obligation over overlapping effective
// windows. Conflicts are surfaced to the operator, never auto-resolved.
type RuleConflictError struct {
	Jurisdiction string
	RuleA        string
	VersionA     int
	RuleB        string
	VersionB     int
}

func (e *RuleConflictError) Error() string {
	return fmt.Sprintf("rule conflict in %s: %s v%d overlaps %s v%d",
		e.Jurisdiction, e.RuleA, e.VersionA, e.RuleB, e.VersionB)
}

// IsRuleConflict reports whether err is or wraps a RuleConflictError
func IsRuleConflict(err error) bool {
	var rc *RuleConflictError
	return errors.As(err, &rc)
}

// ScoringRangeError reports a severity weight or jurisdiction multiplier
// outside the configured valid range. This is a configuration fault; the
// evaluation run is aborted without writing findings.
type ScoringRangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *ScoringRangeError) Error() string {
	return fmt.Sprintf("scoring %s %.4g out of range [%.4g, %.4g]", e.Field, e.Value, e.Min, e.Max)
}

// IsScoringRange reports whether err is or wraps a ScoringRangeError
func IsScoringRange(err error) bool {
	var sr *ScoringRangeError
	return errors.As(err, &sr)
}

// RecommendationTimeout reports that the external generation step did not
// answer within its deadline. The finding persists without a recommendation
// and the attempt is retried on a backoff schedule.
type RecommendationTimeout struct {
	Model   string
	Elapsed time.Duration
	Err     error
}

func (e *RecommendationTimeout) Error() string {
	return fmt.Sprintf("recommendation timed out after %s (model %s)", e.Elapsed.Round(time.Millisecond), e.Model)
}

func (e *RecommendationTimeout) Unwrap() error {
	return e.Err
}

// IsRecommendationTimeout reports whether err is or wraps a RecommendationTimeout
func IsRecommendationTimeout(err error) bool {
	var rt *RecommendationTimeout
	return errors.As(err, &rt)
}
