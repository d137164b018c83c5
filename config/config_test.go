package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	configContent := `
server:
  port: 9090
log:
  level: "debug"
  format: "json"
auth:
  jwt_secret: "test-secret"
  token_expire_hours: 48
store:
  path: "test.db"
minio:
  endpoint: "localhost:9000"
  access_key: "minioadmin"
  secret_key: "minioadmin"
  bucket: "test-bucket"
  use_ssl: false
  expire_days: 14
extract:
  api_url: "https://api.extract.test"
  api_token: "test-token"
llm:
  base_url: "http://localhost:1234/v1"
  api_key: "sk-test"
  models:
    - "llama-3.3-70b-versatile"
  timeout_seconds: 20
  rate_per_minute: 10
scoring:
  max_weight: 10
  multipliers:
    GDPR: 1.5
    HIPAA: 1.4
rules:
  feed_url: "https://feed.test/publications"
  poll_interval_seconds: 60
evaluator:
  workers: 2
  timeout_seconds: 15
notifier:
  webhook_url: "https://hooks.test/compliance"
  secret: "hook-secret"
users:
  - username: "testuser"
    password: "testpass"
    tenant: "testtenant"
    role: "admin"
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	// Test loading config
	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Minio.Endpoint != "localhost:9000" {
		t.Errorf("Expected endpoint localhost:9000, got %s", cfg.Minio.Endpoint)
	}
	if cfg.Minio.ExpireDays != 14 {
		t.Errorf("Expected expire_days 14, got %d", cfg.Minio.ExpireDays)
	}
	if cfg.Auth.TokenExpireHours != 48 {
		t.Errorf("Expected token_expire_hours 48, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Store.Path != "test.db" {
		t.Errorf("Expected store path test.db, got %s", cfg.Store.Path)
	}
	if len(cfg.LLM.Models) != 1 || cfg.LLM.Models[0] != "llama-3.3-70b-versatile" {
		t.Errorf("Expected one configured model, got %v", cfg.LLM.Models)
	}
	if cfg.LLM.RatePerMinute != 10 {
		t.Errorf("Expected rate_per_minute 10, got %d", cfg.LLM.RatePerMinute)
	}
	if cfg.Scoring.Multipliers["GDPR"] != 1.5 {
		t.Errorf("Expected GDPR multiplier 1.5, got %f", cfg.Scoring.Multipliers["GDPR"])
	}
	if cfg.Rules.FeedURL != "https://feed.test/publications" {
		t.Errorf("Expected feed URL, got %s", cfg.Rules.FeedURL)
	}
	if cfg.Evaluator.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", cfg.Evaluator.Workers)
	}
	if cfg.Notifier.Secret != "hook-secret" {
		t.Errorf("Expected notifier secret, got %s", cfg.Notifier.Secret)
	}
	if len(cfg.Users) != 1 {
		t.Errorf("Expected 1 user, got %d", len(cfg.Users))
	}
	if cfg.Users[0].Role != "admin" {
		t.Errorf("Expected role admin, got %s", cfg.Users[0].Role)
	}
}

func TestLoadDefaults(t *testing.T) {
	// Create minimal config to test defaults
	configContent := `
minio:
  endpoint: "localhost:9000"
  access_key: "test"
  secret_key: "test"
  bucket: "bucket"
`
	tmpFile, err := os.CreateTemp("", "config-defaults-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Minio.ExpireDays != 7 {
		t.Errorf("Expected default expire_days 7, got %d", cfg.Minio.ExpireDays)
	}
	if cfg.Auth.TokenExpireHours != 24 {
		t.Errorf("Expected default token_expire_hours 24, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Store.Path != "compliance.db" {
		t.Errorf("Expected default store path, got %s", cfg.Store.Path)
	}
	if cfg.LLM.TimeoutSeconds != 30 {
		t.Errorf("Expected default llm timeout 30s, got %d", cfg.LLM.TimeoutSeconds)
	}
	if cfg.LLM.MaxAttempts != 3 {
		t.Errorf("Expected default llm max_attempts 3, got %d", cfg.LLM.MaxAttempts)
	}
	if cfg.Scoring.MaxWeight != 10 {
		t.Errorf("Expected default max_weight 10, got %f", cfg.Scoring.MaxWeight)
	}
	if cfg.Scoring.HighThreshold != 70 || cfg.Scoring.MediumThreshold != 40 {
		t.Errorf("Expected default thresholds 70/40, got %f/%f",
			cfg.Scoring.HighThreshold, cfg.Scoring.MediumThreshold)
	}
	if cfg.Rules.PollIntervalSeconds != 900 {
		t.Errorf("Expected default poll interval 900s, got %d", cfg.Rules.PollIntervalSeconds)
	}
	if cfg.Evaluator.Workers != 4 {
		t.Errorf("Expected default 4 workers, got %d", cfg.Evaluator.Workers)
	}
	if cfg.Evaluator.QueueSize != 256 {
		t.Errorf("Expected default queue size 256, got %d", cfg.Evaluator.QueueSize)
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-invalid-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString("invalid: yaml: content:"); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	_, err = Load(tmpFile.Name())
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestFindUser(t *testing.T) {
	cfg := &Config{
		Users: []User{
			{Username: "user1", Password: "pass1", Tenant: "tenant1"},
			{Username: "user2", Password: "pass2", Tenant: "tenant2"},
		},
	}

	// Test finding existing user
	user := cfg.FindUser("user1")
	if user == nil {
		t.Error("Expected to find user1")
	}
	if user.Password != "pass1" {
		t.Errorf("Expected password pass1, got %s", user.Password)
	}

	// Test finding non-existent user
	user = cfg.FindUser("nonexistent")
	if user != nil {
		t.Error("Expected nil for non-existent user")
	}
}
