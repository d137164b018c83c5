package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	Minio     MinioConfig     `yaml:"minio"`
	Extract   ExtractConfig   `yaml:"extract"`
	LLM       LLMConfig       `yaml:"llm"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Rules     RulesConfig     `yaml:"rules"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Users     []User          `yaml:"users"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type StoreConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout_ms"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

// ExtractConfig configures the external text-extraction service used for
// PDF and DOCX ingestion
type ExtractConfig struct {
	APIURL      string `yaml:"api_url"`
	APIToken    string `yaml:"api_token"`
	CallbackURL string `yaml:"callback_url"`
	Seed        string `yaml:"seed"`
}

// LLMConfig configures the recommendation backend (OpenAI-compatible chat API)
type LLMConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	Models         []string `yaml:"models"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	RatePerMinute  int      `yaml:"rate_per_minute"`
	Burst          int      `yaml:"burst"`
	MaxAttempts    int      `yaml:"max_attempts"`
	BackoffSeconds int      `yaml:"backoff_seconds"`
}

func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *LLMConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// ScoringConfig bounds the risk score computation. Weights and multipliers
// outside these ranges abort the evaluation run.
type ScoringConfig struct {
	MaxWeight       float64            `yaml:"max_weight"`
	MinMultiplier   float64            `yaml:"min_multiplier"`
	MaxMultiplier   float64            `yaml:"max_multiplier"`
	Multipliers     map[string]float64 `yaml:"multipliers"`
	HighThreshold   float64            `yaml:"high_threshold"`
	MediumThreshold float64            `yaml:"medium_threshold"`
}

// RulesConfig configures the regulatory feed consumption
type RulesConfig struct {
	FeedURL             string `yaml:"feed_url"`
	FeedToken           string `yaml:"feed_token"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	PageSize            int    `yaml:"page_size"`
}

func (c *RulesConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

type EvaluatorConfig struct {
	Workers        int `yaml:"workers"`
	QueueSize      int `yaml:"queue_size"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

func (c *EvaluatorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type NotifierConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	Secret         string `yaml:"secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

func (c *NotifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
	Role     string `yaml:"role"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "compliance.db"
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = 5000
	}
	if cfg.Minio.ExpireDays == 0 {
		cfg.Minio.ExpireDays = 7
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if len(cfg.LLM.Models) == 0 {
		cfg.LLM.Models = []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 30
	}
	if cfg.LLM.RatePerMinute == 0 {
		cfg.LLM.RatePerMinute = 30
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 5
	}
	if cfg.LLM.MaxAttempts == 0 {
		cfg.LLM.MaxAttempts = 3
	}
	if cfg.LLM.BackoffSeconds == 0 {
		cfg.LLM.BackoffSeconds = 2
	}
	if cfg.Scoring.MaxWeight == 0 {
		cfg.Scoring.MaxWeight = 10
	}
	if cfg.Scoring.MinMultiplier == 0 {
		cfg.Scoring.MinMultiplier = 0.5
	}
	if cfg.Scoring.MaxMultiplier == 0 {
		cfg.Scoring.MaxMultiplier = 2.0
	}
	if cfg.Scoring.Multipliers == nil {
		cfg.Scoring.Multipliers = map[string]float64{}
	}
	if cfg.Scoring.HighThreshold == 0 {
		cfg.Scoring.HighThreshold = 70
	}
	if cfg.Scoring.MediumThreshold == 0 {
		cfg.Scoring.MediumThreshold = 40
	}
	if cfg.Rules.PollIntervalSeconds == 0 {
		cfg.Rules.PollIntervalSeconds = 900
	}
	if cfg.Rules.PageSize == 0 {
		cfg.Rules.PageSize = 100
	}
	if cfg.Evaluator.Workers == 0 {
		cfg.Evaluator.Workers = 4
	}
	if cfg.Evaluator.QueueSize == 0 {
		cfg.Evaluator.QueueSize = 256
	}
	if cfg.Evaluator.TimeoutSeconds == 0 {
		cfg.Evaluator.TimeoutSeconds = 60
	}
	if cfg.Notifier.TimeoutSeconds == 0 {
		cfg.Notifier.TimeoutSeconds = 10
	}
	if cfg.Notifier.MaxRetries == 0 {
		cfg.Notifier.MaxRetries = 3
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
