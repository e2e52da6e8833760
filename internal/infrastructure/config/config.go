package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/deskpilot/backend/internal/domain/safety"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Vision    VisionConfig
	Loop      LoopConfig
	Device    DeviceConfig
	Safety    SafetyConfig
	Activity  ActivityConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8765"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// VisionConfig holds vision model configuration.
type VisionConfig struct {
	Provider    string        `envconfig:"VISION_PROVIDER" default:"openai"`
	BaseURL     string        `envconfig:"VISION_BASE_URL" default:"https://api.openai.com/v1"`
	APIKey      string        `envconfig:"VISION_API_KEY"`
	Model       string        `envconfig:"VISION_MODEL" default:"gpt-4o"`
	MaxTokens   int           `envconfig:"VISION_MAX_TOKENS" default:"1000"`
	Temperature float64       `envconfig:"VISION_TEMPERATURE" default:"0.1"`
	Timeout     time.Duration `envconfig:"VISION_TIMEOUT" default:"60s"`
}

// LoopConfig holds autonomy loop configuration.
type LoopConfig struct {
	Interval      time.Duration `envconfig:"LOOP_INTERVAL" default:"3s"`
	HistoryWindow int           `envconfig:"LOOP_HISTORY_WINDOW" default:"10"`
	StepBudget    int           `envconfig:"LOOP_STEP_BUDGET" default:"10"`
}

// DeviceConfig holds input device and capture configuration.
type DeviceConfig struct {
	Timeout   time.Duration `envconfig:"DEVICE_TIMEOUT" default:"5s"`
	TypeDelay time.Duration `envconfig:"DEVICE_TYPE_DELAY" default:"1ms"`
	Quality   int           `envconfig:"CAPTURE_QUALITY" default:"75"`
}

// SafetyConfig locates the safety policy file.
type SafetyConfig struct {
	PolicyPath string `envconfig:"SAFETY_POLICY" default:"safety.yaml"`
}

// ActivityConfig holds activity log persistence configuration.
type ActivityConfig struct {
	Path       string `envconfig:"ACTIVITY_LOG" default:"logs/activity.jsonl"`
	MaxSizeMB  int    `envconfig:"ACTIVITY_LOG_MAX_SIZE" default:"50"`
	MaxBackups int    `envconfig:"ACTIVITY_LOG_MAX_BACKUPS" default:"5"`
	History    int    `envconfig:"ACTIVITY_HISTORY" default:"1000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8765",
			Host: "0.0.0.0",
		},
		Vision: VisionConfig{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			MaxTokens:   1000,
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Loop: LoopConfig{
			Interval:      3 * time.Second,
			HistoryWindow: 10,
			StepBudget:    10,
		},
		Device: DeviceConfig{
			Timeout:   5 * time.Second,
			TypeDelay: time.Millisecond,
			Quality:   75,
		},
		Safety: SafetyConfig{
			PolicyPath: "safety.yaml",
		},
		Activity: ActivityConfig{
			Path:       "logs/activity.jsonl",
			MaxSizeMB:  50,
			MaxBackups: 5,
			History:    1000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}

// LoadPolicy reads the safety policy from a YAML file. A missing file is
// not an error: the built-in default policy applies.
func LoadPolicy(path string) (safety.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return safety.DefaultPolicy(), nil
		}
		return safety.Policy{}, fmt.Errorf("read safety policy: %w", err)
	}

	policy := safety.DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return safety.Policy{}, fmt.Errorf("parse safety policy: %w", err)
	}
	if policy.MaxActions <= 0 || policy.Window <= 0 {
		return safety.Policy{}, fmt.Errorf("safety policy: rate window must be positive")
	}
	return policy, nil
}
