// Package config loads SmartDiet settings from the environment. A .env file
// in the working directory is read first when present; variables already
// set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config is the full process configuration, grouped by the component that
// consumes each part.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	HTTP      HTTP
	Log       Log
	Session   Session
	RateLimit RateLimit
	Documents Documents
	Assistant Assistant
	Webhooks  Webhooks
	Tracing   Tracing
}

// HTTP configures the listener and request limits.
type HTTP struct {
	Port            int           `env:"APP_PORT" envDefault:"8080"`
	BaseURL         string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxBodySize     int64         `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Comma-separated; "*.example.com" admits subdomains.
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Log selects the slog handler.
type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Session controls login sessions.
type Session struct {
	TTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`
}

// RateLimit toggles the per-user and per-address buckets.
type RateLimit struct {
	UserEnabled bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	IPEnabled   bool `env:"RATE_LIMIT_PUBLIC_ENABLED" envDefault:"true"`
	IPRPS       int  `env:"RATE_LIMIT_PUBLIC_RPS" envDefault:"5"`
	IPBurst     int  `env:"RATE_LIMIT_PUBLIC_BURST" envDefault:"10"`
}

// Documents configures the verification document vault.
type Documents struct {
	Recipient   string `env:"DOCUMENT_AGE_RECIPIENT"`
	Identity    string `env:"DOCUMENT_AGE_IDENTITY"`
	Compression string `env:"DOCUMENT_COMPRESSION" envDefault:"zstd"`
	MaxSize     int64  `env:"MAX_DOCUMENT_SIZE" envDefault:"5242880"`
}

// Assistant configures /chat and /mealplan. An empty APIKey means the
// local responder answers.
type Assistant struct {
	APIKey      string        `env:"GEMINI_API_KEY"`
	Model       string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	Timeout     time.Duration `env:"GEMINI_TIMEOUT" envDefault:"20s"`
	MealPlanTTL time.Duration `env:"MEALPLAN_CACHE_TTL" envDefault:"24h"`
}

// Webhooks configures nutritionist notifications.
type Webhooks struct {
	EncryptionKey string `env:"WEBHOOK_ENCRYPTION_KEY"`
	AllowPrivate  bool   `env:"WEBHOOK_ALLOW_PRIVATE" envDefault:"false"`
}

// Tracing configures the OTLP exporter. An empty endpoint disables export.
type Tracing struct {
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"smartdiet-api"`
}

var (
	environments = []string{"development", "staging", "production"}
	compressions = []string{"none", "zstd", "lz4"}
)

// Load reads .env when present, parses the environment and validates the
// result.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.HTTP.CORSOrigins = compact(cfg.HTTP.CORSOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(environments, c.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of %s", strings.Join(environments, ", ")))
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT %d is out of range", c.HTTP.Port))
	}
	if c.HTTP.MaxBodySize <= 0 || c.Documents.MaxSize <= 0 {
		errs = append(errs, errors.New("MAX_REQUEST_BODY_SIZE and MAX_DOCUMENT_SIZE must be positive"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}
	if !slices.Contains(compressions, c.Documents.Compression) {
		errs = append(errs, fmt.Errorf("DOCUMENT_COMPRESSION must be one of %s", strings.Join(compressions, ", ")))
	}
	if c.RateLimit.IPEnabled && (c.RateLimit.IPRPS <= 0 || c.RateLimit.IPBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_PUBLIC_RPS and RATE_LIMIT_PUBLIC_BURST must be positive"))
	}
	if c.Session.TTL < time.Minute {
		errs = append(errs, errors.New("SESSION_TTL must be at least 1m"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether ephemeral keys and relaxed headers apply.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// IsProduction reports whether this is the live deployment.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// TokenEnv is the environment segment embedded in session tokens.
func (c *Config) TokenEnv() string {
	if c.IsProduction() {
		return "live"
	}
	return "test"
}

func compact(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}
