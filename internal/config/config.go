package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL       string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	ClinicTimezone    string        `mapstructure:"CLINIC_TIMEZONE"`
	PhoneRegion       string        `mapstructure:"PHONE_REGION"`
	PatientCodePrefix string        `mapstructure:"PATIENT_CODE_PREFIX"`
	TxnCodePrefix     string        `mapstructure:"TXN_CODE_PREFIX"`
	VisitCodePrefix   string        `mapstructure:"VISIT_CODE_PREFIX"`
	AllocationRetries int           `mapstructure:"ALLOCATION_RETRIES"`
	NotifyQueueSize   int           `mapstructure:"NOTIFY_QUEUE_SIZE"`
	NotifyTimeout     time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	MetricsEnabled    bool          `mapstructure:"METRICS_ENABLED"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
	OTLPEndpoint      string        `mapstructure:"OTLP_ENDPOINT"`
	OTLPInsecure      bool          `mapstructure:"OTLP_INSECURE"`
	TraceSampleRate   float64       `mapstructure:"TRACE_SAMPLE_RATE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "CLINIC_TIMEZONE", "PHONE_REGION", "PATIENT_CODE_PREFIX",
	"TXN_CODE_PREFIX", "VISIT_CODE_PREFIX", "ALLOCATION_RETRIES", "NOTIFY_QUEUE_SIZE",
	"NOTIFY_TIMEOUT", "METRICS_ENABLED", "MIGRATIONS_DIR", "OTLP_ENDPOINT",
	"OTLP_INSECURE", "TRACE_SAMPLE_RATE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("PHONE_REGION", "PH")
	v.SetDefault("PATIENT_CODE_PREFIX", "P")
	v.SetDefault("TXN_CODE_PREFIX", "TXN")
	v.SetDefault("VISIT_CODE_PREFIX", "VIS")
	v.SetDefault("ALLOCATION_RETRIES", 3)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)

	// Bind explicitly so Unmarshal sees env vars that have no .env entry.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("running in development mode: dev auth is active and every request is treated as admin")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resolves CLINIC_TIMEZONE. Appointment dates and period-scoped
// identifiers are interpreted in this location.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT issuer and either a signing key or a JWKS URL are required.
func (c *Config) Validate() error {
	if c.AllocationRetries < 1 {
		return fmt.Errorf("ALLOCATION_RETRIES must be at least 1, got %d", c.AllocationRetries)
	}
	if c.NotifyQueueSize < 1 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be at least 1, got %d", c.NotifyQueueSize)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be within [0, 1], got %v", c.TraceSampleRate)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for name, prefix := range map[string]string{
		"PATIENT_CODE_PREFIX": c.PatientCodePrefix,
		"TXN_CODE_PREFIX":     c.TxnCodePrefix,
		"VISIT_CODE_PREFIX":   c.VisitCodePrefix,
	} {
		if strings.TrimSpace(prefix) == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	if c.TxnCodePrefix == c.VisitCodePrefix {
		return fmt.Errorf("TXN_CODE_PREFIX and VISIT_CODE_PREFIX must differ, both are %q", c.TxnCodePrefix)
	}
	if !c.IsDev() {
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER must be set when ENV=%q", c.Env)
		}
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
		}
	}
	return nil
}
