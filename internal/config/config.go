package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config controls how the companion reaches the agent service and how it
// runs locally.
type Config struct {
	AgentURL             string
	APIKey               string
	AssistantID          string
	RequestTimeout       time.Duration
	RequireReply         bool
	RetryAttempts        int
	RetryInitialInterval time.Duration
	BreakerEnabled       bool
	BreakerFailures      uint32
	BreakerCooldown      time.Duration
	ThreadDB             string
	TranscribeURL        string
	HTTPAddr             string
	ShutdownTimeout      time.Duration
	LogLevel             slog.Level
	LogFormat            LogFormat
	ServiceName          string
	OTLPEndpoint         string
}

type environment struct {
	AgentURL             string        `env:"COMPANION_AGENT_URL" envDefault:"http://127.0.0.1:2024"`
	APIKey               string        `env:"COMPANION_API_KEY"`
	AssistantID          string        `env:"COMPANION_ASSISTANT_ID" envDefault:"agent"`
	RequestTimeout       time.Duration `env:"COMPANION_REQUEST_TIMEOUT" envDefault:"60s"`
	RequireReply         bool          `env:"COMPANION_REQUIRE_REPLY" envDefault:"false"`
	RetryAttempts        int           `env:"COMPANION_RETRY_ATTEMPTS" envDefault:"1"`
	RetryInitialInterval time.Duration `env:"COMPANION_RETRY_INITIAL_INTERVAL" envDefault:"200ms"`
	BreakerEnabled       bool          `env:"COMPANION_BREAKER_ENABLED" envDefault:"true"`
	BreakerFailures      uint32        `env:"COMPANION_BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown      time.Duration `env:"COMPANION_BREAKER_COOLDOWN" envDefault:"30s"`
	ThreadDB             string        `env:"COMPANION_THREAD_DB" envDefault:"companion.db"`
	TranscribeURL        string        `env:"COMPANION_TRANSCRIBE_URL" envDefault:"http://127.0.0.1:8001"`
	HTTPAddr             string        `env:"COMPANION_HTTP_ADDR" envDefault:"127.0.0.1:2024"`
	ShutdownTimeout      time.Duration `env:"COMPANION_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	LogLevel             string        `env:"COMPANION_LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"COMPANION_LOG_FORMAT" envDefault:"text"`
	ServiceName          string        `env:"COMPANION_SERVICE_NAME" envDefault:"carecompanion"`
	OTLPEndpoint         string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads runtime configuration from environment variables. Each existing
// envFile is loaded first; variables already set in the process win.
func Load(envFiles ...string) (Config, error) {
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	var raw environment
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}

	level, err := ParseLogLevel(raw.LogLevel)
	if err != nil {
		return Config{}, err
	}
	format, err := ParseLogFormat(raw.LogFormat)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AgentURL:             strings.TrimSpace(raw.AgentURL),
		APIKey:               strings.TrimSpace(raw.APIKey),
		AssistantID:          strings.TrimSpace(raw.AssistantID),
		RequestTimeout:       raw.RequestTimeout,
		RequireReply:         raw.RequireReply,
		RetryAttempts:        raw.RetryAttempts,
		RetryInitialInterval: raw.RetryInitialInterval,
		BreakerEnabled:       raw.BreakerEnabled,
		BreakerFailures:      raw.BreakerFailures,
		BreakerCooldown:      raw.BreakerCooldown,
		ThreadDB:             strings.TrimSpace(raw.ThreadDB),
		TranscribeURL:        strings.TrimSpace(raw.TranscribeURL),
		HTTPAddr:             strings.TrimSpace(raw.HTTPAddr),
		ShutdownTimeout:      raw.ShutdownTimeout,
		LogLevel:             level,
		LogFormat:            format,
		ServiceName:          strings.TrimSpace(raw.ServiceName),
		OTLPEndpoint:         strings.TrimSpace(raw.OTLPEndpoint),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validateURL("COMPANION_AGENT_URL", c.AgentURL); err != nil {
		return err
	}
	if err := validateURL("COMPANION_TRANSCRIBE_URL", c.TranscribeURL); err != nil {
		return err
	}
	if c.AssistantID == "" {
		return errors.New("validate config: COMPANION_ASSISTANT_ID must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("validate config: COMPANION_REQUEST_TIMEOUT must be > 0")
	}
	if c.RetryAttempts < 1 {
		return errors.New("validate config: COMPANION_RETRY_ATTEMPTS must be >= 1")
	}
	if c.RetryAttempts > 1 && c.RetryInitialInterval <= 0 {
		return errors.New("validate config: retries require COMPANION_RETRY_INITIAL_INTERVAL > 0")
	}
	if c.BreakerEnabled {
		if c.BreakerFailures == 0 {
			return errors.New("validate config: breaker requires COMPANION_BREAKER_FAILURES > 0")
		}
		if c.BreakerCooldown <= 0 {
			return errors.New("validate config: breaker requires COMPANION_BREAKER_COOLDOWN > 0")
		}
	}
	if c.ThreadDB == "" {
		return errors.New("validate config: COMPANION_THREAD_DB must not be empty")
	}
	if c.HTTPAddr == "" {
		return errors.New("validate config: COMPANION_HTTP_ADDR must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("validate config: COMPANION_SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.ServiceName == "" {
		return errors.New("validate config: COMPANION_SERVICE_NAME must not be empty")
	}

	switch c.LogLevel {
	case slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError:
	default:
		return fmt.Errorf(
			"validate config: unsupported COMPANION_LOG_LEVEL %q (allowed: %q, %q, %q, %q)",
			c.LogLevel.String(),
			slog.LevelDebug.String(),
			slog.LevelInfo.String(),
			slog.LevelWarn.String(),
			slog.LevelError.String(),
		)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf(
			"validate config: unsupported COMPANION_LOG_FORMAT %q (allowed: %q, %q)",
			c.LogFormat,
			LogFormatText,
			LogFormatJSON,
		)
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("validate config: %s must not be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("validate config: parse %s: %w", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("validate config: %s must use http or https, got %q", name, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("validate config: %s must include a host, got %q", name, raw)
	}
	return nil
}

func ParseLogLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf(
			"parse COMPANION_LOG_LEVEL: unsupported value %q (allowed: %q, %q, %q, %q)",
			input,
			slog.LevelDebug.String(),
			slog.LevelInfo.String(),
			slog.LevelWarn.String(),
			slog.LevelError.String(),
		)
	}
}

func ParseLogFormat(input string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf(
			"parse COMPANION_LOG_FORMAT: unsupported value %q (allowed: %q, %q)",
			input,
			LogFormatText,
			LogFormatJSON,
		)
	}
}
