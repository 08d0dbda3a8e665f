package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	pkgconfig "github.com/mjasion/balena-home/coned_rtu/pkg/config"
	"github.com/mjasion/balena-home/coned_rtu/recorder"
	"github.com/mjasion/balena-home/coned_rtu/scraper"
)

// Config holds all configuration parameters of the usage recorder
type Config struct {
	// Opower session configuration
	Opower OpowerConfig `yaml:"opower"`

	// Replay a saved usage payload instead of calling Opower
	PayloadFile string `yaml:"payloadFile" env:"USAGE_PAYLOAD_FILE"`

	// Cron spec of the usage scrape
	ScrapeSchedule string `yaml:"scrapeSchedule" env:"SCRAPE_SCHEDULE" env-default:"@every 15m"`

	RemoteWrite RemoteWriteConfig `yaml:"remoteWrite"`

	// Capacity of the pending remote write buffer
	BufferSize int `yaml:"bufferSize" env:"BUFFER_SIZE" env-default:"5000"`

	HTTPPort int `yaml:"httpPort" env:"HTTP_PORT" env-default:"8080"`

	Logging       pkgconfig.LoggingConfig       `yaml:"logging"`
	OpenTelemetry pkgconfig.OpenTelemetryConfig `yaml:"opentelemetry"`
	Profiling     pkgconfig.ProfilingConfig     `yaml:"profiling"`
}

// OpowerConfig identifies the meter to read and the session to read it with
type OpowerConfig struct {
	AccountID      string  `yaml:"accountId" env:"OPOWER_ACCOUNT_ID"`
	Meter          string  `yaml:"meter" env:"OPOWER_METER"`
	BaseURL        string  `yaml:"baseUrl" env:"OPOWER_BASE_URL" env-default:"https://cned.opower.com/ei/edge/apis/cws-real-time-ami-v1/cws/cned"`
	AccessToken    string  `yaml:"accessToken" env:"OPOWER_ACCESS_TOKEN"`
	TimeoutSeconds float64 `yaml:"timeoutSeconds" env:"OPOWER_TIMEOUT_SECONDS" env-default:"30"`
}

// RemoteWriteConfig contains Prometheus remote_write configuration
type RemoteWriteConfig struct {
	Enabled             bool   `yaml:"enabled" env:"REMOTE_WRITE_ENABLED" env-default:"false"`
	URL                 string `yaml:"url" env:"PROMETHEUS_URL"`
	Username            string `yaml:"username" env:"PROMETHEUS_USERNAME"`
	Password            string `yaml:"password" env:"PROMETHEUS_PASSWORD"`
	PushIntervalSeconds int    `yaml:"pushIntervalSeconds" env:"PUSH_INTERVAL_SECONDS" env-default:"60"`
	BatchSize           int    `yaml:"batchSize" env:"PUSH_BATCH_SIZE" env-default:"500"`
}

// Load reads configuration from the specified file path and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all configuration parameters are valid
func (c *Config) Validate() error {
	if c.PayloadFile == "" {
		if strings.TrimSpace(c.Opower.AccountID) == "" {
			return fmt.Errorf("opower.accountId is required unless payloadFile is set")
		}
		if strings.TrimSpace(c.Opower.Meter) == "" {
			return fmt.Errorf("opower.meter is required unless payloadFile is set")
		}
		if _, err := url.ParseRequestURI(c.Opower.BaseURL); err != nil {
			return fmt.Errorf("invalid opower.baseUrl: %w", err)
		}
	}

	if c.Opower.TimeoutSeconds <= 0 {
		return fmt.Errorf("opower.timeoutSeconds must be positive, got %f", c.Opower.TimeoutSeconds)
	}

	if _, err := recorder.ScheduleInterval(c.ScrapeSchedule, time.Now()); err != nil {
		return err
	}

	if c.RemoteWrite.Enabled {
		if _, err := url.ParseRequestURI(c.RemoteWrite.URL); err != nil {
			return fmt.Errorf("invalid remoteWrite.url: %w", err)
		}
		if c.RemoteWrite.PushIntervalSeconds <= 0 {
			return fmt.Errorf("remoteWrite.pushIntervalSeconds must be positive, got %d", c.RemoteWrite.PushIntervalSeconds)
		}
		if c.RemoteWrite.BatchSize <= 0 {
			return fmt.Errorf("remoteWrite.batchSize must be positive, got %d", c.RemoteWrite.BatchSize)
		}
	}

	if c.BufferSize <= 0 {
		return fmt.Errorf("bufferSize must be positive, got %d", c.BufferSize)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("httpPort must be between 1 and 65535, got %d", c.HTTPPort)
	}

	if err := pkgconfig.ValidateLogging(&c.Logging); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	if err := pkgconfig.ValidateOpenTelemetry(&c.OpenTelemetry); err != nil {
		return fmt.Errorf("opentelemetry validation failed: %w", err)
	}

	if err := pkgconfig.ValidateProfiling(&c.Profiling); err != nil {
		return fmt.Errorf("profiling validation failed: %w", err)
	}

	return nil
}

// FetcherOptions returns the options of the Opower usage fetcher
func (c *Config) FetcherOptions() scraper.Options {
	return scraper.Options{
		BaseURL:     c.Opower.BaseURL,
		AccountID:   c.Opower.AccountID,
		Meter:       c.Opower.Meter,
		AccessToken: c.Opower.AccessToken,
		Timeout:     time.Duration(c.Opower.TimeoutSeconds * float64(time.Second)),
	}
}

// Redacted returns a copy of the config with sensitive fields redacted for logging
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"opower": map[string]interface{}{
			"accountId":      c.Opower.AccountID,
			"meter":          c.Opower.Meter,
			"baseUrl":        redactURL(c.Opower.BaseURL),
			"accessTokenSet": c.Opower.AccessToken != "",
			"timeoutSeconds": c.Opower.TimeoutSeconds,
		},
		"payloadFile":    c.PayloadFile,
		"scrapeSchedule": c.ScrapeSchedule,
		"remoteWrite": map[string]interface{}{
			"enabled":             c.RemoteWrite.Enabled,
			"url":                 redactURL(c.RemoteWrite.URL),
			"username":            c.RemoteWrite.Username,
			"password":            "***",
			"pushIntervalSeconds": c.RemoteWrite.PushIntervalSeconds,
			"batchSize":           c.RemoteWrite.BatchSize,
		},
		"bufferSize": c.BufferSize,
		"httpPort":   c.HTTPPort,
		"logging": map[string]interface{}{
			"logFormat": c.Logging.Format,
			"logLevel":  c.Logging.Level,
		},
		"opentelemetry": map[string]interface{}{
			"enabled":        c.OpenTelemetry.Enabled,
			"serviceName":    c.OpenTelemetry.ServiceName,
			"serviceVersion": c.OpenTelemetry.ServiceVersion,
			"environment":    c.OpenTelemetry.Environment,
			"headersSet":     len(c.OpenTelemetry.Headers) > 0,
			"traces": map[string]interface{}{
				"enabled":       c.OpenTelemetry.Traces.Enabled,
				"endpointSet":   c.OpenTelemetry.TracesEndpoint() != "",
				"samplingRatio": c.OpenTelemetry.Traces.SamplingRatio,
			},
			"metrics": map[string]interface{}{
				"enabled":              c.OpenTelemetry.Metrics.Enabled,
				"endpointSet":          c.OpenTelemetry.MetricsEndpoint() != "",
				"intervalMillis":       c.OpenTelemetry.Metrics.IntervalMillis,
				"enableRuntimeMetrics": c.OpenTelemetry.Metrics.EnableRuntimeMetrics,
			},
		},
		"profiling": map[string]interface{}{
			"enabled":         c.Profiling.Enabled,
			"applicationName": c.Profiling.ApplicationName,
			"serverAddress":   c.Profiling.ServerAddress,
			"profiles":        c.Profiling.Profiles,
		},
	}
}

// NewLogger creates a zap logger based on the configuration
func (c *Config) NewLogger() (*zap.Logger, error) {
	return pkgconfig.NewLogger(&c.Logging)
}

// redactURL removes credentials from URLs for logging
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.String()
}
