package config

import (
	"testing"
)

func TestValidateLogging(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LoggingConfig
		wantErr bool
	}{
		{"console info", LoggingConfig{Format: "console", Level: "info"}, false},
		{"mixed case", LoggingConfig{Format: "LogFmt", Level: "DEBUG"}, false},
		{"json warn", LoggingConfig{Format: "json", Level: "warn"}, false},
		{"unknown format", LoggingConfig{Format: "xml", Level: "info"}, true},
		{"unknown level", LoggingConfig{Format: "json", Level: "trace"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := ValidateLogging(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLogging() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateLogging_Normalizes(t *testing.T) {
	cfg := LoggingConfig{Format: " JSON ", Level: "Error"}
	if err := ValidateLogging(&cfg); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Format != "json" || cfg.Level != "error" {
		t.Errorf("Expected normalized json/error, got %s/%s", cfg.Format, cfg.Level)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{LogFormatConsole, LogFormatJSON, LogFormatLogfmt} {
		logger, err := NewLogger(&LoggingConfig{Format: format, Level: "debug"})
		if err != nil {
			t.Errorf("Format %s: expected no error, got %v", format, err)
			continue
		}
		if logger == nil {
			t.Errorf("Format %s: expected logger, got nil", format)
		}
	}

	if _, err := NewLogger(&LoggingConfig{Format: "json", Level: "loud"}); err == nil {
		t.Error("Expected error for invalid level, got nil")
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders("Authorization=Basic abc==, X-Scope-OrgID = home ,broken,=empty")

	if len(got) != 2 {
		t.Fatalf("Expected 2 headers, got %v", got)
	}
	if got["Authorization"] != "Basic abc==" {
		t.Errorf("Unexpected Authorization header: %q", got["Authorization"])
	}
	if got["X-Scope-OrgID"] != "home" {
		t.Errorf("Unexpected X-Scope-OrgID header: %q", got["X-Scope-OrgID"])
	}

	if len(ParseHeaders("")) != 0 {
		t.Error("Expected no headers for empty string")
	}
}

func TestValidateOpenTelemetry(t *testing.T) {
	valid := func() OpenTelemetryConfig {
		return OpenTelemetryConfig{
			Enabled:     true,
			ServiceName: "coned-rtu",
			Endpoint:    "localhost:4318",
			Traces:      OTelTracesConfig{Enabled: true, SamplingRatio: 1, BatchDelayMs: 5000},
			Metrics:     OTelMetricsConfig{Enabled: true, IntervalMillis: 30000},
		}
	}

	tests := []struct {
		name    string
		modify  func(*OpenTelemetryConfig)
		wantErr bool
	}{
		{"valid", func(c *OpenTelemetryConfig) {}, false},
		{"disabled skips checks", func(c *OpenTelemetryConfig) { c.Enabled = false; c.ServiceName = "" }, false},
		{"missing service name", func(c *OpenTelemetryConfig) { c.ServiceName = "" }, true},
		{"missing endpoint", func(c *OpenTelemetryConfig) { c.Endpoint = "" }, true},
		{"signal endpoint only", func(c *OpenTelemetryConfig) {
			c.Endpoint = ""
			c.Traces.Endpoint = "traces:4318"
			c.Metrics.Endpoint = "metrics:4318"
		}, false},
		{"sampling ratio too high", func(c *OpenTelemetryConfig) { c.Traces.SamplingRatio = 1.5 }, true},
		{"metrics interval too short", func(c *OpenTelemetryConfig) { c.Metrics.IntervalMillis = 10 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := ValidateOpenTelemetry(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOpenTelemetry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateProfiling(t *testing.T) {
	cfg := ProfilingConfig{
		Enabled:         true,
		ApplicationName: "coned-rtu",
		ServerAddress:   "http://pyroscope:4040",
		Profiles:        []string{"CPU", " inuse_space"},
	}
	if err := ValidateProfiling(&cfg); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Profiles[0] != "cpu" || cfg.Profiles[1] != "inuse_space" {
		t.Errorf("Expected normalized profiles, got %v", cfg.Profiles)
	}

	cfg.Profiles = []string{"heap"}
	if err := ValidateProfiling(&cfg); err == nil {
		t.Error("Expected error for unknown profile type, got nil")
	}

	cfg.Profiles = nil
	if err := ValidateProfiling(&cfg); err == nil {
		t.Error("Expected error for no profiles, got nil")
	}

	disabled := ProfilingConfig{}
	if err := ValidateProfiling(&disabled); err != nil {
		t.Errorf("Expected disabled profiling to be valid, got: %v", err)
	}
}
