package config

import (
	"fmt"
	"strings"
)

// ProfileTypes understood by the profiler
var ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines", "mutex", "block"}

// ProfilingConfig contains Pyroscope profiling configuration
type ProfilingConfig struct {
	Enabled           bool              `yaml:"enabled" env:"PYROSCOPE_ENABLED" env-default:"false"`
	ApplicationName   string            `yaml:"applicationName" env:"PYROSCOPE_APPLICATION_NAME" env-default:"coned-rtu"`
	ServerAddress     string            `yaml:"serverAddress" env:"PYROSCOPE_SERVER_ADDRESS"`
	BasicAuthUser     string            `yaml:"basicAuthUser" env:"PYROSCOPE_BASIC_AUTH_USER"`
	BasicAuthPassword string            `yaml:"basicAuthPassword" env:"PYROSCOPE_BASIC_AUTH_PASSWORD"`
	TenantID          string            `yaml:"tenantID" env:"PYROSCOPE_TENANT_ID"`
	Tags              map[string]string `yaml:"tags"`
	Profiles          []string          `yaml:"profiles" env:"PYROSCOPE_PROFILES" env-default:"cpu,alloc_space,inuse_space"`
	// Sampling rate for mutex and block profiles
	ContentionRate int `yaml:"contentionRate" env:"PYROSCOPE_CONTENTION_RATE" env-default:"5"`
}

// ValidateProfiling validates profiling configuration if enabled
func ValidateProfiling(cfg *ProfilingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.ApplicationName == "" {
		return fmt.Errorf("profiling application name is required when profiling is enabled")
	}

	if cfg.ServerAddress == "" {
		return fmt.Errorf("profiling server address is required when profiling is enabled")
	}

	if len(cfg.Profiles) == 0 {
		return fmt.Errorf("at least one profile type must be enabled")
	}

	for i, p := range cfg.Profiles {
		p = strings.ToLower(strings.TrimSpace(p))
		if !isProfileType(p) {
			return fmt.Errorf("unknown profile type %q, must be one of: %s", p, strings.Join(ProfileTypes, ", "))
		}
		cfg.Profiles[i] = p
	}

	if cfg.ContentionRate < 0 {
		return fmt.Errorf("profiling contention rate must be >= 0")
	}

	return nil
}

func isProfileType(p string) bool {
	for _, t := range ProfileTypes {
		if t == p {
			return true
		}
	}
	return false
}
