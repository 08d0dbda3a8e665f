package profiling

import (
	"testing"

	"github.com/mjasion/balena-home/coned_rtu/pkg/config"
	"go.uber.org/zap"
)

func TestStart_Disabled(t *testing.T) {
	p, err := Start(&config.ProfilingConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if p != nil {
		t.Error("Expected nil profiler when disabled")
	}

	// Stop on the nil profiler is a no-op
	if err := p.Stop(); err != nil {
		t.Errorf("Expected no error stopping nil profiler, got: %v", err)
	}
}

func TestResolveProfileTypes(t *testing.T) {
	types, err := resolveProfileTypes([]string{"cpu", "mutex"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(types) != 3 {
		t.Errorf("Expected 3 profile types, got %d: %v", len(types), types)
	}

	if _, err := resolveProfileTypes([]string{"heap"}); err == nil {
		t.Error("Expected error for unknown profile type, got nil")
	}

	// every configurable name resolves
	if _, err := resolveProfileTypes(config.ProfileTypes); err != nil {
		t.Errorf("Expected all configurable profiles to resolve, got: %v", err)
	}
}
