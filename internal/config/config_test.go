package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlas-desktop/nova-trader/internal/config"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.Mode != types.ModeSimulation {
		t.Fatalf("expected default mode simulation, got %s", cfg.Engine.Mode)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Providers) == 0 {
		t.Fatal("expected default provider list to be populated")
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nova-trader.yaml")
	contents := "engine:\n  mode: live\nserver:\n  port: 9090\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.Mode != types.ModeLive {
		t.Fatalf("expected mode live, got %s", cfg.Engine.Mode)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
}
