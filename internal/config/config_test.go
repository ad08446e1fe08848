package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxUsesPerDay != 10 || cfg.MaxUsesPerMonth != 50 {
		t.Fatalf("unexpected limits: day=%d month=%d", cfg.MaxUsesPerDay, cfg.MaxUsesPerMonth)
	}
	if cfg.ThemeCapacity != 10 {
		t.Fatalf("unexpected capacity: %d", cfg.ThemeCapacity)
	}
	if cfg.DraftIdle != 10*time.Second {
		t.Fatalf("unexpected draft idle: %v", cfg.DraftIdle)
	}
	if cfg.WorkspaceIdle != 30*time.Minute || cfg.EvictSchedule != "*/5 * * * *" {
		t.Fatalf("unexpected eviction: %v %q", cfg.WorkspaceIdle, cfg.EvictSchedule)
	}
	if cfg.StoreBackend != StoreFile || cfg.GeneratorProvider != GeneratorWorkflow {
		t.Fatalf("unexpected backends: %s %s", cfg.StoreBackend, cfg.GeneratorProvider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_USES_PER_DAY", "3")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("ALLOWED_USERS", "1:2:3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxUsesPerDay != 3 {
		t.Fatalf("want 3, got %d", cfg.MaxUsesPerDay)
	}
	if cfg.StoreBackend != StoreMemory {
		t.Fatalf("want memory, got %s", cfg.StoreBackend)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if len(cfg.AllowedUsers) != 3 || cfg.AllowedUsers[2] != 3 {
		t.Fatalf("unexpected users: %v", cfg.AllowedUsers)
	}
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	cases := map[string]string{
		"STORE_BACKEND":      "sqlite",
		"GENERATOR_PROVIDER": "mock",
		"THEME_CAPACITY":     "0",
		"DISPLAY_TZ":         "Nowhere/Void",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
