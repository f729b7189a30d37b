package config

import (
	"testing"
	"time"
)

func TestLoad_PoolDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.MaxConns != 25 {
		t.Errorf("expected default max conns 25, got %d", cfg.Database.MaxConns)
	}
	if cfg.Database.MinConns != 5 {
		t.Errorf("expected default min conns 5, got %d", cfg.Database.MinConns)
	}
	if cfg.Database.MaxConnLifetime != time.Hour {
		t.Errorf("expected default conn lifetime 1h, got %s", cfg.Database.MaxConnLifetime)
	}
	if cfg.Database.MaxConnIdleTime != 30*time.Minute {
		t.Errorf("expected default conn idle time 30m, got %s", cfg.Database.MaxConnIdleTime)
	}
	if cfg.Database.AutoMigrate {
		t.Error("expected auto migrate to default off")
	}
}

func TestLoad_PoolSizingFromEnv(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "40")
	t.Setenv("DB_MIN_CONNS", "10")
	t.Setenv("DB_MAX_CONN_LIFETIME", "2h")
	t.Setenv("DB_MAX_CONN_IDLE_TIME", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.MaxConns != 40 {
		t.Errorf("expected max conns 40, got %d", cfg.Database.MaxConns)
	}
	if cfg.Database.MinConns != 10 {
		t.Errorf("expected min conns 10, got %d", cfg.Database.MinConns)
	}
	if cfg.Database.MaxConnLifetime != 2*time.Hour {
		t.Errorf("expected conn lifetime 2h, got %s", cfg.Database.MaxConnLifetime)
	}
	if cfg.Database.MaxConnIdleTime != 10*time.Minute {
		t.Errorf("expected conn idle time 10m, got %s", cfg.Database.MaxConnIdleTime)
	}
}

func TestLoad_RejectsInvalidPoolSizing(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "5")
	t.Setenv("DB_MIN_CONNS", "50")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when min conns exceeds max conns")
	}
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for production config without secrets")
	}

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "webhook-secret")

	if _, err := Load(); err != nil {
		t.Fatalf("expected production config with secrets to load, got %v", err)
	}
}
