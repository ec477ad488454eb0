package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LedgerBackend != BackendRedis {
		t.Errorf("LedgerBackend = %q, want redis", cfg.LedgerBackend)
	}
	if cfg.KeyPrefix != "sig:" {
		t.Errorf("KeyPrefix = %q, want sig:", cfg.KeyPrefix)
	}
	if cfg.FreeQuotaLimit != 8 {
		t.Errorf("FreeQuotaLimit = %d, want 8", cfg.FreeQuotaLimit)
	}
	if cfg.CodeLength != 12 {
		t.Errorf("CodeLength = %d, want 12", cfg.CodeLength)
	}
	if cfg.HTTPReadTimeout != 15*time.Second {
		t.Errorf("HTTPReadTimeout = %v, want 15s", cfg.HTTPReadTimeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("FREE_QUOTA_LIMIT", "20")
	t.Setenv("SEED_CODES_5", "SPRING5A,SPRING5B")
	t.Setenv("SEED_CODES_50", "BIG50")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.LedgerBackend != BackendMemory || cfg.FreeQuotaLimit != 20 {
		t.Fatalf("cfg = %+v", cfg)
	}

	lists := cfg.SeedLists()
	if len(lists) != 2 {
		t.Fatalf("seed lists = %v, want tiers 5 and 50", lists)
	}
	if len(lists[5]) != 2 || lists[5][0] != "SPRING5A" {
		t.Fatalf("tier 5 = %v", lists[5])
	}
	if len(lists[50]) != 1 || lists[50][0] != "BIG50" {
		t.Fatalf("tier 50 = %v", lists[50])
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "cassandra")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("unknown backend accepted")
	}
}

func TestLoadConfigPostgresNeedsURL(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("postgres backend accepted without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost:5432/signature")
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("load with DATABASE_URL: %v", err)
	}
}
