package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Env:        "development",
		Port:       8080,
		TokenTTL:   15 * time.Minute,
		LedgerMode: LedgerModeMemory,
	}
}

func TestValidateDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateEncryptionKey(t *testing.T) {
	cfg := validConfig()
	cfg.EHREncryptionKey = "not-hex"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed key")
	}

	cfg.EHREncryptionKey = strings.Repeat("ab", 16) // 32 hex chars, too short
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short key")
	}

	cfg.EHREncryptionKey = strings.Repeat("ab", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected 64-hex key to validate, got %v", err)
	}
	if got := len(cfg.EncryptionKey()); got != 32 {
		t.Fatalf("expected 32-byte key, got %d", got)
	}
}

func TestValidateLedgerModes(t *testing.T) {
	cfg := validConfig()
	cfg.LedgerMode = "paper"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown ledger mode")
	}

	cfg.LedgerMode = LedgerModeLevelDB
	cfg.LedgerPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for leveldb mode without path")
	}

	cfg.LedgerMode = LedgerModeFabric
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for fabric mode without material paths")
	}
}

func TestValidateProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected production to require auth secret")
	}
	cfg.AuthSecret = "secret"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected production to require encryption key")
	}
	cfg.EHREncryptionKey = strings.Repeat("cd", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}
}
