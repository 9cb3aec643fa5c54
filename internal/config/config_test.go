package config

import "testing"

func TestLoadRejectsShortHMACSecret(t *testing.T) {
	t.Setenv("HMAC_SECRET", "too-short")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject a secret shorter than 32 bytes")
	}
}

func TestLoadAcceptsHMACSecretAtFloor(t *testing.T) {
	t.Setenv("HMAC_SECRET", "01234567890123456789012345678901")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HMACSecret == "" {
		t.Fatal("HMACSecret not populated")
	}
}
