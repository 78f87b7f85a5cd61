package config

import (
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := defaults()
	cfg.Broker.MockMode = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsMismatchedFusionWeights(t *testing.T) {
	cfg := defaults()
	cfg.Broker.MockMode = true
	cfg.Sources.Sentiment = false // weights still sum to 1.0 over four sources
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected weight-sum error when a weighted source is disabled")
	}
}

func TestValidateRequiresCredentialsInLiveMode(t *testing.T) {
	cfg := defaults()
	cfg.Broker.MockMode = false
	cfg.Broker.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for live mode without credentials")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_SYMBOLS", "SOLUSDT, ADAUSDT")
	t.Setenv("ENGINE_DRY_RUN", "true")
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := defaults()
	applyEnvOverrides(cfg)

	if len(cfg.Engine.Symbols) != 2 || cfg.Engine.Symbols[0] != "SOLUSDT" || cfg.Engine.Symbols[1] != "ADAUSDT" {
		t.Errorf("symbols = %v", cfg.Engine.Symbols)
	}
	if !cfg.Engine.DryRun {
		t.Error("dry run override not applied")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
}

func TestEnabledSourcesOrder(t *testing.T) {
	cfg := defaults()
	got := cfg.EnabledSources()
	want := []string{"technical", "ml", "pattern", "sentiment"}
	if len(got) != len(want) {
		t.Fatalf("enabled = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("enabled = %v, want %v", got, want)
		}
	}
}
