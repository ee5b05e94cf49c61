package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCfgxConfigProvider_AppliesDefaultsAndOverrides(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"webhook": map[string]any{"secret": "s3cret"},
		"dispatch": map[string]any{
			"max_attempts": 5,
		},
	}})
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Webhook.Secret != "s3cret" {
		t.Fatalf("expected secret override, got %q", cfg.Webhook.Secret)
	}
	if cfg.Dispatch.MaxAttempts != 5 {
		t.Fatalf("expected max attempts override, got %d", cfg.Dispatch.MaxAttempts)
	}
	if cfg.Dedup.TTL != 5*time.Minute {
		t.Fatalf("expected default dedup ttl, got %v", cfg.Dedup.TTL)
	}
}

func TestCfgxConfigProvider_RejectsInvalidConfig(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"store": map[string]any{"driver": "oracle"},
	}})
	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected unsupported driver to fail validation")
	}
}

func TestEnvConfigLoader_ParsesTypedValuesAndDotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("LW_WEBHOOK_SECRET=from-file\nLW_DEDUP_TTL=2m\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	env := map[string]string{
		"LW_WEBHOOK_SECRET":          "from-env",
		"LW_WEBHOOK_ALLOWED_EVENTS":  "issues, ping ,",
		"LW_DISPATCH_MAX_ATTEMPTS":   "4",
		"LW_WEBHOOK_IGNORE_BOTS":     "false",
		"LW_CLIENT_INTER_CALL_DELAY": "250ms",
	}
	loader := &EnvConfigLoader{
		Prefix: "LW",
		Files:  []string{envFile, filepath.Join(dir, "missing.env")},
		LookupFn: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
	}

	cfg, err := LoadConfig(context.Background(), NewCfgxConfigProvider(loader), GoOptionsResolver{}, Config{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Webhook.Secret != "from-env" {
		t.Fatalf("expected process env to win, got %q", cfg.Webhook.Secret)
	}
	if cfg.Dedup.TTL != 2*time.Minute {
		t.Fatalf("expected dotenv ttl, got %v", cfg.Dedup.TTL)
	}
	if len(cfg.Webhook.AllowedEvents) != 2 || cfg.Webhook.AllowedEvents[1] != "ping" {
		t.Fatalf("expected trimmed event list, got %v", cfg.Webhook.AllowedEvents)
	}
	if cfg.Dispatch.MaxAttempts != 4 {
		t.Fatalf("expected max attempts 4, got %d", cfg.Dispatch.MaxAttempts)
	}
	if cfg.Webhook.IgnoreBots {
		t.Fatalf("expected explicit false to survive layering")
	}
	if cfg.Client.InterCallDelay != 250*time.Millisecond {
		t.Fatalf("expected inter call delay 250ms, got %v", cfg.Client.InterCallDelay)
	}
}

func TestGoOptionsResolver_RuntimeWins(t *testing.T) {
	defaults := DefaultConfig()
	loaded := DefaultConfig()
	loaded.ServiceName = "from-config"
	loaded.Breaker.Threshold = 7

	cfg, err := GoOptionsResolver{}.Resolve(defaults, loaded, Config{ServiceName: "runtime"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.ServiceName != "runtime" {
		t.Fatalf("expected runtime service name, got %q", cfg.ServiceName)
	}
	if cfg.Breaker.Threshold != 7 {
		t.Fatalf("expected loaded threshold, got %d", cfg.Breaker.Threshold)
	}
}
