package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	Secret             string   `koanf:"secret" mapstructure:"secret"`
	MaxPayloadBytes    int64    `koanf:"max_payload_bytes" mapstructure:"max_payload_bytes"`
	AllowedEvents      []string `koanf:"allowed_events" mapstructure:"allowed_events"`
	IgnoreBots         bool     `koanf:"ignore_bots" mapstructure:"ignore_bots"`
	Path               string   `koanf:"path" mapstructure:"path"`
	CallbackURL        string   `koanf:"callback_url" mapstructure:"callback_url"`
	RateLimitPerMinute int      `koanf:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

type DedupConfig struct {
	TTL           time.Duration `koanf:"ttl" mapstructure:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval" mapstructure:"sweep_interval"`
	MaxEntries    int           `koanf:"max_entries" mapstructure:"max_entries"`
}

type ClientConfig struct {
	BaseURL           string        `koanf:"base_url" mapstructure:"base_url"`
	DefaultToken      string        `koanf:"default_token" mapstructure:"default_token"`
	UserAgent         string        `koanf:"user_agent" mapstructure:"user_agent"`
	RequestTimeout    time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	InterCallDelay    time.Duration `koanf:"inter_call_delay" mapstructure:"inter_call_delay"`
	ResetBuffer       time.Duration `koanf:"reset_buffer" mapstructure:"reset_buffer"`
	MaxRetries        int           `koanf:"max_retries" mapstructure:"max_retries"`
	BackoffBase       time.Duration `koanf:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax        time.Duration `koanf:"backoff_max" mapstructure:"backoff_max"`
	BackoffJitter     time.Duration `koanf:"backoff_jitter" mapstructure:"backoff_jitter"`
	DefaultRetryAfter time.Duration `koanf:"default_retry_after" mapstructure:"default_retry_after"`
	MaxQueued         int           `koanf:"max_queued" mapstructure:"max_queued"`
}

type DispatchConfig struct {
	ProcessInterval time.Duration `koanf:"process_interval" mapstructure:"process_interval"`
	MaxAttempts     int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay       time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
	MaxDelay        time.Duration `koanf:"max_delay" mapstructure:"max_delay"`
	MaxJobs         int           `koanf:"max_jobs" mapstructure:"max_jobs"`
}

type BreakerConfig struct {
	Threshold       int           `koanf:"threshold" mapstructure:"threshold"`
	RecoveryTimeout time.Duration `koanf:"recovery_timeout" mapstructure:"recovery_timeout"`
}

type StoreConfig struct {
	Driver   string        `koanf:"driver" mapstructure:"driver"`
	DSN      string        `koanf:"dsn" mapstructure:"dsn"`
	Debug    bool          `koanf:"debug" mapstructure:"debug"`
	CacheTTL time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type MessengerConfig struct {
	URL   string `koanf:"url" mapstructure:"url"`
	Token string `koanf:"token" mapstructure:"token"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig   `koanf:"webhook" mapstructure:"webhook"`
	Dedup       DedupConfig     `koanf:"dedup" mapstructure:"dedup"`
	Client      ClientConfig    `koanf:"client" mapstructure:"client"`
	Dispatch    DispatchConfig  `koanf:"dispatch" mapstructure:"dispatch"`
	Breaker     BreakerConfig   `koanf:"breaker" mapstructure:"breaker"`
	Store       StoreConfig     `koanf:"store" mapstructure:"store"`
	HTTP        HTTPConfig      `koanf:"http" mapstructure:"http"`
	Messenger   MessengerConfig `koanf:"messenger" mapstructure:"messenger"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "labelwatch",
		Webhook: WebhookConfig{
			MaxPayloadBytes:    1 << 20,
			AllowedEvents:      []string{"issues", "ping"},
			IgnoreBots:         true,
			Path:               "/webhooks/github",
			RateLimitPerMinute: 600,
		},
		Dedup: DedupConfig{
			TTL:           5 * time.Minute,
			SweepInterval: time.Minute,
			MaxEntries:    50_000,
		},
		Client: ClientConfig{
			BaseURL:           "https://api.github.com",
			UserAgent:         "go-labelwatch",
			RequestTimeout:    30 * time.Second,
			InterCallDelay:    100 * time.Millisecond,
			ResetBuffer:       time.Second,
			MaxRetries:        3,
			BackoffBase:       time.Second,
			BackoffMax:        2 * time.Minute,
			BackoffJitter:     time.Second,
			DefaultRetryAfter: time.Minute,
			MaxQueued:         1000,
		},
		Dispatch: DispatchConfig{
			ProcessInterval: 10 * time.Second,
			MaxAttempts:     3,
			BaseDelay:       5 * time.Second,
			MaxDelay:        5 * time.Minute,
			MaxJobs:         10_000,
		},
		Breaker: BreakerConfig{
			Threshold:       5,
			RecoveryTimeout: time.Minute,
		},
		Store: StoreConfig{
			Driver:   "sqlite3",
			DSN:      "file:labelwatch.db?cache=shared&_foreign_keys=on",
			CacheTTL: time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Webhook.MaxPayloadBytes <= 0 {
		return fmt.Errorf("core: webhook.max_payload_bytes must be positive")
	}
	if len(c.Webhook.AllowedEvents) == 0 {
		return fmt.Errorf("core: webhook.allowed_events is required")
	}
	if c.Dedup.TTL <= 0 || c.Dedup.SweepInterval <= 0 {
		return fmt.Errorf("core: dedup.ttl and dedup.sweep_interval must be positive")
	}
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("core: client.max_retries must not be negative")
	}
	if c.Client.BackoffJitter > c.Client.BackoffBase {
		return fmt.Errorf("core: client.backoff_jitter must not exceed client.backoff_base")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("core: dispatch.max_attempts must be positive")
	}
	if c.Dispatch.BaseDelay <= 0 || c.Dispatch.MaxDelay < c.Dispatch.BaseDelay {
		return fmt.Errorf("core: dispatch.base_delay must be positive and not exceed dispatch.max_delay")
	}
	if c.Breaker.Threshold <= 0 || c.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("core: breaker.threshold and breaker.recovery_timeout must be positive")
	}
	switch strings.TrimSpace(c.Store.Driver) {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("core: store.driver %q is not supported", c.Store.Driver)
	}
	return nil
}

// Insecure reports whether webhook signature verification is disabled.
func (c Config) Insecure() bool {
	return strings.TrimSpace(c.Webhook.Secret) == ""
}
