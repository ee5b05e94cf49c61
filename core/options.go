package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"github.com/joho/godotenv"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envKind int

const (
	envString envKind = iota
	envInt
	envInt64
	envBool
	envDuration
	envList
)

type envBinding struct {
	path []string
	kind envKind
}

var envBindings = map[string]envBinding{
	"SERVICE_NAME":                  {[]string{"service_name"}, envString},
	"WEBHOOK_SECRET":                {[]string{"webhook", "secret"}, envString},
	"WEBHOOK_MAX_PAYLOAD_BYTES":     {[]string{"webhook", "max_payload_bytes"}, envInt64},
	"WEBHOOK_ALLOWED_EVENTS":        {[]string{"webhook", "allowed_events"}, envList},
	"WEBHOOK_IGNORE_BOTS":           {[]string{"webhook", "ignore_bots"}, envBool},
	"WEBHOOK_PATH":                  {[]string{"webhook", "path"}, envString},
	"WEBHOOK_CALLBACK_URL":          {[]string{"webhook", "callback_url"}, envString},
	"WEBHOOK_RATE_LIMIT_PER_MINUTE": {[]string{"webhook", "rate_limit_per_minute"}, envInt},
	"DEDUP_TTL":                     {[]string{"dedup", "ttl"}, envDuration},
	"DEDUP_SWEEP_INTERVAL":          {[]string{"dedup", "sweep_interval"}, envDuration},
	"DEDUP_MAX_ENTRIES":             {[]string{"dedup", "max_entries"}, envInt},
	"CLIENT_BASE_URL":               {[]string{"client", "base_url"}, envString},
	"CLIENT_DEFAULT_TOKEN":          {[]string{"client", "default_token"}, envString},
	"CLIENT_USER_AGENT":             {[]string{"client", "user_agent"}, envString},
	"CLIENT_REQUEST_TIMEOUT":        {[]string{"client", "request_timeout"}, envDuration},
	"CLIENT_INTER_CALL_DELAY":       {[]string{"client", "inter_call_delay"}, envDuration},
	"CLIENT_RESET_BUFFER":           {[]string{"client", "reset_buffer"}, envDuration},
	"CLIENT_MAX_RETRIES":            {[]string{"client", "max_retries"}, envInt},
	"CLIENT_BACKOFF_BASE":           {[]string{"client", "backoff_base"}, envDuration},
	"CLIENT_BACKOFF_MAX":            {[]string{"client", "backoff_max"}, envDuration},
	"CLIENT_BACKOFF_JITTER":         {[]string{"client", "backoff_jitter"}, envDuration},
	"CLIENT_DEFAULT_RETRY_AFTER":    {[]string{"client", "default_retry_after"}, envDuration},
	"CLIENT_MAX_QUEUED":             {[]string{"client", "max_queued"}, envInt},
	"DISPATCH_PROCESS_INTERVAL":     {[]string{"dispatch", "process_interval"}, envDuration},
	"DISPATCH_MAX_ATTEMPTS":         {[]string{"dispatch", "max_attempts"}, envInt},
	"DISPATCH_BASE_DELAY":           {[]string{"dispatch", "base_delay"}, envDuration},
	"DISPATCH_MAX_DELAY":            {[]string{"dispatch", "max_delay"}, envDuration},
	"DISPATCH_MAX_JOBS":             {[]string{"dispatch", "max_jobs"}, envInt},
	"BREAKER_THRESHOLD":             {[]string{"breaker", "threshold"}, envInt},
	"BREAKER_RECOVERY_TIMEOUT":      {[]string{"breaker", "recovery_timeout"}, envDuration},
	"STORE_DRIVER":                  {[]string{"store", "driver"}, envString},
	"STORE_DSN":                     {[]string{"store", "dsn"}, envString},
	"STORE_DEBUG":                   {[]string{"store", "debug"}, envBool},
	"STORE_CACHE_TTL":               {[]string{"store", "cache_ttl"}, envDuration},
	"HTTP_ADDR":                     {[]string{"http", "addr"}, envString},
	"HTTP_READ_TIMEOUT":             {[]string{"http", "read_timeout"}, envDuration},
	"HTTP_WRITE_TIMEOUT":            {[]string{"http", "write_timeout"}, envDuration},
	"HTTP_SHUTDOWN_TIMEOUT":         {[]string{"http", "shutdown_timeout"}, envDuration},
	"MESSENGER_URL":                 {[]string{"messenger", "url"}, envString},
	"MESSENGER_TOKEN":               {[]string{"messenger", "token"}, envString},
}

// EnvConfigLoader reads PREFIX_* variables from the process environment and
// from optional dotenv files. Process variables win over file values.
type EnvConfigLoader struct {
	Prefix   string
	Files    []string
	LookupFn func(key string) (string, bool)
}

func NewEnvConfigLoader(prefix string, files ...string) *EnvConfigLoader {
	return &EnvConfigLoader{Prefix: prefix, Files: files, LookupFn: os.LookupEnv}
}

func (l *EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	fileValues := map[string]string{}
	for _, file := range l.Files {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("core: read env file %q: %w", file, err)
		}
		for key, value := range values {
			fileValues[key] = value
		}
	}

	lookup := l.LookupFn
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(l.Prefix)), "_")
	if prefix != "" {
		prefix += "_"
	}

	raw := map[string]any{}
	for suffix, binding := range envBindings {
		key := prefix + suffix
		value, ok := lookup(key)
		if !ok {
			value, ok = fileValues[key]
		}
		if !ok {
			continue
		}
		parsed, err := parseEnvValue(binding.kind, value)
		if err != nil {
			return nil, fmt.Errorf("core: env %s: %w", key, err)
		}
		setPath(raw, binding.path, parsed)
	}
	return raw, nil
}

func parseEnvValue(kind envKind, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch kind {
	case envInt:
		return strconv.Atoi(value)
	case envInt64:
		return strconv.ParseInt(value, 10, 64)
	case envBool:
		return strconv.ParseBool(value)
	case envDuration:
		return time.ParseDuration(value)
	case envList:
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, nil
	default:
		return value, nil
	}
}

func setPath(root map[string]any, path []string, value any) {
	current := root
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

type GoOptionsResolver struct{}

// Resolve merges defaults < loaded < runtime. Loaded config already carries
// defaults so it is layered in full; runtime only contributes non-zero values.
func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, true),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig runs provider then resolver, the way the service facade does.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	put := func(section string, key string, value any, zero bool) {
		if zero && !includeZero {
			return
		}
		if section == "" {
			layer[key] = value
			return
		}
		inner, ok := layer[section].(map[string]any)
		if !ok {
			inner = map[string]any{}
			layer[section] = inner
		}
		inner[key] = value
	}
	str := func(section, key, value string) { put(section, key, value, strings.TrimSpace(value) == "") }
	dur := func(section, key string, value time.Duration) { put(section, key, value, value == 0) }
	num := func(section, key string, value int) { put(section, key, value, value == 0) }

	str("", "service_name", cfg.ServiceName)

	str("webhook", "secret", cfg.Webhook.Secret)
	put("webhook", "max_payload_bytes", cfg.Webhook.MaxPayloadBytes, cfg.Webhook.MaxPayloadBytes == 0)
	put("webhook", "allowed_events", append([]string(nil), cfg.Webhook.AllowedEvents...), len(cfg.Webhook.AllowedEvents) == 0)
	put("webhook", "ignore_bots", cfg.Webhook.IgnoreBots, !cfg.Webhook.IgnoreBots)
	str("webhook", "path", cfg.Webhook.Path)
	str("webhook", "callback_url", cfg.Webhook.CallbackURL)
	num("webhook", "rate_limit_per_minute", cfg.Webhook.RateLimitPerMinute)

	dur("dedup", "ttl", cfg.Dedup.TTL)
	dur("dedup", "sweep_interval", cfg.Dedup.SweepInterval)
	num("dedup", "max_entries", cfg.Dedup.MaxEntries)

	str("client", "base_url", cfg.Client.BaseURL)
	str("client", "default_token", cfg.Client.DefaultToken)
	str("client", "user_agent", cfg.Client.UserAgent)
	dur("client", "request_timeout", cfg.Client.RequestTimeout)
	dur("client", "inter_call_delay", cfg.Client.InterCallDelay)
	dur("client", "reset_buffer", cfg.Client.ResetBuffer)
	num("client", "max_retries", cfg.Client.MaxRetries)
	dur("client", "backoff_base", cfg.Client.BackoffBase)
	dur("client", "backoff_max", cfg.Client.BackoffMax)
	dur("client", "backoff_jitter", cfg.Client.BackoffJitter)
	dur("client", "default_retry_after", cfg.Client.DefaultRetryAfter)
	num("client", "max_queued", cfg.Client.MaxQueued)

	dur("dispatch", "process_interval", cfg.Dispatch.ProcessInterval)
	num("dispatch", "max_attempts", cfg.Dispatch.MaxAttempts)
	dur("dispatch", "base_delay", cfg.Dispatch.BaseDelay)
	dur("dispatch", "max_delay", cfg.Dispatch.MaxDelay)
	num("dispatch", "max_jobs", cfg.Dispatch.MaxJobs)

	num("breaker", "threshold", cfg.Breaker.Threshold)
	dur("breaker", "recovery_timeout", cfg.Breaker.RecoveryTimeout)

	str("store", "driver", cfg.Store.Driver)
	str("store", "dsn", cfg.Store.DSN)
	put("store", "debug", cfg.Store.Debug, !cfg.Store.Debug)
	dur("store", "cache_ttl", cfg.Store.CacheTTL)

	str("http", "addr", cfg.HTTP.Addr)
	dur("http", "read_timeout", cfg.HTTP.ReadTimeout)
	dur("http", "write_timeout", cfg.HTTP.WriteTimeout)
	dur("http", "shutdown_timeout", cfg.HTTP.ShutdownTimeout)

	str("messenger", "url", cfg.Messenger.URL)
	str("messenger", "token", cfg.Messenger.Token)
	return layer
}
