package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-labelwatch/core"
	"github.com/sony/gobreaker"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	DefaultThreshold       = 5
	DefaultRecoveryTimeout = 60 * time.Second
)

type Config struct {
	Name            string
	Threshold       int
	RecoveryTimeout time.Duration
	// IsFailure decides which errors count toward tripping. Errors it rejects
	// are still returned to the caller.
	IsFailure func(err error) bool
	Logger    core.Logger
	Metrics   core.MetricsRecorder
	Now       func() time.Time
}

func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		Threshold:       DefaultThreshold,
		RecoveryTimeout: DefaultRecoveryTimeout,
	}
}

type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	name    string
	timeout time.Duration
	logger  core.Logger
	metrics core.MetricsRecorder
	now     func() time.Time

	mu          sync.Mutex
	openedAt    time.Time
	failures    int
	lastFailure time.Time
}

func New(cfg Config) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	isFailure := cfg.IsFailure
	if isFailure == nil {
		isFailure = DefaultIsFailure
	}
	b := &Breaker{
		name:    cfg.Name,
		timeout: cfg.RecoveryTimeout,
		logger:  core.ResolveLogger("labelwatch.breaker", nil, cfg.Logger),
		metrics: core.EnsureMetrics(cfg.Metrics),
		now:     cfg.Now,
	}
	if b.now == nil {
		b.now = time.Now
	}
	threshold := cfg.Threshold
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(gobreaker.Counts) bool {
			return b.FailureCount() >= threshold
		},
		OnStateChange: b.onStateChange,
		IsSuccessful: func(err error) bool {
			failed := isFailure(err)
			b.record(failed)
			return !failed
		},
	})
	return b
}

// record keeps the failure count across state changes. gobreaker clears its
// own counts on every transition, so the count lives here: a failure adds
// one, a success takes one away, and reaching zero clears the failure time.
func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if failed {
		b.failures++
		b.lastFailure = b.now()
		return
	}
	if b.failures > 0 {
		b.failures--
	}
	if b.failures == 0 {
		b.lastFailure = time.Time{}
	}
}

// DefaultIsFailure counts every error except caller cancellation.
func DefaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() State {
	return fromGoBreaker(b.cb.State())
}

func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// FailureCount is the number of failures not yet offset by successes.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// LastFailure is zero once the failure count drops back to zero.
func (b *Breaker) LastFailure() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailure
}

// Execute runs op unless the circuit is open.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Run(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func Run[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if b == nil {
		return op(ctx)
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		return op(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.metrics.IncCounter(ctx, "labelwatch.breaker.rejected", 1, map[string]string{"breaker": b.name})
			return zero, core.BreakerOpen(b.name, b.remaining())
		}
		if typed, ok := out.(T); ok {
			return typed, err
		}
		return zero, err
	}
	typed, _ := out.(T)
	return typed, nil
}

func (b *Breaker) remaining() time.Duration {
	if b.cb.State() != gobreaker.StateOpen {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.timeout - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *Breaker) onStateChange(name string, from gobreaker.State, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		b.mu.Lock()
		b.openedAt = b.now()
		b.mu.Unlock()
	}
	level := core.LevelInfo
	if to == gobreaker.StateOpen {
		level = core.LevelWarn
	}
	core.Log(context.Background(), b.logger, level, "circuit breaker state changed", map[string]any{
		"breaker":  name,
		"from":     string(fromGoBreaker(from)),
		"to":       string(fromGoBreaker(to)),
		"failures": b.FailureCount(),
	})
	b.metrics.IncCounter(context.Background(), "labelwatch.breaker.state_change", 1, map[string]string{
		"breaker": name,
		"to":      string(fromGoBreaker(to)),
	})
}

func fromGoBreaker(state gobreaker.State) State {
	switch state {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
