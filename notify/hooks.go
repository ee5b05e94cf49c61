package notify

import (
	"context"
	"time"

	"github.com/goliatone/go-labelwatch/core"
)

// Event describes one delivery attempt.
type Event struct {
	Job       core.NotificationJob
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Hook observes delivery attempts. Hooks run synchronously on the dispatch
// goroutine and must not block.
type Hook interface {
	OnStart(ctx context.Context, event Event)
	OnSuccess(ctx context.Context, event Event)
	OnFailure(ctx context.Context, event Event)
	OnRetry(ctx context.Context, event Event)
}

// HookFuncs adapts optional callbacks to Hook.
type HookFuncs struct {
	OnStartFunc   func(ctx context.Context, event Event)
	OnSuccessFunc func(ctx context.Context, event Event)
	OnFailureFunc func(ctx context.Context, event Event)
	OnRetryFunc   func(ctx context.Context, event Event)
}

func (h HookFuncs) OnStart(ctx context.Context, event Event) {
	if h.OnStartFunc != nil {
		h.OnStartFunc(ctx, event)
	}
}

func (h HookFuncs) OnSuccess(ctx context.Context, event Event) {
	if h.OnSuccessFunc != nil {
		h.OnSuccessFunc(ctx, event)
	}
}

func (h HookFuncs) OnFailure(ctx context.Context, event Event) {
	if h.OnFailureFunc != nil {
		h.OnFailureFunc(ctx, event)
	}
}

func (h HookFuncs) OnRetry(ctx context.Context, event Event) {
	if h.OnRetryFunc != nil {
		h.OnRetryFunc(ctx, event)
	}
}

type hookChain []Hook

func (c hookChain) start(ctx context.Context, event Event) {
	for _, hook := range c {
		hook.OnStart(ctx, event)
	}
}

func (c hookChain) success(ctx context.Context, event Event) {
	for _, hook := range c {
		hook.OnSuccess(ctx, event)
	}
}

func (c hookChain) failure(ctx context.Context, event Event) {
	for _, hook := range c {
		hook.OnFailure(ctx, event)
	}
}

func (c hookChain) retry(ctx context.Context, event Event) {
	for _, hook := range c {
		hook.OnRetry(ctx, event)
	}
}

var _ Hook = HookFuncs{}
