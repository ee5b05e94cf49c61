package gocommand

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-labelwatch/core"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// MessageNamespace prefixes every labelwatch command and query type.
const MessageNamespace = "labelwatch."

// ValidateMessageContract checks that msg has a namespaced Type() and, when it
// implements Validate(), that it is valid.
func ValidateMessageContract(msg any) error {
	if err := checkMessageType(msg); err != nil {
		return err
	}
	return command.ValidateMessage(msg)
}

func checkMessageType(msg any) error {
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message %T must implement Type() string", msg)
	}
	msgType := strings.TrimSpace(m.Type())
	if msgType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(msgType, MessageNamespace) {
		return fmt.Errorf("gocommand: message type %q is outside the %q namespace", msgType, MessageNamespace)
	}
	return nil
}

type AdapterOption func(*RegistryAdapter)

func WithLogger(logger core.Logger) AdapterOption {
	return func(a *RegistryAdapter) {
		a.logger = logger
	}
}

// RegistryAdapter wraps a go-command registry and remembers which labelwatch
// message types have handlers.
type RegistryAdapter struct {
	registry *command.Registry
	logger   core.Logger

	mu    sync.Mutex
	types map[string]struct{}
}

func NewRegistryAdapter(registry *command.Registry, opts ...AdapterOption) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	adapter := &RegistryAdapter{registry: registry, types: map[string]struct{}{}}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	adapter.logger = core.ResolveLogger("labelwatch.gocommand", nil, adapter.logger)
	return adapter
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// Types lists the registered message types in sorted order.
func (a *RegistryAdapter) Types() []string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.types))
	for msgType := range a.types {
		out = append(out, msgType)
	}
	slices.Sort(out)
	return out
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

// RegisterQuery shares the command registry; go-command resolves queries and
// commands from the same table.
func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so they can also run as background jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if err := a.registry.Initialize(); err != nil {
		return err
	}
	core.Log(context.Background(), a.logger, core.LevelDebug, "command registry initialized", map[string]any{
		"types": a.Types(),
	})
	return nil
}

func (a *RegistryAdapter) claim(msgType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.types[msgType]; exists {
		return fmt.Errorf("gocommand: handler for %q is already registered", msgType)
	}
	a.types[msgType] = struct{}{}
	return nil
}

func (a *RegistryAdapter) release(msgType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.types, msgType)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe registers cmd with the adapter and subscribes it to the
// global dispatcher. A message type may only be claimed once per adapter.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	return register[T](adapter, cmd, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	})
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return register[T](adapter, qry, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	})
}

func register[T any](adapter *RegistryAdapter, handler any, subscribe func() commanddispatcher.Subscription) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	var zero T
	if err := checkMessageType(zero); err != nil {
		return nil, err
	}
	msgType := any(zero).(command.Message).Type()
	if err := adapter.claim(msgType); err != nil {
		return nil, err
	}

	subscription := subscribe()
	if err := adapter.registry.RegisterCommand(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		adapter.release(msgType)
		return nil, err
	}
	core.Log(context.Background(), adapter.logger, core.LevelDebug, "handler registered", map[string]any{
		"type": msgType,
	})
	return subscription, nil
}
