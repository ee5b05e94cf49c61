package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type okMessage struct{}

func (okMessage) Type() string { return "labelwatch.test.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "labelwatch.test.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "labelwatch.test.dispatch" }

type queueMessage struct{}

func (queueMessage) Type() string { return "labelwatch.test.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("labelwatch.test.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

type foreignMessage struct{}

func (foreignMessage) Type() string { return "billing.invoice.create" }

type claimedMessage struct{}

func (claimedMessage) Type() string { return "labelwatch.test.claimed" }

func TestValidateMessageContract_RejectsForeignNamespace(t *testing.T) {
	if err := ValidateMessageContract(foreignMessage{}); err == nil {
		t.Fatalf("expected message outside the labelwatch namespace to fail")
	}
}

func TestRegisterAndSubscribe_RejectsDuplicateType(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	first := command.CommandFunc[claimedMessage](func(context.Context, claimedMessage) error { return nil })
	second := command.CommandFunc[claimedMessage](func(context.Context, claimedMessage) error { return nil })

	sub, err := RegisterAndSubscribe(adapter, first)
	if err != nil {
		t.Fatalf("register first handler: %v", err)
	}
	defer sub.Unsubscribe()

	if _, err := RegisterAndSubscribe(adapter, second); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if got := adapter.Types(); len(got) != 1 || got[0] != "labelwatch.test.claimed" {
		t.Fatalf("unexpected registered types: %v", got)
	}
}

func TestRegisterAndSubscribe_RejectsForeignNamespace(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	cmd := command.CommandFunc[foreignMessage](func(context.Context, foreignMessage) error { return nil })
	if _, err := RegisterAndSubscribe(adapter, cmd); err == nil {
		t.Fatalf("expected foreign message type to be rejected")
	}
	if got := adapter.Types(); len(got) != 0 {
		t.Fatalf("expected no registered types, got %v", got)
	}
}
