package adapters_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-labelwatch/adapters/gocommand"
	"github.com/goliatone/go-labelwatch/adapters/gojob"
	"github.com/goliatone/go-labelwatch/adapters/gologger"
	lwcommand "github.com/goliatone/go-labelwatch/command"
	"github.com/goliatone/go-labelwatch/core"
	"github.com/goliatone/go-labelwatch/notify"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRuntimeCompatibility_GoJobGoCommandZap(t *testing.T) {
	ctx := context.Background()

	observed, logs := observer.New(zap.DebugLevel)
	provider := gologger.NewZapProvider(zap.New(observed))
	if gologger.ToJobProvider(provider) == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if gologger.ToJobLogger(provider.GetLogger("labelwatch")) == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	probe := &compatEnqueuer{err: errors.New("broker down")}
	deadLetter, err := gojob.NewDeadLetterHook(probe, provider.GetLogger("labelwatch.dead_letter"))
	if err != nil {
		t.Fatalf("new dead letter hook: %v", err)
	}
	deadLetter.OnFailure(ctx, notify.Event{
		Job:     core.NotificationJob{ID: "job_1", UserID: "U1", Kind: core.NotificationKindError, Message: "boom"},
		Attempt: 3,
		Err:     errors.New("messenger unavailable"),
	})
	if probe.last == nil || probe.last.JobID != gojob.JobIDNotificationDeadLetter {
		t.Fatalf("expected dead letter message to reach the go-job enqueuer")
	}
	if logs.FilterMessage("dead letter enqueue failed").Len() != 1 {
		t.Fatalf("expected enqueue failure to be logged through zap")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	writer := &compatSubscriptionWriter{}
	subs, err := gocommand.RegisterHandlers(adapter, gocommand.Handlers{Subscriptions: writer})
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(lwcommand.TypeSubscribe); !ok {
		t.Fatalf("expected subscribe command to be mirrored into the go-job queue registry")
	}

	collector := command.NewResult[core.Subscription]()
	if err := gocommand.Dispatch(command.ContextWithResult(ctx, collector), lwcommand.SubscribeMessage{
		UserID:       "U1",
		RepositoryID: 42,
		Label:        "bug",
	}); err != nil {
		t.Fatalf("dispatch subscribe: %v", err)
	}
	sub, ok := collector.Load()
	if !ok || sub.Label != "bug" || sub.UserID != "U1" {
		t.Fatalf("expected subscription result, got %+v (ok=%v)", sub, ok)
	}
	if writer.subscribed != 1 {
		t.Fatalf("expected one subscribe call, got %d", writer.subscribed)
	}
}

type compatEnqueuer struct {
	last *job.ExecutionMessage
	err  error
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	e.last = msg
	return queue.EnqueueReceipt{}, e.err
}

type compatSubscriptionWriter struct {
	subscribed int
}

func (w *compatSubscriptionWriter) Subscribe(_ context.Context, userID string, repositoryID int64, label string) (core.Subscription, error) {
	w.subscribed++
	return core.Subscription{ID: "sub_1", UserID: userID, RepositoryID: "repo_42", Label: label}, nil
}

func (w *compatSubscriptionWriter) Unsubscribe(context.Context, string, int64, string) (bool, error) {
	return false, nil
}
