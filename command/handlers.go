package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-labelwatch/core"
)

// RepositoryRegistrar validates a repository on the host, records it and
// installs the labelwatch webhook.
type RepositoryRegistrar interface {
	RegisterRepository(ctx context.Context, userID, owner, name string) (core.Repository, error)
}

type SubscriptionWriter interface {
	Subscribe(ctx context.Context, userID string, repositoryID int64, label string) (core.Subscription, error)
	Unsubscribe(ctx context.Context, userID string, repositoryID int64, label string) (bool, error)
}

// UnsubscribeResult reports whether a subscription existed.
type UnsubscribeResult struct {
	Removed bool
}

type EnqueueIssueNotificationCommand struct {
	enqueuer core.NotificationEnqueuer
}

func NewEnqueueIssueNotificationCommand(enqueuer core.NotificationEnqueuer) *EnqueueIssueNotificationCommand {
	return &EnqueueIssueNotificationCommand{enqueuer: enqueuer}
}

func (c *EnqueueIssueNotificationCommand) Execute(ctx context.Context, msg EnqueueIssueNotificationMessage) error {
	if c == nil || c.enqueuer == nil {
		return commandDependencyError("command: notification enqueuer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	job, err := c.enqueuer.EnqueueIssueNotification(ctx, strings.TrimSpace(msg.UserID), msg.Issue, strings.TrimSpace(msg.TriggeredLabel))
	if err != nil {
		return err
	}
	storeResult(ctx, job)
	return nil
}

type EnqueueErrorNotificationCommand struct {
	enqueuer core.NotificationEnqueuer
}

func NewEnqueueErrorNotificationCommand(enqueuer core.NotificationEnqueuer) *EnqueueErrorNotificationCommand {
	return &EnqueueErrorNotificationCommand{enqueuer: enqueuer}
}

func (c *EnqueueErrorNotificationCommand) Execute(ctx context.Context, msg EnqueueErrorNotificationMessage) error {
	if c == nil || c.enqueuer == nil {
		return commandDependencyError("command: notification enqueuer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	job, err := c.enqueuer.EnqueueErrorNotification(ctx, strings.TrimSpace(msg.UserID), msg.Message)
	if err != nil {
		return err
	}
	storeResult(ctx, job)
	return nil
}

type RegisterRepositoryCommand struct {
	registrar RepositoryRegistrar
}

func NewRegisterRepositoryCommand(registrar RepositoryRegistrar) *RegisterRepositoryCommand {
	return &RegisterRepositoryCommand{registrar: registrar}
}

func (c *RegisterRepositoryCommand) Execute(ctx context.Context, msg RegisterRepositoryMessage) error {
	if c == nil || c.registrar == nil {
		return commandDependencyError("command: repository registrar is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	repo, err := c.registrar.RegisterRepository(ctx,
		strings.TrimSpace(msg.UserID),
		strings.TrimSpace(msg.Owner),
		strings.TrimSpace(msg.Name),
	)
	if err != nil {
		return err
	}
	storeResult(ctx, repo)
	return nil
}

type SubscribeCommand struct {
	writer SubscriptionWriter
}

func NewSubscribeCommand(writer SubscriptionWriter) *SubscribeCommand {
	return &SubscribeCommand{writer: writer}
}

func (c *SubscribeCommand) Execute(ctx context.Context, msg SubscribeMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: subscription writer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	sub, err := c.writer.Subscribe(ctx, strings.TrimSpace(msg.UserID), msg.RepositoryID, strings.TrimSpace(msg.Label))
	if err != nil {
		return err
	}
	storeResult(ctx, sub)
	return nil
}

type UnsubscribeCommand struct {
	writer SubscriptionWriter
}

func NewUnsubscribeCommand(writer SubscriptionWriter) *UnsubscribeCommand {
	return &UnsubscribeCommand{writer: writer}
}

func (c *UnsubscribeCommand) Execute(ctx context.Context, msg UnsubscribeMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: subscription writer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	removed, err := c.writer.Unsubscribe(ctx, strings.TrimSpace(msg.UserID), msg.RepositoryID, strings.TrimSpace(msg.Label))
	if err != nil {
		return err
	}
	storeResult(ctx, UnsubscribeResult{Removed: removed})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
