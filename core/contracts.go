package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SubscriptionDirectory answers who follows which label.
type SubscriptionDirectory interface {
	FindSubscribersForLabel(ctx context.Context, repositoryID int64, label string) ([]string, error)
	GetUserSubscriptions(ctx context.Context, userID string) ([]RepositorySubscriptions, error)
}

// TokenStore resolves the access token used for remote calls made on behalf
// of a user. Implementations fall back to a service-level token.
type TokenStore interface {
	ResolveToken(ctx context.Context, userID string) (string, error)
}

type DirectMessenger interface {
	SendDirectMessage(ctx context.Context, userID string, msg RenderedMessage) error
}

type NotificationEnqueuer interface {
	EnqueueIssueNotification(ctx context.Context, userID string, issue IssueInfo, triggeredLabel string) (NotificationJob, error)
	EnqueueErrorNotification(ctx context.Context, userID string, message string) (NotificationJob, error)
}

type QueueStatsReader interface {
	Stats() QueueStats
}
