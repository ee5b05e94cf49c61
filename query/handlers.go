package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-labelwatch/core"
)

// RepositoryReader is the read side of the repository host client.
type RepositoryReader interface {
	ValidateRepository(ctx context.Context, userID, owner, name string) (core.RemoteRepository, error)
	ListLabels(ctx context.Context, userID, owner, name string) ([]core.Label, error)
}

type QueueStatsQuery struct {
	reader core.QueueStatsReader
}

func NewQueueStatsQuery(reader core.QueueStatsReader) *QueueStatsQuery {
	return &QueueStatsQuery{reader: reader}
}

func (q *QueueStatsQuery) Query(_ context.Context, _ QueueStatsMessage) (core.QueueStats, error) {
	if q == nil || q.reader == nil {
		return core.QueueStats{}, queryDependencyError("query: queue stats reader is required")
	}
	return q.reader.Stats(), nil
}

type ValidateRepositoryQuery struct {
	reader RepositoryReader
}

func NewValidateRepositoryQuery(reader RepositoryReader) *ValidateRepositoryQuery {
	return &ValidateRepositoryQuery{reader: reader}
}

func (q *ValidateRepositoryQuery) Query(ctx context.Context, msg ValidateRepositoryMessage) (core.RemoteRepository, error) {
	if q == nil || q.reader == nil {
		return core.RemoteRepository{}, queryDependencyError("query: repository reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.RemoteRepository{}, err
	}
	return q.reader.ValidateRepository(ctx,
		strings.TrimSpace(msg.UserID),
		strings.TrimSpace(msg.Owner),
		strings.TrimSpace(msg.Name),
	)
}

type ListRepositoryLabelsQuery struct {
	reader RepositoryReader
}

func NewListRepositoryLabelsQuery(reader RepositoryReader) *ListRepositoryLabelsQuery {
	return &ListRepositoryLabelsQuery{reader: reader}
}

func (q *ListRepositoryLabelsQuery) Query(ctx context.Context, msg ListRepositoryLabelsMessage) ([]core.Label, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: repository reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListLabels(ctx,
		strings.TrimSpace(msg.UserID),
		strings.TrimSpace(msg.Owner),
		strings.TrimSpace(msg.Name),
	)
}

type ListUserSubscriptionsQuery struct {
	directory core.SubscriptionDirectory
}

func NewListUserSubscriptionsQuery(directory core.SubscriptionDirectory) *ListUserSubscriptionsQuery {
	return &ListUserSubscriptionsQuery{directory: directory}
}

func (q *ListUserSubscriptionsQuery) Query(
	ctx context.Context,
	msg ListUserSubscriptionsMessage,
) ([]core.RepositorySubscriptions, error) {
	if q == nil || q.directory == nil {
		return nil, queryDependencyError("query: subscription directory is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.directory.GetUserSubscriptions(ctx, strings.TrimSpace(msg.UserID))
}
