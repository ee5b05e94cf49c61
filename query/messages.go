package query

import (
	"strings"
)

const (
	TypeQueueStats            = "labelwatch.query.queue.stats"
	TypeValidateRepository    = "labelwatch.query.repository.validate"
	TypeListRepositoryLabels  = "labelwatch.query.repository.labels"
	TypeListUserSubscriptions = "labelwatch.query.subscription.list"
)

type QueueStatsMessage struct{}

func (QueueStatsMessage) Type() string { return TypeQueueStats }

func (QueueStatsMessage) Validate() error { return nil }

type ValidateRepositoryMessage struct {
	UserID string
	Owner  string
	Name   string
}

func (ValidateRepositoryMessage) Type() string { return TypeValidateRepository }

func (m ValidateRepositoryMessage) Validate() error {
	return validateRepositoryName(m.Owner, m.Name)
}

type ListRepositoryLabelsMessage struct {
	UserID string
	Owner  string
	Name   string
}

func (ListRepositoryLabelsMessage) Type() string { return TypeListRepositoryLabels }

func (m ListRepositoryLabelsMessage) Validate() error {
	return validateRepositoryName(m.Owner, m.Name)
}

type ListUserSubscriptionsMessage struct {
	UserID string
}

func (ListUserSubscriptionsMessage) Type() string { return TypeListUserSubscriptions }

func (m ListUserSubscriptionsMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}

func validateRepositoryName(owner, name string) error {
	if strings.TrimSpace(owner) == "" {
		return queryValidationError("owner", "repository owner is required")
	}
	if strings.TrimSpace(name) == "" {
		return queryValidationError("name", "repository name is required")
	}
	return nil
}
