package command

import (
	"strings"

	"github.com/goliatone/go-labelwatch/core"
)

const (
	TypeEnqueueIssueNotification = "labelwatch.command.notification.issue"
	TypeEnqueueErrorNotification = "labelwatch.command.notification.error"
	TypeRegisterRepository       = "labelwatch.command.repository.register"
	TypeSubscribe                = "labelwatch.command.subscription.subscribe"
	TypeUnsubscribe              = "labelwatch.command.subscription.unsubscribe"
)

type EnqueueIssueNotificationMessage struct {
	UserID         string
	Issue          core.IssueInfo
	TriggeredLabel string
}

func (EnqueueIssueNotificationMessage) Type() string { return TypeEnqueueIssueNotification }

func (m EnqueueIssueNotificationMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	if m.Issue.Number <= 0 {
		return commandValidationError("issue.number", "issue number must be positive")
	}
	if strings.TrimSpace(m.TriggeredLabel) == "" {
		return commandValidationError("triggered_label", "triggered label is required")
	}
	return nil
}

type EnqueueErrorNotificationMessage struct {
	UserID  string
	Message string
}

func (EnqueueErrorNotificationMessage) Type() string { return TypeEnqueueErrorNotification }

func (m EnqueueErrorNotificationMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	if strings.TrimSpace(m.Message) == "" {
		return commandValidationError("message", "message is required")
	}
	return nil
}

type RegisterRepositoryMessage struct {
	UserID string
	Owner  string
	Name   string
}

func (RegisterRepositoryMessage) Type() string { return TypeRegisterRepository }

func (m RegisterRepositoryMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return validateRepositoryName(m.Owner, m.Name)
}

type SubscribeMessage struct {
	UserID       string
	RepositoryID int64
	Label        string
}

func (SubscribeMessage) Type() string { return TypeSubscribe }

func (m SubscribeMessage) Validate() error {
	return validateSubscription(m.UserID, m.RepositoryID, m.Label)
}

type UnsubscribeMessage struct {
	UserID       string
	RepositoryID int64
	Label        string
}

func (UnsubscribeMessage) Type() string { return TypeUnsubscribe }

func (m UnsubscribeMessage) Validate() error {
	return validateSubscription(m.UserID, m.RepositoryID, m.Label)
}

func validateSubscription(userID string, repositoryID int64, label string) error {
	if strings.TrimSpace(userID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	if repositoryID <= 0 {
		return commandValidationError("repository_id", "repository id must be positive")
	}
	if strings.TrimSpace(label) == "" {
		return commandValidationError("label", "label is required")
	}
	return nil
}

func validateRepositoryName(owner, name string) error {
	if strings.TrimSpace(owner) == "" {
		return commandValidationError("owner", "repository owner is required")
	}
	if strings.TrimSpace(name) == "" {
		return commandValidationError("name", "repository name is required")
	}
	if strings.Contains(owner, "/") || strings.Contains(name, "/") {
		return commandInvalidInputError("command: repository owner and name must not contain '/'")
	}
	return nil
}
