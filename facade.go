package labelwatch

import (
	"fmt"

	"github.com/goliatone/go-labelwatch/command"
	"github.com/goliatone/go-labelwatch/core"
	"github.com/goliatone/go-labelwatch/query"
)

// CommandQueryService is everything the command and query handlers need.
// *Service implements it.
type CommandQueryService interface {
	core.NotificationEnqueuer
	core.QueueStatsReader
	core.SubscriptionDirectory
	command.RepositoryRegistrar
	command.SubscriptionWriter
	query.RepositoryReader
}

type Commands struct {
	EnqueueIssueNotification *command.EnqueueIssueNotificationCommand
	EnqueueErrorNotification *command.EnqueueErrorNotificationCommand
	RegisterRepository       *command.RegisterRepositoryCommand
	Subscribe                *command.SubscribeCommand
	Unsubscribe              *command.UnsubscribeCommand
}

type Queries struct {
	QueueStats            *query.QueueStatsQuery
	ValidateRepository    *query.ValidateRepositoryQuery
	ListRepositoryLabels  *query.ListRepositoryLabelsQuery
	ListUserSubscriptions *query.ListUserSubscriptionsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("labelwatch: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			EnqueueIssueNotification: command.NewEnqueueIssueNotificationCommand(service),
			EnqueueErrorNotification: command.NewEnqueueErrorNotificationCommand(service),
			RegisterRepository:       command.NewRegisterRepositoryCommand(service),
			Subscribe:                command.NewSubscribeCommand(service),
			Unsubscribe:              command.NewUnsubscribeCommand(service),
		},
		queries: Queries{
			QueueStats:            query.NewQueueStatsQuery(service),
			ValidateRepository:    query.NewValidateRepositoryQuery(service),
			ListRepositoryLabels:  query.NewListRepositoryLabelsQuery(service),
			ListUserSubscriptions: query.NewListUserSubscriptionsQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
