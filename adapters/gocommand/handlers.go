package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	lwcommand "github.com/goliatone/go-labelwatch/command"
	"github.com/goliatone/go-labelwatch/core"
	lwquery "github.com/goliatone/go-labelwatch/query"
)

// Handlers carries the dependencies behind the labelwatch commands and
// queries. A nil dependency leaves its handlers unregistered.
type Handlers struct {
	Notifications core.NotificationEnqueuer
	Registrar     lwcommand.RepositoryRegistrar
	Subscriptions lwcommand.SubscriptionWriter
	Repositories  lwquery.RepositoryReader
	Directory     core.SubscriptionDirectory
	Stats         core.QueueStatsReader
}

// Subscriptions tracks dispatcher subscriptions created by RegisterHandlers.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterHandlers registers and subscribes every labelwatch handler whose
// dependency is set. On error the subscriptions made so far are released.
func RegisterHandlers(adapter *RegistryAdapter, handlers Handlers, runnerOpts ...runner.Option) (Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	var subs Subscriptions
	add := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if handlers.Notifications != nil {
		if err := add(RegisterAndSubscribe(adapter,
			lwcommand.NewEnqueueIssueNotificationCommand(handlers.Notifications), runnerOpts...)); err != nil {
			return nil, err
		}
		if err := add(RegisterAndSubscribe(adapter,
			lwcommand.NewEnqueueErrorNotificationCommand(handlers.Notifications), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.Registrar != nil {
		if err := add(RegisterAndSubscribe(adapter,
			lwcommand.NewRegisterRepositoryCommand(handlers.Registrar), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.Subscriptions != nil {
		if err := add(RegisterAndSubscribe(adapter,
			lwcommand.NewSubscribeCommand(handlers.Subscriptions), runnerOpts...)); err != nil {
			return nil, err
		}
		if err := add(RegisterAndSubscribe(adapter,
			lwcommand.NewUnsubscribeCommand(handlers.Subscriptions), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.Repositories != nil {
		if err := add(RegisterAndSubscribeQuery(adapter,
			lwquery.NewValidateRepositoryQuery(handlers.Repositories), runnerOpts...)); err != nil {
			return nil, err
		}
		if err := add(RegisterAndSubscribeQuery(adapter,
			lwquery.NewListRepositoryLabelsQuery(handlers.Repositories), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.Directory != nil {
		if err := add(RegisterAndSubscribeQuery(adapter,
			lwquery.NewListUserSubscriptionsQuery(handlers.Directory), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.Stats != nil {
		if err := add(RegisterAndSubscribeQuery(adapter,
			lwquery.NewQueueStatsQuery(handlers.Stats), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	return subs, nil
}
