package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-labelwatch/core"
)

var (
	_ gocmd.Querier[QueueStatsMessage, core.QueueStats]                           = (*QueueStatsQuery)(nil)
	_ gocmd.Querier[ValidateRepositoryMessage, core.RemoteRepository]             = (*ValidateRepositoryQuery)(nil)
	_ gocmd.Querier[ListRepositoryLabelsMessage, []core.Label]                    = (*ListRepositoryLabelsQuery)(nil)
	_ gocmd.Querier[ListUserSubscriptionsMessage, []core.RepositorySubscriptions] = (*ListUserSubscriptionsQuery)(nil)
)
