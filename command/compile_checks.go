package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[EnqueueIssueNotificationMessage] = (*EnqueueIssueNotificationCommand)(nil)
	_ gocmd.Commander[EnqueueErrorNotificationMessage] = (*EnqueueErrorNotificationCommand)(nil)
	_ gocmd.Commander[RegisterRepositoryMessage]       = (*RegisterRepositoryCommand)(nil)
	_ gocmd.Commander[SubscribeMessage]                = (*SubscribeCommand)(nil)
	_ gocmd.Commander[UnsubscribeMessage]              = (*UnsubscribeCommand)(nil)
)
