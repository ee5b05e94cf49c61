package sqlstore

import "github.com/goliatone/go-labelwatch/core"

var (
	_ core.SubscriptionDirectory = (*SubscriptionStore)(nil)
	_ core.SubscriptionDirectory = (*CachedSubscriptionDirectory)(nil)
	_ SubscriptionBackend        = (*SubscriptionStore)(nil)
	_ core.TokenStore            = (*UserTokenStore)(nil)
)
