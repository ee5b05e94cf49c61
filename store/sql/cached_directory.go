package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/goliatone/go-labelwatch/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const (
	subscribersCacheKeyPrefix       = "go-labelwatch::subscribers::v1"
	userSubscriptionsCacheKeyPrefix = "go-labelwatch::user_subscriptions::v1"
)

// SubscriptionBackend is the directory plus the writes that invalidate it.
type SubscriptionBackend interface {
	core.SubscriptionDirectory
	Subscribe(ctx context.Context, userID string, repositoryID int64, label string) (core.Subscription, error)
	Unsubscribe(ctx context.Context, userID string, repositoryID int64, label string) (bool, error)
}

// CachedSubscriptionDirectory serves directory reads from the repository
// cache. Writes go through to the backend and then drop the affected keys.
type CachedSubscriptionDirectory struct {
	base  SubscriptionBackend
	cache repositorycache.CacheService
}

func NewCachedSubscriptionDirectory(
	base SubscriptionBackend,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionDirectory, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription backend is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionDirectory{base: base, cache: cacheService}, nil
}

// SubscribersCacheKey returns go-labelwatch::subscribers::v1::<repository_id>::<label>
// with the label URL-path escaped.
func SubscribersCacheKey(repositoryID int64, label string) string {
	return strings.Join([]string{
		subscribersCacheKeyPrefix,
		strconv.FormatInt(repositoryID, 10),
		url.PathEscape(strings.TrimSpace(label)),
	}, "::")
}

// UserSubscriptionsCacheKey returns go-labelwatch::user_subscriptions::v1::<user_id>
// with the user id URL-path escaped.
func UserSubscriptionsCacheKey(userID string) string {
	return strings.Join([]string{
		userSubscriptionsCacheKeyPrefix,
		url.PathEscape(strings.TrimSpace(userID)),
	}, "::")
}

func (d *CachedSubscriptionDirectory) FindSubscribersForLabel(ctx context.Context, repositoryID int64, label string) ([]string, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription directory is not configured")
	}
	users, err := repositorycache.GetOrFetch(ctx, d.cache, SubscribersCacheKey(repositoryID, label), func(ctx context.Context) ([]string, error) {
		fetched, fetchErr := d.base.FindSubscribersForLabel(ctx, repositoryID, label)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return slices.Clone(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(users), nil
}

func (d *CachedSubscriptionDirectory) GetUserSubscriptions(ctx context.Context, userID string) ([]core.RepositorySubscriptions, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription directory is not configured")
	}
	subs, err := repositorycache.GetOrFetch(ctx, d.cache, UserSubscriptionsCacheKey(userID), func(ctx context.Context) ([]core.RepositorySubscriptions, error) {
		fetched, fetchErr := d.base.GetUserSubscriptions(ctx, userID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneRepositorySubscriptions(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneRepositorySubscriptions(subs), nil
}

func (d *CachedSubscriptionDirectory) Subscribe(ctx context.Context, userID string, repositoryID int64, label string) (core.Subscription, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription directory is not configured")
	}
	sub, err := d.base.Subscribe(ctx, userID, repositoryID, label)
	if err != nil {
		return core.Subscription{}, err
	}
	if err := d.Invalidate(ctx, userID, repositoryID, label); err != nil {
		return core.Subscription{}, err
	}
	return sub, nil
}

func (d *CachedSubscriptionDirectory) Unsubscribe(ctx context.Context, userID string, repositoryID int64, label string) (bool, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return false, fmt.Errorf("sqlstore: cached subscription directory is not configured")
	}
	removed, err := d.base.Unsubscribe(ctx, userID, repositoryID, label)
	if err != nil {
		return false, err
	}
	if err := d.Invalidate(ctx, userID, repositoryID, label); err != nil {
		return false, err
	}
	return removed, nil
}

// Invalidate drops the cached entries a subscription change can affect.
func (d *CachedSubscriptionDirectory) Invalidate(ctx context.Context, userID string, repositoryID int64, label string) error {
	if d == nil || d.cache == nil {
		return fmt.Errorf("sqlstore: cached subscription directory is not configured")
	}
	if err := d.cache.Delete(ctx, SubscribersCacheKey(repositoryID, label)); err != nil {
		return err
	}
	return d.cache.Delete(ctx, UserSubscriptionsCacheKey(userID))
}

func cloneRepositorySubscriptions(in []core.RepositorySubscriptions) []core.RepositorySubscriptions {
	if in == nil {
		return nil
	}
	out := make([]core.RepositorySubscriptions, len(in))
	for i, sub := range in {
		out[i] = sub
		out[i].Labels = slices.Clone(sub.Labels)
	}
	return out
}
