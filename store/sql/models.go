package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-labelwatch/core"
	"github.com/uptrace/bun"
)

type userRecord struct {
	bun.BaseModel `bun:"table:lw_users,alias:lu"`

	ID             string    `bun:"id,pk"`
	ExternalUserID string    `bun:"external_user_id,notnull"`
	AccessToken    string    `bun:"access_token,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *userRecord) toDomain() core.User {
	if r == nil {
		return core.User{}
	}
	return core.User{
		ID:             r.ID,
		ExternalUserID: r.ExternalUserID,
		HasToken:       strings.TrimSpace(r.AccessToken) != "",
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type repositoryRecord struct {
	bun.BaseModel `bun:"table:lw_repositories,alias:lr"`

	ID        string    `bun:"id,pk"`
	RemoteID  int64     `bun:"remote_id,notnull"`
	Owner     string    `bun:"owner,notnull"`
	Name      string    `bun:"name,notnull"`
	WebhookID int64     `bun:"webhook_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *repositoryRecord) toDomain() core.Repository {
	if r == nil {
		return core.Repository{}
	}
	return core.Repository{
		ID:        r.ID,
		RemoteID:  r.RemoteID,
		Owner:     r.Owner,
		Name:      r.Name,
		WebhookID: r.WebhookID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:lw_subscriptions,alias:ls"`

	ID           string    `bun:"id,pk"`
	UserID       string    `bun:"user_id,notnull"`
	RepositoryID string    `bun:"repository_id,notnull"`
	Label        string    `bun:"label,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *subscriptionRecord) toDomain() core.Subscription {
	if r == nil {
		return core.Subscription{}
	}
	return core.Subscription{
		ID:           r.ID,
		UserID:       r.UserID,
		RepositoryID: r.RepositoryID,
		Label:        r.Label,
		CreatedAt:    r.CreatedAt,
	}
}

// subscriptionRow is the joined projection used by directory lookups.
type subscriptionRow struct {
	ExternalUserID string `bun:"external_user_id"`
	RemoteID       int64  `bun:"remote_id"`
	Owner          string `bun:"owner"`
	Name           string `bun:"name"`
	Label          string `bun:"label"`
}
