package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-labelwatch/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SubscriptionStore persists (user, repository, label) subscriptions and
// answers the directory lookups the webhook ingress performs.
type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{db: db, repo: repo}, nil
}

// Subscribe is idempotent: subscribing twice returns the existing row. The
// user row is created on first use; the repository must already be tracked.
func (s *SubscriptionStore) Subscribe(ctx context.Context, userID string, repositoryID int64, label string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	userID, label, err := normalizeSubscriptionInput(userID, repositoryID, label)
	if err != nil {
		return core.Subscription{}, err
	}
	now := time.Now().UTC()

	var out core.Subscription
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo, err := findRepositoryTx(ctx, tx, repositoryID)
		if err != nil {
			return err
		}
		if repo == nil {
			return fmt.Errorf("sqlstore: repository %d: %w", repositoryID, core.ErrNotFound)
		}
		user, err := ensureUserTx(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		existing, err := findSubscriptionTx(ctx, tx, user.ID, repo.ID, label)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing.toDomain()
			return nil
		}

		record := &subscriptionRecord{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			RepositoryID: repo.ID,
			Label:        label,
			CreatedAt:    now,
		}
		if _, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (user_id, repository_id, label) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
		stored, err := findSubscriptionTx(ctx, tx, user.ID, repo.ID, label)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("sqlstore: subscription missing after insert")
		}
		out = stored.toDomain()
		return nil
	})
	if err != nil {
		return core.Subscription{}, err
	}
	return out, nil
}

// Unsubscribe reports whether a subscription was removed.
func (s *SubscriptionStore) Unsubscribe(ctx context.Context, userID string, repositoryID int64, label string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	userID, label, err := normalizeSubscriptionInput(userID, repositoryID, label)
	if err != nil {
		return false, err
	}

	res, err := s.db.NewDelete().
		Model((*subscriptionRecord)(nil)).
		Where("label = ?", label).
		Where("user_id IN (?)", s.db.NewSelect().
			Model((*userRecord)(nil)).
			Column("id").
			Where("external_user_id = ?", userID)).
		Where("repository_id IN (?)", s.db.NewSelect().
			Model((*repositoryRecord)(nil)).
			Column("id").
			Where("remote_id = ?", repositoryID)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

// FindSubscribersForLabel returns the external ids of users following label
// on the repository, oldest subscription first.
func (s *SubscriptionStore) FindSubscribersForLabel(ctx context.Context, repositoryID int64, label string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	label = strings.TrimSpace(label)
	if repositoryID <= 0 || label == "" {
		return nil, nil
	}
	var userIDs []string
	err := s.db.NewSelect().
		Model((*subscriptionRecord)(nil)).
		ColumnExpr("lu.external_user_id").
		Join("JOIN lw_users AS lu ON lu.id = ls.user_id").
		Join("JOIN lw_repositories AS lr ON lr.id = ls.repository_id").
		Where("lr.remote_id = ?", repositoryID).
		Where("ls.label = ?", label).
		OrderExpr("ls.created_at ASC, ls.id ASC").
		Scan(ctx, &userIDs)
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

// GetUserSubscriptions groups the user's labels per repository.
func (s *SubscriptionStore) GetUserSubscriptions(ctx context.Context, userID string) ([]core.RepositorySubscriptions, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	var rows []subscriptionRow
	err := s.db.NewSelect().
		Model((*subscriptionRecord)(nil)).
		ColumnExpr("lu.external_user_id, lr.remote_id, lr.owner, lr.name, ls.label").
		Join("JOIN lw_users AS lu ON lu.id = ls.user_id").
		Join("JOIN lw_repositories AS lr ON lr.id = ls.repository_id").
		Where("lu.external_user_id = ?", userID).
		OrderExpr("lr.remote_id ASC, ls.created_at ASC, ls.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return groupSubscriptions(rows), nil
}

func groupSubscriptions(rows []subscriptionRow) []core.RepositorySubscriptions {
	if len(rows) == 0 {
		return nil
	}
	out := make([]core.RepositorySubscriptions, 0)
	index := make(map[int64]int)
	for _, row := range rows {
		pos, ok := index[row.RemoteID]
		if !ok {
			index[row.RemoteID] = len(out)
			out = append(out, core.RepositorySubscriptions{
				RepositoryID: row.RemoteID,
				Owner:        row.Owner,
				Name:         row.Name,
			})
			pos = len(out) - 1
		}
		out[pos].Labels = append(out[pos].Labels, row.Label)
	}
	return out
}

func findSubscriptionTx(ctx context.Context, db bun.IDB, userID, repositoryID, label string) (*subscriptionRecord, error) {
	record := &subscriptionRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.repository_id = ?", repositoryID).
		Where("?TableAlias.label = ?", label).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func normalizeSubscriptionInput(userID string, repositoryID int64, label string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	label = strings.TrimSpace(label)
	if userID == "" {
		return "", "", core.BadInput("sqlstore: user id is required", nil)
	}
	if repositoryID <= 0 {
		return "", "", core.BadInput("sqlstore: repository id is required", nil)
	}
	if label == "" {
		return "", "", core.BadInput("sqlstore: label is required", map[string]any{
			"repository_id": repositoryID,
		})
	}
	return userID, label, nil
}
