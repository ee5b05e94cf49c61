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

// RepositoryStore tracks the repositories labelwatch has a webhook on. Rows
// are keyed by the host's numeric repository id so renames keep their
// subscriptions.
type RepositoryStore struct {
	db   *bun.DB
	repo repository.Repository[*repositoryRecord]
}

func NewRepositoryStore(db *bun.DB) (*RepositoryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*repositoryRecord](db, repositoryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid repository wiring: %w", err)
		}
	}
	return &RepositoryStore{db: db, repo: repo}, nil
}

func (s *RepositoryStore) Upsert(ctx context.Context, in core.RemoteRepository) (core.Repository, error) {
	if s == nil || s.db == nil {
		return core.Repository{}, fmt.Errorf("sqlstore: repository store is not configured")
	}
	in.Owner = strings.TrimSpace(in.Owner)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID <= 0 {
		return core.Repository{}, core.BadInput("sqlstore: remote repository id is required", nil)
	}
	if in.Owner == "" || in.Name == "" {
		return core.Repository{}, core.BadInput("sqlstore: repository owner and name are required", map[string]any{
			"repository_id": in.ID,
		})
	}
	now := time.Now().UTC()

	var out core.Repository
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findRepositoryTx(ctx, tx, in.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := &repositoryRecord{
				ID:        uuid.NewString(),
				RemoteID:  in.ID,
				Owner:     in.Owner,
				Name:      in.Name,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return err
			}
			out = record.toDomain()
			return nil
		}

		if existing.Owner != in.Owner || existing.Name != in.Name {
			existing.Owner = in.Owner
			existing.Name = in.Name
			existing.UpdatedAt = now
			if _, err := tx.NewUpdate().
				Model(existing).
				Column("owner", "name", "updated_at").
				Where("id = ?", existing.ID).
				Exec(ctx); err != nil {
				return err
			}
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.Repository{}, err
	}
	return out, nil
}

func (s *RepositoryStore) GetByRemoteID(ctx context.Context, remoteID int64) (core.Repository, error) {
	if s == nil || s.db == nil {
		return core.Repository{}, fmt.Errorf("sqlstore: repository store is not configured")
	}
	record, err := findRepositoryTx(ctx, s.db, remoteID)
	if err != nil {
		return core.Repository{}, err
	}
	if record == nil {
		return core.Repository{}, fmt.Errorf("sqlstore: repository %d: %w", remoteID, core.ErrNotFound)
	}
	return record.toDomain(), nil
}

// SetWebhookID records the hook created on the host for the repository. Zero
// clears it.
func (s *RepositoryStore) SetWebhookID(ctx context.Context, remoteID int64, webhookID int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: repository store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*repositoryRecord)(nil)).
		Set("webhook_id = ?", webhookID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("remote_id = ?", remoteID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := res.RowsAffected(); affErr == nil && affected == 0 {
		return fmt.Errorf("sqlstore: repository %d: %w", remoteID, core.ErrNotFound)
	}
	return nil
}

func (s *RepositoryStore) List(ctx context.Context) ([]core.Repository, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: repository store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("?TableAlias.owner ASC, ?TableAlias.name ASC")
		}),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Repository, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findRepositoryTx(ctx context.Context, db bun.IDB, remoteID int64) (*repositoryRecord, error) {
	record := &repositoryRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.remote_id = ?", remoteID).
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
