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

// UserStore keeps chat users and the repository-host token each one linked.
type UserStore struct {
	db   *bun.DB
	repo repository.Repository[*userRecord]
}

func NewUserStore(db *bun.DB) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*userRecord](db, userHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid user repository wiring: %w", err)
		}
	}
	return &UserStore{db: db, repo: repo}, nil
}

// Upsert creates the user or refreshes its token. An empty accessToken keeps
// whatever token is already stored.
func (s *UserStore) Upsert(ctx context.Context, externalUserID string, accessToken string) (core.User, error) {
	if s == nil || s.db == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	externalUserID = strings.TrimSpace(externalUserID)
	accessToken = strings.TrimSpace(accessToken)
	if externalUserID == "" {
		return core.User{}, core.BadInput("sqlstore: external user id is required", nil)
	}
	now := time.Now().UTC()

	var out core.User
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := ensureUserTx(ctx, tx, externalUserID, now)
		if err != nil {
			return err
		}
		if accessToken != "" && accessToken != record.AccessToken {
			record.AccessToken = accessToken
			record.UpdatedAt = now
			if _, err := tx.NewUpdate().
				Model(record).
				Column("access_token", "updated_at").
				Where("id = ?", record.ID).
				Exec(ctx); err != nil {
				return err
			}
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.User{}, err
	}
	return out, nil
}

func (s *UserStore) GetByExternalID(ctx context.Context, externalUserID string) (core.User, error) {
	record, err := s.getRecord(ctx, externalUserID)
	if err != nil {
		return core.User{}, err
	}
	return record.toDomain(), nil
}

func (s *UserStore) getRecord(ctx context.Context, externalUserID string) (*userRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: user store is not configured")
	}
	externalUserID = strings.TrimSpace(externalUserID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("external_user_id", "=", externalUserID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || records[0] == nil {
		return nil, fmt.Errorf("sqlstore: user %q: %w", externalUserID, core.ErrNotFound)
	}
	return records[0], nil
}

func findUserTx(ctx context.Context, db bun.IDB, externalUserID string) (*userRecord, error) {
	record := &userRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.external_user_id = ?", externalUserID).
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

// ensureUserTx returns the stored user, inserting an empty-token row first
// when the user is unknown.
func ensureUserTx(ctx context.Context, db bun.IDB, externalUserID string, now time.Time) (*userRecord, error) {
	record, err := findUserTx(ctx, db, externalUserID)
	if err != nil || record != nil {
		return record, err
	}
	record = &userRecord{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := db.NewInsert().
		Model(record).
		On("CONFLICT (external_user_id) DO NOTHING").
		Exec(ctx); err != nil {
		return nil, err
	}
	record, err = findUserTx(ctx, db, externalUserID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("sqlstore: user %q missing after insert", externalUserID)
	}
	return record, nil
}
