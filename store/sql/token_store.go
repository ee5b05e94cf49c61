package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-labelwatch/core"
)

// UserTokenStore resolves the token used for calls made on behalf of a user,
// falling back to the service token when the user has none linked.
type UserTokenStore struct {
	users        *UserStore
	defaultToken string
}

func NewUserTokenStore(users *UserStore, defaultToken string) (*UserTokenStore, error) {
	if users == nil {
		return nil, fmt.Errorf("sqlstore: user store is required")
	}
	return &UserTokenStore{users: users, defaultToken: strings.TrimSpace(defaultToken)}, nil
}

func (s *UserTokenStore) ResolveToken(ctx context.Context, userID string) (string, error) {
	if s == nil || s.users == nil {
		return "", fmt.Errorf("sqlstore: token store is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return s.defaultToken, nil
	}
	record, err := s.users.getRecord(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return s.defaultToken, nil
	}
	if err != nil {
		return "", err
	}
	if token := strings.TrimSpace(record.AccessToken); token != "" {
		return token, nil
	}
	return s.defaultToken, nil
}
