package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/miniokta/internal/auth/domain"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
)

type UserService struct {
	Store store.Store
}

// Profile returns the caller-visible view of a user.
func (s *UserService) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, upstream("load user", err)
	}
	return u.Profile(), nil
}
