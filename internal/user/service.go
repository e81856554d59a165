package user

import (
	"context"
	"fmt"
	"time"

	errors "github.com/frahmantamala/atelier/internal"
	userDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/user"
)

type Repository interface {
	GetByID(ctx context.Context, userID int64) (*userDatamodel.User, error)
	Upsert(ctx context.Context, u *userDatamodel.User) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	if u == nil {
		return nil, errors.ErrUserNotFound
	}
	return FromDataModel(u), nil
}

// Sync mirrors the caller's token profile into the users table.
func (s *Service) Sync(ctx context.Context, caller *errors.User) error {
	if caller == nil || caller.ID <= 0 {
		return errors.ErrInvalidToken
	}
	now := time.Now().UTC()
	err := s.repo.Upsert(ctx, &userDatamodel.User{
		ID:        caller.ID,
		Email:     caller.Email,
		Name:      caller.Name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to sync user profile: %w", err)
	}
	return nil
}
