package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"semchat/server/domain"
)

// UserService is the user directory: lookup-or-create by email on login,
// listing for the contact picker. Users are never mutated or deleted.
type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// Login returns the user with this email, creating it on first sight. The
// created flag distinguishes 201 from 200 at the HTTP layer.
func (s *UserService) Login(ctx context.Context, name, email string) (domain.User, bool, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return domain.User{}, false, fmt.Errorf("%w: name and email are required", domain.ErrInvalidUser)
	}
	if !strings.Contains(email, "@") {
		return domain.User{}, false, fmt.Errorf("%w: email is invalid", domain.ErrInvalidUser)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, false, err
	}

	user, err = s.users.Create(ctx, name, email)
	if err != nil {
		// A concurrent login can win the insert race on the unique email.
		if existing, getErr := s.users.GetByEmail(ctx, email); getErr == nil {
			return existing, false, nil
		}
		return domain.User{}, false, fmt.Errorf("create user: %w", err)
	}
	return user, true, nil
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}
