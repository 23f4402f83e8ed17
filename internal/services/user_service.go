package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/BradenHooton/steeldesk/pkg/auth"
)

// UserRepository defines the account operations needed outside sign-in
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// UserService manages admin accounts
type UserService struct {
	repo   UserRepository
	logger *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
	}
}

// EnsureAdmin creates an active admin account unless one already exists for email.
// Returns true when a new account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)

	if email == "" {
		return false, models.ErrBadRequest
	}
	if name == "" {
		name = "Administrator"
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Debug("bootstrap admin already exists")
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, err
	}

	if err := auth.ValidatePassword(password); err != nil {
		return false, err
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}

	user, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Name:         name,
		Role:         "admin",
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info("bootstrap admin created", slog.String("user_id", user.ID))
	return true, nil
}
