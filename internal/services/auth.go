package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrAccountDisabled is returned when the admin account is switched off.
var ErrAccountDisabled = errors.New("account is disabled")

type LoginInput struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=255"`
}

type AuthService struct {
	users store.UserStore
	log   *zap.Logger
}

func NewAuthService(users store.UserStore, log *zap.Logger) *AuthService {
	return &AuthService{users: users, log: log}
}

// Authenticate checks the password and records the login time.
func (a *AuthService) Authenticate(ctx context.Context, in LoginInput) (*models.User, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	user, err := a.users.GetUserByUsername(ctx, in.Username)
	if store.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	now := time.Now().UTC()
	if err := a.users.TouchLogin(ctx, user.ID, now); err != nil {
		a.log.Warn("Auth: failed to record login time", zap.String("username", user.Username), zap.Error(err))
	} else {
		user.LastLogin = &now
	}
	return user, nil
}

// SeedAdmin creates the first admin account when no users exist.
func (a *AuthService) SeedAdmin(ctx context.Context, username, password string) (bool, error) {
	n, err := a.users.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	admin := &models.User{
		Username: username,
		Password: string(hash),
		FullName: "Administrator",
		IsActive: true,
	}
	if err := a.users.CreateUser(ctx, admin); err != nil {
		if store.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	a.log.Info("Auth: default admin created", zap.String("username", username))
	return true, nil
}
