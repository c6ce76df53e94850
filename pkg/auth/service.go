package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/models"
	"github.com/reportai-inc/reportai-engine/pkg/repositories"
)

const minPasswordLength = 8

// LoginResult is what a successful login returns to the handler.
type LoginResult struct {
	Token     string
	SessionID string
	User      *models.User
}

// Service handles registration, login, and logout.
type Service interface {
	Register(ctx context.Context, email, name, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context, userID int64, sessionID string) error
	LogoutAll(ctx context.Context, userID int64) (int, error)
}

type service struct {
	users    repositories.UserRepository
	tokens   *TokenManager
	sessions *SessionManager
	logger   *zap.Logger
}

var _ Service = (*service)(nil)

// NewService creates the auth service.
func NewService(users repositories.UserRepository, tokens *TokenManager, sessions *SessionManager, logger *zap.Logger) Service {
	return &service{users: users, tokens: tokens, sessions: sessions, logger: logger}
}

func (s *service) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", apperrors.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrValidation, minPasswordLength)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", apperrors.ErrConflict)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Same error as a bad password so the response does not
			// reveal which accounts exist.
			return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrForbidden)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrForbidden)
	}

	session, err := s.sessions.Create(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, session.SessionID, user.Email)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	return &LoginResult{Token: token, SessionID: session.SessionID, User: user}, nil
}

func (s *service) Logout(ctx context.Context, userID int64, sessionID string) error {
	return s.sessions.Revoke(ctx, userID, sessionID)
}

func (s *service) LogoutAll(ctx context.Context, userID int64) (int, error) {
	return s.sessions.RevokeAll(ctx, userID)
}
