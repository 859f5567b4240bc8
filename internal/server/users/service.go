// Package users implements account registration, login and request
// authentication.
package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/logging"
	"github.com/dmitrijs2005/releasekeeper/internal/server/auth"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store"
	"github.com/dmitrijs2005/releasekeeper/internal/server/validate"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost      = 10
	userIDLength    = 24
	sessionIDLength = 24
)

var (
	ErrNoSuchUser    = fmt.Errorf("%w: no user with that email address", common.ErrValidation)
	ErrWrongPassword = fmt.Errorf("%w: check your password and try again", common.ErrValidation)
)

// Session is what a successful login returns to the client.
type Session struct {
	AccessToken string
	UserID      string
}

type Service struct {
	store                       store.UserStore
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	logger                      logging.Logger

	newUserID    func() (string, error)
	newSessionID func() (string, error)
}

func NewService(st store.UserStore, secretKey string, accessTokenValidityDuration time.Duration, logger logging.Logger) *Service {
	return &Service{
		store:                       st,
		jwtSecret:                   []byte(secretKey),
		accessTokenValidityDuration: accessTokenValidityDuration,
		logger:                      logger.With("module", "users"),
		newUserID: func() (string, error) {
			return common.RandomString(userIDLength, common.LowerAlpha)
		},
		newSessionID: func() (string, error) {
			return common.RandomString(sessionIDLength, common.LowerAlphaNumeric)
		},
	}
}

// Register creates an account. A taken email yields common.ErrAlreadyExists.
func (s *Service) Register(ctx context.Context, email, password string) (string, error) {
	if _, err := validate.String(email, validate.KindEmail); err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf("%w: password is required", validate.ErrRejected)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	userID, err := s.newUserID()
	if err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}

	err = s.store.CreateUser(ctx, &models.User{
		ID:           userID,
		Email:        email,
		PasswordHash: hash,
		Releases:     map[string]*models.Release{},
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return "", err
		}
		return "", fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "account created", "user_id", userID)
	return userID, nil
}

// Login checks the password, starts a new session and returns a token
// bound to it. Starting a session ends any previous one.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}

	sessionID, err := s.newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	if err := s.store.SetSession(ctx, user.ID, sessionID); err != nil {
		return nil, fmt.Errorf("session could not be created: %w", err)
	}

	token, err := auth.GenerateToken(user.ID, sessionID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "login", "user_id", user.ID)
	return &Session{AccessToken: token, UserID: user.ID}, nil
}

// Authenticate accepts token for userID only when it was issued to that
// user for their current session.
func (s *Service) Authenticate(ctx context.Context, userID, token string) error {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}
	if claims.UserID != userID {
		return common.ErrorUnauthorized
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return fmt.Errorf("find user: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(user.SessionID), []byte(claims.SessionID)) != 1 {
		return common.ErrorUnauthorized
	}
	return nil
}
