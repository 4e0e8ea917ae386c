package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/logging"
	"workplacemapping/internal/metrics"
	"workplacemapping/internal/repository"
	"workplacemapping/internal/util"
	apperrors "workplacemapping/pkg/errors"

	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
)

// UserStore is the account storage the login flow needs.
type UserStore interface {
	UserFinder
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
}

// TokenIssuer signs moderator tokens.
type TokenIssuer interface {
	GenerateToken(user *domain.User) (string, error)
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// AuthService implements moderator login
type AuthService struct {
	users  UserStore
	tokens TokenIssuer
	log    *logrus.Entry
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore, tokens TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens, log: logging.For("auth")}
}

func (s *AuthService) Mount(mux goahttp.Muxer) {
	mux.Handle(http.MethodPost, "/api/v1/auth/login", s.handleLogin)
}

func (s *AuthService) handleLogin(w http.ResponseWriter, r *http.Request) {
	var p loginPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	res, err := s.Login(r.Context(), p.Username, p.Password)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, res)
}

// Login checks credentials and returns a bearer token
func (s *AuthService) Login(ctx context.Context, username, password string) (*loginResult, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	entry := s.log.WithField("username", username)

	if username == "" || password == "" {
		metrics.RecordAuthAttempt(false)
		return nil, apperrors.New(apperrors.ErrCodeBadRequest, "username and password are required")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrUserNotFound) {
		entry.Info("login failed: unknown user")
		metrics.RecordAuthAttempt(false)
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "incorrect username or password")
	}
	if err != nil {
		metrics.RecordAuthAttempt(false)
		return nil, err
	}

	if !util.CheckPasswordHash(password, user.HashedPassword) {
		entry.Info("login failed: invalid password")
		metrics.RecordAuthAttempt(false)
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "incorrect username or password")
	}

	if !user.IsActive {
		entry.Info("login failed: inactive account")
		metrics.RecordAuthAttempt(false)
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "user account is inactive")
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		entry.WithError(err).Warn("failed to record last login")
	}

	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	entry.WithFields(logrus.Fields{"id": user.ID, "admin": user.IsAdmin, "staff": user.IsStaff}).Info("login successful")
	metrics.RecordAuthAttempt(true)

	return &loginResult{AccessToken: token, TokenType: "bearer"}, nil
}
