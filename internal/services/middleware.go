package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/metrics"
	"workplacemapping/internal/repository"
	"workplacemapping/internal/util"
	apperrors "workplacemapping/pkg/errors"
)

type ctxKey int

const userKey ctxKey = iota

// UserFinder loads moderator accounts.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// TokenValidator checks bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*util.Claims, error)
}

// Authenticator guards moderator-only handlers with a bearer JWT.
type Authenticator struct {
	tokens TokenValidator
	users  UserFinder
}

func NewAuthenticator(tokens TokenValidator, users UserFinder) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// RequireStaff only calls next for an active staff or admin account.
func (a *Authenticator) RequireStaff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticate(r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		if !user.CanModerate() {
			writeError(r.Context(), w, apperrors.New(apperrors.ErrCodeForbidden, "staff or admin access required"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

func (a *Authenticator) authenticate(r *http.Request) (*domain.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "authorization header required")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "invalid authorization header format")
	}

	claims, err := a.tokens.ValidateToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeUnauthorized, "invalid or expired token", err)
	}

	user, err := a.users.FindByUsername(r.Context(), claims.Username)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "user not found")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "user account is inactive")
	}
	return user, nil
}

// UserFromContext returns the moderator set by RequireStaff.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok
}

// RateLimiter decides whether a request for key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Throttle applies a RateLimiter per client address.
type Throttle struct {
	limiter RateLimiter
	ips     *ClientIPs
}

// NewThrottle creates a throttle. A nil limiter lets every request through;
// a nil ClientIPs keys on the direct peer address.
func NewThrottle(limiter RateLimiter, ips *ClientIPs) *Throttle {
	return &Throttle{limiter: limiter, ips: ips}
}

// Wrap rejects requests from a client address over the limit. A limiter
// failure lets the request through.
func (t *Throttle) Wrap(scope string, next http.HandlerFunc) http.HandlerFunc {
	if t == nil || t.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait, err := t.limiter.Allow(r.Context(), scope+":"+t.ips.From(r))
		if err != nil {
			httpLog.WithError(err).WithField("scope", scope).Warn("rate limiter unavailable")
			next(w, r)
			return
		}
		if !ok {
			metrics.RecordRateLimited(scope)
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
			writeError(r.Context(), w, apperrors.New(apperrors.ErrCodeRateLimited,
				fmt.Sprintf("too many requests, please wait %d seconds and try again", secs)))
			return
		}
		next(w, r)
	}
}
