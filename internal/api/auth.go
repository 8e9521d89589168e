package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"agendamento/internal/config"
	"agendamento/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

type contextKey int

const userContextKey contextKey = iota

// ProfileSyncer records the identity of every authenticated caller.
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, user *models.User) error
}

// Auth verifies bearer tokens issued by the school's identity provider and
// limits request rates per user.
type Auth struct {
	cfg      config.APIAuthConfig
	profiles ProfileSyncer
	limiter  *rateLimiter
	logger   zerolog.Logger
}

func NewAuth(cfg config.APIConfig, profiles ProfileSyncer, logger *zerolog.Logger) *Auth {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "auth").Logger()
	}
	return &Auth{
		cfg:      cfg.Auth,
		profiles: profiles,
		limiter:  newRateLimiter(cfg.RateLimit),
		logger:   base,
	}
}

func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		if !a.limiter.Allow(user.ID) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if a.profiles != nil {
			if err := a.profiles.SyncProfile(r.Context(), user); err != nil {
				a.logger.Warn().Err(err).Str("user_id", user.ID).Msg("profile sync failed")
			}
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// Authenticate turns the Authorization header into a user.
func (a *Auth) Authenticate(r *http.Request) (*models.User, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errMissingToken
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return nil, errMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(a.cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		a.logger.Debug().Err(err).Str("remote", remoteHost(r)).Msg("token rejected")
		return nil, errInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: subject is required", errInvalidToken)
	}

	user := &models.User{
		ID:    sub,
		Name:  stringClaim(claims, "name"),
		Email: stringClaim(claims, "email"),
		Role:  models.RoleTeacher,
	}
	if user.Name == "" {
		user.Name = user.Email
	}
	if a.isAdmin(claims[a.cfg.RoleClaim]) {
		user.Role = models.RoleAdmin
	}
	return user, nil
}

// isAdmin accepts the role claim as a single string or as a list.
func (a *Auth) isAdmin(claim interface{}) bool {
	switch v := claim.(type) {
	case string:
		return a.cfg.IsAdminRole(v)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && a.cfg.IsAdminRole(s) {
				return true
			}
		}
	}
	return false
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated caller, or nil.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}
