// Package auth guards the HTTP API: it validates bearer JWTs, resolves the
// caller to an active user of an active agency and checks the caller's role
// against the route.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const identityContextKey contextKey = "identity"

// protectedPrefix covers every business route; /health and /metrics stay open.
const protectedPrefix = "/v1/"

// UserLookup resolves a token subject to the stored user and its agency.
type UserLookup interface {
	GetUserWithAgency(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Guard struct {
	secret string
	users  UserLookup
	authz  *Authorizer
	logger *zap.Logger
}

func NewGuard(secret string, users UserLookup, authz *Authorizer, logger *zap.Logger) *Guard {
	return &Guard{
		secret: secret,
		users:  users,
		authz:  authz,
		logger: logger.Named("auth"),
	}
}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity placed by the guard.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(models.Identity)
	return id, ok
}

func (g *Guard) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isProtectedRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := extractTokenFromHeader(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := validateToken(tokenString, g.secret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		id, err := g.resolve(r.Context(), claims)
		switch {
		case errors.Is(err, e.ErrUnauthenticated):
			g.logger.Debug("rejected token", zap.Error(err))
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		case err != nil:
			g.logger.Error("failed to resolve caller", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		allowed, err := g.authz.Authorize(id.Role, r.URL.Path, r.Method)
		if err != nil {
			g.logger.Error("authorization check failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !allowed {
			writeError(w, http.StatusForbidden, e.ErrForbidden.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// resolve turns verified claims into the caller identity. The user must
// exist in the claimed agency and both must be active. The stored role wins
// over the claimed one.
func (g *Guard) resolve(ctx context.Context, claims *Claims) (models.Identity, error) {
	id, err := claims.identity()
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", e.ErrUnauthenticated, err)
	}

	user, err := g.users.GetUserWithAgency(ctx, id.UserID)
	if errors.Is(err, e.ErrNotFound) {
		return models.Identity{}, fmt.Errorf("%w: unknown user", e.ErrUnauthenticated)
	}
	if err != nil {
		return models.Identity{}, err
	}
	if user.AgencyID != id.AgencyID {
		return models.Identity{}, fmt.Errorf("%w: user does not belong to agency", e.ErrUnauthenticated)
	}
	if !user.IsActive {
		return models.Identity{}, fmt.Errorf("%w: user is disabled", e.ErrUnauthenticated)
	}
	if user.Agency == nil || !user.Agency.IsActive {
		return models.Identity{}, fmt.Errorf("%w: agency is disabled", e.ErrUnauthenticated)
	}

	id.Role = user.Role
	return id, nil
}

func extractTokenFromHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header required")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid authorization format")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		return "", fmt.Errorf("invalid authorization format")
	}

	return tokenString, nil
}

func isProtectedRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, protectedPrefix)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
