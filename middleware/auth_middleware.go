package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/tier-router/internal/observability"
	"github.com/upb/tier-router/utils"
)

// ScopeDecide is required to record placement decisions.
const ScopeDecide = "placement:decide"

// TokenValidator defines the interface for validating bearer tokens
type TokenValidator interface {
	// ValidateToken validates a token and returns claims
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the claims in the context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := observability.WithRequest(ctx, m.logger)

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			log.Warn("missing bearer token", zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			log.Warn("rejected bearer token", zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		log.Debug("caller authenticated", zap.String("sub", claims.Sub))
		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// RequireScope rejects callers whose token lacks scope. It must run after RequireAuth.
func (m *AuthMiddleware) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			switch {
			case claims == nil:
				_ = utils.WriteUnauthorized(w, "Authentication required")
			case !claims.HasScope(scope):
				observability.WithRequest(r.Context(), m.logger).Warn("missing scope",
					zap.String("sub", claims.Sub),
					zap.String("scope", scope))
				_ = utils.WriteError(w, http.StatusForbidden, "Token lacks scope "+scope, nil)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// bearerToken parses an Authorization header value of the form "Bearer <token>".
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
