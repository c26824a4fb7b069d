package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/zonewarden/server/internal/logging"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "user_id"
	// UsernameKey is the context key for username
	UsernameKey ContextKey = "username"
	// RoleKey is the context key for user role
	RoleKey ContextKey = "role"
	// ClaimsKey is the context key for JWT claims
	ClaimsKey ContextKey = "claims"
)

var (
	// ErrMissingToken means no token was presented.
	ErrMissingToken = errors.New("missing authentication token")
	// ErrMalformedHeader means the Authorization header is not "Bearer <token>".
	ErrMalformedHeader = errors.New("invalid authorization header format")
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Middleware guards handlers with JWT authentication.
type Middleware struct {
	jwtService *JWTService
	logger     logging.Logger
}

// NewMiddleware creates authentication middleware backed by jwtService.
func NewMiddleware(jwtService *JWTService, logger logging.Logger) *Middleware {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Middleware{jwtService: jwtService, logger: logger}
}

// Authenticate resolves the request's token to claims. The token is read
// from the Authorization header, or from the "token" query parameter when
// allowQuery is set (browsers cannot add headers to websocket upgrades).
func (m *Middleware) Authenticate(r *http.Request, allowQuery bool) (*Claims, error) {
	token, err := ExtractToken(r, allowQuery)
	if err != nil {
		return nil, err
	}
	return m.jwtService.ValidateAccessToken(token)
}

// AuthMiddleware validates JWT tokens and adds user info to request context
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.Authenticate(r, false)
		switch {
		case errors.Is(err, ErrMissingToken):
			m.sendError(w, r, http.StatusUnauthorized, "MissingToken", "Authorization header required")
			return
		case errors.Is(err, ErrMalformedHeader):
			m.sendError(w, r, http.StatusUnauthorized, "InvalidToken", "Invalid authorization header format")
			return
		case err != nil:
			m.sendError(w, r, http.StatusUnauthorized, "InvalidToken", "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole middleware ensures user has required role
func (m *Middleware) RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetRole(r)
			if !ok || role != requiredRole {
				m.logger.Warn(r.Context(), "role check failed",
					logging.String("required_role", requiredRole),
					logging.String("role", role))
				m.sendError(w, r, http.StatusForbidden, "InsufficientPermissions", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken reads a bearer token from the request.
func ExtractToken(r *http.Request, allowQuery bool) (string, error) {
	if allowQuery {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrMalformedHeader
	}
	return parts[1], nil
}

// WithClaims stores the caller's identity on ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, UsernameKey, claims.Username)
	ctx = context.WithValue(ctx, RoleKey, claims.Role)
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetUserID extracts user ID from request context
func GetUserID(r *http.Request) (int64, bool) {
	userID, ok := r.Context().Value(UserIDKey).(int64)
	return userID, ok
}

// GetRole extracts role from request context
func GetRole(r *http.Request) (string, bool) {
	role, ok := r.Context().Value(RoleKey).(string)
	return role, ok
}

// GetClaims extracts JWT claims from request context
func GetClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(ClaimsKey).(*Claims)
	return claims, ok
}

func (m *Middleware) sendError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
	}); err != nil {
		m.logger.Error(r.Context(), "failed to encode error response", logging.Err(err))
	}
}
