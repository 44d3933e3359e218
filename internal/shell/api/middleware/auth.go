// Package middleware provides HTTP middleware for the ArchiFlow API.
// Authentication happens in the host; the host's reverse proxy forwards the
// user's identity in headers that this middleware trusts.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/artpar/archiflow/internal/core/auth"
)

// =============================================================================
// Auth Configuration
// =============================================================================

// Auth modes.
const (
	ModeHeader = "header" // trust host-forwarded identity headers
	ModeDev    = "dev"    // every request is the fixed dev user
	ModeNone   = "none"   // no identity is extracted
)

// DevIdentity is the caller seen by every request in dev mode.
var DevIdentity = auth.Context{
	UserID:        1,
	Username:      "dev",
	Email:         "dev@localhost",
	IsSuperuser:   true,
	Authenticated: true,
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Mode selects how the identity is obtained: header, dev or none.
	// Empty means header.
	Mode string

	// SharedSecret is an optional secret the host sends in X-Archiflow-Secret.
	// If empty, secret validation is skipped.
	SharedSecret string

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware extracts the caller's identity and stores it in the request context.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeHeader
	}
	return &AuthMiddleware{config: cfg}
}

// Handler returns the middleware handler function.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ctx auth.Context

		switch m.config.Mode {
		case ModeNone:
			// leave unauthenticated
		case ModeDev:
			ctx = DevIdentity
		default:
			if m.config.SharedSecret != "" && !secretMatches(r.Header.Get(auth.HeaderSharedSecret), m.config.SharedSecret) {
				m.config.Logger.Warn("invalid host secret",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusForbidden, "invalid host secret", "forbidden")
				return
			}
			ctx = auth.ExtractFromRequest(r)
		}

		r = r.WithContext(auth.WithContext(r.Context(), ctx))

		next.ServeHTTP(w, r)
	})
}

func secretMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// =============================================================================
// Require Auth Middleware
// =============================================================================

// RequireAuth rejects unauthenticated requests with 401.
// Must be used AFTER AuthMiddleware.
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.FromContext(r.Context())

			if ok, reason := auth.RequireAuthentication(ctx); !ok {
				logger.Warn("unauthenticated request to protected endpoint",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
				writeJSONError(w, http.StatusUnauthorized, reason, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// JSON Error Response
// =============================================================================

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}
