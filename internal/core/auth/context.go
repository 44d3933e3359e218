// Package auth provides the host-forwarded identity of a request.
// Authentication itself happens in the host; this service trusts the
// headers its reverse proxy injects.
package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// =============================================================================
// Context Key
// =============================================================================

type contextKey string

const authContextKey contextKey = "auth"

// =============================================================================
// Types
// =============================================================================

// Context represents the caller's identity for a request.
// It is extracted from host-injected headers and stored in the request context.
type Context struct {
	// UserID is the host's user primary key (from X-User-ID header).
	UserID int

	// Username is the host login name (from X-Username header).
	Username string

	// Email is the user's email address (from X-User-Email header).
	Email string

	// IsSuperuser mirrors the host's superuser flag (from X-User-Superuser header).
	IsSuperuser bool

	// Authenticated indicates whether the request is authenticated
	Authenticated bool
}

// =============================================================================
// Header Constants
// =============================================================================

const (
	// HeaderUserID is the header containing the authenticated user's ID
	HeaderUserID = "X-User-ID"

	// HeaderUsername is the header containing the user's login name
	HeaderUsername = "X-Username"

	// HeaderEmail is the header containing the user's email
	HeaderEmail = "X-User-Email"

	// HeaderSuperuser is "true" or "1" for host superusers
	HeaderSuperuser = "X-User-Superuser"

	// HeaderSharedSecret is the header containing the shared secret for validation
	HeaderSharedSecret = "X-Archiflow-Secret"
)

// =============================================================================
// Context Extraction
// =============================================================================

// ExtractFromRequest extracts auth context from HTTP request headers.
// If neither X-User-ID nor X-Username is present, returns an unauthenticated context.
func ExtractFromRequest(r *http.Request) Context {
	return ExtractFromHeaders(r.Header)
}

// HeaderGetter is an interface for getting header values.
// This allows testing without requiring an http.Request.
type HeaderGetter interface {
	Get(key string) string
}

// ExtractFromHeaders extracts auth context from headers using the HeaderGetter interface.
// This is a pure function that can be tested without HTTP dependencies.
func ExtractFromHeaders(headers HeaderGetter) Context {
	username := strings.TrimSpace(headers.Get(HeaderUsername))
	rawID := strings.TrimSpace(headers.Get(HeaderUserID))
	if username == "" && rawID == "" {
		return Context{Authenticated: false}
	}

	userID, err := strconv.Atoi(rawID)
	if err != nil || userID < 0 {
		userID = 0
	}
	if username == "" && userID == 0 {
		// Garbage ID with no name is not an identity
		return Context{Authenticated: false}
	}

	return Context{
		UserID:        userID,
		Username:      username,
		Email:         strings.TrimSpace(headers.Get(HeaderEmail)),
		IsSuperuser:   parseFlag(headers.Get(HeaderSuperuser)),
		Authenticated: true,
	}
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// =============================================================================
// Actor
// =============================================================================

// Actor returns the name recorded as performed_by for this caller:
// the username, else "user:<id>", else "" (which the ledger records as system).
func (c Context) Actor() string {
	if !c.Authenticated {
		return ""
	}
	if c.Username != "" {
		return c.Username
	}
	if c.UserID > 0 {
		return "user:" + strconv.Itoa(c.UserID)
	}
	return ""
}

// RequireAuthentication checks if the context is authenticated.
// Returns (true, "") if authenticated, or (false, "authentication required") if not.
func RequireAuthentication(ctx Context) (bool, string) {
	if !ctx.Authenticated {
		return false, "authentication required"
	}
	return true, ""
}

// =============================================================================
// Context Storage
// =============================================================================

// WithContext stores the auth context in the request context.
func WithContext(ctx context.Context, authCtx Context) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext retrieves the auth context from the request context.
// If no auth context is found, returns an unauthenticated context.
func FromContext(ctx context.Context) Context {
	if authCtx, ok := ctx.Value(authContextKey).(Context); ok {
		return authCtx
	}
	return Context{Authenticated: false}
}

// =============================================================================
// Helper Types for Testing
// =============================================================================

// MapHeaderGetter wraps a map to implement HeaderGetter interface.
// This is useful for testing without creating http.Request objects.
type MapHeaderGetter map[string]string

func (m MapHeaderGetter) Get(key string) string {
	return m[key]
}
