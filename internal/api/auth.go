package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/AaronLay10/ARTutor/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	// RoleAdmin may read the event log in addition to driving sessions.
	RoleAdmin Role = "admin"
	// RoleClient is a presentation client driving its own session.
	RoleClient Role = "client"
)

// authConfig holds credentials loaded from environment variables.
type authConfig struct {
	adminUser  string
	adminPass  string
	clientUser string
	clientPass string
	enabled    bool
}

var auth *authConfig

// InitAuth loads credentials from ARTUTOR_ADMIN_USER/PASS and
// ARTUTOR_CLIENT_USER/PASS, each honouring the *_FILE convention.
// Authentication is disabled unless admin credentials are set.
func InitAuth() error {
	var creds [4]string
	for i, name := range []string{
		"ARTUTOR_ADMIN_USER", "ARTUTOR_ADMIN_PASS",
		"ARTUTOR_CLIENT_USER", "ARTUTOR_CLIENT_PASS",
	} {
		v, err := config.ResolveSecret(name)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", name, err)
		}
		creds[i] = v
	}

	auth = &authConfig{
		adminUser:  creds[0],
		adminPass:  creds[1],
		clientUser: creds[2],
		clientPass: creds[3],
		enabled:    creds[0] != "" && creds[1] != "",
	}
	return nil
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate checks basic auth credentials and returns the role if valid.
// Returns empty string if credentials are invalid.
func authenticate(r *http.Request) Role {
	if auth == nil || !auth.enabled {
		return RoleAdmin // No auth configured = full access
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if secureCompare(user, auth.adminUser) && secureCompare(pass, auth.adminPass) {
		return RoleAdmin
	}
	if auth.clientUser != "" && auth.clientPass != "" {
		if secureCompare(user, auth.clientUser) && secureCompare(pass, auth.clientPass) {
			return RoleClient
		}
	}
	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="ARTutor"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR client role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleClient)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
