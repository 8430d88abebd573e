package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"grandgold-errcache/pkg/apierror"
	"grandgold-errcache/pkg/response"
)

// publicPaths skip API key checks.
var publicPaths = map[string]bool{
	"/api/status":    true,
	"/api/v1/health": true,
	"/api/v1/ready":  true,
	"/metrics":       true,
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	APIKeys []string
}

// NewAuthMiddleware creates an API key middleware. With no keys configured
// every request is let through.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	keys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		slog.Warn("no API keys configured, authentication disabled", "component", "Auth")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 || publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				response.Error(w, apierror.Unauthorized("Authentication required. Use the X-API-Key header."))
				return
			}

			if !isValidKey(apiKey, keys) {
				response.Error(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}
