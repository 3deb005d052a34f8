package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const apiKeyHeader = "X-Api-Key"

// KeyVerifier checks a presented client key.
type KeyVerifier interface {
	Enabled() bool
	Verify(key string) bool
}

// requireAPIKey rejects requests without a valid key. Probes and preflight
// requests on the public paths pass through.
func (s *Server) requireAPIKey(publicPaths ...string) echo.MiddlewareFunc {
	public := make(map[string]bool, len(publicPaths))
	for _, path := range publicPaths {
		public[path] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions || public[c.Request().URL.Path] {
				return next(c)
			}

			if !s.opts.APIKeys.Verify(requestAPIKey(c.Request())) {
				return fail(c, http.StatusUnauthorized, "Missing or invalid API key", nil)
			}
			return next(c)
		}
	}
}

func requestAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
