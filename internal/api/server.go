// Package api assembles the ingestion HTTP server's router and
// cross-cutting middleware, grounded on
// internal/handlers/infra.go's MakeCORSMiddleware/LoggingMiddleware.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/hook0/webhooks-core/internal/config"
)

// NewRouter builds the base mux.Router with global middleware attached;
// the ingestion API (cmd/api) mounts its routes on top of it. The relay
// server builds its own router and does not use this one.
func NewRouter(cfg config.APIConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(MakeCORSMiddleware(cfg))
	r.Use(LoggingMiddleware)
	return r
}

// MakeCORSMiddleware returns CORS middleware matching request Origins
// against cfg.CORSAllowOrigins, supporting "*" and "https://*.suffix"
// wildcard entries.
func MakeCORSMiddleware(cfg config.APIConfig) mux.MiddlewareFunc {
	exact := make(map[string]bool, len(cfg.CORSAllowOrigins))
	var wildcardSuffixes []string
	allowAll := false
	for _, o := range cfg.CORSAllowOrigins {
		switch {
		case o == "*":
			allowAll = true
		case strings.Contains(o, "*"):
			wildcardSuffixes = append(wildcardSuffixes, strings.Replace(o, "*", "", 1))
		default:
			exact[o] = true
		}
	}

	originAllowed := func(origin string) bool {
		if exact[origin] {
			return true
		}
		for _, suffix := range wildcardSuffixes {
			parts := strings.SplitN(suffix, "//", 2)
			if len(parts) == 2 {
				if strings.HasPrefix(origin, parts[0]+"//") && strings.HasSuffix(origin, parts[1]) {
					return true
				}
			} else if strings.HasSuffix(origin, suffix) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && originAllowed(origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Event-Id, Accept")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs each request's method, path, and latency.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}
