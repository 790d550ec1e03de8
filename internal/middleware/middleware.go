// Package middleware provides HTTP middleware functions
package middleware

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

// Middleware defines a function to process http requests
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to a http.Handler
func Chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	for _, middleware := range middlewares {
		handler = middleware(handler)
	}
	return handler
}

// Logger returns a middleware that logs HTTP requests
func Logger() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			if !strings.HasPrefix(r.URL.Path, "/api") &&
				!strings.HasPrefix(r.URL.Path, "/ws") &&
				r.URL.Path != "/health" {
				next.ServeHTTP(w, r)
				return
			}

			// WebSocket upgrades hijack the connection, so don't wrap the writer
			if strings.ToLower(r.Header.Get("Upgrade")) == "websocket" {
				next.ServeHTTP(w, r)
				log.Printf("%s %s %s WebSocket %s", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
				return
			}

			rw := &responseWriter{w, http.StatusOK}
			next.ServeHTTP(rw, r)

			log.Printf("%s %s %s %d %s", r.RemoteAddr, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		})
	}
}

// Recover returns a middleware that recovers from panics
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Printf("PANIC: %v\n%s", err, debug.Stack())
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS returns a middleware that handles CORS
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			corsOrigin := "*"

			if len(allowedOrigins) > 0 && origin != "" {
				for _, allowed := range allowedOrigins {
					if allowed == "*" {
						corsOrigin = "*"
						break
					}
					if allowed == origin {
						corsOrigin = origin
						break
					}
				}
			}

			w.Header().Set("Access-Control-Allow-Origin", corsOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Upload-Token")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireToken returns a middleware that rejects API requests missing the
// anti-forgery token. An empty expected token disables the check.
func RequireToken(header, expected string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" || !strings.HasPrefix(r.URL.Path, "/api") {
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get(header) != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"error":   "missing or invalid upload token",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter is a wrapper for http.ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and passes it to the underlying ResponseWriter
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
