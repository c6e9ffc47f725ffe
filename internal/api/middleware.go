package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/hay-kot/postbox/internal/auth"
)

const requestIDHeader = "X-Request-ID"

// requestID tags the request and its logger with an id, reusing the caller's when given.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		logger := s.log.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		elapsed := time.Since(start)
		if s.observer != nil {
			s.observer.ObserveRequest(route, r.Method, rec.code, elapsed)
		}

		zerolog.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.code).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

// requireUser verifies the bearer token and stores the username in the context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("token rejected")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.WithUser(r.Context(), claims.Username)
		logger := zerolog.Ctx(ctx).With().Str("user", claims.Username).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
	})
}

func userKey(r *http.Request) string {
	return "user:" + auth.UserFromContext(r.Context())
}

func remoteKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func (s *Server) rateLimit(key func(*http.Request) string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if s.limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.limiter.Allow(key(r)) {
				if s.observer != nil {
					s.observer.RateLimited()
				}
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// jsonBody requires application/json on requests that carry a body. Bodyless
// requests, such as a self-join, pass through unchecked.
func jsonBody(next http.Handler) http.Handler {
	checked := handlers.ContentTypeHandler(next, "application/json")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}
		checked.ServeHTTP(&mediaTypeWriter{ResponseWriter: w}, r)
	})
}

// mediaTypeWriter turns the plain text 415 from handlers.ContentTypeHandler
// into the JSON error body used by every other response.
type mediaTypeWriter struct {
	http.ResponseWriter
	rejected bool
}

func (m *mediaTypeWriter) WriteHeader(code int) {
	if code == http.StatusUnsupportedMediaType {
		m.rejected = true
		writeError(m.ResponseWriter, code, "content type must be application/json")
		return
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *mediaTypeWriter) Write(b []byte) (int, error) {
	if m.rejected {
		return len(b), nil
	}
	return m.ResponseWriter.Write(b)
}
