package http

import (
	"net/http"
	"strings"
	"time"

	"restaurant-system/internal/order/api/http/handle"
	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/xpkg/auth"
	"restaurant-system/internal/xpkg/logger"

	"github.com/google/uuid"
)

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLog tags every request with an id and logs its outcome.
func requestLog(mylog logger.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			mylog.Action("http_request").Info("Request served",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type tokenParser interface {
	Parse(token string) (auth.Actor, error)
}

// authenticate attaches the bearer token's actor to the request context.
// Requests without a token pass through anonymous; handlers of mutating
// routes reject them.
func authenticate(tokens tokenParser) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				handle.JSONError(w, http.StatusUnauthorized, core.ErrUnauthenticated)
				return
			}
			actor, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				handle.JSONError(w, http.StatusUnauthorized, core.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// limit caps in-flight requests; overflow is rejected instead of queued.
func limit(maxConcurrent int) middleware {
	sem := make(chan struct{}, maxConcurrent)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				next.ServeHTTP(w, r)
			default:
				handle.JSONError(w, http.StatusServiceUnavailable, core.ErrMaxConcurentExceeded)
			}
		})
	}
}
