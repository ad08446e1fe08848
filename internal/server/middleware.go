package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reading-leveler/internal/logger"
	"reading-leveler/internal/workspace"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	workspaceKey
)

const (
	HeaderClientID  = "X-Client-ID"
	HeaderRequestID = "X-Request-ID"
)

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WorkspaceFromContext(ctx context.Context) (*workspace.Workspace, bool) {
	ws, ok := ctx.Value(workspaceKey).(*workspace.Workspace)
	return ws, ok
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware tags each request with an id and logs the outcome.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		rw := &responseWriter{w, http.StatusOK}
		next.ServeHTTP(rw, r)

		level := logrus.InfoLevel
		if rw.statusCode >= 500 {
			level = logrus.ErrorLevel
		}
		logger.LogEvent(level, "Request handled", logrus.Fields{
			"request_id":    id,
			"method":        r.Method,
			"url":           r.URL.Path,
			"status_code":   rw.statusCode,
			"response_time": time.Since(start).Milliseconds(),
			"ip":            r.RemoteAddr,
			"client_id":     r.Header.Get(HeaderClientID),
		})
	})
}

// WorkspaceMiddleware resolves the caller's workspace from the client id header.
func WorkspaceMiddleware(reg *workspace.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, err := reg.Get(r.Header.Get(HeaderClientID))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), workspaceKey, ws)))
		})
	}
}
