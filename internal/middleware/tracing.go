// Package middleware provides the HTTP middleware of the front-end server.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ulift/internal/metrics"
)

// TraceHeader carries the request trace id in and out.
const TraceHeader = "X-Trace-ID"

type traceKey struct{}

// WithTraceID stores id in ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the trace id of ctx, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// Tracing assigns each request a trace id, then logs and measures it.
type Tracing struct {
	logger *zap.Logger
}

// NewTracing creates the tracing middleware.
func NewTracing(logger *zap.Logger) *Tracing {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracing{logger: logger}
}

// Handler returns the tracing middleware handler.
func (m *Tracing) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceHeader, traceID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		done := metrics.RequestStarted()
		start := time.Now()

		next.ServeHTTP(rw, r.WithContext(ctx))

		done()
		duration := time.Since(start)
		route := routeTemplate(r)
		metrics.RecordRequest(r.Method, route, rw.statusCode, duration)
		m.logger.Info("request",
			zap.String("trace_id", traceID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
			zap.Duration("duration", duration))
	})
}

// routeTemplate names the matched mux route so metric labels stay bounded.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	if tpl, err := route.GetPathTemplate(); err == nil {
		return tpl
	}
	return ""
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.written = true
	return rw.ResponseWriter.Write(b)
}
