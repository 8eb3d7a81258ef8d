package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/mnemo/internal/telemetry"
)

var tracer = otel.Tracer("github.com/flemzord/mnemo/internal/gateway")

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.observe)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(g.config.AdminToken, g.audit, g.limiter))
		r.Use(limitBody(g.config.MaxBodyBytes))

		r.Post("/chat", g.handleChat())

		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Get("/", g.handleGetConversation())
			r.Delete("/", g.handleDeleteConversation())
			r.Get("/context", g.handleBoundedContext())
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/memory", g.handleMemoryPreview())
			r.Get("/facts", g.handleListFacts())
			r.Post("/facts", g.handleCreateFact())
			r.Get("/facts/{factID}", g.handleGetFact())
			r.Put("/facts/{factID}", g.handleUpdateFact())
			r.Delete("/facts/{factID}", g.handleDeleteFact())
		})
	})

	return r
}

// observe opens a server span, records request metrics and logs each
// request with its trace ID.
func (g *Gateway) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, "http "+r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		g.metrics.observe(r.Method, route, status, elapsed)
		span.SetName("http " + r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
		}
		if id := telemetry.TraceID(r.Context()); id != "" {
			attrs = append(attrs, "trace_id", id)
		}
		g.logger.Log(r.Context(), level, "http request", attrs...)
	})
}

// limitBody caps request bodies at n bytes.
func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
