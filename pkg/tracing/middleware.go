package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// RouteFunc names the route a request matched, e.g. "/v1/history/{id}".
// An empty result falls back to the request path.
type RouteFunc func(*http.Request) string

// HTTPMiddleware starts a server span per request, continuing any trace
// the caller propagated. Spans are named "METHOD route" so that run IDs
// in paths do not explode span cardinality.
func HTTPMiddleware(p *Provider, route RouteFunc) func(http.Handler) http.Handler {
	tracer := p.Tracer()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			name := r.URL.Path
			if route != nil {
				if tmpl := route(r); tmpl != "" {
					name = tmpl
				}
			}
			ctx, span := tracer.Start(ctx, r.Method+" "+name,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethodKey.String(r.Method),
					semconv.HTTPRouteKey.String(name),
					semconv.HTTPTargetKey.String(r.URL.RequestURI()),
				),
			)
			defer span.End()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(sw.status))
			if sw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(sw.status))
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
