package observe

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusWriter records the status code the wrapped handler writes.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// routeLabel collapses a request path onto the dashboard's fixed route set.
// Arbitrary static-asset paths all map to "static" so metric cardinality
// stays bounded no matter what an operator's browser asks for.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/"):
		return path
	case path == "/metrics" || path == "/healthz" || path == "/readyz":
		return path
	default:
		return "static"
	}
}

// Middleware instruments the dashboard handler. Each request gets a server
// span named after its route, a duration sample in
// [Metrics.HTTPRequestDuration], and a completion log line tagged with the
// trace. Incoming W3C trace context is honoured, and the trace ID is echoed
// back as X-Correlation-ID so an operator can quote it when reporting a
// misbehaving session.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeLabel(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
				),
			)
			Logger(ctx).Info("http request",
				"method", r.Method,
				"route", route,
				"status", sw.status,
				"duration", elapsed,
			)
		})
	}
}
