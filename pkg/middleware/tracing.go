package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/chunkflow/pkg/infra/tracing"
)

// TracingOption configures the Tracing middleware.
type TracingOption func(*tracingConfig)

type tracingConfig struct {
	skipPaths []string
}

// WithTracingSkipPaths disables tracing for the given paths.
func WithTracingSkipPaths(paths ...string) TracingOption {
	return func(c *tracingConfig) {
		c.skipPaths = append(c.skipPaths, paths...)
	}
}

// Tracing returns a middleware that extracts W3C trace context from the
// request headers and starts a server span named "<METHOD> <route>".
// Spans for responses with status >= 500 are marked as errors.
func Tracing(opts ...TracingOption) gin.HandlerFunc {
	cfg := &tracingConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	skip := skipSet(cfg.skipPaths)

	return func(c *gin.Context) {
		req := c.Request
		if _, ok := skip[req.URL.Path]; ok {
			c.Next()
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		attrs := []attribute.KeyValue{
			semconv.HTTPMethod(req.Method),
			semconv.HTTPRoute(route),
			semconv.HTTPTarget(req.URL.Path),
			semconv.ServerAddress(req.Host),
		}
		if ua := req.UserAgent(); ua != "" {
			attrs = append(attrs, semconv.UserAgentOriginal(ua))
		}
		if id := GetRequestID(req.Context()); id != "" {
			attrs = append(attrs, attribute.String("http.request_id", id))
		}

		ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("%s %s", req.Method, route), trace.SpanKindServer, attrs...)
		defer span.End()

		c.Request = req.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
			if len(c.Errors) > 0 {
				span.RecordError(c.Errors.Last().Err)
			}
		}
	}
}
