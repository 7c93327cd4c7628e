package otel

import (
	"strconv"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/todochaos/pkg/web"
)

// HTTPMiddleware creates middleware that automatically traces HTTP requests.
// The span context replaces the request context so handlers downstream
// start child spans.
func HTTPMiddleware() web.FastMiddleware {
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			if !IsInitialized() {
				return next(ctx)
			}

			propagator := otel.GetTextMapPropagator()
			carrier := newHeaderCarrier(&ctx.RequestCtx.Request.Header)
			parentCtx := propagator.Extract(ctx.Context(), carrier)

			route := ctx.Route()
			if route == "" {
				route = string(ctx.Path())
			}
			spanCtx, span := StartSpan(parentCtx, string(ctx.Method())+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(string(ctx.Method())),
					semconv.URLPath(string(ctx.Path())),
					semconv.HTTPRoute(route),
					attribute.String("http.request_id", ctx.RequestID()),
				),
			)
			defer span.End()

			ctx.SetContext(spanCtx)

			err := next(ctx)

			statusCode := ctx.RequestCtx.Response.StatusCode()
			span.SetAttributes(
				semconv.HTTPResponseStatusCode(statusCode),
				attribute.Int("http.response_size", len(ctx.RequestCtx.Response.Body())),
			)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if statusCode >= 500 {
				span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(statusCode))
			} else {
				span.SetStatus(codes.Ok, "OK")
			}

			propagator.Inject(spanCtx, newResponseHeaderCarrier(&ctx.RequestCtx.Response.Header))

			return err
		}
	}
}

// headerCarrier implements propagation.TextMapCarrier for fasthttp request headers
type headerCarrier struct {
	headers *fasthttp.RequestHeader
}

func newHeaderCarrier(headers *fasthttp.RequestHeader) *headerCarrier {
	return &headerCarrier{headers: headers}
}

func (c *headerCarrier) Get(key string) string {
	return string(c.headers.Peek(key))
}

func (c *headerCarrier) Set(key, value string) {
	c.headers.Set(key, value)
}

func (c *headerCarrier) Keys() []string {
	var keys []string
	c.headers.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}

// responseHeaderCarrier implements propagation.TextMapCarrier for fasthttp response headers
type responseHeaderCarrier struct {
	headers *fasthttp.ResponseHeader
}

func newResponseHeaderCarrier(headers *fasthttp.ResponseHeader) *responseHeaderCarrier {
	return &responseHeaderCarrier{headers: headers}
}

func (c *responseHeaderCarrier) Get(key string) string {
	return string(c.headers.Peek(key))
}

func (c *responseHeaderCarrier) Set(key, value string) {
	c.headers.Set(key, value)
}

func (c *responseHeaderCarrier) Keys() []string {
	return nil
}

// SpanFromRequest returns the server span of a traced request
func SpanFromRequest(ctx *web.FastRequestContext) (trace.SpanContext, bool) {
	sc := trace.SpanContextFromContext(ctx.Context())
	return sc, sc.IsValid()
}
