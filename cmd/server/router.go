package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/blindspot/internal/alertapi"
	"github.com/linnemanlabs/blindspot/internal/monitor"
	"github.com/linnemanlabs/blindspot/internal/stream"
)

// maxRequestBody caps API request bodies. A batch of readings is a few hundred bytes.
const maxRequestBody = 64 << 10

// streamPath is served outside the middleware chain: the websocket upgrade
// needs the raw http.Hijacker, which the wrapping writers do not expose.
const streamPath = "/api/v1/stream"

// untraced reports whether a request is a probe that should not get a span.
func untraced(r *http.Request) bool {
	return r.URL.Path == "/-/healthy" || r.URL.Path == "/-/ready"
}

// newAPIHandler builds the public listener: chi routes for the API and
// probes, wrapped in the shared middleware chain, with the stream beside it.
// instrument is the Prometheus HTTP middleware.
func newAPIHandler(L log.Logger, c *configs, mon *monitor.Service, hub *stream.Hub, healthz, readyz http.HandlerFunc, instrument func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxRequestBody))

	r.Get("/-/healthy", healthz)
	r.Get("/-/ready", readyz)

	alertapi.New(L, mon, c.app.APIToken).RegisterRoutes(r)

	// wrapped innermost first; the last wrapper sees the raw request first
	var h http.Handler = r
	h = httpmw.WithLogger(L)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return !untraced(r) }),
		// renamed to the chi route pattern by AnnotateHTTPRoute
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)
	h = instrument(h)
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{
		TrustedHops: c.mw.TrustedProxyHops,
	})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(L, nil)(h)
	h = httpmw.SecurityHeaders(h)

	root := http.NewServeMux()
	root.Handle(streamPath, hub)
	root.Handle("/", h)
	return root
}
