package otel

import (
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

type config struct {
	propagators         propagation.TextMapPropagator
	includeDocument     bool
	redactedVariables   map[string]struct{}
	redactedQueryParams map[string]struct{}
	redactedHeaders     map[string]struct{}
}

type Option func(*config)

// WithPropagators sets propagators used to inject the trace context to the request headers.
func WithPropagators(v propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagators = v
	}
}

// WithDocument enables the "graphql.document" span attribute with the query text.
func WithDocument(v bool) Option {
	return func(c *config) {
		c.includeDocument = v
	}
}

// WithRedactedVariables masks values of the operation variables in span attributes.
func WithRedactedVariables(names ...string) Option {
	return func(c *config) {
		for _, n := range names {
			c.redactedVariables[strings.ToLower(n)] = struct{}{}
		}
	}
}

// WithRedactedQueryParam masks values of the URL query params, GET requests contain variables in the URL.
func WithRedactedQueryParam(params ...string) Option {
	return func(c *config) {
		for _, p := range params {
			c.redactedQueryParams[strings.ToLower(p)] = struct{}{}
		}
	}
}

func WithRedactedHeaders(headers ...string) Option {
	return func(c *config) {
		for _, h := range headers {
			c.redactedHeaders[strings.ToLower(h)] = struct{}{}
		}
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		redactedVariables:   make(map[string]struct{}),
		redactedQueryParams: make(map[string]struct{}),
		redactedHeaders: map[string]struct{}{
			"authorization":       {},
			"www-authenticate":    {},
			"proxy-authenticate":  {},
			"proxy-authorization": {},
			"cookie":              {},
			"set-cookie":          {},
		},
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
