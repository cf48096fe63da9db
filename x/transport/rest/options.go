package rest

import (
	"net/http"

	"github.com/uniity/sedap-express/x/transport"
)

type options struct {
	metrics    *transport.Metrics
	httpClient *http.Client
}

type Option func(*options)

// WithMetrics records request and message metrics.
func WithMetrics(m *transport.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHTTPClient replaces the client's default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
