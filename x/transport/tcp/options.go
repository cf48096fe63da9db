// Package tcp carries SEDAP-Express records over TCP, one record per line.
// A Client keeps a single connection alive with a fixed reconnect delay; a
// Server accepts many peers and broadcasts every outbound record to all of
// them.
package tcp

import (
	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/x/transport"
)

type options struct {
	metrics *transport.Metrics
	log     zerolog.Logger
}

type Option func(*options)

// WithMetrics records connection and message metrics.
func WithMetrics(m *transport.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(log zerolog.Logger, opts []Option) options {
	o := options{log: log}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
