package viewer

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShellAddicted/wsCamera/internal/logger"
	"github.com/ShellAddicted/wsCamera/internal/metrics"
)

// Option configures a StreamViewer.
type Option func(*StreamViewer)

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(v *StreamViewer) {
		v.dialer = d
	}
}

// WithHandshakeTimeout uses a dialer with the given handshake timeout.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(v *StreamViewer) {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = timeout
		v.dialer = &d
	}
}

// WithHeader sends extra headers (for example Origin) with the handshake.
func WithHeader(h http.Header) Option {
	return func(v *StreamViewer) {
		v.header = h
	}
}

// WithReadLimit caps the size of a single frame message.
func WithReadLimit(n int64) Option {
	return func(v *StreamViewer) {
		v.readLimit = n
	}
}

// WithMetrics reports into m instead of a private instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *StreamViewer) {
		v.metrics = m
	}
}

// WithLogger logs through l instead of the global logger.
func WithLogger(l *logger.Logger) Option {
	return func(v *StreamViewer) {
		v.log = logger.For(l, "Viewer")
	}
}
