package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Viewer side
	FramesReceived      atomic.Uint64
	BytesReceived       atomic.Uint64
	FramesDisplayed     atomic.Uint64
	FramesDiscarded     atomic.Uint64 // Arrived after the connection was superseded or stopped
	TextMessagesIgnored atomic.Uint64
	ConnectionsOpened   atomic.Uint64
	DialErrors          atomic.Uint64
	ReadErrors          atomic.Uint64
	Streaming           atomic.Uint64 // 0 = stopped, 1 = streaming
	FrameIntervalMs     atomic.Uint64 // Time between the last two frames

	// Source side
	FramesCaptured atomic.Uint64
	FramesSent     atomic.Uint64
	QueueDrops     atomic.Uint64
	WriteErrors    atomic.Uint64
	ActiveClients  atomic.Uint64
	TotalClients   atomic.Uint64
	captureFPS     atomic.Uint64 // math.Float64bits

	lastFrameNanos atomic.Int64

	// Prometheus collectors
	registry *prometheus.Registry
}

// NewViewer creates metrics for a stream viewer process. Only the
// wscam_viewer_* gauges are exported.
func NewViewer() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registerViewerMetrics()
	return m
}

// NewSource creates metrics for a camera server process. Only the
// wscam_source_* gauges are exported.
func NewSource() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registerSourceMetrics()
	return m
}

func (m *Metrics) gauge(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) registerViewerMetrics() {
	m.gauge("wscam_viewer_frames_received_total", "Total binary frames read from the stream socket", &m.FramesReceived)
	m.gauge("wscam_viewer_bytes_received_total", "Total frame payload bytes received", &m.BytesReceived)
	m.gauge("wscam_viewer_frames_displayed_total", "Total frames bound to the display surface", &m.FramesDisplayed)
	m.gauge("wscam_viewer_frames_discarded_total", "Frames dropped because the connection was no longer current", &m.FramesDiscarded)
	m.gauge("wscam_viewer_text_messages_ignored_total", "Non-binary messages skipped by the viewer", &m.TextMessagesIgnored)
	m.gauge("wscam_viewer_connections_opened_total", "Stream socket connections opened", &m.ConnectionsOpened)
	m.gauge("wscam_viewer_dial_errors_total", "Failed stream socket dials", &m.DialErrors)
	m.gauge("wscam_viewer_read_errors_total", "Stream socket read loops ended by an error", &m.ReadErrors)
	m.gauge("wscam_viewer_streaming", "Viewer state (0=stopped, 1=streaming)", &m.Streaming)
	m.gauge("wscam_viewer_frame_interval_ms", "Milliseconds between the two most recent frames", &m.FrameIntervalMs)
}

func (m *Metrics) registerSourceMetrics() {
	m.gauge("wscam_source_frames_captured_total", "Frames produced by the camera source", &m.FramesCaptured)
	m.gauge("wscam_source_frames_sent_total", "Frame messages written to WebSocket clients", &m.FramesSent)
	m.gauge("wscam_source_queue_drops_total", "Frames discarded because the frame queue was full", &m.QueueDrops)
	m.gauge("wscam_source_write_errors_total", "Failed writes to WebSocket clients", &m.WriteErrors)
	m.gauge("wscam_source_active_clients", "Connected WebSocket clients", &m.ActiveClients)
	m.gauge("wscam_source_total_clients", "WebSocket clients connected since start", &m.TotalClients)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "wscam_source_capture_fps",
			Help: "Most recently measured capture frame rate",
		},
		m.CaptureFPS,
	))
}

// RegisterGaugeFunc exposes an externally owned value, such as the number
// of live display resources.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

// ObserveFrame records one received frame of n bytes at time now.
func (m *Metrics) ObserveFrame(n int, now time.Time) {
	m.FramesReceived.Add(1)
	m.BytesReceived.Add(uint64(n))

	prev := m.lastFrameNanos.Swap(now.UnixNano())
	if prev != 0 && now.UnixNano() > prev {
		m.FrameIntervalMs.Store(uint64(time.Duration(now.UnixNano() - prev).Milliseconds()))
	}
}

// SetCaptureFPS stores the latest capture rate.
func (m *Metrics) SetCaptureFPS(fps float64) {
	m.captureFPS.Store(math.Float64bits(fps))
}

// CaptureFPS returns the latest capture rate.
func (m *Metrics) CaptureFPS() float64 {
	return math.Float64frombits(m.captureFPS.Load())
}

// SetStreaming records the viewer state.
func (m *Metrics) SetStreaming(streaming bool) {
	if streaming {
		m.Streaming.Store(1)
	} else {
		m.Streaming.Store(0)
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
