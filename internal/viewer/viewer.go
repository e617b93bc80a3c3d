// Package viewer binds a display surface to a WebSocket frame stream.
//
// Each binary message on the connection is one frame. For every frame the
// viewer revokes the resource the surface currently shows, wraps the new
// payload in a fresh resource and points the surface at it, so a running
// viewer holds at most one live resource. Messages are handled one at a
// time in arrival order by a single read goroutine per connection.
//
// There is no buffering, reconnection or retry. When the connection fails
// the surface keeps its last frame until Stop or the next Start.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShellAddicted/wsCamera/internal/logger"
	"github.com/ShellAddicted/wsCamera/internal/metrics"
	"github.com/ShellAddicted/wsCamera/internal/resource"
	"github.com/ShellAddicted/wsCamera/internal/surface"
	"github.com/ShellAddicted/wsCamera/pkg/types"
)

// ErrNoEndpoint is returned by Start when the viewer has no endpoint.
var ErrNoEndpoint = errors.New("viewer: no endpoint configured")

const closeGracePeriod = time.Second

// StreamViewer shows the most recent frame of one stream on one surface.
type StreamViewer struct {
	endpoint  string
	target    surface.Surface
	store     *resource.Store
	dialer    *websocket.Dialer
	header    http.Header
	readLimit int64
	metrics   *metrics.Metrics
	log       logger.Module

	// lifecycle serializes Start and Stop; the read loop never takes it.
	lifecycle sync.Mutex

	mu   sync.Mutex
	conn *connection
	last types.Frame
}

type connection struct {
	ws   *websocket.Conn
	done chan struct{}
	seq  uint64
}

// New creates a viewer for endpoint that renders onto target. It performs
// no I/O. A nil store gets a private one.
func New(endpoint string, target surface.Surface, store *resource.Store, opts ...Option) *StreamViewer {
	if store == nil {
		store = resource.NewStore("null")
	}

	v := &StreamViewer{
		endpoint: endpoint,
		target:   target,
		store:    store,
		dialer:   websocket.DefaultDialer,
		log:      logger.For(nil, "Viewer"),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.metrics == nil {
		v.metrics = metrics.NewViewer()
	}
	return v
}

// NewForDocument resolves surfaceID in doc at construction time. If no such
// element exists the viewer renders onto a detached element and is of no
// visible use until the caller rebinds it.
func NewForDocument(endpoint, surfaceID string, doc *surface.Document, store *resource.Store, opts ...Option) *StreamViewer {
	img, ok := doc.GetElementByID(surfaceID)
	if !ok {
		img = surface.NewImage(surfaceID)
	}
	v := New(endpoint, img, store, opts...)
	if !ok {
		v.log.Warn("Surface %q not found in document; frames will not be visible", surfaceID)
	}
	return v
}

// Endpoint returns the configured stream URL.
func (v *StreamViewer) Endpoint() string { return v.endpoint }

// Surface returns the display surface the viewer renders onto.
func (v *StreamViewer) Surface() surface.Surface { return v.target }

// Store returns the resource store backing the surface.
func (v *StreamViewer) Store() *resource.Store { return v.store }

// Metrics returns the viewer's metrics.
func (v *StreamViewer) Metrics() *metrics.Metrics { return v.metrics }

// Start opens the stream. See StartContext.
func (v *StreamViewer) Start() error {
	return v.StartContext(context.Background())
}

// StartContext opens a connection to the endpoint and begins displaying
// frames from it. ctx bounds only the handshake. Calling it while already
// streaming closes the current connection first, so exactly one connection
// is ever live.
func (v *StreamViewer) StartContext(ctx context.Context) error {
	if v.endpoint == "" {
		return ErrNoEndpoint
	}

	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()

	v.mu.Lock()
	prev := v.conn
	v.conn = nil
	v.mu.Unlock()
	if prev != nil {
		v.log.Info("Already streaming from %s, closing previous connection", v.endpoint)
		prev.close()
	}

	ws, resp, err := v.dialer.DialContext(ctx, v.endpoint, v.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		v.metrics.DialErrors.Add(1)
		v.metrics.SetStreaming(false)
		return fmt.Errorf("failed to connect to %s: %w", v.endpoint, err)
	}
	if v.readLimit > 0 {
		ws.SetReadLimit(v.readLimit)
	}

	c := &connection{ws: ws, done: make(chan struct{})}

	v.mu.Lock()
	v.conn = c
	v.mu.Unlock()

	v.metrics.ConnectionsOpened.Add(1)
	v.metrics.SetStreaming(true)
	v.log.Info("Streaming %s onto surface %q", v.endpoint, v.target.ID())

	go v.readLoop(c)
	return nil
}

// Stop closes the active connection, if any, releases the displayed
// resource and resets the surface to its neutral source. It is safe to call
// on a viewer that was never started and to call more than once. When Stop
// returns no further frames from the closed connection will be displayed.
func (v *StreamViewer) Stop() {
	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()

	v.mu.Lock()
	c := v.conn
	v.conn = nil
	v.store.Revoke(v.target.Source())
	v.target.SetSource(surface.NeutralSource)
	v.mu.Unlock()

	v.metrics.SetStreaming(false)
	if c == nil {
		return
	}

	c.close()
	v.log.Info("Stopped streaming from %s (%d frames)", v.endpoint, c.frames())
}

// Streaming reports whether the viewer currently owns a connection.
func (v *StreamViewer) Streaming() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn != nil
}

// Done returns a channel closed when the current connection's read loop
// exits. It returns nil when the viewer is stopped.
func (v *StreamViewer) Done() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conn == nil {
		return nil
	}
	return v.conn.done
}

// Status is a point-in-time view of the viewer.
type Status struct {
	Endpoint       string    `json:"endpoint"`
	SurfaceID      string    `json:"surface_id"`
	Source         string    `json:"source"`
	Streaming      bool      `json:"streaming"`
	Frames         uint64    `json:"frames"`
	LastFrameSeq   uint64    `json:"last_frame_seq"`
	LastFrameBytes int       `json:"last_frame_bytes"`
	LastFrameAt    time.Time `json:"last_frame_at"`
	LiveResources  int       `json:"live_resources"`
}

// Status returns the current viewer state.
func (v *StreamViewer) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := Status{
		Endpoint:       v.endpoint,
		SurfaceID:      v.target.ID(),
		Source:         v.target.Source(),
		Streaming:      v.conn != nil,
		LastFrameSeq:   v.last.Seq,
		LastFrameBytes: v.last.Len(),
		LastFrameAt:    v.last.ReceivedAt,
		LiveResources:  v.store.Len(),
	}
	if v.conn != nil {
		st.Frames = v.conn.seq
	}
	return st
}

func (v *StreamViewer) readLoop(c *connection) {
	defer close(c.done)

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			v.connectionEnded(c, err)
			return
		}
		if msgType != websocket.BinaryMessage {
			v.metrics.TextMessagesIgnored.Add(1)
			v.log.Debug("Ignoring non-binary message (%d bytes)", len(data))
			continue
		}
		v.display(c, data, time.Now())
	}
}

// display replaces the surface content with data. The previous resource is
// revoked before the replacement is created.
func (v *StreamViewer) display(c *connection, data []byte, now time.Time) {
	v.metrics.ObserveFrame(len(data), now)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.conn != c {
		v.metrics.FramesDiscarded.Add(1)
		return
	}

	c.seq++
	v.store.Revoke(v.target.Source())
	url := v.store.Create(data)
	v.target.SetSource(url)
	v.last = types.Frame{Data: data, Seq: c.seq, ReceivedAt: now}
	v.metrics.FramesDisplayed.Add(1)

	if c.seq == 1 {
		// The store already sniffed the payload
		if res, ok := v.store.Lookup(url); ok {
			v.log.Info("First frame: %d bytes, %s %dx%d", len(data), res.ContentType, res.Format.Width, res.Format.Height)
		}
	}
}

func (v *StreamViewer) connectionEnded(c *connection, err error) {
	v.mu.Lock()
	current := v.conn == c
	v.mu.Unlock()

	if !current {
		// Closed by Stop or a restart.
		v.log.Debug("Read loop for %s exited: %v", v.endpoint, err)
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		v.log.Info("Stream %s closed by server: %v", v.endpoint, err)
		return
	}
	v.metrics.ReadErrors.Add(1)
	v.log.Warn("Stream %s ended: %v", v.endpoint, err)
}

func (c *connection) close() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	_ = c.ws.Close()
	<-c.done
}

func (c *connection) frames() uint64 {
	return c.seq
}
