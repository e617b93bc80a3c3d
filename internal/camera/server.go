package camera

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/ShellAddicted/wsCamera/internal/logger"
	"github.com/ShellAddicted/wsCamera/internal/metrics"
)

// Options configures a Server.
type Options struct {
	DocumentRoot string // served at /, empty disables static files
	QueueSize    int
	ShowFPS      bool
	Metrics      *metrics.Metrics
}

// Server moves frames from a Source through a drop-oldest queue to every
// WebSocket client on /ws.
type Server struct {
	source  Source
	queue   *Queue
	hub     *Hub
	fps     *FPSMeter
	showFPS bool
	docRoot string
	metrics *metrics.Metrics
}

// NewServer wires src to a new hub.
func NewServer(src Source, opts Options) *Server {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewSource()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = 5
	}

	s := &Server{
		source:  src,
		hub:     NewHub(m),
		showFPS: opts.ShowFPS,
		docRoot: opts.DocumentRoot,
		metrics: m,
	}
	s.queue = NewQueue(size, func() {
		m.QueueDrops.Add(1)
		logger.Debug("Camera", "Queue is full, dropped oldest frame")
	})
	s.fps = NewFPSMeter(m.SetCaptureFPS)
	return s
}

// Handler exposes /ws, /metrics and the document root.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.Handle("/metrics", s.metrics.Handler())
	if s.docRoot != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.docRoot)))
	}
	return mux
}

// Hub returns the server's client hub.
func (s *Server) Hub() *Hub { return s.hub }

// Queue returns the frame queue between the source and the hub.
func (s *Server) Queue() *Queue { return s.queue }

// Metrics returns the server's metrics.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Run captures and dispatches frames until ctx is done or the source
// fails. A source that simply ends leaves the dispatcher running so
// clients keep their last frame.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.source.Run(ctx, s.capture)
		if err == nil {
			logger.Info("Camera", "Source finished after %d frames", s.metrics.FramesCaptured.Load())
		}
		return err
	})
	g.Go(func() error {
		return s.hub.Run(ctx, s.queue)
	})

	return g.Wait()
}

func (s *Server) capture(frame []byte) {
	s.metrics.FramesCaptured.Add(1)
	if s.showFPS {
		s.fps.Tick()
	}
	s.queue.Put(frame)
}
