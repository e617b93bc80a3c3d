package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ShellAddicted/wsCamera/internal/config"
	"github.com/ShellAddicted/wsCamera/internal/logger"
	"github.com/ShellAddicted/wsCamera/internal/metrics"
	"github.com/ShellAddicted/wsCamera/internal/resource"
	"github.com/ShellAddicted/wsCamera/internal/surface"
	"github.com/ShellAddicted/wsCamera/internal/viewer"
)

// Server makes one viewer's surface visible over HTTP and lets a browser
// start and stop it. The server owns no stream state of its own.
type Server struct {
	cfg       config.MonitorConfig
	viewer    *viewer.StreamViewer
	surface   *surface.Image
	store     *resource.Store
	metrics   *metrics.Metrics
	startTime time.Time
	log       logger.Module
}

// NewServer returns a monitor for v, which must render onto img.
func NewServer(cfg config.MonitorConfig, v *viewer.StreamViewer, img *surface.Image) *Server {
	defaults := config.Default().Monitor
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaults.StatusInterval
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaults.KeepAlive
	}

	return &Server{
		cfg:       cfg,
		viewer:    v,
		surface:   img,
		store:     v.Store(),
		metrics:   v.Metrics(),
		startTime: time.Now(),
		log:       logger.For(nil, "Monitor"),
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.Handle("/blob/", http.StripPrefix("/blob/", s.store))
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/viewer/start", s.handleViewerStart)
	mux.HandleFunc("/api/viewer/stop", s.handleViewerStop)
	mux.Handle("/metrics", s.metrics.Handler())

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, indexData{
		SurfaceID: s.surface.ID(),
		Endpoint:  s.viewer.Endpoint(),
	}); err != nil {
		s.log.Warn("Index render failed: %v", err)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, updates := s.surface.Subscribe()
	defer s.surface.Unsubscribe(id)
	s.streamMJPEG(w, r, updates)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	res, ok := s.store.Lookup(s.surface.Source())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(res.Data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleViewerStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.viewer.StartContext(r.Context()); err != nil {
		s.log.Warn("Start requested but failed: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "streaming",
		"endpoint":   s.viewer.Endpoint(),
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleViewerStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.viewer.Stop()
	writeJSON(w, map[string]any{
		"status":     "stopped",
		"stopped_at": float64(time.Now().Unix()),
	})
}

// wantsProtobuf applies the Accept header negotiation used by the SSE endpoints.
func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
