package monitor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// statusPayload builds the /api/status document. Values are restricted to
// types structpb can represent so the same map serves both encodings.
func (s *Server) statusPayload() map[string]any {
	st := s.viewer.Status()
	created, revoked := s.store.Counts()

	var lastFrameAt any
	if !st.LastFrameAt.IsZero() {
		lastFrameAt = float64(st.LastFrameAt.UnixNano()) / float64(time.Second)
	}

	return map[string]any{
		"viewer": map[string]any{
			"endpoint":         st.Endpoint,
			"surface_id":       st.SurfaceID,
			"source":           st.Source,
			"streaming":        st.Streaming,
			"frames":           st.Frames,
			"last_frame_seq":   st.LastFrameSeq,
			"last_frame_bytes": st.LastFrameBytes,
			"last_frame_at":    lastFrameAt,
		},
		"resources": map[string]any{
			"live":    s.store.Len(),
			"created": created,
			"revoked": revoked,
		},
		"monitor": map[string]any{
			"stream_clients":    s.surface.Subscribers(),
			"surface_updates":   s.surface.Updates(),
			"frames_received":   s.metrics.FramesReceived.Load(),
			"frames_discarded":  s.metrics.FramesDiscarded.Load(),
			"frame_interval_ms": s.metrics.FrameIntervalMs.Load(),
			"uptime_seconds":    time.Since(s.startTime).Seconds(),
		},
		"timestamp": float64(time.Now().Unix()),
	}
}

// encodeStatus serializes payload as JSON, or as base64 protobuf Struct
// when useProtobuf is set.
func encodeStatus(payload map[string]any, useProtobuf bool) ([]byte, error) {
	if !useProtobuf {
		return json.Marshal(payload)
	}

	pbStatus, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("status to protobuf: %w", err)
	}
	pbData, err := proto.Marshal(pbStatus)
	if err != nil {
		return nil, fmt.Errorf("marshal protobuf status: %w", err)
	}
	return []byte(base64.StdEncoding.EncodeToString(pbData)), nil
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	useProtobuf := wantsProtobuf(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		data, err := encodeStatus(s.statusPayload(), useProtobuf)
		if err != nil {
			s.log.Error("Status encode error: %v", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.log.Debug("SSE client disconnected: %v", err)
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
