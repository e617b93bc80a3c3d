package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ShellAddicted/wsCamera/internal/config"
	"github.com/ShellAddicted/wsCamera/internal/resource"
	"github.com/ShellAddicted/wsCamera/internal/surface"
	"github.com/ShellAddicted/wsCamera/internal/viewer"
)

const requestTimeout = 2 * time.Second

// fixture is a camera-like frame server, a viewer bound to "camview" and
// the monitor serving it.
type fixture struct {
	source  *httptest.Server
	conns   chan *websocket.Conn
	surface *surface.Image
	viewer  *viewer.StreamViewer
	monitor *httptest.Server
	client  *http.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		conns:  make(chan *websocket.Conn, 4),
		client: &http.Client{Timeout: requestTimeout},
	}

	upgrader := websocket.Upgrader{}
	f.source = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(f.source.Close)

	doc := surface.NewDocument()
	f.surface = doc.NewImage("camview")
	endpoint := "ws://" + strings.TrimPrefix(f.source.URL, "http://") + "/ws"
	f.viewer = viewer.NewForDocument(endpoint, "camview", doc, resource.NewStore("http://monitor.test"))
	t.Cleanup(f.viewer.Stop)

	cfg := config.Default().Monitor
	cfg.StatusInterval = 50 * time.Millisecond
	cfg.KeepAlive = 100 * time.Millisecond
	f.monitor = httptest.NewServer(NewServer(cfg, f.viewer, f.surface).Handler())
	t.Cleanup(f.monitor.Close)

	return f
}

func (f *fixture) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-f.conns:
		return conn
	case <-time.After(requestTimeout):
		t.Fatal("viewer did not connect")
		return nil
	}
}

// startStreaming starts the viewer and pushes one frame through it.
func (f *fixture) startStreaming(t *testing.T, payload []byte) *websocket.Conn {
	t.Helper()
	require.NoError(t, f.viewer.Start())
	conn := f.accept(t)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload))
	require.Eventually(t, func() bool {
		return f.surface.Source() != surface.NeutralSource
	}, requestTimeout, 5*time.Millisecond)
	return conn
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := f.client.Get(f.monitor.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func (f *fixture) post(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := f.client.Post(f.monitor.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func readSSEEvent(url string, accept string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 256)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
				return string(buf[:idx]), resp.Header, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return "", nil, fmt.Errorf("sse stream closed before event")
			}
			return "", nil, fmt.Errorf("read sse: %w", readErr)
		}
	}
}

func sseData(t *testing.T, event string) string {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if strings.HasPrefix(line, "data:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return ""
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	v := requireMap(t, payload["viewer"], "viewer")
	if _, ok := v["streaming"].(bool); !ok {
		t.Fatalf("expected viewer.streaming to be bool, got %T", v["streaming"])
	}
	if _, ok := v["endpoint"].(string); !ok {
		t.Fatalf("expected viewer.endpoint to be string, got %T", v["endpoint"])
	}
	requireNumber(t, v["frames"], "viewer.frames")
	requireNumber(t, v["last_frame_seq"], "viewer.last_frame_seq")

	res := requireMap(t, payload["resources"], "resources")
	requireNumber(t, res["live"], "resources.live")
	requireNumber(t, res["created"], "resources.created")
	requireNumber(t, res["revoked"], "resources.revoked")

	mon := requireMap(t, payload["monitor"], "monitor")
	requireNumber(t, mon["stream_clients"], "monitor.stream_clients")
	requireNumber(t, mon["uptime_seconds"], "monitor.uptime_seconds")

	requireNumber(t, payload["timestamp"], "timestamp")
}
