package camera

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// chanSource emits whatever the test pushes into it.
type chanSource chan []byte

func (c chanSource) Run(ctx context.Context, emit func(frame []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-c:
			emit(frame)
		}
	}
}

type fixture struct {
	server *Server
	http   *httptest.Server
	source chanSource
	cancel context.CancelFunc
	done   chan error
}

func newFixture(t *testing.T, docRoot string) *fixture {
	t.Helper()

	src := make(chanSource)
	srv := NewServer(src, Options{DocumentRoot: docRoot, QueueSize: 5})
	ts := httptest.NewServer(srv.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{
		server: srv,
		http:   ts,
		source: src,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { f.done <- srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-f.done
		ts.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws://" + strings.TrimPrefix(f.http.URL, "http://") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *fixture) waitClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.server.Hub().Clients() == n },
		waitFor, 10*time.Millisecond, "expected %d clients", n)
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	return data
}

func TestHubDeliversEachFrameToEveryClient(t *testing.T) {
	f := newFixture(t, "")

	a := f.dial(t)
	b := f.dial(t)
	f.waitClients(t, 2)

	frames := [][]byte{testFrame(1, 1200), testFrame(2, 10)}
	for _, frame := range frames {
		f.source <- frame
		assert.Equal(t, frame, readBinary(t, a))
		assert.Equal(t, frame, readBinary(t, b))
	}

	m := f.server.Metrics()
	assert.Equal(t, uint64(2), m.FramesCaptured.Load())
	assert.Equal(t, uint64(2), m.ActiveClients.Load())
	assert.Equal(t, uint64(2), m.TotalClients.Load())
	require.Eventually(t, func() bool { return m.FramesSent.Load() == 4 }, waitFor, 10*time.Millisecond)
}

func TestHubRemovesDisconnectedClients(t *testing.T) {
	f := newFixture(t, "")

	a := f.dial(t)
	b := f.dial(t)
	f.waitClients(t, 2)

	require.NoError(t, a.Close())
	f.waitClients(t, 1)

	frame := testFrame(7, 64)
	f.source <- frame
	assert.Equal(t, frame, readBinary(t, b))
}

func TestServerShutdownClosesClients(t *testing.T) {
	f := newFixture(t, "")

	conn := f.dial(t)
	f.waitClients(t, 1)

	f.cancel()
	select {
	case err := <-f.done:
		require.NoError(t, err)
		f.done <- err
	case <-time.After(waitFor):
		t.Fatal("server did not stop")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestServerServesDocumentRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<img id=\"camview\">"), 0o644))

	f := newFixture(t, root)

	resp, err := http.Get(f.http.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "camview")
}

func TestServerMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "wscam_source_frames_captured_total")
	assert.Contains(t, string(body), "wscam_source_queue_drops_total")
}
