package monitor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ShellAddicted/wsCamera/internal/surface"
)

var (
	blankOnce sync.Once
	blankData []byte
	blankErr  error
)

// blankJPEG returns the color-bar card shown while nothing is displayed.
func blankJPEG() ([]byte, error) {
	blankOnce.Do(func() {
		blankData, blankErr = renderColorBars(640, 480)
	})
	return blankData, blankErr
}

func renderColorBars(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// White, Yellow, Cyan, Green, Magenta, Red, Blue, Black
	colors := []color.RGBA{
		{R: 255, G: 255, B: 255, A: 255},
		{R: 255, G: 255, B: 0, A: 255},
		{R: 0, G: 255, B: 255, A: 255},
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 0, B: 255, A: 255},
		{R: 255, G: 0, B: 0, A: 255},
		{R: 0, G: 0, B: 255, A: 255},
		{R: 0, G: 0, B: 0, A: 255},
	}

	barWidth := width / len(colors)
	for y := range height {
		for x := range width {
			barIndex := min(x/barWidth, len(colors)-1)
			img.Set(x, y, colors[barIndex])
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// current returns what the surface shows right now, or the blank card.
func (s *Server) current(blank []byte) (data []byte, contentType string) {
	if res, ok := s.store.Lookup(s.surface.Source()); ok {
		return res.Data, res.ContentType
	}
	return blank, "image/jpeg"
}

// streamMJPEG writes one multipart part per surface change. A source that
// was already revoked is skipped; the newer source follows on the channel.
func (s *Server) streamMJPEG(w http.ResponseWriter, r *http.Request, updates <-chan string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	blank, err := blankJPEG()
	if err != nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	data, contentType := s.current(blank)
	for {
		if err := writePart(w, data, contentType); err != nil {
			s.log.Debug("MJPEG client disconnected: %v", err)
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case src, ok := <-updates:
			if !ok {
				return
			}
			if src == surface.NeutralSource {
				data, contentType = blank, "image/jpeg"
				continue
			}
			res, ok := s.store.Lookup(src)
			if !ok {
				data, contentType = s.current(blank)
				continue
			}
			data, contentType = res.Data, res.ContentType
		case <-time.After(s.cfg.KeepAlive):
			// Nothing new; repeat the current picture to keep the connection alive
			data, contentType = s.current(blank)
		}
	}
}

func writePart(w http.ResponseWriter, data []byte, contentType string) error {
	header := "--frame\r\nContent-Type: " + contentType +
		"\r\nContent-Length: " + strconv.Itoa(len(data)) + "\r\n\r\n"
	if _, err := w.Write([]byte(header)); err != nil {
		return fmt.Errorf("part header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("part body: %w", err)
	}
	if _, err := w.Write([]byte("\r\n")); err != nil {
		return fmt.Errorf("part delimiter: %w", err)
	}
	return nil
}
