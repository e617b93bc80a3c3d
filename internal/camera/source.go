package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"time"

	"github.com/fogleman/gg"
)

// Source produces JPEG frames until ctx is done or its input ends.
type Source interface {
	Run(ctx context.Context, emit func(frame []byte)) error
}

// PatternSource renders a numbered test card at a fixed rate. It stands in
// for a camera when none is attached.
type PatternSource struct {
	Width   int
	Height  int
	FPS     int
	Quality int
}

// Render draws test card n stamped with t and encodes it as JPEG.
func (p PatternSource) Render(n uint64, t time.Time) ([]byte, error) {
	w, h := float64(p.Width), float64(p.Height)
	dc := gg.NewContext(p.Width, p.Height)

	// Moving bands so consecutive frames differ visibly
	shade := float64(n%200) / 400
	dc.SetRGB(0.1+shade, 0.1, 0.3-shade/2)
	dc.Clear()

	bands := 8
	bandWidth := w / float64(bands)
	offset := float64(n%uint64(bands)) * bandWidth / float64(bands)
	for i := range bands {
		v := float64(i) / float64(bands-1)
		dc.SetRGB(v, 1-v, 0.5)
		dc.DrawRectangle(float64(i)*bandWidth+offset, h*0.65, bandWidth/2, h*0.2)
		dc.Fill()
	}

	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(float64(n*4%uint64(max(p.Width, 1))), h*0.4, h/10)
	dc.Stroke()

	dc.DrawStringAnchored(fmt.Sprintf("frame %d", n), w/2, h*0.15, 0.5, 0.5)
	dc.DrawStringAnchored(t.Format("2006/01/02 15:04:05.000"), w/2, h*0.15+20, 0.5, 0.5)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: p.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode test card: %w", err)
	}
	return buf.Bytes(), nil
}

// Run renders frames on a ticker until ctx is done.
func (p PatternSource) Run(ctx context.Context, emit func(frame []byte)) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid test card size %dx%d", p.Width, p.Height)
	}
	fps := p.FPS
	if fps <= 0 {
		fps = 30
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n++
			frame, err := p.Render(n, now)
			if err != nil {
				return err
			}
			emit(frame)
		}
	}
}

// ReaderSource splits an MJPEG byte stream, such as the output of a camera
// tool piped to stdin, into frames.
type ReaderSource struct {
	R io.Reader
}

// Run copies the stream through a Splitter until EOF or ctx is done. The
// last frame is emitted when the stream ends.
func (s ReaderSource) Run(ctx context.Context, emit func(frame []byte)) error {
	splitter := NewSplitter(emit)
	_, err := io.Copy(splitter, ctxReader{ctx: ctx, r: s.R})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read mjpeg stream: %w", err)
	}
	splitter.Flush()
	return nil
}

// ctxReader stops a copy between reads once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
