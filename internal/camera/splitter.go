package camera

import (
	"bytes"
	"sync"
)

// frameStart marks the beginning of a JPEG frame in an MJPEG byte stream:
// the SOI marker followed by the next marker's 0xFF.
var frameStart = []byte{0xFF, 0xD8, 0xFF}

const (
	markerSOI = 0xD8
	markerEOI = 0xD9
	markerSOS = 0xDA
	markerTEM = 0x01
)

// parseMode is where the splitter is inside the current frame.
type parseMode int

const (
	modeSegments parseMode = iota // marker segments before or between scans
	modeScan                      // entropy-coded data after SOS
	modeLost                      // not a well-formed JPEG; cut at the next frame start
)

// Splitter is an io.Writer that cuts an MJPEG byte stream into frames.
//
// A frame runs from SOI to EOI. Marker segments are skipped by their
// length, so a complete JPEG embedded in a frame (an EXIF thumbnail in
// APP1) is not mistaken for the next frame. A frame that ends without EOI
// is cut where the next one starts. Bytes between frames are discarded.
// Writes need not be aligned with frame boundaries.
type Splitter struct {
	mu     sync.Mutex
	buf    []byte
	pos    int // next byte of buf to parse; 0 until buf starts with a frame
	mode   parseMode
	emit   func(frame []byte)
	frames uint64
}

// NewSplitter returns a Splitter that hands every complete frame to emit.
// emit owns the slice it receives.
func NewSplitter(emit func(frame []byte)) *Splitter {
	return &Splitter{emit: emit}
}

// Write buffers p and emits every frame it completes.
func (s *Splitter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, p...)

	for s.sync() {
		end, ok := s.frameEnd()
		if !ok {
			break
		}
		s.emitLocked(s.buf[:end])
		s.buf = s.buf[end:]
		s.pos = 0
	}
	return len(p), nil
}

// sync drops bytes before the next frame start and reports whether buf now
// begins with one.
func (s *Splitter) sync() bool {
	if s.pos > 0 {
		return true
	}

	idx := bytes.Index(s.buf, frameStart)
	if idx < 0 {
		if len(s.buf) >= len(frameStart) {
			// Keep a possible partial marker at the tail
			s.buf = s.buf[len(s.buf)-len(frameStart)+1:]
		}
		return false
	}

	s.buf = s.buf[idx:]
	s.pos = 2
	s.mode = modeSegments
	return true
}

// frameEnd parses the current frame from s.pos and returns the offset just
// past it once the frame is complete.
func (s *Splitter) frameEnd() (int, bool) {
	b := s.buf
	for s.pos+2 <= len(b) {
		switch s.mode {
		case modeLost:
			idx := bytes.Index(b[s.pos:], frameStart)
			if idx < 0 {
				s.pos = max(s.pos, len(b)-len(frameStart)+1)
				return 0, false
			}
			return s.pos + idx, true

		case modeScan:
			idx := bytes.IndexByte(b[s.pos:], 0xFF)
			if idx < 0 {
				s.pos = len(b)
				return 0, false
			}
			s.pos += idx
			if s.pos+2 > len(b) {
				return 0, false
			}
			switch m := b[s.pos+1]; {
			case m == 0x00 || isRST(m):
				s.pos += 2 // stuffed byte or restart marker
			case m == 0xFF:
				s.pos++
			case m == markerEOI:
				return s.pos + 2, true
			case m == markerSOI:
				return s.pos, true
			default:
				// Tables or the next scan of a progressive image
				s.mode = modeSegments
			}

		case modeSegments:
			if b[s.pos] != 0xFF {
				s.mode = modeLost
				continue
			}
			switch m := b[s.pos+1]; {
			case m == 0xFF:
				s.pos++ // fill byte
			case m == markerEOI:
				return s.pos + 2, true
			case m == markerSOI:
				return s.pos, true
			case m == markerTEM || isRST(m):
				s.pos += 2
			case m == 0x00:
				s.mode = modeLost
			default:
				if s.pos+4 > len(b) {
					return 0, false
				}
				length := int(b[s.pos+2])<<8 | int(b[s.pos+3])
				if length < 2 {
					s.mode = modeLost
					continue
				}
				s.pos += 2 + length
				if m == markerSOS {
					s.mode = modeScan
				}
			}
		}
	}
	return 0, false
}

func isRST(m byte) bool {
	return m >= 0xD0 && m <= 0xD7
}

// Flush emits whatever frame is buffered, complete or not. Call it when
// the stream ends.
func (s *Splitter) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bytes.HasPrefix(s.buf, frameStart) {
		s.emitLocked(s.buf)
	}
	s.buf = nil
	s.pos = 0
}

// Frames returns how many frames have been emitted.
func (s *Splitter) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Splitter) emitLocked(frame []byte) {
	out := make([]byte, len(frame))
	copy(out, frame)
	s.frames++
	s.emit(out)
}
