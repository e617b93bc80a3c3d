package types

import (
	"bytes"
	"image"
	_ "image/gif"  // Register GIF decoder for DetectFormat
	_ "image/jpeg" // Register JPEG decoder for DetectFormat
	_ "image/png"  // Register PNG decoder for DetectFormat
	"net/http"
	"time"

	_ "golang.org/x/image/bmp"  // Register BMP decoder for DetectFormat
	_ "golang.org/x/image/tiff" // Register TIFF decoder for DetectFormat
	_ "golang.org/x/image/webp" // Register WebP decoder for DetectFormat
)

// Frame is one complete image payload delivered as a single message.
type Frame struct {
	Data       []byte    // Opaque payload, must not be modified once published
	Seq        uint64    // Per-connection sequence number (starts at 1)
	ReceivedAt time.Time // When the message was read off the connection
}

// Len returns the payload size in bytes.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// JPEG start-of-image marker
var JPEGSOI = []byte{0xFF, 0xD8}

// IsJPEGStart reports whether buf begins with a JPEG start-of-image marker.
func IsJPEGStart(buf []byte) bool {
	return bytes.HasPrefix(buf, JPEGSOI)
}

// Format describes a payload as inferred from its bytes.
type Format struct {
	Codec       string // Registered codec name ("jpeg", "png", "webp", ...), empty if undecodable
	ContentType string // MIME type used when the payload is served
	Width       int    // Zero if the header could not be decoded
	Height      int
}

// Decodable reports whether the payload header was understood by a codec.
func (f Format) Decodable() bool {
	return f.Codec != ""
}

var codecContentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

// DetectFormat infers the image codec from the payload content.
// Payloads no codec understands fall back to content sniffing, so a
// truncated JPEG still reports image/jpeg and garbage reports
// application/octet-stream.
func DetectFormat(data []byte) Format {
	cfg, codec, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Format{ContentType: http.DetectContentType(data)}
	}

	contentType, ok := codecContentTypes[codec]
	if !ok {
		contentType = http.DetectContentType(data)
	}

	return Format{
		Codec:       codec,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}
}
