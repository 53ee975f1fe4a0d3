// Package frame defines the video frame handed from a frame source to the landmark worker.
package frame

import "time"

// Frame is one decoded video frame. Pixels are tightly packed 8-bit RGBA rows.
// A frame is immutable once published by its source.
type Frame struct {
	// Seq increases by one per frame within a source.
	Seq uint64
	// Timestamp is when the frame was acquired.
	Timestamp time.Time
	// Width and Height are in pixels.
	Width  int
	Height int
	// Pixels holds Width*Height*4 bytes.
	Pixels []byte
}
