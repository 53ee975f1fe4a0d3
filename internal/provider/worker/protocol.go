package worker

import (
	"errors"
	"fmt"

	"github.com/oshokin/drowsiness-alarm/internal/domain/frame"
	"github.com/oshokin/drowsiness-alarm/internal/domain/landmark"
)

// Request asks the worker for the face meshes of one RGBA frame.
type Request struct {
	Seq    uint64 `msgpack:"seq"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Pixels []byte `msgpack:"pixels"`
}

// Response carries zero or more face meshes of FaceMeshSize points each,
// or a worker-side error message.
type Response struct {
	Seq   uint64             `msgpack:"seq"`
	Faces [][]landmark.Point `msgpack:"faces"`
	Error string             `msgpack:"error,omitempty"`
}

var (
	// ErrWorker wraps an error reported by the worker itself.
	ErrWorker = errors.New("worker reported an error")
	// errOutOfSequence is returned when a response answers another frame.
	errOutOfSequence = errors.New("response out of sequence")
)

// NewRequest builds the request for f.
func NewRequest(f *frame.Frame) Request {
	return Request{
		Seq:    f.Seq,
		Width:  f.Width,
		Height: f.Height,
		Pixels: f.Pixels,
	}
}

// Sets validates the response against req and converts it to landmark sets.
func (r *Response) Sets(req Request) ([]landmark.Set, error) {
	if r.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrWorker, r.Error)
	}

	if r.Seq != req.Seq {
		return nil, fmt.Errorf("%w: want %d, got %d", errOutOfSequence, req.Seq, r.Seq)
	}

	sets := make([]landmark.Set, 0, len(r.Faces))

	for i, face := range r.Faces {
		set, err := landmark.NewSet(face)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}

		sets = append(sets, set)
	}

	return sets, nil
}
