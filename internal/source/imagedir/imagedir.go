// Package imagedir replays a directory of still images as a paced frame stream.
package imagedir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/frame"
)

var (
	// errNoImages is returned when the directory holds no decodable image files.
	errNoImages = errors.New("no images found")
	// errInvalidFPS is returned for a non-positive frame rate.
	errInvalidFPS = errors.New("fps must be positive")
)

// supportedExtensions lists the formats imaging can decode.
var supportedExtensions = []string{".bmp", ".gif", ".jpeg", ".jpg", ".png", ".tif", ".tiff"}

// Source emits the images of a directory in name order, one per frame interval.
// It is used by a single detection loop and is not safe for concurrent use.
type Source struct {
	files    []string
	interval time.Duration
	maxWidth int
	loop     bool

	next int
	seq  uint64
	due  time.Time
}

// New lists the images under cfg.ImagesDir.
func New(cfg config.Source) (*Source, error) {
	if cfg.FPS <= 0 {
		return nil, errInvalidFPS
	}

	entries, err := os.ReadDir(cfg.ImagesDir)
	if err != nil {
		return nil, fmt.Errorf("read images directory: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !slices.Contains(supportedExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}

		files = append(files, filepath.Join(cfg.ImagesDir, entry.Name()))
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoImages, cfg.ImagesDir)
	}

	// ReadDir already sorts by name.
	return &Source{
		files:    files,
		interval: time.Duration(float64(time.Second) / cfg.FPS),
		maxWidth: cfg.MaxWidth,
		loop:     cfg.Loop,
	}, nil
}

// Len returns the number of images in the directory.
func (s *Source) Len() int {
	return len(s.files)
}

// Next waits for the next frame slot and decodes the next image. The first
// frame is immediate. Without looping, io.EOF follows the last image and the
// next call starts over. A decoding error skips the offending file.
func (s *Source) Next(ctx context.Context) (*frame.Frame, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	if s.next >= len(s.files) {
		s.next = 0

		if !s.loop {
			s.due = time.Time{}

			return nil, io.EOF
		}
	}

	path := s.files[s.next]
	s.next++

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	if s.maxWidth > 0 && img.Bounds().Dx() > s.maxWidth {
		img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
	}

	nrgba := imaging.Clone(img)
	s.seq++

	return &frame.Frame{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Width:     nrgba.Bounds().Dx(),
		Height:    nrgba.Bounds().Dy(),
		Pixels:    nrgba.Pix,
	}, nil
}

// wait blocks until the current frame slot and schedules the next one.
func (s *Source) wait(ctx context.Context) error {
	now := time.Now()

	if delay := s.due.Sub(now); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		now = s.due
	} else if err := ctx.Err(); err != nil {
		return err
	}

	s.due = now.Add(s.interval)

	return nil
}
