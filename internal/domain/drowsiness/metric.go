package drowsiness

import (
	"errors"
	"fmt"

	"github.com/oshokin/drowsiness-alarm/internal/domain/landmark"
)

// Epsilon is the smallest eye width treated as a real measurement.
const Epsilon = 1e-9

// ErrDegenerateGeometry is returned when the eye corners coincide.
var ErrDegenerateGeometry = errors.New("degenerate eye geometry")

// Openness holds the eye aspect ratios of one frame.
type Openness struct {
	Left    float64
	Right   float64
	Average float64
}

// EyeAspectRatio computes (|p2-p6| + |p3-p5|) / (2*|p1-p4|) for region.
func EyeAspectRatio(set *landmark.Set, region landmark.Region) (float64, error) {
	p := set.Eye(region)

	width := p[0].Distance(p[3])
	if width < Epsilon {
		return 0, fmt.Errorf("%w: %s eye corners coincide", ErrDegenerateGeometry, region.Name)
	}

	upper := p[1].Distance(p[5])
	lower := p[2].Distance(p[4])

	return (upper + lower) / (2 * width), nil
}

// Measure computes both eye ratios and their mean.
func Measure(set *landmark.Set) (Openness, error) {
	left, err := EyeAspectRatio(set, landmark.LeftEye)
	if err != nil {
		return Openness{}, err
	}

	right, err := EyeAspectRatio(set, landmark.RightEye)
	if err != nil {
		return Openness{}, err
	}

	return Openness{
		Left:    left,
		Right:   right,
		Average: (left + right) / 2,
	}, nil
}
