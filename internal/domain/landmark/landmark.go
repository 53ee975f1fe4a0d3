package landmark

import (
	"errors"
	"fmt"
	"math"
)

// FaceMeshSize is the number of landmarks in one face-mesh detection.
// Workers that also emit iris points (478) are accepted; extra points are ignored.
const FaceMeshSize = 468

// Point is a 2-D landmark position in the worker's native coordinate units.
type Point struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Set holds one detected face. It is a value type: copies never alias.
type Set struct {
	points [FaceMeshSize]Point
}

// Region selects the six eye landmarks in the order outer corner, upper lid 1,
// upper lid 2, inner corner, lower lid 2, lower lid 1.
type Region struct {
	// Name is used in logs and errors.
	Name string
	// Indices are face-mesh landmark ids.
	Indices [6]int
}

//nolint:gochecknoglobals // Fixed landmark id tables.
var (
	// RightEye is the subject's right eye (image left for a mirrored camera).
	RightEye = Region{
		Name:    "right",
		Indices: [6]int{33, 160, 158, 133, 153, 144},
	}
	// LeftEye is the subject's left eye.
	LeftEye = Region{
		Name:    "left",
		Indices: [6]int{263, 387, 385, 362, 380, 373},
	}
)

// ErrMalformed is returned when worker output cannot form a landmark set.
var ErrMalformed = errors.New("malformed landmark set")

// NewSet validates raw points and copies them into a Set.
func NewSet(points []Point) (Set, error) {
	var set Set

	if len(points) < FaceMeshSize {
		return set, fmt.Errorf("%w: got %d points, need %d", ErrMalformed, len(points), FaceMeshSize)
	}

	for i := range FaceMeshSize {
		p := points[i]
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return set, fmt.Errorf("%w: point %d is not finite", ErrMalformed, i)
		}

		set.points[i] = p
	}

	return set, nil
}

// At returns the landmark with the given id. Ids outside the mesh return the zero Point.
func (s *Set) At(id int) Point {
	if id < 0 || id >= FaceMeshSize {
		return Point{}
	}

	return s.points[id]
}

// Eye returns the six points of region in region order.
func (s *Set) Eye(region Region) [6]Point {
	var eye [6]Point

	for i, id := range region.Indices {
		eye[i] = s.At(id)
	}

	return eye
}
