// Package landmarktest builds synthetic face-mesh sets for tests.
package landmarktest

import "github.com/oshokin/drowsiness-alarm/internal/domain/landmark"

// Eye returns six region points, one unit wide, whose eye aspect ratio equals ear.
func Eye(ear float64) [6]landmark.Point {
	h := ear / 2

	return [6]landmark.Point{
		{X: 0, Y: 0},
		{X: 1.0 / 3, Y: h},
		{X: 2.0 / 3, Y: h},
		{X: 1, Y: 0},
		{X: 2.0 / 3, Y: -h},
		{X: 1.0 / 3, Y: -h},
	}
}

// Points returns a raw face-mesh point slice with both eyes at ratio ear.
// The eyes are offset so they do not overlap.
func Points(ear float64) []landmark.Point {
	points := make([]landmark.Point, landmark.FaceMeshSize)

	place := func(region landmark.Region, dx float64) {
		for i, p := range Eye(ear) {
			points[region.Indices[i]] = landmark.Point{X: p.X + dx, Y: p.Y}
		}
	}

	place(landmark.RightEye, 0)
	place(landmark.LeftEye, 2)

	return points
}

// Set returns a validated set with both eyes at ratio ear.
func Set(ear float64) landmark.Set {
	return mustSet(Points(ear))
}

// Map returns a copy of set with fn applied to every point.
func Map(set landmark.Set, fn func(landmark.Point) landmark.Point) landmark.Set {
	points := make([]landmark.Point, landmark.FaceMeshSize)

	for id := range points {
		points[id] = fn(set.At(id))
	}

	return mustSet(points)
}

// WithEye returns a copy of set whose region points are replaced by eye.
func WithEye(set landmark.Set, region landmark.Region, eye [6]landmark.Point) landmark.Set {
	points := make([]landmark.Point, landmark.FaceMeshSize)

	for id := range points {
		points[id] = set.At(id)
	}

	for i, id := range region.Indices {
		points[id] = eye[i]
	}

	return mustSet(points)
}

func mustSet(points []landmark.Point) landmark.Set {
	set, err := landmark.NewSet(points)
	if err != nil {
		panic(err)
	}

	return set
}
