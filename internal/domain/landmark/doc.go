// Package landmark defines the strict boundary contract for facial landmarks
// produced by the external face-mesh worker.
//
// A Set is a fixed-size array indexed by the face-mesh landmark id scheme.
// Raw worker output is validated once, in NewSet; downstream code never sees
// malformed points.
package landmark
