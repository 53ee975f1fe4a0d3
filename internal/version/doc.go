// Package version exposes build metadata of the drowsiness-alarm binaries.
//
// Version, Commit and BuildTime are injected with -ldflags "-X ...".
package version
