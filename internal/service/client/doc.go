// Package client implements the drowsiness-ctl switch commands.
//
// A command connects to the daemon, pushes the desired monitoring or mute
// value and retries until the daemon confirms it.
package client
