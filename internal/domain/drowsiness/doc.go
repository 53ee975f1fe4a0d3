// Package drowsiness implements the decision engine of the monitor.
//
// It turns one face's landmarks into an eye aspect ratio (EAR), feeds the
// averaged ratio into a frame-counted debounce state machine and maps the
// resulting transitions onto alarm signals. Everything here is synchronous
// and deterministic; scheduling lives in the monitor service.
package drowsiness
