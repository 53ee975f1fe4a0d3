// Package monitor implements the detection loop.
//
// A Monitor pulls one frame at a time from a FrameSource, asks the external
// LandmarkProvider for faces, measures the eye aspect ratio of the first face,
// runs the debounce state machine and hands the resulting alarm action to a
// Sink. The next frame is requested only after the previous tick finished,
// so a slow provider lowers the tick rate instead of building a queue.
//
// The state machine, its counters and the alarm session belong to the loop
// goroutine. Other goroutines read the latest Snapshot and toggle mute.
package monitor
