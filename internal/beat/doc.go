// Package beat turns heart rates into discrete beat events.
//
// A PhaseClock accumulates fractional beat progress from a BPM value and
// reports when a beat boundary has been crossed. The Registry owns one
// PhaseClock per participant and keeps the participant set in step with
// the latest room snapshot.
//
// Neither type is safe for concurrent use. Both are owned by the session
// event loop, which is the only writer.
package beat
