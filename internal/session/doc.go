// Package session ties the heartbeat components together for one room.
//
// A Session owns the participant registry, the volume sync, the
// reconciler and the cue bank. All of them are mutated from a single
// goroutine:
//
//   - Run drives two independent tickers (poll and step) from an
//     injectable clockwork.Clock.
//   - A poll tick launches at most one background fetch. Its result is
//     enqueued and applied by the loop, so a slow fetch never pauses
//     beat playback.
//   - Start, Stop, SetVolume and SetOffsets only enqueue events and are
//     safe from any goroutine.
//
// Deterministic drivers (the scenario harness, tests) skip Run and call
// Drain, ApplyPoll and Step directly on one goroutine.
package session
