// Package harness runs scripted listening sessions on a virtual timeline.
//
// A scenario scripts the snapshots a room returns, external inputs such as
// volume edits and stop/start, and assertions over the outcome. The
// harness drives a real session.Session with those inputs, so the phase
// clocks, the reconciler, volume sync and the journal all run exactly as
// they do in `thebeat listen`. Only time and the network are simulated.
//
// # Scenario Format
//
//	name: end_to_end_single_beat
//	description: "One participant at 60 bpm beats once per second"
//	duration: 1s
//	polls:
//	  - snapshot:
//	      data: { p1: { hr: 60, audio_file: a } }
//	      volume: -6
//	      volume_change_index: 0
//	      volume_changer_uuid: other-device
//	  - fail: "connection refused"
//	    repeat: 3
//	actions:
//	  - at: 300ms
//	    set_volume: -3
//	assertions:
//	  - type: trigger_count
//	    participant: p1
//	    count: 1
//
// # Timeline
//
// Polls are issued at multiples of poll_interval starting at 0, one
// scripted entry each, until the script runs out. A delayed entry holds
// its result back without stopping later polls; one delayed by a poll
// interval or more times out then and counts as a miss. A result that
// lands after a newer one was applied is stale. Steps run at multiples of
// step_interval starting at one interval. At equal times actions come
// first, then delayed results, then the poll, then the step.
//
// # Trace
//
// Every effect is recorded with its virtual time and a logical seq: poll
// outcomes, triggers with the linear gain they played at, volume changes
// shown to the user, and the actions themselves. Traces are compared
// against golden files with goldie.
package harness
