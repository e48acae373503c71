package harness

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// levelTolerance absorbs float noise when comparing dB levels.
const levelTolerance = 1e-9

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] t=%dms %s\n", ev.Seq, ev.AtMS, describe(ev))
		}
	}

	return buf.String()
}

func describe(ev TraceEvent) string {
	switch ev.Type {
	case EventPoll:
		return fmt.Sprintf("poll %s miss=%d joined=%v left=%v", ev.Outcome, ev.MissCount, ev.Joined, ev.Left)
	case EventTrigger:
		return fmt.Sprintf("trigger %s cue=%s gain=%s", ev.Participant, ev.Cue, ev.Gain)
	case EventVolume:
		return fmt.Sprintf("volume %s dB", ev.LevelDB)
	case EventAction:
		if ev.LevelDB != "" {
			return fmt.Sprintf("action %s %s dB", ev.Action, ev.LevelDB)
		}
		return "action " + ev.Action
	default:
		return ev.Type
	}
}

// EvaluateAssertions checks every assertion against a finished run and
// returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTriggerCount:
		return assertTriggerCount(result, a)
	case AssertParticipants:
		return assertParticipants(result, a)
	case AssertVolumeLevel:
		return assertVolumeLevel(result, a)
	case AssertMissCount:
		return assertMissCount(result, a)
	case AssertVolumeSent:
		return assertVolumeSent(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTriggerCount counts triggers, filtered by participant and cue when
// those are given.
func assertTriggerCount(result *Result, a Assertion) error {
	n := 0
	for _, ev := range result.Trace {
		if ev.Type != EventTrigger {
			continue
		}
		if a.Participant != "" && ev.Participant != a.Participant {
			continue
		}
		if a.Cue != "" && ev.Cue != a.Cue {
			continue
		}
		n++
	}
	if n == *a.Count {
		return nil
	}

	filter := "all participants"
	if a.Participant != "" {
		filter = "participant " + a.Participant
	}
	if a.Cue != "" {
		filter += ", cue " + a.Cue
	}
	return &AssertionError{
		Type:     AssertTriggerCount,
		Expected: fmt.Sprintf("%d triggers for %s", *a.Count, filter),
		Actual:   fmt.Sprintf("%d triggers", n),
		Trace:    result.Trace,
	}
}

// assertParticipants compares the final participant set, ignoring order.
func assertParticipants(result *Result, a Assertion) error {
	want := append([]string{}, a.IDs...)
	sort.Strings(want)
	got := append([]string{}, result.State.Participants...)
	sort.Strings(got)

	if reflect.DeepEqual(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     AssertParticipants,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

func assertVolumeLevel(result *Result, a Assertion) error {
	if math.Abs(result.State.VolumeLevel-*a.LevelDB) <= levelTolerance {
		return nil
	}
	return &AssertionError{
		Type:     AssertVolumeLevel,
		Expected: fmt.Sprintf("%.2f dB", *a.LevelDB),
		Actual:   fmt.Sprintf("%.2f dB", result.State.VolumeLevel),
		Trace:    result.Trace,
	}
}

func assertMissCount(result *Result, a Assertion) error {
	if result.State.MissCount == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertMissCount,
		Expected: fmt.Sprintf("miss count %d", *a.Count),
		Actual:   fmt.Sprintf("miss count %d", result.State.MissCount),
		Trace:    result.Trace,
	}
}

// assertVolumeSent checks the volume-set commands sent to the server.
// Count, when given, is the exact number sent; LevelDB is the last level.
func assertVolumeSent(result *Result, a Assertion) error {
	sent := result.State.Sent
	if a.Count != nil && len(sent) != *a.Count {
		return &AssertionError{
			Type:     AssertVolumeSent,
			Expected: fmt.Sprintf("%d volume-set commands", *a.Count),
			Actual:   fmt.Sprintf("%d volume-set commands", len(sent)),
		}
	}
	if a.LevelDB == nil {
		return nil
	}
	if len(sent) == 0 {
		return &AssertionError{
			Type:     AssertVolumeSent,
			Expected: fmt.Sprintf("last command at %.2f dB", *a.LevelDB),
			Actual:   "no commands sent",
		}
	}
	last := sent[len(sent)-1]
	if math.Abs(last.LevelDB-*a.LevelDB) > levelTolerance {
		return &AssertionError{
			Type:     AssertVolumeSent,
			Expected: fmt.Sprintf("last command at %.2f dB", *a.LevelDB),
			Actual:   fmt.Sprintf("last command at %.2f dB", last.LevelDB),
		}
	}
	return nil
}
