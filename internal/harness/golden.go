package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. Empty optional fields are left out.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"type":  ev.Type,
			"at_ms": ev.AtMS,
			"seq":   ev.Seq,
		}
		switch ev.Type {
		case EventPoll:
			m["miss_count"] = ev.MissCount
		}
		if ev.Outcome != "" {
			m["outcome"] = ev.Outcome
		}
		if len(ev.Joined) > 0 {
			m["joined"] = ev.Joined
		}
		if len(ev.Left) > 0 {
			m["left"] = ev.Left
		}
		if len(ev.Removed) > 0 {
			m["removed"] = ev.Removed
		}
		if ev.VolumeApplied {
			m["volume_applied"] = true
		}
		if ev.Participant != "" {
			m["participant"] = ev.Participant
		}
		if ev.Cue != "" {
			m["cue"] = ev.Cue
		}
		if ev.Gain != "" {
			m["gain"] = ev.Gain
		}
		if ev.LevelDB != "" {
			m["level_db"] = ev.LevelDB
		}
		if ev.Action != "" {
			m["action"] = ev.Action
		}
		traceList[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// MarshalTrace renders a result's trace the way golden files store it.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	return MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
