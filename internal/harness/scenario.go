package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/thebeat/internal/transport"
)

// Scenario scripts one session run on a virtual timeline.
//
// Polls are issued at j*poll_interval from t=0 for as long as scripted
// poll results remain. Steps run at k*step_interval for k >= 1 up to and
// including duration. At equal times actions run first, then delayed
// fetch results arrive, then polls, then steps.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// DeviceID is the local device id. Defaults to testutil.DeviceID.
	DeviceID string `yaml:"device_id,omitempty"`

	PollInterval  time.Duration `yaml:"poll_interval,omitempty"`
	StepInterval  time.Duration `yaml:"step_interval,omitempty"`
	MissThreshold int           `yaml:"miss_threshold,omitempty"`

	// InitialDB is the level before the first snapshot. Defaults to -10.
	InitialDB *float64 `yaml:"initial_db,omitempty"`

	// Offsets replaces the default per-cue offsets when set.
	Offsets map[string]float64 `yaml:"offsets,omitempty"`

	// Duration is the length of the virtual run.
	Duration time.Duration `yaml:"duration"`

	// Polls are consumed one per issued fetch, in order.
	Polls []PollStep `yaml:"polls"`

	// Actions are external inputs at fixed virtual times.
	Actions []Action `yaml:"actions,omitempty"`

	// Assertions validate the final state and the recorded effects.
	Assertions []Assertion `yaml:"assertions"`
}

// PollStep is one scripted fetch outcome.
//
// Exactly one of Snapshot and Fail is set. Snapshot is written in the
// server's wire format and goes through the same validation as a real
// response, so a malformed snapshot counts as a miss.
type PollStep struct {
	Snapshot map[string]any `yaml:"snapshot,omitempty"`
	Fail     string         `yaml:"fail,omitempty"`

	// Repeat expands this step into Repeat identical steps. Default 1.
	Repeat int `yaml:"repeat,omitempty"`

	// Delay holds the result back after the fetch is issued. Later poll
	// ticks still fetch. A delay of a poll interval or more times out and
	// counts as a miss.
	Delay time.Duration `yaml:"delay,omitempty"`
}

// Action is an external input. Exactly one of the action fields is set.
type Action struct {
	At        time.Duration      `yaml:"at"`
	SetVolume *float64           `yaml:"set_volume,omitempty"`
	Stop      bool               `yaml:"stop,omitempty"`
	Start     bool               `yaml:"start,omitempty"`
	Offsets   map[string]float64 `yaml:"offsets,omitempty"`
}

// Kind names the action.
func (a Action) Kind() string {
	switch {
	case a.SetVolume != nil:
		return "set_volume"
	case a.Stop:
		return "stop"
	case a.Start:
		return "start"
	case a.Offsets != nil:
		return "offsets"
	default:
		return ""
	}
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trigger_count": number of triggers, optionally for one participant or cue
	// - "participants": exact final participant id set
	// - "volume_level": final local level in dB
	// - "miss_count": final consecutive miss count
	// - "volume_sent": number of volume-set commands sent, optionally the last level
	Type string `yaml:"type"`

	Participant string   `yaml:"participant,omitempty"`
	Cue         string   `yaml:"cue,omitempty"`
	Count       *int     `yaml:"count,omitempty"`
	IDs         []string `yaml:"ids,omitempty"`
	LevelDB     *float64 `yaml:"level_db,omitempty"`
}

// Assertion type constants.
const (
	AssertTriggerCount = "trigger_count"
	AssertParticipants = "participants"
	AssertVolumeLevel  = "volume_level"
	AssertMissCount    = "miss_count"
	AssertVolumeSent   = "volume_sent"
)

// scriptedPoll is a PollStep after repeat expansion and snapshot
// decoding.
type scriptedPoll struct {
	snapshot *transport.Snapshot
	err      error
	delay    time.Duration
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files in dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}

	if s.PollInterval < 0 || s.StepInterval < 0 {
		return fmt.Errorf("intervals must not be negative")
	}

	if s.MissThreshold < 0 {
		return fmt.Errorf("miss_threshold must not be negative")
	}

	if len(s.Polls) == 0 {
		return fmt.Errorf("polls list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, p := range s.Polls {
		if (p.Snapshot == nil) == (p.Fail == "") {
			return fmt.Errorf("polls[%d]: exactly one of snapshot and fail is required", i)
		}
		if p.Repeat < 0 {
			return fmt.Errorf("polls[%d]: repeat must not be negative", i)
		}
		if p.Delay < 0 {
			return fmt.Errorf("polls[%d]: delay must not be negative", i)
		}
	}

	for i, a := range s.Actions {
		if a.At < 0 {
			return fmt.Errorf("actions[%d]: at must not be negative", i)
		}
		set := 0
		for _, on := range []bool{a.SetVolume != nil, a.Stop, a.Start, a.Offsets != nil} {
			if on {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("actions[%d]: exactly one of set_volume, stop, start, offsets is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTriggerCount, AssertMissCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertParticipants:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for participants (use [] for none)", index)
		}
	case AssertVolumeLevel:
		if a.LevelDB == nil {
			return fmt.Errorf("assertions[%d]: level_db is required for volume_level", index)
		}
	case AssertVolumeSent:
		if a.Count == nil && a.LevelDB == nil {
			return fmt.Errorf("assertions[%d]: count or level_db is required for volume_sent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// expandPolls flattens repeats and decodes every snapshot through the
// transport validation path.
func expandPolls(steps []PollStep) ([]scriptedPoll, error) {
	var polls []scriptedPoll
	for i, step := range steps {
		p := scriptedPoll{delay: step.Delay}
		if step.Fail != "" {
			p.err = errors.New(step.Fail)
		} else {
			body, err := json.Marshal(step.Snapshot)
			if err != nil {
				return nil, fmt.Errorf("polls[%d]: encode snapshot: %w", i, err)
			}
			// A malformed snapshot becomes a scripted miss.
			p.snapshot, p.err = transport.DecodeSnapshot(body)
		}

		n := step.Repeat
		if n == 0 {
			n = 1
		}
		for j := 0; j < n; j++ {
			polls = append(polls, p)
		}
	}
	return polls, nil
}

// cueIDs returns the cues named by scripted snapshots.
func cueIDs(polls []scriptedPoll) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range polls {
		if p.snapshot == nil {
			continue
		}
		for _, r := range p.snapshot.Participants {
			if r.CueID != "" && !seen[r.CueID] {
				seen[r.CueID] = true
				ids = append(ids, r.CueID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
