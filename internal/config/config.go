// Package config loads thebeat's settings.
//
// Precedence, lowest first: built-in defaults, a config file (.yaml/.yml
// or .cue), .env files and THEBEAT_* environment variables, then command
// line flags (applied by the cli package). Every config file is unified
// with the embedded CUE schema before it is decoded, so YAML and CUE files
// obey the same constraints.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/thebeat/internal/beat"
	"github.com/roach88/thebeat/internal/transport"
	"github.com/roach88/thebeat/internal/volume"
)

//go:embed schema.cue
var schemaCUE string

// Environment variable names.
const (
	EnvRoom         = "THEBEAT_ROOM"
	EnvSnapshotURL  = "THEBEAT_SNAPSHOT_URL"
	EnvVolumeURL    = "THEBEAT_VOLUME_URL"
	EnvPollInterval = "THEBEAT_POLL_INTERVAL"
	EnvStepInterval = "THEBEAT_STEP_INTERVAL"
	EnvAudioDir     = "THEBEAT_AUDIO_DIR"
	EnvJournal      = "THEBEAT_JOURNAL"
)

// DefaultCues is the cue list the server assigns from.
var DefaultCues = []string{
	"heart-beat.wav",
	"beep.wav",
	"heart-beat500.wav",
	"heart-beat1000.wav",
	"heart-beat1500.wav",
}

// ErrNoRoom is returned by RequireRoom when no room is configured.
var ErrNoRoom = errors.New("no room configured")

type ServerConfig struct {
	SnapshotURL string `yaml:"snapshot_url"`
	// VolumeURL defaults to SnapshotURL when empty.
	VolumeURL string `yaml:"volume_url,omitempty"`
	// Timeout of 0 leaves the transport default in place.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type VolumeConfig struct {
	InitialDB float64 `yaml:"initial_db"`
}

type AudioConfig struct {
	Enabled    bool           `yaml:"enabled"`
	Dir        string         `yaml:"dir,omitempty"`
	DefaultCue string         `yaml:"default_cue"`
	Cues       []string       `yaml:"cues"`
	Offsets    volume.Offsets `yaml:"offsets"`
}

type JournalConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Config is the effective configuration.
type Config struct {
	Room          string        `yaml:"room,omitempty"`
	Server        ServerConfig  `yaml:"server"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	StepInterval  time.Duration `yaml:"step_interval"`
	MissThreshold int           `yaml:"miss_threshold"`
	Volume        VolumeConfig  `yaml:"volume"`
	Audio         AudioConfig   `yaml:"audio"`
	Journal       JournalConfig `yaml:"journal,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			SnapshotURL: transport.DefaultSnapshotURL,
		},
		PollInterval:  500 * time.Millisecond,
		StepInterval:  50 * time.Millisecond,
		MissThreshold: 10,
		Volume: VolumeConfig{
			InitialDB: volume.DefaultLevelDB,
		},
		Audio: AudioConfig{
			Enabled:    true,
			DefaultCue: beat.DefaultCue,
			Cues:       append([]string(nil), DefaultCues...),
			Offsets:    volume.DefaultOffsets(),
		},
	}
}

// Load reads a config file on top of the defaults. The format is chosen
// by extension: .yaml, .yml or .cue.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := cfg.merge(path, data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// merge validates data against the schema and decodes it over c.
func (c *Config) merge(path string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	var value cue.Value
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		value = ctx.Encode(raw)
	case ".cue":
		value = ctx.CompileBytes(data, cue.Filename(path))
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .cue)", ext)
	}
	if err := value.Err(); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	normalized, err := unified.MarshalJSON()
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}

	// Offsets replace the default table instead of merging into it.
	offsets := c.Audio.Offsets
	c.Audio.Offsets = nil

	// JSON is valid YAML; the yaml decoder understands "500ms" durations.
	dec := yaml.NewDecoder(bytes.NewReader(normalized))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	if c.Audio.Offsets == nil {
		c.Audio.Offsets = offsets
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides c with THEBEAT_* environment variables.
func (c *Config) ApplyEnv() error {
	c.Room = getEnv(EnvRoom, c.Room)
	c.Server.SnapshotURL = getEnv(EnvSnapshotURL, c.Server.SnapshotURL)
	c.Server.VolumeURL = getEnv(EnvVolumeURL, c.Server.VolumeURL)
	c.Audio.Dir = getEnv(EnvAudioDir, c.Audio.Dir)
	c.Journal.Path = getEnv(EnvJournal, c.Journal.Path)

	var err error
	if c.PollInterval, err = getEnvAsDuration(EnvPollInterval, c.PollInterval); err != nil {
		return err
	}
	if c.StepInterval, err = getEnvAsDuration(EnvStepInterval, c.StepInterval); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Validate checks the invariants the schema cannot express for values
// that came from the environment or flags.
func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.StepInterval <= 0 {
		errs = append(errs, fmt.Errorf("step_interval must be positive, got %s", c.StepInterval))
	}
	if c.MissThreshold < 1 {
		errs = append(errs, fmt.Errorf("miss_threshold must be at least 1, got %d", c.MissThreshold))
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, fmt.Errorf("server.timeout must not be negative, got %s", c.Server.Timeout))
	}
	if err := checkURL("server.snapshot_url", c.Server.SnapshotURL); err != nil {
		errs = append(errs, err)
	}
	if c.Server.VolumeURL != "" {
		if err := checkURL("server.volume_url", c.Server.VolumeURL); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Audio.DefaultCue == "" {
		errs = append(errs, errors.New("audio.default_cue must not be empty"))
	}
	return errors.Join(errs...)
}

// RequireRoom returns ErrNoRoom if no room is set.
func (c *Config) RequireRoom() error {
	if strings.TrimSpace(c.Room) == "" {
		return fmt.Errorf("%w: pass --room or set %s", ErrNoRoom, EnvRoom)
	}
	return nil
}

// Marshal renders the effective configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", field, raw)
	}
	return nil
}
