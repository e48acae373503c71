package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

const (
	// DefaultSampleRate is the rate the speaker is opened at. Cues
	// recorded at other rates are resampled on load.
	DefaultSampleRate beep.SampleRate = 44100

	// resampleQuality trades CPU for fidelity; cues are short and decoded
	// once.
	resampleQuality = 4

	speakerLatency = 50 * time.Millisecond
)

// SpeakerOutput plays WAV cues from a directory on the default sound
// device.
type SpeakerOutput struct {
	dir        string
	sampleRate beep.SampleRate

	initOnce sync.Once
	initErr  error
}

// NewSpeakerOutput creates an output that loads "<dir>/<cue id>".
// The device is opened lazily on the first LoadCue.
func NewSpeakerOutput(dir string) *SpeakerOutput {
	return &SpeakerOutput{dir: dir, sampleRate: DefaultSampleRate}
}

func (o *SpeakerOutput) init() error {
	o.initOnce.Do(func() {
		o.initErr = speaker.Init(o.sampleRate, o.sampleRate.N(speakerLatency))
	})
	return o.initErr
}

// LoadCue implements Output. The decoded cue is held in memory.
func (o *SpeakerOutput) LoadCue(ctx context.Context, id string) (Resource, error) {
	if err := o.init(); err != nil {
		return nil, &UnavailableError{Cue: id, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(o.dir, filepath.Clean("/"+id)))
	if err != nil {
		return nil, fmt.Errorf("open cue %s: %w", id, err)
	}
	defer f.Close()

	buf, err := decodeCue(f, o.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode cue %s: %w", id, err)
	}
	return buf, nil
}

// Play implements Output.
func (o *SpeakerOutput) Play(res Resource, gain float64) error {
	buf, ok := res.(*beep.Buffer)
	if !ok {
		return fmt.Errorf("unexpected resource type %T", res)
	}
	if o.initErr != nil {
		return &UnavailableError{Err: o.initErr}
	}

	// effects.Gain scales samples by 1+Gain.
	speaker.Play(&effects.Gain{
		Streamer: buf.Streamer(0, buf.Len()),
		Gain:     gain - 1,
	})
	return nil
}

// decodeCue reads a WAV stream into a buffer at the given sample rate.
func decodeCue(r io.Reader, rate beep.SampleRate) (*beep.Buffer, error) {
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != rate {
		s = beep.Resample(resampleQuality, format.SampleRate, rate, streamer)
	}

	buf := beep.NewBuffer(beep.Format{
		SampleRate:  rate,
		NumChannels: format.NumChannels,
		Precision:   format.Precision,
	})
	buf.Append(s)
	return buf, nil
}
