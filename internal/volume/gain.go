package volume

import (
	"math"

	"golang.org/x/text/unicode/norm"
)

// Offsets maps a cue id to the attenuation, in dB, applied before the
// shared level is converted to a linear gain. A positive offset makes the
// cue quieter than the slider's nominal value.
type Offsets map[string]float64

// DefaultOffsets attenuates the beep cue by 10 dB; its source material is
// perceptually louder than the heart-beat samples.
func DefaultOffsets() Offsets {
	return Offsets{"beep.wav": 10}
}

// Clone returns an independent copy with every key NFC-normalized.
func (o Offsets) Clone() Offsets {
	c := make(Offsets, len(o))
	for k, v := range o {
		c[norm.NFC.String(k)] = v
	}
	return c
}

// For returns the offset for cueID, or 0 when none is configured.
func (o Offsets) For(cueID string) float64 {
	if v, ok := o[cueID]; ok {
		return v
	}
	return o[norm.NFC.String(cueID)]
}

// DBToLinear converts a decibel level to a linear amplitude multiplier.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// GainFor returns the linear gain for a cue at the given shared level.
// The cue's offset is subtracted in the dB domain before conversion.
func GainFor(levelDB float64, cueID string, offsets Offsets) float64 {
	return DBToLinear(levelDB - offsets.For(cueID))
}
