package player

import (
	"hash/fnv"
	"math"
	"math/rand"
)

// WaveformBars is the number of bars rendered for audio stories.
const WaveformBars = 100

// Waveform is an amplitude series in [0,1]. Generated waveforms are
// illustrative: they are seeded by the story id, not derived from the audio.
type Waveform struct {
	Amplitudes []float64 `json:"amplitudes"`
	Generated  bool      `json:"generated"`
}

// Bar is one rendered bar.
type Bar struct {
	Height float64 `json:"height"`
	Played bool    `json:"played"`
}

// NewWaveform generates n bars for storyID. The same id always yields the
// same bars.
func NewWaveform(storyID string, n int) Waveform {
	if n <= 0 {
		n = WaveformBars
	}
	h := fnv.New64a()
	h.Write([]byte(storyID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	amps := make([]float64, n)
	for i := range amps {
		// 20% to 100% of full height
		amps[i] = 0.2 + rng.Float64()*0.8
	}
	return Waveform{Amplitudes: amps, Generated: true}
}

// WithAmplitudes wraps precomputed amplitudes, clamping each to [0,1].
func WithAmplitudes(amps []float64) Waveform {
	out := make([]float64, len(amps))
	for i, a := range amps {
		out[i] = clamp01(a)
	}
	return Waveform{Amplitudes: out}
}

// Bars marks every bar before progress (a fraction in [0,1]) as played.
func (w Waveform) Bars(progress float64) []Bar {
	progress = clamp01(progress)
	n := len(w.Amplitudes)
	played := int(progress * float64(n))
	bars := make([]Bar, n)
	for i, a := range w.Amplitudes {
		bars[i] = Bar{Height: a, Played: i < played}
	}
	return bars
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
