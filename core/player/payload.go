package player

import "benirage/model"

// Payload is everything a client needs to render a story's player.
type Payload struct {
	Story             model.Story   `json:"story"`
	Layout            Layout        `json:"layout"`
	Waveform          []float64     `json:"waveform,omitempty"`
	WaveformGenerated bool          `json:"waveformGenerated,omitempty"`
	Duration          string        `json:"duration"`
	State             PlaybackState `json:"state"`
}

// NewPayload builds the initial player payload of s.
func NewPayload(s model.Story) Payload {
	layout := BuildLayout(s)
	p := Payload{
		Story:  s,
		Layout: layout,
		State:  DefaultState(),
	}

	var seconds int
	switch {
	case layout.Video != nil:
		seconds = layout.Video.Duration
	case layout.Audio != nil:
		seconds = layout.Audio.Duration
	}
	p.State.Duration = float64(seconds)
	p.Duration = FormatTime(float64(seconds))

	if layout.Visualization {
		w := NewWaveform(s.ID, WaveformBars)
		p.Waveform = w.Amplitudes
		p.WaveformGenerated = w.Generated
	}
	return p
}
