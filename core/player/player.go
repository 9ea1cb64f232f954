package player

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"benirage/model"
)

// HideControlsAfter is how long controls stay visible without pointer
// movement while playing.
const HideControlsAfter = 3 * time.Second

// ErrFullscreenUnsupported is returned when the player has no fullscreen host.
var ErrFullscreenUnsupported = errors.New("fullscreen not supported")

// MediaElement is an audio or video element the player drives.
type MediaElement interface {
	Play(ctx context.Context) error
	Pause()
	SetCurrentTime(seconds float64)
	SetVolume(v float64)
	SetMuted(muted bool)
	SetPlaybackRate(rate float64)
}

// FullscreenHost toggles fullscreen on the player's container.
type FullscreenHost interface {
	RequestFullscreen() error
	ExitFullscreen() error
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Elements are the elements created for a layout. Either may be nil.
type Elements struct {
	Video MediaElement
	Audio MediaElement
}

// PlaybackState is the observable state of a player.
type PlaybackState struct {
	IsPlaying       bool    `json:"isPlaying"`
	CurrentTime     float64 `json:"currentTime"`
	Duration        float64 `json:"duration"`
	Volume          float64 `json:"volume"` // 0 while muted
	Muted           bool    `json:"muted"`
	PlaybackRate    float64 `json:"playbackRate"`
	IsLoading       bool    `json:"isLoading"`
	Error           string  `json:"error,omitempty"`
	Fullscreen      bool    `json:"fullscreen"`
	ControlsVisible bool    `json:"controlsVisible"`
}

// DefaultState is the state of a freshly loaded story.
func DefaultState() PlaybackState {
	return PlaybackState{Volume: 1, PlaybackRate: 1, ControlsVisible: true}
}

// Config configures a Player.
type Config struct {
	Fullscreen FullscreenHost
	// AfterFunc schedules the controls auto-hide. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
	// OnStateChange, when set, receives the state after every change.
	OnStateChange func(PlaybackState)
}

// Player is the transport controller of one story. It never returns playback
// failures to the caller; they land in PlaybackState.Error.
type Player struct {
	cfg Config

	mu         sync.Mutex
	state      PlaybackState
	layout     Layout
	waveform   Waveform
	active     MediaElement
	lastVolume float64
	hideTimer  Timer
	hideSeq    uint64
	gen        uint64 // bumped on every Load
	playing    bool   // a Play call is in flight
}

// New creates a Player with nothing loaded.
func New(cfg Config) *Player {
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return &Player{cfg: cfg, state: DefaultState(), lastVolume: 1}
}

// Load switches to story and resets the playback state. The video element is
// driven when present, the audio element otherwise.
func (p *Player) Load(story model.Story, el Elements) Layout {
	p.mu.Lock()
	if p.active != nil {
		p.active.Pause()
	}
	p.stopHideLocked()
	p.gen++
	p.playing = false
	p.layout = BuildLayout(story)
	p.waveform = NewWaveform(story.ID, WaveformBars)
	p.state = DefaultState()
	p.lastVolume = 1

	p.active = nil
	switch {
	case p.layout.Video != nil && el.Video != nil:
		p.active = el.Video
		p.state.Duration = float64(p.layout.Video.Duration)
	case p.layout.Audio != nil && el.Audio != nil:
		p.active = el.Audio
		p.state.Duration = float64(p.layout.Audio.Duration)
	}
	layout := p.layout
	p.mu.Unlock()

	p.changed()
	return layout
}

// SetWaveform replaces the generated waveform with precomputed data.
func (p *Player) SetWaveform(w Waveform) {
	p.mu.Lock()
	p.waveform = w
	p.mu.Unlock()
}

// State returns a snapshot of the playback state.
func (p *Player) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Progress is the playback position as a fraction of the duration.
func (p *Player) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressLocked()
}

func (p *Player) progressLocked() float64 {
	if p.state.Duration <= 0 {
		return 0
	}
	return clamp01(p.state.CurrentTime / p.state.Duration)
}

// Bars renders the waveform at the current position.
func (p *Player) Bars() []Bar {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waveform.Bars(p.progressLocked())
}

// TogglePlay pauses a playing story or starts a paused one. A rejected play
// is recorded in the state and leaves the player paused. Toggles arriving
// while a play is still pending are ignored.
func (p *Player) TogglePlay(ctx context.Context) {
	p.mu.Lock()
	el := p.active
	if el == nil || p.playing {
		p.mu.Unlock()
		return
	}
	if p.state.IsPlaying {
		el.Pause()
		p.state.IsPlaying = false
		p.state.ControlsVisible = true
		p.stopHideLocked()
		p.mu.Unlock()
		p.changed()
		return
	}
	p.state.IsLoading = true
	p.state.Error = ""
	p.playing = true
	gen := p.gen
	p.mu.Unlock()
	p.changed()

	err := el.Play(ctx)

	p.mu.Lock()
	if gen != p.gen {
		// a different story was loaded meanwhile
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.state.IsLoading = false
	if err != nil {
		p.state.IsPlaying = false
		p.state.Error = err.Error()
	} else {
		p.state.IsPlaying = true
		p.scheduleHideLocked()
	}
	p.mu.Unlock()
	p.changed()
}

// Seek moves playback to the position of a click offsetX pixels into a
// progress bar width pixels wide. It returns the new time in seconds.
func (p *Player) Seek(offsetX, width float64) float64 {
	if width <= 0 {
		return p.State().CurrentTime
	}
	return p.SeekFraction(offsetX / width)
}

// SeekFraction moves playback to frac of the duration, clamped to [0,1].
func (p *Player) SeekFraction(frac float64) float64 {
	p.mu.Lock()
	if p.active == nil || p.state.Duration <= 0 {
		t := p.state.CurrentTime
		p.mu.Unlock()
		return t
	}
	t := clamp01(frac) * p.state.Duration
	p.active.SetCurrentTime(t)
	p.state.CurrentTime = t
	p.mu.Unlock()
	p.changed()
	return t
}

// SetVolume sets the volume, clamped to [0,1]. Zero mutes.
func (p *Player) SetVolume(v float64) {
	v = clamp01(v)
	p.mu.Lock()
	if p.active != nil {
		p.active.SetVolume(v)
		p.active.SetMuted(v == 0)
	}
	if v > 0 {
		p.lastVolume = v
	}
	p.state.Volume = v
	p.state.Muted = v == 0
	p.mu.Unlock()
	p.changed()
}

// ToggleMute mutes or restores the last nonzero volume.
func (p *Player) ToggleMute() {
	p.mu.Lock()
	if p.state.Muted {
		p.state.Muted = false
		p.state.Volume = p.lastVolume
		if p.active != nil {
			p.active.SetVolume(p.lastVolume)
			p.active.SetMuted(false)
		}
	} else {
		p.state.Muted = true
		p.state.Volume = 0
		if p.active != nil {
			p.active.SetMuted(true)
		}
	}
	p.mu.Unlock()
	p.changed()
}

// SetPlaybackRate sets the playback speed. Non-positive rates are ignored.
func (p *Player) SetPlaybackRate(rate float64) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return
	}
	p.mu.Lock()
	if p.active != nil {
		p.active.SetPlaybackRate(rate)
	}
	p.state.PlaybackRate = rate
	p.mu.Unlock()
	p.changed()
}

// ToggleFullscreen enters or leaves fullscreen on the container.
func (p *Player) ToggleFullscreen() error {
	host := p.cfg.Fullscreen
	if host == nil {
		return ErrFullscreenUnsupported
	}
	p.mu.Lock()
	entering := !p.state.Fullscreen
	p.mu.Unlock()

	var err error
	if entering {
		err = host.RequestFullscreen()
	} else {
		err = host.ExitFullscreen()
	}
	if err != nil {
		return err
	}
	p.OnFullscreenChange(entering)
	return nil
}

// OnFullscreenChange records a fullscreen change, including ones the user
// made outside the player (e.g. pressing Escape).
func (p *Player) OnFullscreenChange(fullscreen bool) {
	p.mu.Lock()
	p.state.Fullscreen = fullscreen
	p.mu.Unlock()
	p.changed()
}

// PointerMoved shows the controls and restarts the auto-hide countdown.
func (p *Player) PointerMoved() {
	p.mu.Lock()
	p.state.ControlsVisible = true
	p.stopHideLocked()
	if p.state.IsPlaying {
		p.scheduleHideLocked()
	}
	p.mu.Unlock()
	p.changed()
}

// OnLoadedMetadata records the element's duration.
func (p *Player) OnLoadedMetadata(duration float64) {
	p.mu.Lock()
	if duration > 0 && !math.IsInf(duration, 0) {
		p.state.Duration = duration
	}
	p.state.IsLoading = false
	p.mu.Unlock()
	p.changed()
}

// OnTimeUpdate records the current position.
func (p *Player) OnTimeUpdate(t float64) {
	p.mu.Lock()
	if t >= 0 {
		p.state.CurrentTime = t
	}
	p.mu.Unlock()
	p.changed()
}

// OnWaiting marks the element as buffering.
func (p *Player) OnWaiting() {
	p.mu.Lock()
	p.state.IsLoading = true
	p.mu.Unlock()
	p.changed()
}

// OnCanPlay clears buffering.
func (p *Player) OnCanPlay() {
	p.mu.Lock()
	p.state.IsLoading = false
	p.mu.Unlock()
	p.changed()
}

// OnEnded stops playback at the end of the media.
func (p *Player) OnEnded() {
	p.mu.Lock()
	p.state.IsPlaying = false
	p.state.ControlsVisible = true
	p.stopHideLocked()
	p.mu.Unlock()
	p.changed()
}

// OnMediaError records a decode or network failure of the element.
func (p *Player) OnMediaError(err error) {
	p.mu.Lock()
	p.state.IsPlaying = false
	p.state.IsLoading = false
	p.state.ControlsVisible = true
	if err != nil {
		p.state.Error = err.Error()
	}
	p.stopHideLocked()
	p.mu.Unlock()
	p.changed()
}

func (p *Player) scheduleHideLocked() {
	p.stopHideLocked()
	seq := p.hideSeq
	p.hideTimer = p.cfg.AfterFunc(HideControlsAfter, func() {
		p.mu.Lock()
		if seq != p.hideSeq || !p.state.IsPlaying {
			p.mu.Unlock()
			return
		}
		p.state.ControlsVisible = false
		p.mu.Unlock()
		p.changed()
	})
}

// stopHideLocked also invalidates a callback that already fired but has not
// taken the lock yet.
func (p *Player) stopHideLocked() {
	p.hideSeq++
	if p.hideTimer != nil {
		p.hideTimer.Stop()
		p.hideTimer = nil
	}
}

func (p *Player) changed() {
	if p.cfg.OnStateChange != nil {
		p.cfg.OnStateChange(p.State())
	}
}
