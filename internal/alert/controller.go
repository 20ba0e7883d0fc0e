// Package alert drives the continuous warning tone.
package alert

import (
	"log/slog"
	"sync"
	"time"

	"github.com/GriffinCanCode/monkey-alert/internal/clock"
	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
)

// Output creates tones on an audio device.
type Output interface {
	// Resume prepares a suspended device; it is called before every new tone.
	Resume() error
	NewTone(frequency, gain float64) (Tone, error)
}

// Tone is one running sine generator with a gain stage.
type Tone interface {
	SetFrequency(hz float64)
	SetGain(g float64)
	Gain() float64
	// RampGain moves the gain exponentially to target over d.
	RampGain(target float64, d time.Duration)
	Stop() error
}

// State of the controller.
type State int

const (
	Silent State = iota
	Stopping
	Playing
)

func (s State) String() string {
	return [...]string{"silent", "stopping", "playing"}[s]
}

// Controller owns at most one Tone. Stopping fades the tone out and halts it
// from a timer; a Start during the fade takes the same tone back to Playing.
type Controller struct {
	out   Output
	clock clock.Clock
	fade  time.Duration
	hook  func(State)

	mu        sync.Mutex
	state     State
	tone      Tone
	halt      clock.Timer
	gen       uint64
	frequency float64
	volume    float64
	muted     bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option { return func(ctl *Controller) { ctl.clock = c } }

// WithFade sets the fade-out duration.
func WithFade(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.fade = d
		}
	}
}

// WithMuted sets the initial mute state.
func WithMuted(m bool) Option { return func(ctl *Controller) { ctl.muted = m } }

// WithStateHook registers fn to be called after every state change, outside the lock.
func WithStateHook(fn func(State)) Option { return func(ctl *Controller) { ctl.hook = fn } }

// New creates a silent controller.
func New(out Output, frequency, volume float64, opts ...Option) *Controller {
	c := &Controller{
		out:       out,
		clock:     clock.Real(),
		fade:      DefaultFadeDuration,
		frequency: frequency,
		volume:    volume,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins the tone. It is a no-op while muted or already playing.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.muted || c.state == Playing {
		c.mu.Unlock()
		return nil
	}

	if c.state == Stopping {
		// supersede the pending halt and bring the same tone back
		c.gen++
		if c.halt != nil {
			c.halt.Stop()
			c.halt = nil
		}
		c.tone.RampGain(c.volume, c.fade)
		c.state = Playing
		c.mu.Unlock()
		c.notify(Playing)
		return nil
	}

	if err := c.out.Resume(); err != nil {
		c.mu.Unlock()
		return apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "resume audio output")
	}
	tone, err := c.out.NewTone(c.frequency, c.volume)
	if err != nil {
		c.mu.Unlock()
		return apperrors.Wrap(err, apperrors.CodeAudioUnavailable, "create tone")
	}
	c.tone = tone
	c.state = Playing
	c.mu.Unlock()

	slog.Debug("alert tone started", "frequency", c.Frequency())
	c.notify(Playing)
	return nil
}

// Stop fades the tone out. It is a no-op unless playing.
func (c *Controller) Stop() {
	c.mu.Lock()
	changed := c.stopLocked()
	c.mu.Unlock()
	if changed {
		c.notify(Stopping)
	}
}

func (c *Controller) stopLocked() bool {
	if c.state != Playing {
		return false
	}
	c.gen++
	gen := c.gen
	c.tone.RampGain(FadeFloor, c.fade)
	c.state = Stopping
	c.halt = c.clock.AfterFunc(c.fade, func() { c.finish(gen) })
	return true
}

// finish halts the tone if no Start or Halt has happened since the fade began.
func (c *Controller) finish(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Stopping {
		c.mu.Unlock()
		return
	}
	tone := c.tone
	c.tone = nil
	c.halt = nil
	c.state = Silent
	c.mu.Unlock()

	if err := tone.Stop(); err != nil {
		slog.Warn("alert tone stop failed", "error", err)
	}
	c.notify(Silent)
}

// Halt tears the tone down immediately, skipping the fade.
func (c *Controller) Halt() {
	c.mu.Lock()
	if c.state == Silent {
		c.mu.Unlock()
		return
	}
	c.gen++
	if c.halt != nil {
		c.halt.Stop()
		c.halt = nil
	}
	tone := c.tone
	c.tone = nil
	c.state = Silent
	c.mu.Unlock()

	if err := tone.Stop(); err != nil {
		slog.Warn("alert tone stop failed", "error", err)
	}
	c.notify(Silent)
}

// SetFrequency updates the stored frequency and the live tone, if any.
func (c *Controller) SetFrequency(hz float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frequency = hz
	if c.tone != nil {
		c.tone.SetFrequency(hz)
	}
}

// SetVolume updates the stored volume. A fading tone keeps fading.
func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = v
	if c.state == Playing {
		c.tone.SetGain(v)
	}
}

// SetMuted mutes (stopping any tone) or unmutes. Unmuting never restarts
// the tone; the next Start does.
func (c *Controller) SetMuted(m bool) {
	c.mu.Lock()
	c.muted = m
	changed := m && c.stopLocked()
	c.mu.Unlock()
	if changed {
		c.notify(Stopping)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsPlaying reports whether a tone exists, including one fading out.
func (c *Controller) IsPlaying() bool {
	return c.State() != Silent
}

func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Controller) Frequency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frequency
}

func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func (c *Controller) notify(s State) {
	if c.hook != nil {
		c.hook(s)
	}
}
