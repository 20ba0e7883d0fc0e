package alert

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/monkey-alert/internal/clock"
	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
)

type mockTone struct {
	mu        sync.Mutex
	frequency float64
	gain      float64
	rampTo    float64
	rampFor   time.Duration
	ramps     int
	stops     int
}

func (t *mockTone) SetFrequency(hz float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frequency = hz
}

func (t *mockTone) SetGain(g float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gain = g
}

func (t *mockTone) Gain() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gain
}

func (t *mockTone) RampGain(target float64, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gain = target
	t.rampTo = target
	t.rampFor = d
	t.ramps++
}

func (t *mockTone) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	if t.stops > 1 {
		return errors.New("tone already stopped")
	}
	return nil
}

type mockOutput struct {
	tones     []*mockTone
	resumes   int
	resumeErr error
	toneErr   error
}

func (o *mockOutput) Resume() error {
	o.resumes++
	return o.resumeErr
}

func (o *mockOutput) NewTone(frequency, gain float64) (Tone, error) {
	if o.toneErr != nil {
		return nil, o.toneErr
	}
	t := &mockTone{frequency: frequency, gain: gain}
	o.tones = append(o.tones, t)
	return t, nil
}

func (o *mockOutput) live() int {
	n := 0
	for _, t := range o.tones {
		if t.stops == 0 {
			n++
		}
	}
	return n
}

func newTestController(opts ...Option) (*Controller, *mockOutput, *clock.Fake) {
	out := &mockOutput{}
	clk := clock.NewFake()
	opts = append([]Option{WithClock(clk)}, opts...)
	return New(out, 1000, 0.5, opts...), out, clk
}

func TestStartCreatesOneTone(t *testing.T) {
	c, out, _ := newTestController()

	if err := c.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if c.State() != Playing || !c.IsPlaying() {
		t.Fatalf("State() = %v, want Playing", c.State())
	}
	if len(out.tones) != 1 || out.resumes != 1 {
		t.Fatalf("tones = %d, resumes = %d", len(out.tones), out.resumes)
	}
	tone := out.tones[0]
	if tone.frequency != 1000 || tone.gain != 0.5 {
		t.Errorf("tone = %vHz gain %v, want 1000Hz gain 0.5", tone.frequency, tone.gain)
	}
}

func TestStartIdempotent(t *testing.T) {
	c, out, _ := newTestController()
	_ = c.Start()
	out.tones[0].RampGain(0.3, time.Second)

	if err := c.Start(); err != nil {
		t.Fatalf("second Start() = %v", err)
	}
	if len(out.tones) != 1 {
		t.Errorf("tones = %d, want 1", len(out.tones))
	}
	if out.tones[0].ramps != 1 || out.tones[0].gain != 0.3 {
		t.Error("second Start should not touch the running tone")
	}
}

func TestStopFadesThenHalts(t *testing.T) {
	c, out, clk := newTestController(WithFade(100 * time.Millisecond))
	_ = c.Start()
	tone := out.tones[0]

	c.Stop()
	if c.State() != Stopping {
		t.Fatalf("State() = %v, want Stopping", c.State())
	}
	if tone.rampTo != FadeFloor || tone.rampFor != 100*time.Millisecond {
		t.Errorf("ramp = %v over %v, want %v over 100ms", tone.rampTo, tone.rampFor, FadeFloor)
	}
	if tone.stops != 0 {
		t.Fatal("tone halted before the fade finished")
	}

	clk.Advance(99 * time.Millisecond)
	if c.State() != Stopping {
		t.Fatalf("State() = %v before fade end", c.State())
	}
	clk.Advance(time.Millisecond)
	if c.State() != Silent || c.IsPlaying() {
		t.Errorf("State() = %v after fade, want Silent", c.State())
	}
	if tone.stops != 1 {
		t.Errorf("stops = %d, want 1", tone.stops)
	}
}

func TestStopTwice(t *testing.T) {
	c, out, clk := newTestController()
	_ = c.Start()

	c.Stop()
	c.Stop()
	clk.Advance(time.Second)

	if c.State() != Silent {
		t.Errorf("State() = %v, want Silent", c.State())
	}
	if out.tones[0].stops != 1 {
		t.Errorf("stops = %d, want exactly one halt", out.tones[0].stops)
	}
	if out.tones[0].ramps != 1 {
		t.Errorf("ramps = %d, want 1", out.tones[0].ramps)
	}
}

func TestStopWhileSilent(t *testing.T) {
	c, _, clk := newTestController()
	c.Stop()
	if c.State() != Silent || clk.Pending() != 0 {
		t.Error("Stop while silent should do nothing")
	}
}

func TestStartDuringFadeResumesSameTone(t *testing.T) {
	c, out, clk := newTestController()
	_ = c.Start()
	c.Stop()

	if err := c.Start(); err != nil {
		t.Fatalf("Start() during fade = %v", err)
	}
	if c.State() != Playing {
		t.Fatalf("State() = %v, want Playing", c.State())
	}
	if len(out.tones) != 1 {
		t.Fatalf("tones = %d, want the fading tone reused", len(out.tones))
	}
	if out.tones[0].gain != 0.5 {
		t.Errorf("gain = %v, want restored volume 0.5", out.tones[0].gain)
	}

	// the superseded halt must not fire
	clk.Advance(time.Second)
	if c.State() != Playing || out.tones[0].stops != 0 {
		t.Errorf("stale halt ran: state %v, stops %d", c.State(), out.tones[0].stops)
	}
	if out.live() != 1 {
		t.Errorf("live tones = %d, want 1", out.live())
	}
}

func TestStaleHaltIgnoredAfterRestop(t *testing.T) {
	c, out, clk := newTestController(WithFade(100 * time.Millisecond))
	_ = c.Start()
	c.Stop()
	clk.Advance(60 * time.Millisecond)
	_ = c.Start()
	c.Stop()

	// first halt would have been due at 100ms
	clk.Advance(50 * time.Millisecond)
	if c.State() != Stopping {
		t.Fatalf("State() = %v, first halt should be ignored", c.State())
	}
	clk.Advance(50 * time.Millisecond)
	if c.State() != Silent || out.tones[0].stops != 1 {
		t.Errorf("state %v stops %d, want Silent after second fade", c.State(), out.tones[0].stops)
	}
}

func TestLiveParameters(t *testing.T) {
	c, out, _ := newTestController()
	_ = c.Start()
	tone := out.tones[0]

	c.SetVolume(0.1)
	c.SetFrequency(440)

	if tone.gain != 0.1 {
		t.Errorf("gain = %v, want 0.1", tone.gain)
	}
	if tone.frequency != 440 {
		t.Errorf("frequency = %v, want 440", tone.frequency)
	}
	if tone.stops != 0 || len(out.tones) != 1 {
		t.Error("live update must not restart the tone")
	}
}

func TestParametersStoredWhileSilent(t *testing.T) {
	c, out, _ := newTestController()
	c.SetVolume(0.2)
	c.SetFrequency(2000)
	_ = c.Start()

	if out.tones[0].gain != 0.2 || out.tones[0].frequency != 2000 {
		t.Errorf("tone = %+v, want stored defaults", out.tones[0])
	}
}

func TestVolumeNotAppliedWhileFading(t *testing.T) {
	c, out, _ := newTestController()
	_ = c.Start()
	c.Stop()
	c.SetVolume(0.9)

	if out.tones[0].gain != FadeFloor {
		t.Errorf("gain = %v, fade should not be interrupted", out.tones[0].gain)
	}
	if c.Volume() != 0.9 {
		t.Errorf("Volume() = %v, want 0.9", c.Volume())
	}
}

func TestMuteContract(t *testing.T) {
	c, out, clk := newTestController()
	_ = c.Start()

	c.SetMuted(true)
	clk.Advance(time.Second)
	if c.State() != Silent {
		t.Fatalf("State() = %v after mute, want Silent", c.State())
	}

	c.SetMuted(false)
	if c.State() != Silent || len(out.tones) != 1 {
		t.Error("unmuting must not resume the tone")
	}

	_ = c.Start()
	if c.State() != Playing || len(out.tones) != 2 {
		t.Errorf("Start after unmute: state %v tones %d", c.State(), len(out.tones))
	}
}

func TestStartWhileMuted(t *testing.T) {
	c, out, _ := newTestController(WithMuted(true))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if c.State() != Silent || len(out.tones) != 0 || out.resumes != 0 {
		t.Error("Start while muted should do nothing")
	}
}

func TestHalt(t *testing.T) {
	c, out, clk := newTestController()
	_ = c.Start()
	c.Stop()
	c.Halt()

	if c.State() != Silent || out.tones[0].stops != 1 {
		t.Fatalf("state %v stops %d", c.State(), out.tones[0].stops)
	}
	clk.Advance(time.Second)
	if out.tones[0].stops != 1 {
		t.Error("pending halt ran after Halt")
	}
	c.Halt()
}

func TestStartErrors(t *testing.T) {
	c, out, _ := newTestController()
	out.resumeErr = errors.New("no device")
	err := c.Start()
	if !apperrors.IsCode(err, apperrors.CodeAudioUnavailable) {
		t.Errorf("Start() = %v, want AudioUnavailable", err)
	}
	if c.State() != Silent {
		t.Errorf("State() = %v", c.State())
	}

	out.resumeErr = nil
	out.toneErr = errors.New("stream busy")
	if err := c.Start(); !apperrors.IsCode(err, apperrors.CodeAudioUnavailable) {
		t.Errorf("Start() = %v, want AudioUnavailable", err)
	}
}

func TestStateHook(t *testing.T) {
	var got []State
	c, _, clk := newTestController(WithStateHook(func(s State) { got = append(got, s) }))

	_ = c.Start()
	c.Stop()
	clk.Advance(time.Second)

	want := []State{Playing, Stopping, Silent}
	if len(got) != len(want) {
		t.Fatalf("hook states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hook[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Silent: "silent", Stopping: "stopping", Playing: "playing"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
