package audio

import (
	"math"
	"sync"
	"time"
)

// Oscillator renders a sine wave with a gain stage that can follow an
// exponential ramp. It is safe to change parameters while Fill runs.
type Oscillator struct {
	mu         sync.Mutex
	sampleRate float64
	frequency  float64
	phase      float64 // [0, 1)
	gain       float64
	ramp       *gainRamp
}

// gainRamp follows from*(to/from)^(k/n) for k in [0, n].
type gainRamp struct {
	from, to float64
	k, n     int
}

// NewOscillator creates an oscillator at the given sample rate.
func NewOscillator(sampleRate, frequency, gain float64) *Oscillator {
	return &Oscillator{sampleRate: sampleRate, frequency: frequency, gain: gain}
}

func (o *Oscillator) SetFrequency(hz float64) {
	o.mu.Lock()
	o.frequency = hz
	o.mu.Unlock()
}

// SetGain sets the gain immediately and cancels any ramp in progress.
func (o *Oscillator) SetGain(g float64) {
	o.mu.Lock()
	o.gain = g
	o.ramp = nil
	o.mu.Unlock()
}

func (o *Oscillator) Gain() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gain
}

// RampGain starts an exponential ramp from the current gain to target over d.
// Ramps touching zero gain cannot be exponential and jump straight to target.
func (o *Oscillator) RampGain(target float64, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := int(d.Seconds() * o.sampleRate)
	if n <= 0 || o.gain <= 0 || target <= 0 {
		o.gain = target
		o.ramp = nil
		return
	}
	o.ramp = &gainRamp{from: o.gain, to: target, n: n}
}

// Fill writes the next len(out) samples.
func (o *Oscillator) Fill(out []float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	step := o.frequency / o.sampleRate
	for i := range out {
		if r := o.ramp; r != nil {
			r.k++
			if r.k >= r.n {
				o.gain = r.to
				o.ramp = nil
			} else {
				o.gain = r.from * math.Pow(r.to/r.from, float64(r.k)/float64(r.n))
			}
		}
		out[i] = float32(o.gain * math.Sin(2*math.Pi*o.phase))
		o.phase += step
		o.phase -= math.Floor(o.phase)
	}
}
