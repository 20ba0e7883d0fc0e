// Package pulse tracks the transient visual pulse shown on a monkey detection.
package pulse

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/monkey-alert/internal/clock"
)

// DefaultDuration is how long a pulse stays active.
const DefaultDuration = time.Second

// Pulse is active for a fixed duration after each Trigger. A new Trigger
// restarts the window.
type Pulse struct {
	clock    clock.Clock
	duration time.Duration
	onChange func(active bool)

	mu     sync.Mutex
	active bool
	gen    uint64
	timer  clock.Timer
}

// New creates an inactive pulse. onChange may be nil.
func New(clk clock.Clock, d time.Duration, onChange func(active bool)) *Pulse {
	if clk == nil {
		clk = clock.Real()
	}
	if d <= 0 {
		d = DefaultDuration
	}
	return &Pulse{clock: clk, duration: d, onChange: onChange}
}

// Trigger activates the pulse and schedules it to clear.
func (p *Pulse) Trigger() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	changed := !p.active
	p.active = true
	p.timer = p.clock.AfterFunc(p.duration, func() { p.expire(gen) })
	p.mu.Unlock()

	if changed {
		p.notify(true)
	}
}

func (p *Pulse) expire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	p.timer = nil
	p.mu.Unlock()
	p.notify(false)
}

// Clear deactivates the pulse immediately.
func (p *Pulse) Clear() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
	changed := p.active
	p.active = false
	p.mu.Unlock()

	if changed {
		p.notify(false)
	}
}

// Active reports whether the pulse is showing.
func (p *Pulse) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Pulse) notify(active bool) {
	if p.onChange != nil {
		p.onChange(active)
	}
}
