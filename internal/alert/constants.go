package alert

import "time"

const (
	// FadeFloor is the gain a fade ramps to; an exponential ramp cannot reach zero.
	FadeFloor = 0.001

	DefaultFadeDuration = 100 * time.Millisecond
	DefaultFrequency    = 1000.0
	DefaultVolume       = 0.5
)
