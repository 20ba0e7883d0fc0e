package resilience

import "time"

// Circuit breaker configuration constants
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Per-frame prediction: a skipped frame costs little, so trip late and
	// probe again soon.
	PredictThreshold         = 10
	PredictResetTimeout      = 5 * time.Second
	PredictHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string
	Threshold         int           // consecutive failures before opening
	ResetTimeout      time.Duration // wait before the first probe
	HalfOpenSuccesses int           // probes that must succeed to close
}

// DefaultConfig returns general-purpose defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// PredictConfig returns settings for the per-frame classifier call.
func PredictConfig() Config {
	return Config{
		Name:              "classifier_predict",
		Threshold:         PredictThreshold,
		ResetTimeout:      PredictResetTimeout,
		HalfOpenSuccesses: PredictHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
