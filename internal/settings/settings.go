// Package settings holds the live, user-adjustable detection and alert
// parameters.
package settings

import (
	"fmt"

	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
	"github.com/GriffinCanCode/monkey-alert/internal/syncx"
)

// Frequency bounds accepted from the controls (Hz).
const (
	MinFrequency = 200.0
	MaxFrequency = 20000.0
)

// Settings is a value snapshot; copy freely.
type Settings struct {
	Threshold float64 `json:"threshold"`
	Frequency float64 `json:"frequency"`
	Volume    float64 `json:"volume"`
	Muted     bool    `json:"muted"`
}

// Patch carries an optional change to each field.
type Patch struct {
	Threshold *float64 `json:"threshold,omitempty"`
	Frequency *float64 `json:"frequency,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Muted     *bool    `json:"muted,omitempty"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Threshold == nil && p.Frequency == nil && p.Volume == nil && p.Muted == nil
}

// Validate checks s against the accepted ranges.
func (s Settings) Validate() error {
	if err := ValidateThreshold(s.Threshold); err != nil {
		return err
	}
	if err := ValidateFrequency(s.Frequency); err != nil {
		return err
	}
	return ValidateVolume(s.Volume)
}

// ValidateThreshold requires t in [0,1].
func ValidateThreshold(t float64) error {
	if t < 0 || t > 1 || t != t {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "threshold %v out of range [0, 1]", t)
	}
	return nil
}

// ValidateVolume requires v in [0,1].
func ValidateVolume(v float64) error {
	if v < 0 || v > 1 || v != v {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "volume %v out of range [0, 1]", v)
	}
	return nil
}

// ValidateFrequency requires hz in [MinFrequency, MaxFrequency].
func ValidateFrequency(hz float64) error {
	if hz < MinFrequency || hz > MaxFrequency || hz != hz {
		return apperrors.Newf(apperrors.CodeInvalidArgument,
			"frequency %v out of range [%v, %v]", hz, MinFrequency, MaxFrequency)
	}
	return nil
}

// Store guards the current Settings.
type Store struct {
	guard *syncx.Guard[Settings]
}

// NewStore creates a store holding initial.
func NewStore(initial Settings) *Store {
	return &Store{guard: syncx.NewGuard(initial)}
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	return s.guard.Get()
}

// Threshold is read on every frame.
func (s *Store) Threshold() float64 {
	var t float64
	s.guard.Read(func(v Settings) { t = v.Threshold })
	return t
}

// Apply validates p against the current value and stores the result
// atomically. Nothing is stored if any field is invalid.
func (s *Store) Apply(p Patch) (Settings, error) {
	return s.guard.Apply(func(next *Settings) error {
		if p.Threshold != nil {
			next.Threshold = *p.Threshold
		}
		if p.Frequency != nil {
			next.Frequency = *p.Frequency
		}
		if p.Volume != nil {
			next.Volume = *p.Volume
		}
		if p.Muted != nil {
			next.Muted = *p.Muted
		}
		return next.Validate()
	})
}

// String renders the settings the way the controls display them.
func (s Settings) String() string {
	return fmt.Sprintf("threshold=%s frequency=%s volume=%s muted=%t",
		Percent(s.Threshold), KHz(s.Frequency), Percent(s.Volume), s.Muted)
}

// Percent formats a [0,1] fraction as a rounded percentage.
func Percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// KHz formats a frequency with one decimal in kHz.
func KHz(hz float64) string {
	return fmt.Sprintf("%.1f kHz", hz/1000)
}
