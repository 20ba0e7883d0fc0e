// Package capture runs the per-frame detection loop of a session.
package capture

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/GriffinCanCode/monkey-alert/internal/classifier"
	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator/detection"
)

// Frames is the part of a camera the loop reads.
type Frames interface {
	Update(ctx context.Context) error
	Frame() image.Image
}

// Predictor classifies a frame.
type Predictor interface {
	Predict(ctx context.Context, frame image.Image) ([]classifier.Prediction, error)
}

// Alert is the tone the loop starts and stops on transitions.
type Alert interface {
	Start() error
	Stop()
}

// Pulser shows the visual cue for a new detection.
type Pulser interface {
	Trigger()
}

// ThresholdSource returns the current detection threshold.
type ThresholdSource interface {
	Threshold() float64
}

// Observation is the outcome of one classified frame.
type Observation struct {
	Time         time.Time
	Monkey       float64
	NotMonkey    float64
	Threshold    float64
	Verdict      detection.Verdict
	Transitioned bool
	// Reused is set when the frame matched the previous one and its
	// probabilities were carried over.
	Reused bool
}

// Deps are the collaborators of a Loop. OnObservation and OnError may be nil.
type Deps struct {
	Camera        Frames
	Model         Predictor
	Tracker       *detection.Tracker
	Alert         Alert
	Pulse         Pulser
	Settings      ThresholdSource
	OnObservation func(Observation)
	OnError       func(error)
}

// Loop classifies one frame per tick and reacts to verdict changes.
type Loop struct {
	deps     Deps
	interval time.Duration
	dedup    int

	lastHash  *goimagehash.ImageHash
	lastPreds []classifier.Prediction
}

// New creates a loop running at frameRate Hz. dedupDistance is the largest
// pHash distance at which a frame counts as unchanged; negative disables it.
func New(deps Deps, frameRate float64, dedupDistance int) *Loop {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Loop{
		deps:     deps,
		interval: time.Duration(float64(time.Second) / frameRate),
		dedup:    dedupDistance,
	}
}

// Run processes frames until ctx is cancelled. Per-frame errors are reported
// and the next tick is tried.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.report(err)
		}
	}
}

// Step classifies the current frame. It returns the context error without
// side effects when ctx ends before or during the prediction.
func (l *Loop) Step(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}

	if err := l.deps.Camera.Update(ctx); err != nil {
		return Observation{}, err
	}
	frame := l.deps.Camera.Frame()
	if frame == nil {
		return Observation{}, apperrors.New(apperrors.CodeCameraUnavailable, "no frame available")
	}

	preds, reused, err := l.predict(ctx, frame)
	if ctx.Err() != nil {
		// late result from a session that has ended
		return Observation{}, ctx.Err()
	}
	if err != nil {
		return Observation{}, err
	}

	monkey, notMonkey, err := classifier.Split(preds)
	if err != nil {
		return Observation{}, err
	}

	threshold := l.deps.Settings.Threshold()
	res := l.deps.Tracker.Evaluate(monkey, threshold)
	if res.Transitioned {
		l.react(res.Verdict)
	}

	obs := Observation{
		Time:         time.Now(),
		Monkey:       monkey,
		NotMonkey:    notMonkey,
		Threshold:    threshold,
		Verdict:      res.Verdict,
		Transitioned: res.Transitioned,
		Reused:       reused,
	}
	if l.deps.OnObservation != nil {
		l.deps.OnObservation(obs)
	}
	return obs, nil
}

func (l *Loop) react(v detection.Verdict) {
	if v == detection.Monkey {
		if l.deps.Pulse != nil {
			l.deps.Pulse.Trigger()
		}
		if err := l.deps.Alert.Start(); err != nil {
			l.report(err)
		}
		return
	}
	l.deps.Alert.Stop()
}

// predict returns the previous probabilities when the frame is perceptually
// unchanged, otherwise asks the model.
func (l *Loop) predict(ctx context.Context, frame image.Image) ([]classifier.Prediction, bool, error) {
	var hash *goimagehash.ImageHash
	if l.dedup >= 0 {
		h, err := goimagehash.PerceptionHash(frame)
		if err == nil {
			hash = h
			if l.lastHash != nil && l.lastPreds != nil {
				if dist, err := l.lastHash.Distance(h); err == nil && dist <= l.dedup {
					slog.Debug("reusing prediction for similar frame", "distance", dist)
					return l.lastPreds, true, nil
				}
			}
		}
	}

	preds, err := l.deps.Model.Predict(ctx, frame)
	if err != nil {
		return nil, false, err
	}
	if hash != nil {
		l.lastHash, l.lastPreds = hash, preds
	}
	return preds, false, nil
}

func (l *Loop) report(err error) {
	if l.deps.OnError != nil {
		l.deps.OnError(err)
		return
	}
	slog.Debug("frame skipped", "error", err)
}
