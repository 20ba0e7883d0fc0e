package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/monkey-alert/internal/classifier"
	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator/detection"
)

type mockCamera struct {
	frame   image.Image
	updates int
	err     error
}

func (m *mockCamera) Update(context.Context) error {
	m.updates++
	return m.err
}

func (m *mockCamera) Frame() image.Image { return m.frame }

type mockModel struct {
	mu     sync.Mutex
	probs  []float64
	calls  int
	err    error
	during func()
}

func (m *mockModel) Predict(context.Context, image.Image) ([]classifier.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.during != nil {
		m.during()
	}
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	p := m.probs[0]
	if len(m.probs) > 1 {
		m.probs = m.probs[1:]
	}
	return []classifier.Prediction{{ClassName: "Monkey", Probability: p}, {ClassName: "Not Monkey", Probability: 1 - p}}, nil
}

type mockAlert struct {
	starts, stops int
	err           error
}

func (m *mockAlert) Start() error {
	m.starts++
	return m.err
}

func (m *mockAlert) Stop() { m.stops++ }

type mockPulse struct{ triggers int }

func (m *mockPulse) Trigger() { m.triggers++ }

type threshold struct{ v float64 }

func (t *threshold) Threshold() float64 { return t.v }

func gray(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// halves is white on the left and black on the right.
func halves() image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

type fixture struct {
	cam   *mockCamera
	model *mockModel
	alert *mockAlert
	pulse *mockPulse
	thr   *threshold
	obs   []Observation
	errs  []error
	loop  *Loop
}

func newFixture(probs []float64, dedup int) *fixture {
	f := &fixture{
		cam:   &mockCamera{frame: gray(128)},
		model: &mockModel{probs: probs},
		alert: &mockAlert{},
		pulse: &mockPulse{},
		thr:   &threshold{v: 0.5},
	}
	f.loop = New(Deps{
		Camera:        f.cam,
		Model:         f.model,
		Tracker:       detection.NewTracker(),
		Alert:         f.alert,
		Pulse:         f.pulse,
		Settings:      f.thr,
		OnObservation: func(o Observation) { f.obs = append(f.obs, o) },
		OnError:       func(err error) { f.errs = append(f.errs, err) },
	}, 30, dedup)
	return f
}

func TestStepReactsOnTransitionsOnly(t *testing.T) {
	f := newFixture([]float64{0.2, 0.2, 0.6, 0.6, 0.3}, -1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.loop.Step(ctx); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}

	if f.alert.starts != 1 || f.alert.stops != 1 {
		t.Errorf("starts=%d stops=%d, want 1 and 1", f.alert.starts, f.alert.stops)
	}
	if f.pulse.triggers != 1 {
		t.Errorf("pulse triggers = %d, want 1", f.pulse.triggers)
	}

	wantTransition := []bool{false, false, true, false, true}
	wantVerdict := []detection.Verdict{detection.NotMonkey, detection.NotMonkey, detection.Monkey, detection.Monkey, detection.NotMonkey}
	for i, o := range f.obs {
		if o.Transitioned != wantTransition[i] || o.Verdict != wantVerdict[i] {
			t.Errorf("obs[%d] = %+v, want verdict %v transitioned %v", i, o, wantVerdict[i], wantTransition[i])
		}
	}
	if f.obs[2].Monkey != 0.6 || f.obs[2].Threshold != 0.5 {
		t.Errorf("obs[2] = %+v", f.obs[2])
	}
}

func TestStepEqualToThresholdIsNotMonkey(t *testing.T) {
	f := newFixture([]float64{0.5}, -1)
	o, err := f.loop.Step(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if o.Verdict != detection.NotMonkey || f.alert.starts != 0 {
		t.Errorf("p == threshold should not detect: %+v", o)
	}
}

func TestStepReadsThresholdEachFrame(t *testing.T) {
	f := newFixture([]float64{0.4}, -1)
	ctx := context.Background()

	f.loop.Step(ctx)
	f.thr.v = 0.3
	o, _ := f.loop.Step(ctx)
	if o.Verdict != detection.Monkey || !o.Transitioned {
		t.Errorf("lowered threshold should turn 0.4 into a detection: %+v", o)
	}
}

func TestStepCancelledAtEntry(t *testing.T) {
	f := newFixture([]float64{0.9}, -1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.loop.Step(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Step() = %v, want context.Canceled", err)
	}
	if f.cam.updates != 0 || f.model.calls != 0 {
		t.Error("cancelled step should not touch the camera or model")
	}
}

func TestStepDiscardsLateResult(t *testing.T) {
	f := newFixture([]float64{0.9}, -1)
	ctx, cancel := context.WithCancel(context.Background())
	f.model.during = cancel

	if _, err := f.loop.Step(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Step() = %v, want context.Canceled", err)
	}
	if f.alert.starts != 0 || len(f.obs) != 0 {
		t.Error("a result arriving after cancellation must have no effect")
	}
}

func TestStepErrors(t *testing.T) {
	t.Run("camera", func(t *testing.T) {
		f := newFixture([]float64{0.9}, -1)
		f.cam.err = apperrors.New(apperrors.CodeCameraUnavailable, "gone")
		if _, err := f.loop.Step(context.Background()); !apperrors.IsCode(err, apperrors.CodeCameraUnavailable) {
			t.Errorf("Step() = %v", err)
		}
	})
	t.Run("no frame", func(t *testing.T) {
		f := newFixture([]float64{0.9}, -1)
		f.cam.frame = nil
		if _, err := f.loop.Step(context.Background()); !apperrors.IsCode(err, apperrors.CodeCameraUnavailable) {
			t.Errorf("Step() = %v", err)
		}
	})
	t.Run("prediction", func(t *testing.T) {
		f := newFixture([]float64{0.9}, -1)
		f.model.err = apperrors.New(apperrors.CodePredictionFailed, "boom")
		if _, err := f.loop.Step(context.Background()); !apperrors.IsCode(err, apperrors.CodePredictionFailed) {
			t.Errorf("Step() = %v", err)
		}
		if f.alert.starts != 0 {
			t.Error("failed prediction should not react")
		}
	})
}

func TestAlertStartFailureIsReported(t *testing.T) {
	f := newFixture([]float64{0.9}, -1)
	f.alert.err = apperrors.New(apperrors.CodeAudioUnavailable, "no device")

	if _, err := f.loop.Step(context.Background()); err != nil {
		t.Fatalf("Step() = %v", err)
	}
	if len(f.obs) != 1 {
		t.Error("observation should still be published")
	}
	if len(f.errs) != 1 || !apperrors.IsCode(f.errs[0], apperrors.CodeAudioUnavailable) {
		t.Errorf("errs = %v", f.errs)
	}
}

func TestDedupReusesPrediction(t *testing.T) {
	f := newFixture([]float64{0.9, 0.1}, 0)
	ctx := context.Background()

	f.loop.Step(ctx)
	o, _ := f.loop.Step(ctx)
	if f.model.calls != 1 || !o.Reused || o.Monkey != 0.9 {
		t.Errorf("identical frame should reuse: calls=%d obs=%+v", f.model.calls, o)
	}

	f.cam.frame = halves()
	o, _ = f.loop.Step(ctx)
	if f.model.calls != 2 || o.Reused {
		t.Errorf("changed frame should be classified: calls=%d obs=%+v", f.model.calls, o)
	}
}

func TestDedupDisabled(t *testing.T) {
	f := newFixture([]float64{0.9}, -1)
	ctx := context.Background()
	f.loop.Step(ctx)
	f.loop.Step(ctx)
	if f.model.calls != 2 {
		t.Errorf("calls = %d, want 2", f.model.calls)
	}
}

func TestRunContinuesAfterErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	failures := 0
	cam := &mockCamera{frame: gray(10)}
	model := &mockModel{probs: []float64{0.9}}
	model.during = func() {
		if model.calls < 2 {
			model.err = errors.New("transient")
		} else {
			model.err = nil
		}
	}

	done := make(chan struct{})
	loop := New(Deps{
		Camera:   cam,
		Model:    model,
		Tracker:  detection.NewTracker(),
		Alert:    &mockAlert{},
		Settings: &threshold{v: 0.5},
		OnObservation: func(Observation) {
			cancel()
			close(done)
		},
		OnError: func(error) {
			mu.Lock()
			failures++
			mu.Unlock()
		},
	}, 500, -1)

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never produced an observation")
	}
	if err := <-errc; err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if failures != 2 {
		t.Errorf("failures = %d, want 2", failures)
	}
}
