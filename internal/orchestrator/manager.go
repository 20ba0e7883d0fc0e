package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/monkey-alert/internal/alert"
	"github.com/GriffinCanCode/monkey-alert/internal/camera"
	"github.com/GriffinCanCode/monkey-alert/internal/classifier"
	"github.com/GriffinCanCode/monkey-alert/internal/clock"
	"github.com/GriffinCanCode/monkey-alert/internal/config"
	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
	"github.com/GriffinCanCode/monkey-alert/internal/metrics"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator/capture"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator/detection"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator/history"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator/notify"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator/pulse"
	"github.com/GriffinCanCode/monkey-alert/internal/resilience"
	"github.com/GriffinCanCode/monkey-alert/internal/settings"
	"github.com/GriffinCanCode/monkey-alert/internal/trace"
)

// State of a session.
type State int

const (
	Idle State = iota
	Starting
	Active
	Stopping
)

func (s State) String() string {
	return [...]string{"idle", "starting", "active", "stopping"}[s]
}

// Alert is the tone controller the manager drives.
type Alert interface {
	Start() error
	Stop()
	SetFrequency(hz float64)
	SetVolume(v float64)
	SetMuted(m bool)
	IsPlaying() bool
}

// AudioOutput is resumed at session start so the first tone starts quickly.
type AudioOutput interface {
	Resume() error
}

// CameraFactory builds a camera producing frames of the given size.
type CameraFactory func(size camera.Size) camera.Camera

// Deps are the collaborators of a Manager. Audio, Notifier, Metrics and Clock
// may be nil.
type Deps struct {
	Config    *config.Config
	Loader    classifier.Loader
	NewCamera CameraFactory
	Alert     Alert
	Audio     AudioOutput
	Settings  *settings.Store
	Notifier  *notify.Notifier
	Metrics   *metrics.Metrics
	Clock     clock.Clock
	Retry     *resilience.RetryConfig
}

// Status is a snapshot for the status display.
type Status struct {
	State          string            `json:"state"`
	SessionID      string            `json:"session_id,omitempty"`
	IsRunning      bool              `json:"is_running"`
	IsPlaying      bool              `json:"is_playing"`
	CurrentVerdict string            `json:"current_verdict"`
	Monkey         float64           `json:"monkey"`
	NotMonkey      float64           `json:"not_monkey"`
	MonkeyText     string            `json:"monkey_text"`
	NotMonkeyText  string            `json:"not_monkey_text"`
	Message        string            `json:"message"`
	Pulse          bool              `json:"pulse"`
	Settings       settings.Settings `json:"settings"`
	CameraSize     camera.Size       `json:"camera_size"`
}

// Manager owns one detection session at a time.
type Manager struct {
	cfg       *config.Config
	loader    classifier.Loader
	newCamera CameraFactory
	alert     Alert
	audio     AudioOutput
	settings  *settings.Store
	notifier  *notify.Notifier
	metrics   *metrics.Metrics
	retry     resilience.RetryConfig

	tracker *detection.Tracker
	pulse   *pulse.Pulse
	history *history.Store

	// settingsMu keeps the store and the alert controller in the same order
	// of updates.
	settingsMu sync.Mutex

	mu        sync.Mutex
	state     State
	sessionID string
	model     classifier.Model
	cam       camera.Camera
	size      camera.Size
	cancel    context.CancelFunc
	done      chan struct{}
	last      capture.Observation
	observed  bool
	message   string
	lastErr   apperrors.Code
}

// New creates an idle manager.
func New(d Deps) *Manager {
	m := &Manager{
		cfg:       d.Config,
		loader:    d.Loader,
		newCamera: d.NewCamera,
		alert:     d.Alert,
		audio:     d.Audio,
		settings:  d.Settings,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		retry:     resilience.ModelLoadRetryConfig(),
		tracker:   detection.NewTracker(),
		history:   history.NewStore(HistoryMaxEntries, HistoryEventBuffer),
		message:   MessageStopped,
		lastErr:   apperrors.CodeUnknown,
	}
	if d.Retry != nil {
		m.retry = *d.Retry
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	m.pulse = pulse.New(d.Clock, d.Config.PulseDuration, func(active bool) {
		m.history.Emit(history.Event{Kind: history.KindObservation, SessionID: m.SessionID(), Data: map[string]any{"pulse": active}})
	})
	return m
}

// Start acquires the model and the camera and starts the capture loop.
// On any acquisition failure everything acquired is released and the
// session stays Idle.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Idle {
		st := m.state
		m.mu.Unlock()
		return apperrors.Newf(apperrors.CodeSessionActive, "session is %s", st)
	}
	m.state = Starting
	m.message = MessageStarting
	m.mu.Unlock()

	id := uuid.NewString()
	ctx = trace.WithSession(ctx, id)
	ctx, span := trace.StartSpan(ctx, "session_start")
	defer span.End()
	log := trace.Logger(ctx)

	if m.audio != nil {
		if err := m.audio.Resume(); err != nil {
			log.Warn("audio output unavailable, alert will retry on first detection", "error", err)
		}
	}

	model, err := m.loadModel(ctx)
	if err != nil {
		span.Fail(err)
		return m.failStart(ctx, err)
	}

	size := camera.Fit(m.cfg.ContainerWidth, m.cfg.ContainerHeight)
	cam := m.newCamera(size)
	if err := cam.Setup(ctx); err != nil {
		m.release(ctx, cam, model)
		span.Fail(err)
		return m.failStart(ctx, asCode(err, apperrors.CodeCameraUnavailable, "camera setup"))
	}
	if err := cam.Play(); err != nil {
		m.release(ctx, cam, model)
		span.Fail(err)
		return m.failStart(ctx, asCode(err, apperrors.CodeCameraUnavailable, "camera play"))
	}

	// the loop outlives the request but keeps its trace and session values
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	loop := capture.New(capture.Deps{
		Camera:        cam,
		Model:         model,
		Tracker:       m.tracker,
		Alert:         m.alert,
		Pulse:         m.pulse,
		Settings:      m.settings,
		OnObservation: m.observe(loopCtx, id),
		OnError:       m.frameError(loopCtx, id),
	}, m.cfg.FrameRate, m.cfg.FrameDedupDistance)

	m.mu.Lock()
	m.state = Active
	m.sessionID = id
	m.model = model
	m.cam = cam
	m.size = size
	m.cancel = cancel
	m.done = done
	m.observed = false
	m.message = MessageWaiting
	m.lastErr = apperrors.CodeUnknown
	m.mu.Unlock()

	go func() {
		defer close(done)
		_ = loop.Run(loopCtx)
	}()

	m.metrics.SessionStarts.Add(1)
	metrics.SetBool(&m.metrics.SessionActive, true)
	m.history.Record(history.Event{
		Kind:      history.KindSession,
		SessionID: id,
		Message:   "started",
		Data:      map[string]any{"width": size.Width, "height": size.Height, "classes": model.TotalClasses()},
	})
	log.Info("session started", "width", size.Width, "height", size.Height, "labels", model.Labels())
	return nil
}

func (m *Manager) loadModel(ctx context.Context) (classifier.Model, error) {
	modelURL, metadataURL := m.cfg.ModelURLs()

	cfg := m.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		m.history.Emit(history.Event{
			Kind:      history.KindSession,
			SessionID: trace.SessionID(ctx),
			Message:   "retrying model load",
			Data:      map[string]any{"attempt": attempt, "delay_ms": delay.Milliseconds(), "error": err.Error()},
		})
		trace.Logger(ctx).Warn("model load failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	model, err := resilience.Retry(ctx, cfg, func(ctx context.Context) (classifier.Model, error) {
		return m.loader.Load(ctx, modelURL, metadataURL)
	})
	if err != nil {
		return nil, asCode(err, apperrors.CodeModelLoadFailed, "load model").WithMetadata("url", modelURL)
	}
	if n := model.TotalClasses(); n < 2 {
		m.unload(ctx, model)
		return nil, apperrors.Newf(apperrors.CodeModelLoadFailed, "model has %d classes, need at least 2", n).WithMetadata("url", modelURL)
	}
	return model, nil
}

// asCode keeps err's code when it already names an acquisition failure and
// wraps it as code otherwise.
func asCode(err error, code apperrors.Code, msg string) *apperrors.AppError {
	var ae *apperrors.AppError
	if errors.As(err, &ae) && ae.Code == code {
		return ae
	}
	return apperrors.Wrap(err, code, msg)
}

func (m *Manager) failStart(ctx context.Context, err error) error {
	code := apperrors.CodeOf(err)
	m.mu.Lock()
	m.state = Idle
	m.message = MessageStopped
	m.mu.Unlock()

	m.metrics.AcquisitionFailures.Add(1)
	m.history.Record(history.Event{
		Kind:      history.KindError,
		SessionID: trace.SessionID(ctx),
		Message:   err.Error(),
		Data:      map[string]any{"code": code.String()},
	})
	trace.Logger(ctx).Error("session start failed", "code", code.String(), "error", err)
	return err
}

func (m *Manager) release(ctx context.Context, cam camera.Camera, model classifier.Model) {
	if cam != nil {
		if err := cam.Stop(); err != nil {
			trace.Logger(ctx).Warn("camera release failed", "error", err)
		}
	}
	if model != nil {
		m.unload(ctx, model)
	}
}

func (m *Manager) unload(ctx context.Context, model classifier.Model) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), UnloadTimeout)
	defer cancel()
	if err := model.Unload(ctx); err != nil {
		trace.Logger(ctx).Warn("model unload failed", "error", err)
	}
}

// Stop ends the session. It is a no-op unless Active.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Active {
		m.mu.Unlock()
		return nil
	}
	m.state = Stopping
	id, cancel, done, cam, model := m.sessionID, m.cancel, m.done, m.cam, m.model
	m.mu.Unlock()

	ctx = trace.WithSession(ctx, id)
	log := trace.Logger(ctx)

	cancel()
	<-done

	var err error
	if cerr := cam.Stop(); cerr != nil {
		err = apperrors.Wrap(cerr, apperrors.CodeCameraUnavailable, "camera release")
		log.Warn("camera release failed", "error", cerr)
	}
	m.alert.Stop()
	m.tracker.Reset()
	m.pulse.Clear()
	m.unload(ctx, model)

	m.mu.Lock()
	m.state = Idle
	m.sessionID = ""
	m.model = nil
	m.cam = nil
	m.cancel = nil
	m.done = nil
	m.last = capture.Observation{}
	m.observed = false
	m.message = MessageStopped
	m.mu.Unlock()

	metrics.SetBool(&m.metrics.SessionActive, false)
	m.metrics.SetProbability(0)
	m.history.Record(history.Event{Kind: history.KindSession, SessionID: id, Message: "stopped"})
	log.Info("session stopped")
	return err
}

func (m *Manager) observe(ctx context.Context, id string) func(capture.Observation) {
	return func(o capture.Observation) {
		msg := MessageNoMonkey
		if o.Verdict == detection.Monkey {
			msg = MessageMonkey
		}

		m.mu.Lock()
		if m.sessionID != id {
			m.mu.Unlock()
			return
		}
		m.last = o
		m.observed = true
		m.message = msg
		m.lastErr = apperrors.CodeUnknown
		m.mu.Unlock()

		if o.Reused {
			m.metrics.FramesReused.Add(1)
		} else {
			m.metrics.FramesClassified.Add(1)
		}
		m.metrics.SetProbability(o.Monkey)

		data := map[string]any{
			"monkey":     o.Monkey,
			"not_monkey": o.NotMonkey,
			"verdict":    o.Verdict.String(),
		}
		m.history.Emit(history.Event{Kind: history.KindObservation, SessionID: id, Time: o.Time, Message: msg, Data: data})

		if !o.Transitioned {
			return
		}
		m.metrics.Transitions.Add(1)
		m.history.Record(history.Event{Kind: history.KindTransition, SessionID: id, Time: o.Time, Message: msg, Data: data})
		trace.Logger(ctx).Info("verdict changed", "verdict", o.Verdict.String(), "monkey", classifier.FormatProbability(o.Monkey))

		if o.Verdict == detection.Monkey {
			m.metrics.MonkeyDetected.Add(1)
			if m.notifier != nil {
				m.notifier.MonkeyDetected(classifier.FormatProbability(o.Monkey))
			}
		}
	}
}

// frameError counts a skipped frame and reports each new kind of failure once.
func (m *Manager) frameError(ctx context.Context, id string) func(error) {
	return func(err error) {
		m.metrics.FrameErrors.Add(1)
		code := apperrors.CodeOf(err)

		m.mu.Lock()
		repeated := m.lastErr == code
		m.lastErr = code
		m.mu.Unlock()

		if repeated {
			trace.Logger(ctx).Debug("frame skipped", "error", err)
			return
		}
		trace.Logger(ctx).Warn("frame skipped", "code", code.String(), "error", err)
		m.history.Emit(history.Event{Kind: history.KindError, SessionID: id, Message: err.Error(), Data: map[string]any{"code": code.String()}})
	}
}

// AlertChanged records a tone state change. It is wired as the alert
// controller's state hook.
func (m *Manager) AlertChanged(s alert.State) {
	metrics.SetBool(&m.metrics.AlertPlaying, s == alert.Playing)
	if s == alert.Playing {
		m.metrics.AlertStarts.Add(1)
	}
	m.history.Record(history.Event{Kind: history.KindAlert, SessionID: m.SessionID(), Message: s.String()})
}

// UpdateSettings validates and stores p, then pushes the audio fields to the
// alert controller. Invalid patches change nothing.
func (m *Manager) UpdateSettings(ctx context.Context, p settings.Patch) (settings.Settings, error) {
	if p.Empty() {
		return m.settings.Get(), apperrors.New(apperrors.CodeInvalidArgument, "no settings given")
	}
	m.settingsMu.Lock()
	s, err := m.settings.Apply(p)
	if err != nil {
		m.settingsMu.Unlock()
		return s, err
	}
	if p.Frequency != nil {
		m.alert.SetFrequency(s.Frequency)
	}
	if p.Volume != nil {
		m.alert.SetVolume(s.Volume)
	}
	if p.Muted != nil {
		m.alert.SetMuted(s.Muted)
	}
	m.settingsMu.Unlock()

	m.history.Record(history.Event{Kind: history.KindSettings, SessionID: m.SessionID(), Message: s.String()})
	trace.Logger(ctx).Info("settings updated", "settings", s.String())
	return s, nil
}

func (m *Manager) SetThreshold(ctx context.Context, t float64) error {
	_, err := m.UpdateSettings(ctx, settings.Patch{Threshold: &t})
	return err
}

func (m *Manager) SetFrequency(ctx context.Context, hz float64) error {
	_, err := m.UpdateSettings(ctx, settings.Patch{Frequency: &hz})
	return err
}

func (m *Manager) SetVolume(ctx context.Context, v float64) error {
	_, err := m.UpdateSettings(ctx, settings.Patch{Volume: &v})
	return err
}

func (m *Manager) SetMuted(ctx context.Context, muted bool) error {
	_, err := m.UpdateSettings(ctx, settings.Patch{Muted: &muted})
	return err
}

// Status returns the current display state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		State:          m.state.String(),
		SessionID:      m.sessionID,
		IsRunning:      m.state == Active,
		CurrentVerdict: m.tracker.Last().String(),
		Monkey:         m.last.Monkey,
		NotMonkey:      m.last.NotMonkey,
		Message:        m.message,
		CameraSize:     m.size,
	}
	observed := m.observed
	m.mu.Unlock()

	if observed {
		st.MonkeyText = classifier.FormatProbability(st.Monkey)
		st.NotMonkeyText = classifier.FormatProbability(st.NotMonkey)
	} else {
		st.MonkeyText, st.NotMonkeyText = "0%", "0%"
	}
	st.IsPlaying = m.alert.IsPlaying()
	st.Pulse = m.pulse.Active()
	st.Settings = m.settings.Get()
	return st
}

// SessionID returns the id of the running session, or "".
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// State returns the session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsRunning reports whether a session is Active.
func (m *Manager) IsRunning() bool {
	return m.State() == Active
}

// Events returns the event channel for the status display.
func (m *Manager) Events() <-chan history.Event {
	return m.history.Events()
}

// History returns logged events from the last n seconds.
func (m *Manager) History(seconds int) []history.Event {
	return m.history.Recent(seconds)
}
