// monkey-alert server: watches the webcam, classifies frames on the inference
// server and sounds a tone while a monkey is in view.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/monkey-alert/internal/alert"
	"github.com/GriffinCanCode/monkey-alert/internal/audio"
	"github.com/GriffinCanCode/monkey-alert/internal/camera"
	"github.com/GriffinCanCode/monkey-alert/internal/classifier"
	"github.com/GriffinCanCode/monkey-alert/internal/config"
	"github.com/GriffinCanCode/monkey-alert/internal/metrics"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator/notify"
	"github.com/GriffinCanCode/monkey-alert/internal/resilience"
	"github.com/GriffinCanCode/monkey-alert/internal/server"
	"github.com/GriffinCanCode/monkey-alert/internal/settings"
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	m := metrics.New()

	breaker := resilience.New(resilience.PredictConfig()).WithHook(func(from, to resilience.State) {
		m.BreakerState.Store(uint64(to))
		slog.Warn("classifier breaker state changed", "from", from.String(), "to", to.String())
	})
	cls, err := classifier.New(cfg.ClassifierAddr, classifier.DialOptions(),
		classifier.WithBreaker(breaker),
		classifier.WithPredictTimeout(cfg.PredictTimeout),
	)
	if err != nil {
		slog.Error("failed to create classifier client", "addr", cfg.ClassifierAddr, "error", err)
		os.Exit(1)
	}
	defer func() { _ = cls.Close() }()

	out := audio.NewOutput(cfg.SampleRate)
	defer func() { _ = out.Close() }()

	var mgr *orchestrator.Manager
	tone := alert.New(out, cfg.AlertFrequency, cfg.AlertVolume,
		alert.WithFade(cfg.FadeDuration),
		alert.WithMuted(!cfg.SoundEnabled),
		alert.WithStateHook(func(s alert.State) {
			if mgr != nil {
				mgr.AlertChanged(s)
			}
		}),
	)

	mgr = orchestrator.New(orchestrator.Deps{
		Config: cfg,
		Loader: cls,
		NewCamera: func(size camera.Size) camera.Camera {
			return camera.New(camera.Options{
				Path:      cfg.FFmpegPath,
				Device:    cfg.CameraDevice,
				Size:      size,
				Flip:      cfg.CameraFlip,
				FrameRate: cfg.FrameRate,
			})
		},
		Alert: tone,
		Audio: out,
		Settings: settings.NewStore(settings.Settings{
			Threshold: cfg.DetectionThreshold,
			Frequency: cfg.AlertFrequency,
			Volume:    cfg.AlertVolume,
			Muted:     !cfg.SoundEnabled,
		}),
		Notifier: notify.New(nil, cfg.NotifyCooldown, cfg.NotifyEnabled),
		Metrics:  m,
	})

	srv := server.New(mgr, m)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("monkey-alert server starting", "http", cfg.HTTPAddr, "classifier", cfg.ClassifierAddr, "model", cfg.ModelURL)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := mgr.Stop(shutdownCtx); err != nil {
			slog.Warn("session stop error", "error", err)
		}
		tone.Halt()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
