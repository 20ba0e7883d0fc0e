// Package config handles platform configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GriffinCanCode/monkey-alert/internal/settings"
)

// DefaultModelURL is the Teachable Machine export the detector was trained in.
const DefaultModelURL = "https://teachablemachine.withgoogle.com/models/9gK52-xqR/"

type Config struct {
	HTTPAddr       string `yaml:"http_addr"`
	ClassifierAddr string `yaml:"classifier_addr"`
	ModelURL       string `yaml:"model_url"`
	LogLevel       string `yaml:"log_level"`

	// Detection
	DetectionThreshold float64       `yaml:"detection_threshold"`
	FrameRate          float64       `yaml:"frame_rate"`           // Hz
	FrameDedupDistance int           `yaml:"frame_dedup_distance"` // pHash distance, <0 disables
	PredictTimeout     time.Duration `yaml:"predict_timeout"`

	// Alert
	AlertFrequency float64       `yaml:"alert_frequency"` // Hz
	AlertVolume    float64       `yaml:"alert_volume"`
	SoundEnabled   bool          `yaml:"sound_enabled"`
	FadeDuration   time.Duration `yaml:"fade_duration"`
	PulseDuration  time.Duration `yaml:"pulse_duration"`
	SampleRate     int           `yaml:"sample_rate"`

	// Camera
	CameraDevice    string `yaml:"camera_device"`
	CameraFlip      bool   `yaml:"camera_flip"`
	ContainerWidth  int    `yaml:"container_width"`
	ContainerHeight int    `yaml:"container_height"`
	FFmpegPath      string `yaml:"ffmpeg_path"`

	// Desktop notifications
	NotifyEnabled  bool    `yaml:"notify_enabled"`
	NotifyCooldown float64 `yaml:"notify_cooldown"` // seconds
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPAddr:           ":8000",
		ClassifierAddr:     "localhost:50051",
		ModelURL:           DefaultModelURL,
		LogLevel:           "info",
		DetectionThreshold: 0.5,
		FrameRate:          30,
		FrameDedupDistance: -1,
		PredictTimeout:     2 * time.Second,
		AlertFrequency:     1000,
		AlertVolume:        0.5,
		SoundEnabled:       true,
		FadeDuration:       100 * time.Millisecond,
		PulseDuration:      time.Second,
		SampleRate:         44100,
		CameraFlip:         true,
		ContainerWidth:     640,
		ContainerHeight:    480,
		FFmpegPath:         "ffmpeg",
		NotifyEnabled:      false,
		NotifyCooldown:     10.0,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment overrides, in that order.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: decode %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.ClassifierAddr = getEnv("CLASSIFIER_ADDR", c.ClassifierAddr)
	c.ModelURL = getEnv("MODEL_URL", c.ModelURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DetectionThreshold = getEnvFloat("DETECTION_THRESHOLD", c.DetectionThreshold)
	c.FrameRate = getEnvFloat("FRAME_RATE", c.FrameRate)
	c.FrameDedupDistance = getEnvInt("FRAME_DEDUP_DISTANCE", c.FrameDedupDistance)
	c.PredictTimeout = getEnvDuration("PREDICT_TIMEOUT", c.PredictTimeout)
	c.AlertFrequency = getEnvFloat("ALERT_FREQUENCY", c.AlertFrequency)
	c.AlertVolume = getEnvFloat("ALERT_VOLUME", c.AlertVolume)
	c.SoundEnabled = getEnvBool("SOUND_ENABLED", c.SoundEnabled)
	c.FadeDuration = getEnvDuration("FADE_DURATION", c.FadeDuration)
	c.PulseDuration = getEnvDuration("PULSE_DURATION", c.PulseDuration)
	c.SampleRate = getEnvInt("SAMPLE_RATE", c.SampleRate)
	c.CameraDevice = getEnv("CAMERA_DEVICE", c.CameraDevice)
	c.CameraFlip = getEnvBool("CAMERA_FLIP", c.CameraFlip)
	c.ContainerWidth = getEnvInt("CONTAINER_WIDTH", c.ContainerWidth)
	c.ContainerHeight = getEnvInt("CONTAINER_HEIGHT", c.ContainerHeight)
	c.FFmpegPath = getEnv("FFMPEG_PATH", c.FFmpegPath)
	c.NotifyEnabled = getEnvBool("NOTIFY_ENABLED", c.NotifyEnabled)
	c.NotifyCooldown = getEnvFloat("NOTIFY_COOLDOWN", c.NotifyCooldown)
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.ModelURL == "" {
		errs = append(errs, errors.New("model_url is required"))
	}
	// the initial settings must pass the same checks as later UI changes
	if err := settings.ValidateThreshold(c.DetectionThreshold); err != nil {
		errs = append(errs, fmt.Errorf("detection_threshold: %w", err))
	}
	if err := settings.ValidateVolume(c.AlertVolume); err != nil {
		errs = append(errs, fmt.Errorf("alert_volume: %w", err))
	}
	if err := settings.ValidateFrequency(c.AlertFrequency); err != nil {
		errs = append(errs, fmt.Errorf("alert_frequency: %w", err))
	}
	if c.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("frame_rate %v must be positive", c.FrameRate))
	}
	if c.FadeDuration <= 0 {
		errs = append(errs, fmt.Errorf("fade_duration %v must be positive", c.FadeDuration))
	}
	if c.PulseDuration <= 0 {
		errs = append(errs, fmt.Errorf("pulse_duration %v must be positive", c.PulseDuration))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate %d must be positive", c.SampleRate))
	}
	if c.ContainerWidth <= 0 || c.ContainerHeight <= 0 {
		errs = append(errs, fmt.Errorf("container %dx%d must be positive", c.ContainerWidth, c.ContainerHeight))
	}
	if c.NotifyCooldown < 0 {
		errs = append(errs, fmt.Errorf("notify_cooldown %v must not be negative", c.NotifyCooldown))
	}
	return errors.Join(errs...)
}

// ModelURLs returns the model and metadata locations under ModelURL.
func (c *Config) ModelURLs() (model, metadata string) {
	base := c.ModelURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "model.json", base + "metadata.json"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
