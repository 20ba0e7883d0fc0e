// Package camera captures webcam frames through an ffmpeg child process.
package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
)

// Camera is a frame source. Update refreshes the frame returned by Frame.
type Camera interface {
	Setup(ctx context.Context) error
	Play() error
	Update(ctx context.Context) error
	Frame() image.Image
	Stop() error
}

// Options configures an FFmpeg camera.
type Options struct {
	Path      string  // ffmpeg binary
	Device    string  // empty selects the platform default
	Size      Size    // output size
	Flip      bool    // mirror horizontally
	FrameRate float64 // requested input rate
}

// FFmpeg runs ffmpeg with a platform input backend and reads MJPEG from its
// stdout. Only the most recent frame is kept.
type FFmpeg struct {
	opts Options

	mu       sync.Mutex
	cmd      *exec.Cmd
	stderr   *tailBuffer
	done     chan struct{}
	first    chan struct{}
	latest   []byte
	seq      uint64
	readErr  error
	playing  bool
	frame    image.Image
	frameSeq uint64
}

// New creates a camera; nothing runs until Setup.
func New(opts Options) *FFmpeg {
	if opts.Path == "" {
		opts.Path = "ffmpeg"
	}
	if opts.Device == "" {
		opts.Device = defaultDevice
	}
	return &FFmpeg{opts: opts}
}

// Args returns the ffmpeg arguments for opts on this platform.
func Args(opts Options) ([]string, error) {
	in, err := inputArgs(opts.Device, opts.FrameRate)
	if err != nil {
		return nil, err
	}
	if opts.Size.Width <= 0 || opts.Size.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", opts.Size.Width, opts.Size.Height)
	}

	filter := "scale=" + strconv.Itoa(opts.Size.Width) + ":" + strconv.Itoa(opts.Size.Height)
	if opts.Flip {
		filter += ",hflip"
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, in...)
	args = append(args,
		"-vf", filter,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", strconv.Itoa(MJPEGQuality),
		"-",
	)
	return args, nil
}

// Setup starts ffmpeg and waits for the first frame.
func (c *FFmpeg) Setup(ctx context.Context) error {
	args, err := Args(c.opts)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeCameraUnavailable, "camera arguments").WithMetadata("device", c.opts.Device)
	}

	c.mu.Lock()
	if c.cmd != nil {
		c.mu.Unlock()
		return nil
	}
	cmd := exec.Command(c.opts.Path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return apperrors.Wrap(err, apperrors.CodeCameraUnavailable, "camera pipe")
	}
	c.stderr = &tailBuffer{max: 4096}
	cmd.Stderr = c.stderr
	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return apperrors.Wrap(err, apperrors.CodeCameraUnavailable, "start ffmpeg").WithMetadata("path", c.opts.Path)
	}
	c.cmd = cmd
	c.done = make(chan struct{})
	c.first = make(chan struct{})
	c.latest, c.seq, c.readErr = nil, 0, nil
	first, done := c.first, c.done
	c.mu.Unlock()

	slog.Info("camera starting", "device", c.opts.Device, "width", c.opts.Size.Width, "height", c.opts.Size.Height, "flip", c.opts.Flip)
	go func() {
		defer close(done)
		c.consume(stdout)
		_ = cmd.Wait()
	}()

	timer := time.NewTimer(SetupTimeout)
	defer timer.Stop()

	select {
	case <-first:
		return nil
	case <-done:
		err = fmt.Errorf("ffmpeg exited: %s", c.stderr.String())
	case <-timer.C:
		err = errors.New("no frame within setup timeout")
	case <-ctx.Done():
		err = ctx.Err()
	}
	_ = c.Stop()
	return apperrors.Wrap(err, apperrors.CodeCameraUnavailable, "camera setup").WithMetadata("device", c.opts.Device)
}

// consume reads frames from r until it ends.
func (c *FFmpeg) consume(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256<<10), MaxFrameBytes)
	sc.Split(SplitJPEG)

	for sc.Scan() {
		frame := append([]byte(nil), sc.Bytes()...)
		c.mu.Lock()
		c.latest = frame
		c.seq++
		if c.seq == 1 && c.first != nil {
			close(c.first)
		}
		c.mu.Unlock()
	}

	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// Play starts delivering frames to Update.
func (c *FFmpeg) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == 0 {
		return apperrors.New(apperrors.CodeCameraUnavailable, "camera not set up")
	}
	c.playing = true
	return nil
}

// Update decodes the newest frame if one arrived since the last call.
func (c *FFmpeg) Update(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return apperrors.New(apperrors.CodeCameraUnavailable, "camera not playing")
	}
	if c.seq == c.frameSeq {
		readErr := c.readErr
		c.mu.Unlock()
		if readErr != nil {
			return apperrors.Wrap(readErr, apperrors.CodeCameraUnavailable, "camera stream ended")
		}
		return nil
	}
	data, seq := c.latest, c.seq
	c.mu.Unlock()

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "decode camera frame")
	}

	c.mu.Lock()
	c.frame = img
	c.frameSeq = seq
	c.mu.Unlock()
	return nil
}

// Frame returns the frame from the last successful Update.
func (c *FFmpeg) Frame() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Stop kills ffmpeg and waits for the reader to finish. It is safe to call twice.
func (c *FFmpeg) Stop() error {
	c.mu.Lock()
	cmd, done := c.cmd, c.done
	c.cmd = nil
	c.playing = false
	c.frame = nil
	c.mu.Unlock()

	if cmd == nil {
		return nil
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-done:
	case <-time.After(StopTimeout):
		return apperrors.New(apperrors.CodeCameraUnavailable, "ffmpeg did not exit")
	}
	slog.Info("camera stopped", "device", c.opts.Device)
	return nil
}

// tailBuffer keeps the last max bytes written, for error messages.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}
