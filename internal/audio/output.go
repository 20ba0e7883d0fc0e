// Package audio plays alert tones on the default output device.
package audio

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/GriffinCanCode/monkey-alert/internal/alert"
)

// Output opens one PortAudio stream per tone. PortAudio is initialized on
// the first Resume and terminated by Close.
type Output struct {
	sampleRate   float64
	framesPerBuf int

	mu          sync.Mutex
	initialized bool
}

// NewOutput creates an output; no device is touched until Resume.
func NewOutput(sampleRate int) *Output {
	return &Output{
		sampleRate:   float64(sampleRate),
		framesPerBuf: FramesPerBuffer,
	}
}

// Resume initializes PortAudio if needed.
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	o.initialized = true
	slog.Info("audio output ready", "sample_rate", o.sampleRate)
	return nil
}

// NewTone starts a mono sine stream on the default output device.
func (o *Output) NewTone(frequency, gain float64) (alert.Tone, error) {
	o.mu.Lock()
	ready := o.initialized
	o.mu.Unlock()
	if !ready {
		return nil, errors.New("audio output not resumed")
	}

	osc := NewOscillator(o.sampleRate, frequency, gain)
	stream, err := portaudio.OpenDefaultStream(0, 1, o.sampleRate, o.framesPerBuf, osc.Fill)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, err
	}
	return &Tone{Oscillator: osc, stream: stream}, nil
}

// Close releases PortAudio.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return nil
	}
	o.initialized = false
	return portaudio.Terminate()
}

// Tone is a running output stream fed by an Oscillator.
type Tone struct {
	*Oscillator
	stream   *portaudio.Stream
	stopOnce sync.Once
	stopErr  error
}

// Stop halts and closes the stream. Later calls return the first result.
func (t *Tone) Stop() error {
	t.stopOnce.Do(func() {
		t.stopErr = errors.Join(t.stream.Stop(), t.stream.Close())
	})
	return t.stopErr
}
