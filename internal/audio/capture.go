package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// CaptureConstraints mirror the enhanced device options requested on first
// attempt. Devices that reject them are retried with the bare fallback.
type CaptureConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// ErrConstraintsUnsupported is returned by a device that cannot satisfy the
// requested enhanced constraints. Any other error is terminal.
var ErrConstraintsUnsupported = errors.New("capture constraints unsupported")

// CaptureDevice abstracts the microphone. Open negotiates constraints and the
// actual hardware sample rate; the returned source reports the negotiated
// rate, never a nominal one.
type CaptureDevice interface {
	Open(constraints CaptureConstraints) (CaptureSource, error)
}

// CaptureSource is a live microphone stream delivering fixed-size sample
// chunks to a callback. Stop releases the underlying track; a stopped source
// must not fire the callback again.
type CaptureSource interface {
	Start(onChunk func(samples []float32)) error
	Stop()
	SampleRate() int
}

// AcquireCapture opens the device with enhanced constraints and falls back to
// a bare request when the device rejects them. Constraint negotiation never
// hard-fails the session on its own; only the bare retry failing is terminal.
func AcquireCapture(dev CaptureDevice, log *slog.Logger) (CaptureSource, error) {
	src, err := dev.Open(CaptureConstraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	})
	if err == nil {
		return src, nil
	}
	log.Warn("enhanced capture constraints rejected, retrying bare",
		slog.String("error", err.Error()))
	src, err = dev.Open(CaptureConstraints{})
	if err != nil {
		return nil, fmt.Errorf("open capture device: %w", err)
	}
	return src, nil
}

// MockDevice is a capture device for tests and development. It hands out
// MockSource instances fed manually via Push.
type MockDevice struct {
	Rate             int
	RejectEnhanced   bool
	FailAll          bool
	mu               sync.Mutex
	opened           []*MockSource
	lastConstraints  CaptureConstraints
	openAttemptCount int
}

func (d *MockDevice) Open(constraints CaptureConstraints) (CaptureSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openAttemptCount++
	d.lastConstraints = constraints
	if d.FailAll {
		return nil, errors.New("permission denied")
	}
	if d.RejectEnhanced && constraints != (CaptureConstraints{}) {
		return nil, ErrConstraintsUnsupported
	}
	rate := d.Rate
	if rate == 0 {
		rate = 48000
	}
	src := &MockSource{rate: rate}
	d.opened = append(d.opened, src)
	return src, nil
}

// OpenAttempts reports how many Open calls the device saw.
func (d *MockDevice) OpenAttempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openAttemptCount
}

// Last returns the most recently opened source, or nil.
func (d *MockDevice) Last() *MockSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.opened) == 0 {
		return nil
	}
	return d.opened[len(d.opened)-1]
}

// MockSource implements CaptureSource with manual chunk injection.
type MockSource struct {
	rate    int
	mu      sync.Mutex
	onChunk func([]float32)
	stopped bool
}

func (s *MockSource) Start(onChunk func(samples []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("capture source already stopped")
	}
	s.onChunk = onChunk
	return nil
}

func (s *MockSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.onChunk = nil
	s.mu.Unlock()
}

func (s *MockSource) SampleRate() int { return s.rate }

// Stopped reports whether Stop has been called.
func (s *MockSource) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Push delivers one chunk to the registered callback, mimicking a periodic
// audio-processing callback. No-op after Stop.
func (s *MockSource) Push(samples []float32) {
	s.mu.Lock()
	cb := s.onChunk
	s.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}
