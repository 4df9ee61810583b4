// Package hostaudio bridges the browser host's audio endpoints over the bus
// to the engine's capture and playback boundaries. The host owns the actual
// devices; this side only negotiates, frames and schedules.
package hostaudio

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/canvaslabs/canvas-voice/internal/audio"
	"github.com/canvaslabs/canvas-voice/internal/protocol"
	"github.com/nats-io/nats.go"
)

// busConn is the slice of *nats.Conn this package needs.
type busConn interface {
	Publish(subject string, data []byte) error
	Request(subject string, data []byte, timeout time.Duration) (*nats.Msg, error)
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

const openTimeout = 5 * time.Second

// CaptureDevice opens microphone streams on the host via request-reply.
type CaptureDevice struct {
	conn busConn
	log  *slog.Logger
}

func NewCaptureDevice(conn busConn, log *slog.Logger) *CaptureDevice {
	return &CaptureDevice{
		conn: conn,
		log:  log.With(slog.String("component", "host-capture")),
	}
}

// Open negotiates capture with the host. The host's reply carries the rate
// its device actually runs at; an "unsupported_constraints" error maps to the
// sentinel so the caller can retry bare.
func (d *CaptureDevice) Open(constraints audio.CaptureConstraints) (audio.CaptureSource, error) {
	req, err := json.Marshal(protocol.CaptureOpenRequest{
		EchoCancellation: constraints.EchoCancellation,
		NoiseSuppression: constraints.NoiseSuppression,
		AutoGainControl:  constraints.AutoGainControl,
	})
	if err != nil {
		return nil, err
	}
	msg, err := d.conn.Request(protocol.SubjectAudioOpen, req, openTimeout)
	if err != nil {
		return nil, fmt.Errorf("capture negotiation: %w", err)
	}

	var reply protocol.CaptureOpenReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode capture reply: %w", err)
	}
	if !reply.OK {
		if reply.Error == "unsupported_constraints" {
			return nil, audio.ErrConstraintsUnsupported
		}
		return nil, fmt.Errorf("host rejected capture: %s", reply.Error)
	}
	if reply.SampleRate <= 0 {
		return nil, fmt.Errorf("host reported invalid sample rate %d", reply.SampleRate)
	}

	return &captureSource{conn: d.conn, log: d.log, rate: reply.SampleRate}, nil
}

type captureSource struct {
	conn busConn
	log  *slog.Logger
	rate int

	mu      sync.Mutex
	sub     *nats.Subscription
	stopped bool
}

func (s *captureSource) Start(onChunk func(samples []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("capture source already stopped")
	}
	if s.sub != nil {
		return fmt.Errorf("capture source already started")
	}

	sub, err := s.conn.Subscribe(protocol.SubjectAudioInput, func(msg *nats.Msg) {
		var frame protocol.AudioInputFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			s.log.Warn("dropped malformed input frame", slogError(err))
			return
		}
		raw, err := base64.StdEncoding.DecodeString(frame.Data)
		if err != nil {
			s.log.Warn("dropped undecodable input frame", slogError(err))
			return
		}
		onChunk(audio.DecodePCM16(raw))
	})
	if err != nil {
		return fmt.Errorf("subscribe capture stream: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *captureSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		_ = sub.Drain()
	}
	if err := s.conn.Publish(protocol.SubjectAudioClose, nil); err != nil {
		s.log.Warn("failed to release host capture", slogError(err))
	}
}

func (s *captureSource) SampleRate() int { return s.rate }

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
