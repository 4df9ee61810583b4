package hostaudio

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/canvaslabs/canvas-voice/internal/audio"
	"github.com/canvaslabs/canvas-voice/internal/protocol"
	"github.com/nats-io/nats.go"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	subject string
	data    []byte
}

type fakeBus struct {
	mu        sync.Mutex
	published []published
	reply     protocol.CaptureOpenReply
	replyErr  error
	handlers  map[string]nats.MsgHandler
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]nats.MsgHandler)}
}

func (b *fakeBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	b.published = append(b.published, published{subject, data})
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Request(_ string, _ []byte, _ time.Duration) (*nats.Msg, error) {
	if b.replyErr != nil {
		return nil, b.replyErr
	}
	data, err := json.Marshal(b.reply)
	if err != nil {
		return nil, err
	}
	return &nats.Msg{Data: data}, nil
}

func (b *fakeBus) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	b.mu.Lock()
	b.handlers[subject] = cb
	b.mu.Unlock()
	return &nats.Subscription{}, nil
}

func (b *fakeBus) deliver(subject string, data []byte) {
	b.mu.Lock()
	cb := b.handlers[subject]
	b.mu.Unlock()
	if cb != nil {
		cb(&nats.Msg{Subject: subject, Data: data})
	}
}

func (b *fakeBus) sent(subject string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, p := range b.published {
		if p.subject == subject {
			out = append(out, p)
		}
	}
	return out
}

func TestOpenMapsUnsupportedConstraints(t *testing.T) {
	bus := newFakeBus()
	bus.reply = protocol.CaptureOpenReply{OK: false, Error: "unsupported_constraints"}
	dev := NewCaptureDevice(bus, newLogger())

	_, err := dev.Open(audio.CaptureConstraints{EchoCancellation: true})
	if !errors.Is(err, audio.ErrConstraintsUnsupported) {
		t.Fatalf("expected constraint sentinel, got %v", err)
	}
}

func TestOpenRejectsInvalidRate(t *testing.T) {
	bus := newFakeBus()
	bus.reply = protocol.CaptureOpenReply{OK: true, SampleRate: 0}
	dev := NewCaptureDevice(bus, newLogger())

	if _, err := dev.Open(audio.CaptureConstraints{}); err == nil {
		t.Fatal("expected error for invalid sample rate")
	}
}

func TestCaptureStreamDecodesFrames(t *testing.T) {
	bus := newFakeBus()
	bus.reply = protocol.CaptureOpenReply{OK: true, SampleRate: 16000}
	dev := NewCaptureDevice(bus, newLogger())

	src, err := dev.Open(audio.CaptureConstraints{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if src.SampleRate() != 16000 {
		t.Fatalf("negotiated rate = %d, want 16000", src.SampleRate())
	}

	var mu sync.Mutex
	var got []float32
	if err := src.Start(func(samples []float32) {
		mu.Lock()
		got = append(got, samples...)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	chunk := audio.EncodeCaptureChunk([]float32{0.5, -0.5}, 16000)
	frame, _ := json.Marshal(protocol.AudioInputFrame{Rate: 16000, Data: chunk.Payload})
	bus.deliver(protocol.SubjectAudioInput, frame)
	bus.deliver(protocol.SubjectAudioInput, []byte("not json"))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 samples from the valid frame, got %d", len(got))
	}
	if got[0] < 0.49 || got[0] > 0.51 {
		t.Fatalf("sample 0 decoded to %f", got[0])
	}
}

func TestCaptureStopReleasesHostDevice(t *testing.T) {
	bus := newFakeBus()
	bus.reply = protocol.CaptureOpenReply{OK: true, SampleRate: 48000}
	dev := NewCaptureDevice(bus, newLogger())

	src, err := dev.Open(audio.CaptureConstraints{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	src.Stop()
	src.Stop()

	if got := bus.sent(protocol.SubjectAudioClose); len(got) != 1 {
		t.Fatalf("expected exactly one close publish, got %d", len(got))
	}
	if err := src.Start(func([]float32) {}); err == nil {
		t.Fatal("start after stop must fail")
	}
}

func TestPlaybackPublishesFrameAndCompletes(t *testing.T) {
	bus := newFakeBus()
	sink := NewPlaybackSink(bus, 1, newLogger())

	var mu sync.Mutex
	doneCount := 0
	done := func() {
		mu.Lock()
		doneCount++
		mu.Unlock()
	}

	// 24 samples at 24kHz is a 1ms fragment.
	samples := make([]float32, 24)
	if _, err := sink.Play(samples, 24000, 0, done); err != nil {
		t.Fatalf("play: %v", err)
	}

	frames := bus.sent(protocol.SubjectAudioOutput)
	if len(frames) != 1 {
		t.Fatalf("expected 1 output frame, got %d", len(frames))
	}
	var frame protocol.AudioOutputFrame
	if err := json.Unmarshal(frames[0].data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Rate != 24000 || frame.Data == "" || frame.Stop {
		t.Fatalf("unexpected frame %+v", frame)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := doneCount
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("done callback never fired")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPlaybackStopCancelsAndFiresDoneOnce(t *testing.T) {
	bus := newFakeBus()
	sink := NewPlaybackSink(bus, 1, newLogger())

	var mu sync.Mutex
	doneCount := 0
	stop, err := sink.Play(make([]float32, 48000), 24000, time.Second, func() {
		mu.Lock()
		doneCount++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}

	stop()
	stop()
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	if doneCount != 1 {
		t.Fatalf("done fired %d times, want once", doneCount)
	}
	mu.Unlock()

	frames := bus.sent(protocol.SubjectAudioOutput)
	var stops int
	for _, f := range frames {
		var frame protocol.AudioOutputFrame
		if err := json.Unmarshal(f.data, &frame); err == nil && frame.Stop {
			stops++
		}
	}
	if stops != 2 {
		t.Fatalf("expected stop frames for both stop calls, got %d", stops)
	}
}
