package hostaudio

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/canvaslabs/canvas-voice/internal/audio"
	"github.com/canvaslabs/canvas-voice/internal/protocol"
)

// PlaybackSink ships scheduled fragments to the host's output device.
// Fragment completion is tracked locally with a timer: the host renders, this
// side keeps the bookkeeping the scheduler needs.
type PlaybackSink struct {
	conn     busConn
	log      *slog.Logger
	channels int

	mu     sync.Mutex
	nextID int64
}

func NewPlaybackSink(conn busConn, channels int, log *slog.Logger) *PlaybackSink {
	if channels <= 0 {
		channels = 1
	}
	return &PlaybackSink{
		conn:     conn,
		log:      log.With(slog.String("component", "host-playback")),
		channels: channels,
	}
}

func (p *PlaybackSink) Play(samples []float32, sampleRate int, delay time.Duration, done func()) (func(), error) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.mu.Unlock()

	chunk := audio.EncodeCaptureChunk(samples, sampleRate)
	frame := protocol.AudioOutputFrame{
		ID:      id,
		Rate:    sampleRate,
		DelayMS: delay.Milliseconds(),
		Data:    chunk.Payload,
	}
	if err := p.publish(frame); err != nil {
		return nil, err
	}

	var once sync.Once
	finish := func() { once.Do(done) }
	timer := time.AfterFunc(delay+audio.Duration(len(samples), sampleRate, p.channels), finish)

	stop := func() {
		timer.Stop()
		if err := p.publish(protocol.AudioOutputFrame{ID: id, Stop: true}); err != nil {
			p.log.Warn("failed to publish stop frame", slogError(err))
		}
		finish()
	}
	return stop, nil
}

func (p *PlaybackSink) Pause() {
	if err := p.publish(protocol.AudioOutputFrame{Control: "pause"}); err != nil {
		p.log.Warn("failed to publish pause", slogError(err))
	}
}

func (p *PlaybackSink) Resume() {
	if err := p.publish(protocol.AudioOutputFrame{Control: "resume"}); err != nil {
		p.log.Warn("failed to publish resume", slogError(err))
	}
}

func (p *PlaybackSink) publish(frame protocol.AudioOutputFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return p.conn.Publish(protocol.SubjectAudioOutput, data)
}
