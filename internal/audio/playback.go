package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PlaybackSink is the output device boundary. Play begins rendering samples
// after the given delay and must call done exactly once when the source ends
// (naturally or via the returned stop function).
type PlaybackSink interface {
	Play(samples []float32, sampleRate int, delay time.Duration, done func()) (stop func(), err error)
	Pause()
	Resume()
}

// Player schedules decoded response fragments for gapless playback. Each
// fragment starts at max(now, cursor) and advances the cursor by its
// duration, so starts are strictly non-decreasing and fragments never overlap
// even when they arrive with jitter.
type Player struct {
	sink       PlaybackSink
	sampleRate int
	channels   int
	log        *slog.Logger
	clock      func() time.Time

	mu      sync.Mutex
	cursor  time.Time
	sources map[int64]func()
	nextID  int64
	paused  bool
}

func NewPlayer(sink PlaybackSink, sampleRate, channels int, log *slog.Logger) *Player {
	if channels <= 0 {
		channels = 1
	}
	return &Player{
		sink:       sink,
		sampleRate: sampleRate,
		channels:   channels,
		log:        log.With(slog.String("component", "playback")),
		clock:      time.Now,
		sources:    make(map[int64]func()),
	}
}

// Schedule queues one decoded fragment and returns its start time. Fragments
// that fail to start are logged and dropped; a single bad fragment must not
// halt the stream.
func (p *Player) Schedule(samples []float32) time.Time {
	dur := Duration(len(samples), p.sampleRate, p.channels)

	// The fragment is tracked before the sink sees it, under the same lock
	// that advances the cursor. A Stop landing before the sink hands back
	// its stop function hits the placeholder; the swap below notices and
	// stops the fragment itself.
	var flushed atomic.Bool
	p.mu.Lock()
	now := p.clock()
	start := now
	if p.cursor.After(start) {
		start = p.cursor
	}
	p.cursor = start.Add(dur)
	id := p.nextID
	p.nextID++
	p.sources[id] = func() { flushed.Store(true) }
	p.mu.Unlock()

	stop, err := p.sink.Play(samples, p.sampleRate, start.Sub(now), func() {
		p.mu.Lock()
		delete(p.sources, id)
		p.mu.Unlock()
	})
	if err != nil {
		p.log.Warn("dropping playback fragment", slog.String("error", err.Error()))
		p.mu.Lock()
		delete(p.sources, id)
		p.mu.Unlock()
		return start
	}

	p.mu.Lock()
	_, tracked := p.sources[id]
	if tracked {
		p.sources[id] = stop
	}
	p.mu.Unlock()
	if !tracked && flushed.Load() {
		// A flush raced the handoff; the fragment is already playing.
		stop()
	}
	return start
}

// Pause suspends output without discarding queued audio.
func (p *Player) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	p.sink.Pause()
}

// Resume continues output after Pause.
func (p *Player) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	p.sink.Resume()
}

// Stop forcibly stops every tracked source, clears the set and resets the
// scheduling cursor. Interruption takes effect immediately; subsequent
// fragments schedule from now.
func (p *Player) Stop() {
	p.mu.Lock()
	stops := make([]func(), 0, len(p.sources))
	for _, stop := range p.sources {
		stops = append(stops, stop)
	}
	p.sources = make(map[int64]func())
	p.cursor = time.Time{}
	p.paused = false
	p.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// Playing reports the number of tracked sources.
func (p *Player) Playing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sources)
}

// Cursor returns the current scheduling cursor; zero after Stop or before the
// first fragment.
func (p *Player) Cursor() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// NullSink discards audio. Sources complete only through Stop; used where no
// output device is wired.
type NullSink struct{}

func (NullSink) Play(_ []float32, _ int, _ time.Duration, done func()) (func(), error) {
	var once sync.Once
	return func() { once.Do(done) }, nil
}

func (NullSink) Pause()  {}
func (NullSink) Resume() {}
