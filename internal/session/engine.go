// Package session hosts the voice session engine: the realtime connection to
// the cloud model, the audio pipelines, tool-call execution and the
// conversational state machine.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/canvaslabs/canvas-voice/internal/audio"
	"github.com/canvaslabs/canvas-voice/internal/command"
	"github.com/canvaslabs/canvas-voice/internal/config"
	"github.com/canvaslabs/canvas-voice/internal/eventstore"
	"github.com/canvaslabs/canvas-voice/internal/live"
	"github.com/canvaslabs/canvas-voice/internal/protocol"
	"github.com/canvaslabs/canvas-voice/internal/report"
	"github.com/canvaslabs/canvas-voice/internal/tools"
	"github.com/canvaslabs/canvas-voice/internal/viewport"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// State is the externally visible engine state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateError      State = "error"
)

// Deps bundles the engine's collaborators. Store may be nil, in which case no
// timeline is recorded.
type Deps struct {
	Dialer   live.Dialer
	Capture  audio.CaptureDevice
	Playback audio.PlaybackSink
	Commands command.Sink
	Registry *viewport.Registry
	Store    *eventstore.Store
}

// Engine drives one voice session at a time. All methods are safe for
// concurrent use; Start from a non-idle state is a no-op or an error, never a
// second session.
type Engine struct {
	cfg        config.AssistantConfig
	dialer     live.Dialer
	device     audio.CaptureDevice
	sink       audio.PlaybackSink
	commands   command.Sink
	registry   *viewport.Registry
	store      *eventstore.Store
	dispatcher *tools.Dispatcher
	log        *slog.Logger
	clock      func() time.Time
	frames     metric.Int64Counter

	mu        sync.Mutex
	state     State
	lastErr   string
	executing bool
	sess      *session
	stops     uint64 // bumped by Stop; lets an in-flight Start see a cancellation

	host      protocol.HostState
	hostSet   bool
	lastBatch int

	statusFns []func(protocol.SessionStatus)
}

// session is the per-connection state. Teardown runs through once so every
// path (remote close, user stop, shutdown tool, transport error) is
// idempotent.
type session struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	conn    live.Conn
	capture audio.CaptureSource
	player  *audio.Player
	once    sync.Once

	mu              sync.Mutex
	level           int
	closing         bool
	pendingShutdown time.Time
}

func (s *session) setLevel(level int) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (s *session) currentLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *session) markClosing() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

func (s *session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func NewEngine(cfg config.AssistantConfig, deps Deps, log *slog.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		dialer:   deps.Dialer,
		device:   deps.Capture,
		sink:     deps.Playback,
		commands: deps.Commands,
		registry: deps.Registry,
		store:    deps.Store,
		log:      log.With(slog.String("component", "session")),
		clock:    time.Now,
		state:    StateIdle,
	}
	e.dispatcher = tools.NewDispatcher(log)
	e.registerHandlers()

	meter := otel.Meter("github.com/canvaslabs/canvas-voice/session")
	counter, err := meter.Int64Counter("canvas.audio.frames",
		metric.WithDescription("Audio frames by direction"))
	if err != nil {
		e.log.Warn("failed to initialize metrics", slogError(err))
	} else {
		e.frames = counter
	}
	return e
}

// OnStatus registers a status subscriber, invoked on every externally visible
// change.
func (e *Engine) OnStatus(fn func(protocol.SessionStatus)) {
	e.mu.Lock()
	e.statusFns = append(e.statusFns, fn)
	e.mu.Unlock()
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Healthy reports whether the engine is operational. An unacknowledged failed
// session counts as unhealthy.
func (e *Engine) Healthy() bool {
	return e.State() != StateError
}

// AcknowledgeError clears a failed session back to idle.
func (e *Engine) AcknowledgeError() {
	e.mu.Lock()
	if e.state != StateError {
		e.mu.Unlock()
		return
	}
	e.state = StateIdle
	e.lastErr = ""
	e.mu.Unlock()
	e.publishStatus()
}

// Start opens a session: credential check, capture acquisition with
// constraint fallback, realtime dial, then capture streaming. A second Start
// while connecting or active is a no-op; from the error state the previous
// failure must be acknowledged first.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateConnecting, StateActive:
		e.mu.Unlock()
		return nil
	case StateError:
		lastErr := e.lastErr
		e.mu.Unlock()
		return fmt.Errorf("previous session failed (%s); acknowledge before restarting", lastErr)
	}
	// The credential check precedes any resource acquisition and any state
	// transition: a missing key surfaces the error and leaves the engine
	// idle, so setting the key and retrying works without an acknowledge.
	apiKey := e.cfg.APIKey()
	if apiKey == "" {
		e.mu.Unlock()
		return fmt.Errorf("no API credential available (env %s)", e.cfg.APIKeyEnv)
	}
	// The transition to connecting happens in the same critical section as
	// the idle check, so two racing Starts can never both reach the dial.
	stops := e.stops
	e.state = StateConnecting
	e.lastErr = ""
	e.mu.Unlock()
	e.publishStatus()

	capture, err := audio.AcquireCapture(e.device, e.log)
	if err != nil {
		e.failStart(stops, err.Error())
		return err
	}

	e.mu.Lock()
	lang := e.languageLocked()
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	liveCfg := live.Config{
		Endpoint:          e.cfg.Endpoint,
		APIKey:            apiKey,
		Model:             e.cfg.Model,
		SystemInstruction: buildInstruction(lang, report.Generate(snapshot)),
		Tools:             []live.ToolSet{live.NewToolSet(tools.Catalog())},
		ConnectTimeout:    time.Duration(e.cfg.ConnectTimeoutMS) * time.Millisecond,
	}
	conn, err := e.dialer.Dial(ctx, liveCfg)
	if err != nil {
		capture.Stop()
		e.failStart(stops, err.Error())
		return fmt.Errorf("open realtime session: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:      uuid.NewString(),
		ctx:     sessCtx,
		cancel:  cancel,
		conn:    conn,
		capture: capture,
		player:  audio.NewPlayer(e.sink, e.cfg.PlaybackRate, e.cfg.PlaybackChannels, e.log),
	}

	if e.store != nil {
		storeCtx, storeCancel := context.WithTimeout(sessCtx, 2*time.Second)
		if err := e.store.BeginSession(storeCtx, sess.id, lang, e.cfg.Model); err != nil {
			e.log.Warn("failed to record session start", slogError(err))
		}
		storeCancel()
	}
	e.appendEvent(sess.id, eventstore.TypeSessionStart, "", nil)

	rate := capture.SampleRate()
	if err := capture.Start(func(samples []float32) {
		chunk := audio.EncodeCaptureChunk(samples, rate)
		if err := conn.SendMedia(live.MediaChunk{MimeType: chunk.MimeType, Data: chunk.Payload}); err != nil {
			e.log.Debug("dropped capture chunk", slogError(err))
		}
		sess.setLevel(audio.Level(samples))
		e.countFrame(sessCtx, "capture")
	}); err != nil {
		capture.Stop()
		conn.Close()
		cancel()
		e.failStart(stops, err.Error())
		return fmt.Errorf("start capture stream: %w", err)
	}

	e.mu.Lock()
	if e.stops != stops {
		// The user stopped while we were connecting. Release everything in
		// teardown order instead of going active.
		e.mu.Unlock()
		capture.Stop()
		if err := conn.Close(); err != nil {
			e.log.Debug("close realtime connection", slogError(err))
		}
		sess.player.Stop()
		cancel()
		e.appendEvent(sess.id, eventstore.TypeSessionEnd, "", nil)
		e.log.Info("session cancelled before activation", slog.String("session_id", sess.id))
		return nil
	}
	e.sess = sess
	e.state = StateActive
	e.mu.Unlock()
	e.publishStatus()
	e.log.Info("session active",
		slog.String("session_id", sess.id),
		slog.String("language", lang),
		slog.Int("capture_rate", rate))

	go e.receiveLoop(sess)
	go e.volumeLoop(sess)
	return nil
}

// Stop tears the current session down to idle. Safe to call at any time;
// calling it twice is a no-op. A stop issued while a Start is still
// connecting wins: the engine goes idle and the in-flight Start releases
// whatever it acquired instead of committing.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stops++
	sess := e.sess
	interrupted := e.state == StateConnecting
	if sess == nil && interrupted {
		e.state = StateIdle
		e.lastErr = ""
	}
	e.mu.Unlock()
	if sess != nil {
		e.teardown(sess, StateIdle, "")
		return
	}
	if interrupted {
		e.publishStatus()
	}
}

// Close is Stop under the runtime's shutdown naming.
func (e *Engine) Close() {
	e.Stop()
}

// UpdateHost replaces the engine's host application snapshot (one slot, last
// write wins). While a session is active, modal changes and batch completions
// are forwarded to the model as system events; a batch counter increase
// produces exactly one announcement.
func (e *Engine) UpdateHost(state protocol.HostState) {
	e.mu.Lock()
	first := !e.hostSet
	prevModals := e.host.Modals
	e.host = state
	e.hostSet = true

	var events []string
	switch {
	case first, state.BatchCompleteTrigger < e.lastBatch:
		e.lastBatch = state.BatchCompleteTrigger
	case state.BatchCompleteTrigger > e.lastBatch:
		e.lastBatch = state.BatchCompleteTrigger
		if e.state == StateActive {
			events = append(events, "SYSTEM_EVENT: an image processing batch just finished. Briefly tell the user their images are ready.")
		}
	}
	if !first && state.Modals != prevModals && e.state == StateActive {
		events = append(events,
			"SYSTEM_EVENT: the visible view changed. The user is now looking at the "+report.ActiveView(state.Modals)+".")
	}
	sess := e.sess
	e.mu.Unlock()

	if sess == nil {
		return
	}
	for _, text := range events {
		if err := sess.conn.SendTextEvent(text); err != nil {
			e.log.Warn("failed to push system event", slogError(err))
			continue
		}
		e.appendEvent(sess.id, eventstore.TypeAnnouncement, "", []byte(text))
	}
}

func (e *Engine) receiveLoop(sess *session) {
	for msg := range sess.conn.Messages() {
		if msg.GoAway != nil {
			// Server-initiated shutdown; ends cleanly rather than as a fault.
			e.log.Info("server requested disconnect", slog.String("session_id", sess.id))
			e.teardown(sess, StateIdle, "")
			return
		}
		if msg.ToolCall != nil {
			if e.handleToolCalls(sess, msg.ToolCall.FunctionCalls) {
				return
			}
		}
		if msg.ServerContent != nil {
			if msg.ServerContent.Interrupted {
				sess.player.Stop()
			}
			for _, chunk := range msg.AudioChunks() {
				samples, err := audio.DecodePlaybackChunk(chunk.Data)
				if err != nil {
					// One malformed fragment must not end the stream.
					e.log.Warn("dropped playback fragment", slogError(err))
					continue
				}
				sess.player.Schedule(samples)
				e.countFrame(sess.ctx, "playback")
			}
		}
	}

	if err := sess.conn.Err(); err != nil {
		e.teardown(sess, StateError, err.Error())
		return
	}
	e.teardown(sess, StateIdle, "")
}

// handleToolCalls answers every call of the batch in order, one correlated
// response each, failures included. A confirmed close_assistant ends the
// session immediately and the remainder of the batch is skipped. Returns true
// when the session was torn down.
func (e *Engine) handleToolCalls(sess *session, calls []live.FunctionCall) bool {
	e.setExecuting(true)
	defer e.setExecuting(false)

	for _, call := range calls {
		e.appendEvent(sess.id, eventstore.TypeToolCall, call.Name, call.Args)
		result := e.dispatcher.Dispatch(sess.ctx, call.Name, call.ParsedArgs())
		if payload, err := json.Marshal(result); err == nil {
			e.appendEvent(sess.id, eventstore.TypeToolResult, call.Name, payload)
		}

		resp := live.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: resultPayload(result),
		}
		if err := sess.conn.SendToolResponses([]live.FunctionResponse{resp}); err != nil {
			e.log.Warn("failed to send tool response",
				slog.String("tool", call.Name), slogError(err))
		}

		if sess.isClosing() {
			e.teardown(sess, StateIdle, "")
			return true
		}
	}
	return false
}

// teardown is the single exit path of a session. The order matters: drop the
// session reference first so no new work is routed in, then the capture side,
// then the transport, then playback.
func (e *Engine) teardown(sess *session, final State, errText string) {
	sess.once.Do(func() {
		e.mu.Lock()
		if e.sess == sess {
			e.sess = nil
		}
		e.state = final
		e.lastErr = errText
		e.executing = false
		e.mu.Unlock()

		sess.capture.Stop()
		if err := sess.conn.Close(); err != nil {
			e.log.Debug("close realtime connection", slogError(err))
		}
		sess.player.Stop()
		sess.cancel()

		if errText != "" {
			e.appendEvent(sess.id, eventstore.TypeStatusChange, "", []byte(errText))
		}
		e.appendEvent(sess.id, eventstore.TypeSessionEnd, "", nil)
		e.publishStatus()
		e.log.Info("session ended",
			slog.String("session_id", sess.id),
			slog.String("state", string(final)))
	})
}

// volumeLoop samples the capture input level while the session lives. It ends
// with the session context, so a torn-down input side stops the feedback too.
func (e *Engine) volumeLoop(sess *session) {
	interval := time.Duration(e.cfg.VolumeIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			e.publishStatus()
		}
	}
}

// failStart moves one start attempt to the error state. A Stop issued while
// the attempt was connecting supersedes it: the engine is already idle and
// the error only reaches the caller.
func (e *Engine) failStart(stops uint64, errText string) {
	e.mu.Lock()
	if e.stops != stops {
		e.mu.Unlock()
		return
	}
	e.state = StateError
	e.lastErr = errText
	e.mu.Unlock()
	e.publishStatus()
}

func (e *Engine) setExecuting(executing bool) {
	e.mu.Lock()
	if e.executing == executing {
		e.mu.Unlock()
		return
	}
	e.executing = executing
	e.mu.Unlock()
	e.publishStatus()
}

func (e *Engine) publishStatus() {
	e.mu.Lock()
	status := protocol.SessionStatus{
		State:     string(e.state),
		Executing: e.executing,
		Error:     e.lastErr,
		Timestamp: e.clock().UTC(),
	}
	if e.sess != nil {
		status.SessionID = e.sess.id
		status.Volume = e.sess.currentLevel()
	}
	fns := make([]func(protocol.SessionStatus), len(e.statusFns))
	copy(fns, e.statusFns)
	e.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
}

func (e *Engine) currentSession() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

func (e *Engine) hostState() (protocol.HostState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.host, e.hostSet
}

func (e *Engine) languageLocked() string {
	if e.hostSet {
		if lang, ok := tools.NormalizeLanguage(e.host.Language); ok {
			return lang
		}
	}
	return e.cfg.DefaultLanguage
}

func (e *Engine) snapshotLocked() report.Snapshot {
	return report.Snapshot{
		Language:      e.languageLocked(),
		Scroll:        e.host.Scroll,
		ElementCounts: e.registry.Counts(),
		Modals:        e.host.Modals,
		InputText:     e.host.NativePrompt,
		Generating:    e.host.IsNativeGenerating,
		QueueLength:   len(e.host.Images),
		BatchCounter:  e.host.BatchCompleteTrigger,
	}
}

func (e *Engine) appendEvent(sessionID, eventType, tool string, payload []byte) {
	if e.store == nil || sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := e.store.Append(ctx, eventstore.Event{
		SessionID: sessionID,
		Type:      eventType,
		Tool:      tool,
		Payload:   payload,
	})
	if err != nil {
		e.log.Warn("failed to append session event", slogError(err))
	}
}

func (e *Engine) countFrame(ctx context.Context, direction string) {
	if e.frames == nil {
		return
	}
	e.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

func resultPayload(r tools.Result) map[string]any {
	payload := map[string]any{"ok": r.OK}
	if r.Message != "" {
		payload["message"] = r.Message
	}
	for k, v := range r.Data {
		payload[k] = v
	}
	return payload
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
