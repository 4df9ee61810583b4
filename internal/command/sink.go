// Package command carries resolved tool calls to the host application as
// typed AssistantCommand payloads. This is the engine's only write path into
// application state.
package command

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/canvaslabs/canvas-voice/internal/bus"
	"github.com/canvaslabs/canvas-voice/internal/protocol"
)

// Sink accepts commands for delivery to the host.
type Sink interface {
	Send(cmd protocol.AssistantCommand) error
}

// BusSink publishes commands on the assistant.command subject and fans them
// out to locally registered listeners (the in-process host adapter and tests).
type BusSink struct {
	bus *bus.Client
	log *slog.Logger

	mu        sync.RWMutex
	listeners []func(protocol.AssistantCommand)
	clock     func() time.Time
}

func NewBusSink(busClient *bus.Client, log *slog.Logger) *BusSink {
	return &BusSink{
		bus:   busClient,
		log:   log.With(slog.String("component", "command-sink")),
		clock: time.Now,
	}
}

// Listen registers a local listener invoked for every sent command.
func (s *BusSink) Listen(fn func(protocol.AssistantCommand)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *BusSink) Send(cmd protocol.AssistantCommand) error {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = s.clock().UTC()
	}

	s.mu.RLock()
	listeners := make([]func(protocol.AssistantCommand), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(cmd)
	}

	if s.bus == nil {
		return nil
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := s.bus.Conn().Publish(protocol.SubjectCommand, data); err != nil {
		s.log.Warn("failed to publish command",
			slog.String("kind", string(cmd.Kind)),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Recorder is a Sink for tests that retains every command.
type Recorder struct {
	mu   sync.Mutex
	cmds []protocol.AssistantCommand
}

func (r *Recorder) Send(cmd protocol.AssistantCommand) error {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
	return nil
}

// Commands returns a copy of everything sent so far.
func (r *Recorder) Commands() []protocol.AssistantCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.AssistantCommand(nil), r.cmds...)
}

// ByKind filters recorded commands.
func (r *Recorder) ByKind(kind protocol.CommandKind) []protocol.AssistantCommand {
	var out []protocol.AssistantCommand
	for _, cmd := range r.Commands() {
		if cmd.Kind == kind {
			out = append(out, cmd)
		}
	}
	return out
}
