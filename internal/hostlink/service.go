// Package hostlink connects the bus-facing host contract to the in-process
// engine and viewport registry: inbound state and registration subjects feed
// them, engine status flows back out.
package hostlink

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/canvaslabs/canvas-voice/internal/bus"
	"github.com/canvaslabs/canvas-voice/internal/protocol"
	"github.com/canvaslabs/canvas-voice/internal/session"
	"github.com/canvaslabs/canvas-voice/internal/viewport"
	"github.com/nats-io/nats.go"
)

type Service struct {
	bus      *bus.Client
	engine   *session.Engine
	registry *viewport.Registry
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup
}

func NewService(parent context.Context, busClient *bus.Client, engine *session.Engine, registry *viewport.Registry, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:      busClient,
		engine:   engine,
		registry: registry,
		logger:   logger.With(slog.String("component", "hostlink")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Service) Start() error {
	s.engine.OnStatus(s.publishStatus)

	subjects := map[string]nats.MsgHandler{
		protocol.SubjectHostState:          s.handleHostState,
		protocol.SubjectViewportRegister:   s.handleRegister,
		protocol.SubjectViewportUnregister: s.handleUnregister,
		protocol.SubjectViewportWindow:     s.handleWindow,
		protocol.SubjectControlStart:       s.handleStart,
		protocol.SubjectControlStop:        s.handleStop,
	}
	for subject, handler := range subjects {
		sub, err := s.bus.Conn().Subscribe(subject, handler)
		if err != nil {
			s.drain()
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.drain()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return len(s.subs) == 6
}

func (s *Service) drain() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
}

func (s *Service) handleHostState(msg *nats.Msg) {
	var state protocol.HostState
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		s.logger.Warn("failed to decode host state", slogError(err))
		return
	}
	s.registry.SetWindow(state.Scroll)
	s.engine.UpdateHost(state)
}

func (s *Service) handleRegister(msg *nats.Msg) {
	var reg protocol.ElementRegistration
	if err := json.Unmarshal(msg.Data, &reg); err != nil {
		s.logger.Warn("failed to decode element registration", slogError(err))
		return
	}
	s.registry.Register(reg)
}

func (s *Service) handleUnregister(msg *nats.Msg) {
	var removal protocol.ElementRemoval
	if err := json.Unmarshal(msg.Data, &removal); err != nil {
		s.logger.Warn("failed to decode element removal", slogError(err))
		return
	}
	s.registry.Unregister(removal.ID)
}

func (s *Service) handleWindow(msg *nats.Msg) {
	var window protocol.ScrollState
	if err := json.Unmarshal(msg.Data, &window); err != nil {
		s.logger.Warn("failed to decode scroll window", slogError(err))
		return
	}
	s.registry.SetWindow(window)
}

// handleStart opens a session off the subscription goroutine; dialing can
// take seconds and must not block the bus. A start while a failed session is
// unacknowledged counts as the acknowledgement.
func (s *Service) handleStart(_ *nats.Msg) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.engine.State() == session.StateError {
			s.engine.AcknowledgeError()
		}
		if err := s.engine.Start(s.ctx); err != nil {
			s.logger.Warn("session start failed", slogError(err))
		}
	}()
}

func (s *Service) handleStop(_ *nats.Msg) {
	s.engine.Stop()
}

func (s *Service) publishStatus(status protocol.SessionStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSessionStatus, data); err != nil {
		s.logger.Warn("failed to publish session status", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
