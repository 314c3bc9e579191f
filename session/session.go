// Package session contains the per-call controller: the turn state machine,
// the audio relay between the telephony leg and the voice service, the
// barge-in interrupter and the tool dispatcher, plus the manager that owns
// session lifecycle.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/room4-2/callbridge/config"
	"github.com/room4-2/callbridge/logging"
	"github.com/room4-2/callbridge/telephony"
	"github.com/room4-2/callbridge/tools"
	"github.com/room4-2/callbridge/voicelive"
)

// Session bridges one phone call to one voice-service connection.
//
// All voice-service events are handled on a single event-loop goroutine, so
// turn transitions never race each other. Caller audio is relayed from the
// telephony read goroutine without touching turn state. Tool handlers are
// the only other concurrency: they run under the dispatcher and re-enter
// the upstream connection through its single writer.
type Session struct {
	ID           string
	CreatedAt    time.Time
	lastActivity atomic.Int64

	cfg  *config.Config
	reg  *tools.Registry
	down MediaConn
	up   ServiceConn
	log  *logging.Logger

	turns       *TurnTracker
	relay       *Relay
	interrupter *Interrupter
	dispatcher  *Dispatcher

	greeted bool
	onClose func(id string)

	mu        sync.Mutex
	closed    bool
	CloseChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// ServiceConn is the full voice-service connection: the Upstream command
// surface plus its event stream. *voicelive.Client satisfies it.
type ServiceConn interface {
	Upstream
	Events() <-chan voicelive.Event
}

// MediaConn is the full telephony connection. *telephony.Conn satisfies it.
type MediaConn interface {
	Downstream
	Read() (telephony.Message, error)
	IsClosed() bool
}

// New wires a session from its two transports. Call Start to begin relaying.
func New(id string, down MediaConn, up ServiceConn, reg *tools.Registry,
	cfg *config.Config, log *logging.Logger, onClose func(id string)) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	now := time.Now()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		cfg:       cfg,
		reg:       reg,
		down:      down,
		up:        up,
		log:       log,
		onClose:   onClose,
		CloseChan: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.lastActivity.Store(now.UnixNano())

	s.turns = NewTurnTracker()
	s.relay = NewRelay(s.turns, up, down, log)
	s.interrupter = NewInterrupter(s.turns, s.relay, up, down, now, cfg.BargeInGrace, cfg.MinStreaming, log)
	s.dispatcher = NewDispatcher(ctx, reg, up, s.turns, log)
	return s
}

// Start sends the configuration handshake and begins both pump goroutines.
func (s *Session) Start() error {
	err := s.up.SendSessionUpdate(voicelive.SessionConfig{
		Instructions:           tools.HelpdeskInstructions,
		InputSamplingRate:      24000,
		Modalities:             []string{"text", "audio"},
		TurnDetectionType:      s.cfg.TurnDetectionType,
		TurnDetectionThreshold: s.cfg.TurnDetectionThreshold,
		SilenceDurationMs:      s.cfg.SilenceDurationMs,
		PrefixPaddingMs:        s.cfg.PrefixPaddingMs,
		Voice: voicelive.VoiceConfig{
			Name:        s.cfg.VoiceName,
			Type:        s.cfg.VoiceType,
			Temperature: s.cfg.VoiceTemperature,
		},
		Tools: s.reg.Defs(),
	})
	if err != nil {
		return err
	}

	go s.eventLoop()
	go s.readTelephony()
	return nil
}

// eventLoop consumes voice-service events in arrival order.
func (s *Session) eventLoop() {
	defer s.Close()

	for ev := range s.up.Events() {
		s.touch()
		s.handleEvent(ev)
	}
	s.log.Info().Msg("voice service stream ended")
}

func (s *Session) handleEvent(ev voicelive.Event) {
	switch e := ev.(type) {
	case *voicelive.SessionCreated:
		s.log.Info().Str("service_session", e.Session.ID).Msg("voice service session created")

	case *voicelive.SessionUpdated:
		// Configuration acknowledged; seed the opening turn exactly once.
		if !s.greeted {
			s.greeted = true
			s.sendGreeting()
		}

	case *voicelive.ResponseCreated:
		if forced := s.turns.Begin(e.Response.ID, time.Now()); forced != nil {
			s.log.Warn().Str("prev", forced.ID).Str("next", e.Response.ID).
				Msg("new response while previous still active, forcing cancel")
			metricTurnsTotal.WithLabelValues(TurnCancelled.String()).Inc()
		}
		s.relay.Reset()
		s.log.Debug().Str("response", e.Response.ID).Msg("turn created")

	case *voicelive.AudioDelta:
		if s.turns.MarkStreaming(e.ResponseID, e.ItemID, e.ContentIndex, time.Now()) {
			s.relay.Outbound(e)
		} else {
			metricStaleEvents.WithLabelValues("audio_delta").Inc()
		}

	case *voicelive.TranscriptDelta:
		s.log.Debug().Str("response", e.ResponseID).Str("delta", e.Delta).Msg("transcript delta")

	case *voicelive.TranscriptDone:
		s.log.Info().Str("response", e.ResponseID).Str("transcript", e.Transcript).Msg("assistant said")

	case *voicelive.SpeechStarted:
		s.interrupter.HandleSpeechStarted(time.Now())

	case *voicelive.SpeechStopped:
		s.log.Debug().Int("audio_end_ms", e.AudioEndMs).Msg("caller speech stopped")

	case *voicelive.ItemCreated:
		s.log.Debug().Str("item", e.Item.ID).Str("type", e.Item.Type).Msg("conversation item created")

	case *voicelive.ResponseDone:
		if s.turns.Complete(e.Response.ID) {
			metricTurnsTotal.WithLabelValues(TurnCompleted.String()).Inc()
			s.log.Info().Str("response", e.Response.ID).Str("status", e.Response.Status).Msg("turn done")
		} else {
			metricStaleEvents.WithLabelValues("response_done").Inc()
			s.log.Debug().Str("response", e.Response.ID).Msg("stale response done ignored")
		}

	case *voicelive.ResponseCancelled:
		if s.turns.Cancel(e.Response.ID) {
			metricTurnsTotal.WithLabelValues(TurnCancelled.String()).Inc()
		}

	case *voicelive.FunctionArgsDone:
		s.log.Info().Str("function", e.Name).Str("call", e.CallID).Msg("tool call requested")
		s.dispatcher.Dispatch(e)

	case *voicelive.ErrorEvent:
		// The response can finish before our cancel reaches the service;
		// that error is routine.
		if e.Error.Code == "response_cancel_not_active" {
			s.log.Debug().Msg("cancel raced with response completion")
			return
		}
		s.log.Warn().Str("code", e.Error.Code).Str("message", e.Error.Message).Msg("voice service error")

	case *voicelive.UnknownEvent:
		s.log.Debug().Str("type", e.Type).Msg("unhandled voice service event")
	}
}

// sendGreeting seeds a user "hello" and asks for the first response so the
// agent speaks before the caller does.
func (s *Session) sendGreeting() {
	if err := s.up.SendUserMessage(s.cfg.Greeting); err != nil {
		s.log.Warn().Err(err).Msg("greeting item failed")
		return
	}
	if err := s.up.SendResponseCreate(""); err != nil {
		s.log.Warn().Err(err).Msg("greeting response request failed")
	}
}

// readTelephony pumps caller audio straight into the relay. It deliberately
// stays off the event loop; inbound audio must not queue behind event
// handling.
func (s *Session) readTelephony() {
	defer s.Close()

	for {
		select {
		case <-s.CloseChan:
			return
		default:
		}

		msg, err := s.down.Read()
		if err != nil {
			if !s.IsClosed() && !s.down.IsClosed() {
				s.log.Info().Err(err).Msg("media stream ended")
			}
			return
		}
		s.touch()

		switch msg.Kind {
		case telephony.KindAudioData:
			s.relay.Inbound(msg.Data)
		case telephony.KindAudioMetadata:
			s.log.Debug().Msg("media stream metadata received")
		default:
			s.log.Debug().Str("kind", msg.Kind).Msg("unhandled media frame")
		}
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the most recent frame in either
// direction.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// IsClosed reports whether Close has run.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears down both transports. Safe to call more than once. In-flight
// tool handlers are left to finish; their submits fail harmlessly against
// the closed upstream.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	close(s.CloseChan)

	// A turn cut short by teardown ends cancelled, not dangling.
	if snap := s.turns.Active(); snap != nil {
		if s.turns.Cancel(snap.ID) {
			metricTurnsTotal.WithLabelValues(TurnCancelled.String()).Inc()
		}
	}

	s.up.Close()
	s.down.Close()

	if s.onClose != nil {
		s.onClose(s.ID)
	}
	s.log.Info().Msg("session closed")
	return nil
}
