package session

import (
	"sync"

	"github.com/room4-2/callbridge/logging"
	"github.com/room4-2/callbridge/voicelive"
)

// Upstream is the command surface of the voice-service connection.
// *voicelive.Client satisfies it; tests substitute fakes.
type Upstream interface {
	SendSessionUpdate(cfg voicelive.SessionConfig) error
	SendUserMessage(text string) error
	SendToolOutput(callID, output string) error
	SendResponseCreate(instructions string) error
	SendResponseCancel() error
	SendAudioAppend(b64 string) error
	SendBufferClear() error
	SendItemTruncate(itemID string, contentIndex, audioEndMs int) error
	Close() error
}

// Downstream is the caller-facing media leg. *telephony.Conn satisfies it.
type Downstream interface {
	SendAudio(b64 string) error
	SendStopAudio() error
	Close() error
}

// Relay moves audio between the two legs. Inbound caller audio always goes
// up. Outbound model audio is gated: the delta must belong to the active
// streaming turn and its response must not have been muted by an
// interruption.
type Relay struct {
	turns *TurnTracker
	up    Upstream
	down  Downstream
	log   *logging.Logger

	mu    sync.Mutex
	muted map[string]struct{}
}

func NewRelay(turns *TurnTracker, up Upstream, down Downstream, log *logging.Logger) *Relay {
	return &Relay{
		turns: turns,
		up:    up,
		down:  down,
		log:   log,
		muted: make(map[string]struct{}),
	}
}

// Inbound forwards base64 caller audio to the voice service. Never gated;
// the service's own VAD decides what the audio means.
func (r *Relay) Inbound(b64 string) {
	if err := r.up.SendAudioAppend(b64); err != nil {
		r.log.Debug().Err(err).Msg("inbound audio append failed")
		return
	}
	metricAudioFrames.WithLabelValues("inbound").Inc()
}

// Outbound forwards one model audio delta to the caller if its turn is
// still live. Gated deltas are dropped silently; stale audio after an
// interruption or completion is expected traffic, not an error.
func (r *Relay) Outbound(d *voicelive.AudioDelta) {
	if r.isMuted(d.ResponseID) {
		return
	}
	if !r.turns.ShouldRelay(d.ResponseID) {
		return
	}
	if err := r.down.SendAudio(d.Delta); err != nil {
		r.log.Debug().Err(err).Msg("outbound audio send failed")
		return
	}
	metricAudioFrames.WithLabelValues("outbound").Inc()
}

// Mute blocks all further output audio for responseID. It takes effect
// before any turn-state transition so an interrupted response stays silent
// even if later cancellation steps fail.
func (r *Relay) Mute(responseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted[responseID] = struct{}{}
}

// Reset clears mute state accumulated from prior turns.
func (r *Relay) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = make(map[string]struct{})
}

func (r *Relay) isMuted(responseID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.muted[responseID]
	return ok
}
