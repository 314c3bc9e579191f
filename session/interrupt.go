package session

import (
	"time"

	"github.com/room4-2/callbridge/logging"
)

// Interrupter turns caller speech into a best-effort cancellation of the
// active turn. Every step runs in its own error boundary: a failed command
// is logged and the remaining steps still run, so the caller is never left
// listening to a half-cancelled response.
type Interrupter struct {
	turns *TurnTracker
	relay *Relay
	up    Upstream
	down  Downstream
	log   *logging.Logger

	sessionStart time.Time
	grace        time.Duration // no barge-in this long after session start
	minStreaming time.Duration // no barge-in before this much audio has played
}

func NewInterrupter(turns *TurnTracker, relay *Relay, up Upstream, down Downstream,
	sessionStart time.Time, grace, minStreaming time.Duration, log *logging.Logger) *Interrupter {
	return &Interrupter{
		turns:        turns,
		relay:        relay,
		up:           up,
		down:         down,
		log:          log,
		sessionStart: sessionStart,
		grace:        grace,
		minStreaming: minStreaming,
	}
}

// HandleSpeechStarted decides whether caller speech interrupts the active
// turn, and if so runs the cancellation sequence. Returns true when an
// interruption was executed.
//
// Two guards absorb false positives. Early in the call the service's VAD
// often fires on line noise or the caller's own greeting echo, so speech
// inside the opening grace window is ignored. And a turn that has streamed
// almost no audio yet is usually the model answering the thing the caller
// is still finishing, not being talked over.
func (i *Interrupter) HandleSpeechStarted(now time.Time) bool {
	snap := i.turns.Active()
	if snap == nil {
		return false
	}

	if sinceStart := now.Sub(i.sessionStart); sinceStart < i.grace {
		metricBargeInSuppressed.WithLabelValues("grace").Inc()
		i.log.Debug().Dur("since_start", sinceStart).Msg("speech within grace window, not interrupting")
		return false
	}

	// The min-streaming guard is relative to the turn's first audio frame;
	// a turn that has produced none yet has nothing to guard and is
	// cancelled outright.
	if !snap.FirstAudio.IsZero() && now.Sub(snap.FirstAudio) < i.minStreaming {
		metricBargeInSuppressed.WithLabelValues("min_streaming").Inc()
		i.log.Debug().Str("response", snap.ID).Msg("turn barely streaming, not interrupting")
		return false
	}

	i.log.Info().Str("response", snap.ID).Int("items", len(snap.Items)).Msg("caller barge-in, cancelling turn")

	// 1. Silence the caller's speaker: mute further deltas locally and tell
	// the platform to drop whatever it has queued.
	i.relay.Mute(snap.ID)
	if err := i.down.SendStopAudio(); err != nil {
		i.log.Warn().Err(err).Msg("stop-audio send failed")
	}

	// 2. Ask the service to stop generating.
	if err := i.up.SendResponseCancel(); err != nil {
		i.log.Warn().Err(err).Msg("response cancel failed")
	}

	// 3. Drop buffered input audio so the next turn starts from the
	// caller's new utterance.
	if err := i.up.SendBufferClear(); err != nil {
		i.log.Warn().Err(err).Msg("input buffer clear failed")
	}

	// 4. Truncate each item to the audio actually played, keeping the
	// conversation history aligned with what the caller heard.
	for _, item := range snap.Items {
		endMs := int(now.Sub(item.firstAudio) / time.Millisecond)
		if endMs < 0 {
			endMs = 0
		}
		if err := i.up.SendItemTruncate(item.id, item.contentIndex, endMs); err != nil {
			i.log.Warn().Err(err).Str("item", item.id).Msg("item truncate failed")
		}
	}

	// 5. Record the turn as cancelled regardless of how the commands fared.
	if i.turns.Cancel(snap.ID) {
		metricTurnsTotal.WithLabelValues(TurnCancelled.String()).Inc()
	}
	metricBargeIn.Inc()
	return true
}
