package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/callbridge/config"
	"github.com/room4-2/callbridge/telephony"
	"github.com/room4-2/callbridge/tools"
	"github.com/room4-2/callbridge/voicelive"
)

func testConfig() *config.Config {
	return &config.Config{
		BargeInGrace:           0,
		MinStreaming:           0,
		TurnDetectionType:      "azure_semantic_vad",
		TurnDetectionThreshold: 0.3,
		SilenceDurationMs:      200,
		PrefixPaddingMs:        200,
		VoiceName:              "en-US-Ava:DragonHDLatestNeural",
		VoiceType:              "azure-standard",
		VoiceTemperature:       0.8,
		Greeting:               "Hello",
	}
}

type sessionFixture struct {
	s    *Session
	up   *fakeService
	down *fakeDownstream
}

func newSessionFixture(t *testing.T, cfg *config.Config) *sessionFixture {
	t.Helper()

	up := newFakeService()
	down := newFakeDownstream()
	reg := tools.NewRegistry()
	tools.RegisterHelpdesk(reg, tools.NewDirectory())

	s := New("11111111-2222-3333-4444-555555555555", down, up, reg, cfg, testLogger(), nil)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		close(up.events)
		close(down.reads)
		s.Close()
	})
	return &sessionFixture{s: s, up: up, down: down}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestStartSendsHandshake(t *testing.T) {
	f := newSessionFixture(t, testConfig())

	require.Len(t, f.up.sessionUpdates, 1)
	cfg := f.up.sessionUpdates[0]
	assert.Equal(t, "azure_semantic_vad", cfg.TurnDetectionType)
	assert.NotEmpty(t, cfg.Instructions)
	assert.Len(t, cfg.Tools, 3)
}

func TestGreetingSentOnceAfterSessionUpdated(t *testing.T) {
	f := newSessionFixture(t, testConfig())

	f.up.events <- &voicelive.SessionUpdated{Type: voicelive.TypeSessionUpdated}
	f.up.events <- &voicelive.SessionUpdated{Type: voicelive.TypeSessionUpdated}

	eventually(t, func() bool {
		f.up.mu.Lock()
		defer f.up.mu.Unlock()
		return len(f.up.userMessages) == 1 && len(f.up.responseCreates) == 1
	}, "exactly one greeting item and one response request")

	assert.Equal(t, []string{"Hello"}, f.up.userMessages)
}

func TestCallerAudioRelayedUpstream(t *testing.T) {
	f := newSessionFixture(t, testConfig())

	f.down.reads <- telephony.Message{Kind: telephony.KindAudioData, Data: "Zmlyc3Q="}
	f.down.reads <- telephony.Message{Kind: "UnknownKind"}
	f.down.reads <- telephony.Message{Kind: telephony.KindAudioData, Data: "c2Vjb25k"}

	eventually(t, func() bool {
		f.up.mu.Lock()
		defer f.up.mu.Unlock()
		return len(f.up.appends) == 2
	}, "both audio frames forwarded, unknown kind skipped")

	assert.Equal(t, []string{"Zmlyc3Q=", "c2Vjb25k"}, f.up.appends)
}

func TestModelAudioRelayedDuringTurn(t *testing.T) {
	f := newSessionFixture(t, testConfig())

	f.up.events <- &voicelive.ResponseCreated{Type: voicelive.TypeResponseCreated, Response: voicelive.ResponseInfo{ID: "resp_1"}}
	f.up.events <- delta("resp_1", "item_1", "chunk1")
	f.up.events <- delta("resp_9", "item_9", "stale")
	f.up.events <- delta("resp_1", "item_1", "chunk2")
	f.up.events <- &voicelive.ResponseDone{Type: voicelive.TypeResponseDone, Response: voicelive.ResponseInfo{ID: "resp_1", Status: "completed"}}
	f.up.events <- delta("resp_1", "item_1", "after-done")

	eventually(t, func() bool {
		return f.s.turns.Active() == nil && len(f.down.sentAudio()) == 2
	}, "exactly the two live chunks relayed")

	assert.Equal(t, []string{"chunk1", "chunk2"}, f.down.sentAudio())
}

func TestBargeInCancelsActiveTurn(t *testing.T) {
	f := newSessionFixture(t, testConfig())

	f.up.events <- &voicelive.ResponseCreated{Type: voicelive.TypeResponseCreated, Response: voicelive.ResponseInfo{ID: "resp_1"}}
	f.up.events <- delta("resp_1", "item_1", "chunk1")

	eventually(t, func() bool { return len(f.down.sentAudio()) == 1 }, "turn streaming")

	f.up.events <- &voicelive.SpeechStarted{Type: voicelive.TypeSpeechStarted, AudioStartMs: 100}

	eventually(t, func() bool { return f.s.turns.Active() == nil }, "turn cancelled by barge-in")

	f.up.mu.Lock()
	cancels, clears, truncates := f.up.cancels, f.up.bufferClears, len(f.up.truncates)
	f.up.mu.Unlock()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 1, clears)
	assert.Equal(t, 1, truncates)
	assert.Equal(t, 1, f.down.stopCount())
	assert.True(t, f.s.turns.WasCancelled("resp_1"))
}

func TestBargeInSuppressedDuringGrace(t *testing.T) {
	cfg := testConfig()
	cfg.BargeInGrace = time.Hour
	f := newSessionFixture(t, cfg)

	f.up.events <- &voicelive.ResponseCreated{Type: voicelive.TypeResponseCreated, Response: voicelive.ResponseInfo{ID: "resp_1"}}
	f.up.events <- delta("resp_1", "item_1", "chunk1")
	f.up.events <- &voicelive.SpeechStarted{Type: voicelive.TypeSpeechStarted}
	f.up.events <- delta("resp_1", "item_1", "chunk2")

	eventually(t, func() bool { return len(f.down.sentAudio()) == 2 }, "turn keeps streaming through grace window")
	assert.Equal(t, 0, f.down.stopCount())
}

func TestToolCallThroughEventLoop(t *testing.T) {
	f := newSessionFixture(t, testConfig())

	f.up.events <- &voicelive.ResponseCreated{Type: voicelive.TypeResponseCreated, Response: voicelive.ResponseInfo{ID: "resp_1"}}
	f.up.events <- &voicelive.FunctionArgsDone{
		Type:       voicelive.TypeFunctionArgsDone,
		ResponseID: "resp_1",
		CallID:     "call_1",
		Name:       "lookup_employee",
		Arguments:  `{"employeeId":"EMP1029"}`,
	}
	f.up.events <- &voicelive.ResponseDone{Type: voicelive.TypeResponseDone, Response: voicelive.ResponseInfo{ID: "resp_1", Status: "completed"}}

	eventually(t, func() bool {
		f.up.mu.Lock()
		defer f.up.mu.Unlock()
		return len(f.up.toolOutputs) == 1 && len(f.up.responseCreates) == 1
	}, "tool result and continuation submitted")

	f.up.mu.Lock()
	defer f.up.mu.Unlock()
	assert.Equal(t, "call_1", f.up.toolOutputs[0][0])
	assert.Contains(t, f.up.toolOutputs[0][1], "Emma Davis")
	assert.Equal(t, []string{"tool_output:call_1", "response_create"}, f.up.order)
}

func TestSecondResponseForcesPriorCancel(t *testing.T) {
	f := newSessionFixture(t, testConfig())

	f.up.events <- &voicelive.ResponseCreated{Type: voicelive.TypeResponseCreated, Response: voicelive.ResponseInfo{ID: "resp_1"}}
	f.up.events <- delta("resp_1", "item_1", "chunk1")
	f.up.events <- &voicelive.ResponseCreated{Type: voicelive.TypeResponseCreated, Response: voicelive.ResponseInfo{ID: "resp_2"}}
	f.up.events <- delta("resp_1", "item_1", "orphan")
	f.up.events <- delta("resp_2", "item_2", "chunk2")

	eventually(t, func() bool { return len(f.down.sentAudio()) == 2 }, "old response audio dropped")

	assert.Equal(t, []string{"chunk1", "chunk2"}, f.down.sentAudio())
	assert.True(t, f.s.turns.WasCancelled("resp_1"))
	assert.Equal(t, "resp_2", f.s.turns.Active().ID)
}

func TestServiceErrorIsNonFatal(t *testing.T) {
	f := newSessionFixture(t, testConfig())

	f.up.events <- &voicelive.ErrorEvent{Type: voicelive.TypeError, Error: voicelive.ErrorDetail{Code: "response_cancel_not_active", Message: "no active response"}}
	f.up.events <- &voicelive.ResponseCreated{Type: voicelive.TypeResponseCreated, Response: voicelive.ResponseInfo{ID: "resp_1"}}

	eventually(t, func() bool {
		snap := f.s.turns.Active()
		return snap != nil && snap.ID == "resp_1"
	}, "session survives service error")
	assert.False(t, f.s.IsClosed())
}

func TestSessionClosesWhenEventStreamEnds(t *testing.T) {
	up := newFakeService()
	down := newFakeDownstream()
	reg := tools.NewRegistry()

	s := New("test-session-id", down, up, reg, testConfig(), testLogger(), nil)
	require.NoError(t, s.Start())

	close(up.events)
	close(down.reads)

	eventually(t, func() bool { return s.IsClosed() }, "session closes after stream end")
	assert.True(t, up.closed)
	assert.True(t, down.IsClosed())
}
