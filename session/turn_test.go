package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnLifecycle(t *testing.T) {
	tr := NewTurnTracker()
	now := time.Now()

	require.Nil(t, tr.Begin("resp_1", now))

	snap := tr.Active()
	require.NotNil(t, snap)
	assert.Equal(t, "resp_1", snap.ID)
	assert.Equal(t, TurnCreated, snap.Status)

	assert.True(t, tr.MarkStreaming("resp_1", "item_1", 0, now.Add(time.Second)))
	assert.Equal(t, TurnStreaming, tr.Active().Status)

	assert.True(t, tr.Complete("resp_1"))
	assert.Nil(t, tr.Active(), "completed turn must reset to idle")
}

func TestStaleEventsIgnored(t *testing.T) {
	tr := NewTurnTracker()
	now := time.Now()

	tr.Begin("resp_2", now)
	tr.MarkStreaming("resp_2", "item_1", 0, now)

	assert.False(t, tr.MarkStreaming("resp_1", "item_9", 0, now), "delta for old response")
	assert.False(t, tr.Complete("resp_1"), "done for old response")
	assert.False(t, tr.Cancel("resp_1"), "cancel for old response")

	snap := tr.Active()
	require.NotNil(t, snap)
	assert.Equal(t, "resp_2", snap.ID)
	assert.Equal(t, TurnStreaming, snap.Status)
}

func TestBeginForcesCancelOfActiveTurn(t *testing.T) {
	tr := NewTurnTracker()
	now := time.Now()

	tr.Begin("resp_1", now)
	tr.MarkStreaming("resp_1", "item_1", 0, now)

	forced := tr.Begin("resp_2", now.Add(time.Second))
	require.NotNil(t, forced)
	assert.Equal(t, "resp_1", forced.ID)
	assert.Equal(t, TurnCancelled, forced.Status)
	assert.True(t, tr.WasCancelled("resp_1"))

	assert.Equal(t, "resp_2", tr.Active().ID)
}

func TestShouldRelay(t *testing.T) {
	tr := NewTurnTracker()
	now := time.Now()

	assert.False(t, tr.ShouldRelay("resp_1"), "idle session relays nothing")

	tr.Begin("resp_1", now)
	assert.False(t, tr.ShouldRelay("resp_1"), "created but not yet streaming")

	tr.MarkStreaming("resp_1", "item_1", 0, now)
	assert.True(t, tr.ShouldRelay("resp_1"))
	assert.False(t, tr.ShouldRelay("resp_other"))

	tr.Cancel("resp_1")
	assert.False(t, tr.ShouldRelay("resp_1"))
}

func TestItemTracking(t *testing.T) {
	tr := NewTurnTracker()
	now := time.Now()

	tr.Begin("resp_1", now)
	tr.MarkStreaming("resp_1", "item_1", 0, now)
	tr.MarkStreaming("resp_1", "item_1", 0, now.Add(20*time.Millisecond))
	tr.MarkStreaming("resp_1", "item_2", 1, now.Add(40*time.Millisecond))

	snap := tr.Active()
	require.Len(t, snap.Items, 2, "repeated deltas for one item tracked once")
	assert.Equal(t, "item_1", snap.Items[0].id)
	assert.Equal(t, now, snap.Items[0].firstAudio)
	assert.Equal(t, "item_2", snap.Items[1].id)
	assert.Equal(t, 1, snap.Items[1].contentIndex)
}

func TestFirstAudioRecordedOnce(t *testing.T) {
	tr := NewTurnTracker()
	now := time.Now()

	tr.Begin("resp_1", now)
	tr.MarkStreaming("resp_1", "item_1", 0, now.Add(time.Second))
	tr.MarkStreaming("resp_1", "item_1", 0, now.Add(2*time.Second))

	assert.Equal(t, now.Add(time.Second), tr.Active().FirstAudio)
}

func TestCancelledHistorySurvivesReset(t *testing.T) {
	tr := NewTurnTracker()
	now := time.Now()

	tr.Begin("resp_1", now)
	tr.Cancel("resp_1")

	tr.Begin("resp_2", now)
	tr.Complete("resp_2")

	assert.True(t, tr.WasCancelled("resp_1"))
	assert.False(t, tr.WasCancelled("resp_2"))
}
