package session

import (
	"sync"
	"time"
)

// TurnStatus is the lifecycle state of a model response turn.
type TurnStatus int

const (
	TurnIdle TurnStatus = iota
	TurnCreated
	TurnStreaming
	TurnCompleted
	TurnCancelled
)

func (s TurnStatus) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnCreated:
		return "created"
	case TurnStreaming:
		return "streaming"
	case TurnCompleted:
		return "completed"
	case TurnCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// trackedItem is one assistant item observed streaming audio within a turn.
// firstAudio anchors the truncation offset if the turn gets interrupted.
type trackedItem struct {
	id           string
	contentIndex int
	firstAudio   time.Time
}

// TurnSnapshot is an immutable copy of the active turn for use outside the
// tracker's lock.
type TurnSnapshot struct {
	ID         string
	Status     TurnStatus
	StartedAt  time.Time
	FirstAudio time.Time
	Items      []trackedItem
}

// TurnTracker serializes the turn lifecycle. At most one turn is active;
// events carrying a response id other than the active one are stale and
// change nothing. Terminal transitions reset the tracker to idle so the next
// response.created starts clean.
type TurnTracker struct {
	mu        sync.RWMutex
	cur       *TurnSnapshot
	itemIndex map[string]int
	cancelled map[string]struct{}
}

func NewTurnTracker() *TurnTracker {
	return &TurnTracker{cancelled: make(map[string]struct{})}
}

// Begin opens a turn for responseID. If a previous turn is still active it
// is force-cancelled first; the returned snapshot (nil when none) lets the
// caller log the anomaly.
func (t *TurnTracker) Begin(responseID string, now time.Time) *TurnSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	var forced *TurnSnapshot
	if t.cur != nil {
		prev := *t.cur
		prev.Status = TurnCancelled
		t.cancelled[prev.ID] = struct{}{}
		forced = &prev
	}

	t.cur = &TurnSnapshot{ID: responseID, Status: TurnCreated, StartedAt: now}
	t.itemIndex = make(map[string]int)
	return forced
}

// MarkStreaming records an audio delta for responseID. Returns false for
// stale or out-of-order deltas, which the caller must not relay.
func (t *TurnTracker) MarkStreaming(responseID, itemID string, contentIndex int, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cur == nil || t.cur.ID != responseID {
		return false
	}
	switch t.cur.Status {
	case TurnCreated:
		t.cur.Status = TurnStreaming
	case TurnStreaming:
	default:
		return false
	}

	if t.cur.FirstAudio.IsZero() {
		t.cur.FirstAudio = now
	}
	if _, seen := t.itemIndex[itemID]; !seen && itemID != "" {
		t.itemIndex[itemID] = len(t.cur.Items)
		t.cur.Items = append(t.cur.Items, trackedItem{
			id:           itemID,
			contentIndex: contentIndex,
			firstAudio:   now,
		})
	}
	return true
}

// Complete finalizes the turn for responseID and resets to idle. Stale
// completions are ignored.
func (t *TurnTracker) Complete(responseID string) bool {
	return t.finish(responseID, TurnCompleted)
}

// Cancel terminates the turn for responseID and resets to idle. Stale
// cancellations are ignored.
func (t *TurnTracker) Cancel(responseID string) bool {
	return t.finish(responseID, TurnCancelled)
}

func (t *TurnTracker) finish(responseID string, status TurnStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cur == nil || t.cur.ID != responseID {
		return false
	}
	if status == TurnCancelled {
		t.cancelled[responseID] = struct{}{}
	}
	t.cur = nil
	t.itemIndex = nil
	return true
}

// Active returns a snapshot of the current turn, or nil when idle.
func (t *TurnTracker) Active() *TurnSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.cur == nil {
		return nil
	}
	snap := *t.cur
	snap.Items = append([]trackedItem(nil), t.cur.Items...)
	return &snap
}

// ShouldRelay reports whether output audio for responseID may reach the
// caller: only the active turn, and only while it is streaming.
func (t *TurnTracker) ShouldRelay(responseID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur != nil && t.cur.ID == responseID && t.cur.Status == TurnStreaming
}

// WasCancelled reports whether responseID ended by cancellation at some
// point during this session.
func (t *TurnTracker) WasCancelled(responseID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.cancelled[responseID]
	return ok
}
