package session

import (
	"errors"
	"sync"

	"github.com/room4-2/callbridge/telephony"
	"github.com/room4-2/callbridge/voicelive"
)

var errConnClosed = errors.New("connection closed")

type truncateCall struct {
	itemID       string
	contentIndex int
	audioEndMs   int
}

// fakeUpstream records every command sent to the voice service.
type fakeUpstream struct {
	mu sync.Mutex

	sessionUpdates  []voicelive.SessionConfig
	userMessages    []string
	appends         []string
	toolOutputs     [][2]string // call_id, output
	responseCreates []string    // instructions per request
	cancels         int
	bufferClears    int
	truncates       []truncateCall
	closed          bool

	// order interleaves tool outputs and response creates for ordering
	// assertions.
	order []string

	errCancel   error
	errClear    error
	errTruncate error
}

func newFakeUpstream() *fakeUpstream { return &fakeUpstream{} }

func (f *fakeUpstream) SendSessionUpdate(cfg voicelive.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionUpdates = append(f.sessionUpdates, cfg)
	return nil
}

func (f *fakeUpstream) SendUserMessage(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userMessages = append(f.userMessages, text)
	return nil
}

func (f *fakeUpstream) SendToolOutput(callID, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolOutputs = append(f.toolOutputs, [2]string{callID, output})
	f.order = append(f.order, "tool_output:"+callID)
	return nil
}

func (f *fakeUpstream) SendResponseCreate(instructions string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responseCreates = append(f.responseCreates, instructions)
	f.order = append(f.order, "response_create")
	return nil
}

func (f *fakeUpstream) SendResponseCancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errCancel != nil {
		return f.errCancel
	}
	f.cancels++
	return nil
}

func (f *fakeUpstream) SendAudioAppend(b64 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, b64)
	return nil
}

func (f *fakeUpstream) SendBufferClear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errClear != nil {
		return f.errClear
	}
	f.bufferClears++
	return nil
}

func (f *fakeUpstream) SendItemTruncate(itemID string, contentIndex, audioEndMs int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errTruncate != nil {
		return f.errTruncate
	}
	f.truncates = append(f.truncates, truncateCall{itemID, contentIndex, audioEndMs})
	return nil
}

func (f *fakeUpstream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeUpstream) snapshotOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// fakeService extends fakeUpstream with a controllable event stream.
type fakeService struct {
	*fakeUpstream
	events chan voicelive.Event
}

func newFakeService() *fakeService {
	return &fakeService{
		fakeUpstream: newFakeUpstream(),
		events:       make(chan voicelive.Event, 64),
	}
}

func (f *fakeService) Events() <-chan voicelive.Event { return f.events }

// fakeDownstream records audio pushed toward the caller.
type fakeDownstream struct {
	mu     sync.Mutex
	audio  []string
	stops  int
	closed bool

	reads chan telephony.Message
	err   error
}

func newFakeDownstream() *fakeDownstream {
	return &fakeDownstream{reads: make(chan telephony.Message, 64)}
}

func (f *fakeDownstream) SendAudio(b64 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, b64)
	return nil
}

func (f *fakeDownstream) SendStopAudio() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeDownstream) Read() (telephony.Message, error) {
	msg, ok := <-f.reads
	if !ok {
		return telephony.Message{}, f.readErr()
	}
	return msg, nil
}

func (f *fakeDownstream) readErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return errConnClosed
}

func (f *fakeDownstream) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeDownstream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDownstream) sentAudio() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.audio...)
}

func (f *fakeDownstream) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}
