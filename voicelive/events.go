// Package voicelive speaks the realtime voice-service protocol: a WebSocket
// carrying JSON events discriminated by a "type" field, with audio as base64
// PCM16 inside event payloads.
package voicelive

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Server event type strings.
const (
	TypeSessionCreated    = "session.created"
	TypeSessionUpdated    = "session.updated"
	TypeItemCreated       = "conversation.item.created"
	TypeResponseCreated   = "response.created"
	TypeResponseDone      = "response.done"
	TypeResponseCancelled = "response.cancelled"
	TypeAudioDelta        = "response.audio.delta"
	TypeTranscriptDelta   = "response.audio_transcript.delta"
	TypeTranscriptDone    = "response.audio_transcript.done"
	TypeSpeechStarted     = "input_audio_buffer.speech_started"
	TypeSpeechStopped     = "input_audio_buffer.speech_stopped"
	TypeFunctionArgsDelta = "response.function_call_arguments.delta"
	TypeFunctionArgsDone  = "response.function_call_arguments.done"
	TypeError             = "error"
)

// Event is any decoded server event.
type Event interface {
	EventType() string
}

// SessionInfo is the session object in session.created/updated.
type SessionInfo struct {
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
}

type SessionCreated struct {
	Type    string      `json:"type"`
	Session SessionInfo `json:"session"`
}

type SessionUpdated struct {
	Type    string      `json:"type"`
	Session SessionInfo `json:"session"`
}

// ItemInfo is the conversation item object carried by item events.
type ItemInfo struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Role string `json:"role,omitempty"`
}

type ItemCreated struct {
	Type string   `json:"type"`
	Item ItemInfo `json:"item"`
}

// ResponseInfo is the response object carried by response lifecycle events.
type ResponseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

type ResponseCreated struct {
	Type     string       `json:"type"`
	Response ResponseInfo `json:"response"`
}

type ResponseDone struct {
	Type     string       `json:"type"`
	Response ResponseInfo `json:"response"`
}

type ResponseCancelled struct {
	Type     string       `json:"type"`
	Response ResponseInfo `json:"response"`
}

// AudioDelta carries one chunk of base64 PCM16 output audio.
type AudioDelta struct {
	Type         string `json:"type"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type TranscriptDelta struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

type TranscriptDone struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type SpeechStarted struct {
	Type         string `json:"type"`
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type SpeechStopped struct {
	Type       string `json:"type"`
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

// FunctionArgsDone signals a completed tool invocation request. Arguments is
// the raw JSON string accumulated server-side; argument deltas are not
// surfaced, only this terminal event.
type FunctionArgsDone struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
}

// ErrorDetail is the error object inside an error event.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type ErrorEvent struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// UnknownEvent wraps event types this controller has no handling for. The
// raw bytes are kept for debug logging.
type UnknownEvent struct {
	Type string
	Raw  []byte
}

func (e *SessionCreated) EventType() string    { return TypeSessionCreated }
func (e *SessionUpdated) EventType() string    { return TypeSessionUpdated }
func (e *ItemCreated) EventType() string       { return TypeItemCreated }
func (e *ResponseCreated) EventType() string   { return TypeResponseCreated }
func (e *ResponseDone) EventType() string      { return TypeResponseDone }
func (e *ResponseCancelled) EventType() string { return TypeResponseCancelled }
func (e *AudioDelta) EventType() string        { return TypeAudioDelta }
func (e *TranscriptDelta) EventType() string   { return TypeTranscriptDelta }
func (e *TranscriptDone) EventType() string    { return TypeTranscriptDone }
func (e *SpeechStarted) EventType() string     { return TypeSpeechStarted }
func (e *SpeechStopped) EventType() string     { return TypeSpeechStopped }
func (e *FunctionArgsDone) EventType() string  { return TypeFunctionArgsDone }
func (e *ErrorEvent) EventType() string        { return TypeError }
func (e *UnknownEvent) EventType() string      { return e.Type }

// DecodeEvent sniffs the envelope type and unmarshals the matching struct.
// Unrecognized types come back as *UnknownEvent rather than an error so
// protocol additions never break the event loop.
func DecodeEvent(raw []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("event missing type")
	}

	var ev Event
	switch head.Type {
	case TypeSessionCreated:
		ev = &SessionCreated{}
	case TypeSessionUpdated:
		ev = &SessionUpdated{}
	case TypeItemCreated:
		ev = &ItemCreated{}
	case TypeResponseCreated:
		ev = &ResponseCreated{}
	case TypeResponseDone:
		ev = &ResponseDone{}
	case TypeResponseCancelled:
		ev = &ResponseCancelled{}
	case TypeAudioDelta:
		ev = &AudioDelta{}
	case TypeTranscriptDelta:
		ev = &TranscriptDelta{}
	case TypeTranscriptDone:
		ev = &TranscriptDone{}
	case TypeSpeechStarted:
		ev = &SpeechStarted{}
	case TypeSpeechStopped:
		ev = &SpeechStopped{}
	case TypeFunctionArgsDone:
		ev = &FunctionArgsDone{}
	case TypeError:
		ev = &ErrorEvent{}
	default:
		return &UnknownEvent{Type: head.Type, Raw: raw}, nil
	}

	if err := sonic.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("malformed %s event: %w", head.Type, err)
	}
	return ev, nil
}
