// Package telephony implements the media-streaming wire format spoken by the
// call platform over its WebSocket leg. Frames are small JSON envelopes
// discriminated by a "kind" field; audio payloads travel as base64 text.
package telephony

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Envelope kinds.
const (
	KindAudioData     = "AudioData"
	KindAudioMetadata = "AudioMetadata"
	KindStopAudio     = "StopAudio"
)

// Message is a decoded inbound frame. Data is the base64 audio payload when
// Kind is AudioData, empty otherwise.
type Message struct {
	Kind string
	Data string
}

type audioPayload struct {
	Data string `json:"data"`
}

type outEnvelope struct {
	Kind      string        `json:"kind"`
	AudioData *audioPayload `json:"audioData,omitempty"`
	StopAudio *struct{}     `json:"stopAudio,omitempty"`
}

// The platform has emitted both lower-camel and Pascal casing across API
// versions, so decoding accepts either.
type inEnvelope struct {
	Kind       string        `json:"kind"`
	KindUpper  string        `json:"Kind"`
	Audio      *audioPayload `json:"audioData"`
	AudioUpper *struct {
		Data      string `json:"data"`
		DataUpper string `json:"Data"`
	} `json:"AudioData"`
}

// Decode parses an inbound envelope. Unknown kinds decode successfully with
// an empty Data so callers can log and skip them.
func Decode(raw []byte) (Message, error) {
	var env inEnvelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("malformed media envelope: %w", err)
	}

	msg := Message{Kind: env.Kind}
	if msg.Kind == "" {
		msg.Kind = env.KindUpper
	}
	if msg.Kind == "" {
		return Message{}, fmt.Errorf("media envelope missing kind")
	}

	if env.Audio != nil {
		msg.Data = env.Audio.Data
	} else if env.AudioUpper != nil {
		msg.Data = env.AudioUpper.Data
		if msg.Data == "" {
			msg.Data = env.AudioUpper.DataUpper
		}
	}
	return msg, nil
}

// EncodeAudio builds an outbound AudioData frame carrying base64 audio.
func EncodeAudio(b64 string) ([]byte, error) {
	return sonic.Marshal(outEnvelope{
		Kind:      KindAudioData,
		AudioData: &audioPayload{Data: b64},
	})
}

// EncodeStop builds an outbound StopAudio frame, which tells the platform to
// flush any audio it has queued for playback.
func EncodeStop() ([]byte, error) {
	return sonic.Marshal(outEnvelope{
		Kind:      KindStopAudio,
		StopAudio: &struct{}{},
	})
}
