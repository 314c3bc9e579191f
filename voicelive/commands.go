package voicelive

import "github.com/bytedance/sonic"

// ToolDef describes one function exposed to the model in the session
// configuration handshake. Parameters is a JSON Schema object.
type ToolDef struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SessionConfig is the payload of the session.update handshake sent right
// after connecting.
type SessionConfig struct {
	Instructions           string
	Voice                  VoiceConfig
	TurnDetectionType      string
	TurnDetectionThreshold float64
	SilenceDurationMs      int
	PrefixPaddingMs        int
	InputSamplingRate      int
	Modalities             []string
	Tools                  []ToolDef
}

type VoiceConfig struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Temperature float64 `json:"temperature,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type sessionBody struct {
	Instructions      string        `json:"instructions,omitempty"`
	InputSamplingRate int           `json:"input_audio_sampling_rate,omitempty"`
	TurnDetection     turnDetection `json:"turn_detection"`
	Voice             VoiceConfig   `json:"voice"`
	Modalities        []string      `json:"modalities,omitempty"`
	Tools             []ToolDef     `json:"tools,omitempty"`
}

func encodeSessionUpdate(cfg SessionConfig) ([]byte, error) {
	return sonic.Marshal(struct {
		Type    string      `json:"type"`
		Session sessionBody `json:"session"`
	}{
		Type: "session.update",
		Session: sessionBody{
			Instructions:      cfg.Instructions,
			InputSamplingRate: cfg.InputSamplingRate,
			TurnDetection: turnDetection{
				Type:              cfg.TurnDetectionType,
				Threshold:         cfg.TurnDetectionThreshold,
				PrefixPaddingMs:   cfg.PrefixPaddingMs,
				SilenceDurationMs: cfg.SilenceDurationMs,
			},
			Voice:      cfg.Voice,
			Modalities: cfg.Modalities,
			Tools:      cfg.Tools,
		},
	})
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
	Content []contentPart `json:"content,omitempty"`
}

type itemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

// encodeUserMessage builds a conversation.item.create carrying user text,
// used to seed the opening greeting turn.
func encodeUserMessage(text string) ([]byte, error) {
	return sonic.Marshal(itemCreate{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:    "message",
			Role:    "user",
			Content: []contentPart{{Type: "input_text", Text: text}},
		},
	})
}

// encodeToolOutput builds a conversation.item.create carrying a
// function_call_output item for the given call.
func encodeToolOutput(callID, output string) ([]byte, error) {
	return sonic.Marshal(itemCreate{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
}

type responsePrefs struct {
	Instructions string `json:"instructions,omitempty"`
}

// encodeResponseCreate builds a response.create. Instructions, when present,
// steer only the requested response.
func encodeResponseCreate(instructions string) ([]byte, error) {
	if instructions == "" {
		return sonic.Marshal(struct {
			Type string `json:"type"`
		}{Type: "response.create"})
	}
	return sonic.Marshal(struct {
		Type     string        `json:"type"`
		Response responsePrefs `json:"response"`
	}{
		Type:     "response.create",
		Response: responsePrefs{Instructions: instructions},
	})
}

func encodeResponseCancel() ([]byte, error) {
	return sonic.Marshal(struct {
		Type string `json:"type"`
	}{Type: "response.cancel"})
}

func encodeAudioAppend(b64 string) ([]byte, error) {
	return sonic.Marshal(struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}{Type: "input_audio_buffer.append", Audio: b64})
}

func encodeBufferClear() ([]byte, error) {
	return sonic.Marshal(struct {
		Type string `json:"type"`
	}{Type: "input_audio_buffer.clear"})
}

func encodeItemTruncate(itemID string, contentIndex, audioEndMs int) ([]byte, error) {
	return sonic.Marshal(struct {
		Type         string `json:"type"`
		ItemID       string `json:"item_id"`
		ContentIndex int    `json:"content_index"`
		AudioEndMs   int    `json:"audio_end_ms"`
	}{
		Type:         "conversation.item.truncate",
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMs:   audioEndMs,
	})
}
