package voicelive

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMap(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &m))
	return m
}

func TestEncodeSessionUpdate(t *testing.T) {
	raw, err := encodeSessionUpdate(SessionConfig{
		Instructions:           "You are a helpdesk assistant.",
		Voice:                  VoiceConfig{Name: "en-US-Ava:DragonHDLatestNeural", Type: "azure-standard", Temperature: 0.8},
		TurnDetectionType:      "azure_semantic_vad",
		TurnDetectionThreshold: 0.3,
		SilenceDurationMs:      200,
		PrefixPaddingMs:        200,
		InputSamplingRate:      24000,
		Modalities:             []string{"text", "audio"},
		Tools: []ToolDef{{
			Type:        "function",
			Name:        "lookup_employee",
			Description: "Look up an employee record",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)

	m := decodeMap(t, raw)
	assert.Equal(t, "session.update", m["type"])

	session := m["session"].(map[string]any)
	td := session["turn_detection"].(map[string]any)
	assert.Equal(t, "azure_semantic_vad", td["type"])
	assert.Equal(t, 0.3, td["threshold"])
	assert.Equal(t, float64(200), td["silence_duration_ms"])
	assert.Equal(t, []any{"text", "audio"}, session["modalities"])

	tools := session["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup_employee", tools[0].(map[string]any)["name"])
}

func TestEncodeResponseCreateBare(t *testing.T) {
	raw, err := encodeResponseCreate("")
	require.NoError(t, err)

	m := decodeMap(t, raw)
	assert.Equal(t, "response.create", m["type"])
	assert.NotContains(t, m, "response")
}

func TestEncodeResponseCreateWithInstructions(t *testing.T) {
	raw, err := encodeResponseCreate("Summarize the verification result for the caller.")
	require.NoError(t, err)

	m := decodeMap(t, raw)
	resp := m["response"].(map[string]any)
	assert.Equal(t, "Summarize the verification result for the caller.", resp["instructions"])
}

func TestEncodeToolOutput(t *testing.T) {
	raw, err := encodeToolOutput("call_7", `{"success":true}`)
	require.NoError(t, err)

	m := decodeMap(t, raw)
	assert.Equal(t, "conversation.item.create", m["type"])

	item := m["item"].(map[string]any)
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "call_7", item["call_id"])
	assert.Equal(t, `{"success":true}`, item["output"])
	assert.NotContains(t, item, "content")
}

func TestEncodeUserMessage(t *testing.T) {
	raw, err := encodeUserMessage("Hello")
	require.NoError(t, err)

	m := decodeMap(t, raw)
	item := m["item"].(map[string]any)
	assert.Equal(t, "message", item["type"])
	assert.Equal(t, "user", item["role"])

	content := item["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "input_text", content[0].(map[string]any)["type"])
}

func TestEncodeItemTruncate(t *testing.T) {
	raw, err := encodeItemTruncate("item_9", 0, 1450)
	require.NoError(t, err)

	m := decodeMap(t, raw)
	assert.Equal(t, "conversation.item.truncate", m["type"])
	assert.Equal(t, "item_9", m["item_id"])
	assert.Equal(t, float64(0), m["content_index"])
	assert.Equal(t, float64(1450), m["audio_end_ms"])
}

func TestEncodeAudioAppend(t *testing.T) {
	raw, err := encodeAudioAppend("cGNt")
	require.NoError(t, err)

	m := decodeMap(t, raw)
	assert.Equal(t, "input_audio_buffer.append", m["type"])
	assert.Equal(t, "cGNt", m["audio"])
}
