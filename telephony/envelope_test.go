package telephony

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLowerCamel(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"AudioData","audioData":{"data":"c2lsZW5jZQ=="}}`))
	require.NoError(t, err)
	assert.Equal(t, KindAudioData, msg.Kind)
	assert.Equal(t, "c2lsZW5jZQ==", msg.Data)
}

func TestDecodePascalCase(t *testing.T) {
	msg, err := Decode([]byte(`{"Kind":"AudioData","AudioData":{"Data":"cGNt"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindAudioData, msg.Kind)
	assert.Equal(t, "cGNt", msg.Data)
}

func TestDecodeMixedCasePayload(t *testing.T) {
	msg, err := Decode([]byte(`{"Kind":"AudioData","AudioData":{"data":"cGNt"}}`))
	require.NoError(t, err)
	assert.Equal(t, "cGNt", msg.Data)
}

func TestDecodeStopAudio(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"StopAudio"}`))
	require.NoError(t, err)
	assert.Equal(t, KindStopAudio, msg.Kind)
	assert.Empty(t, msg.Data)
}

func TestDecodeUnknownKind(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"DtmfData","dtmfData":{"data":"5"}}`))
	require.NoError(t, err)
	assert.Equal(t, "DtmfData", msg.Kind)
}

func TestDecodeMissingKind(t *testing.T) {
	_, err := Decode([]byte(`{"audioData":{"data":"cGNt"}}`))
	assert.Error(t, err)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"kind":`))
	assert.Error(t, err)
}

func TestEncodeAudioRoundTrip(t *testing.T) {
	frame, err := EncodeAudio("cGNt")
	require.NoError(t, err)

	msg, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, KindAudioData, msg.Kind)
	assert.Equal(t, "cGNt", msg.Data)
}

func TestEncodeStopOmitsAudio(t *testing.T) {
	frame, err := EncodeStop()
	require.NoError(t, err)
	assert.NotContains(t, string(frame), "audioData")

	msg, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, KindStopAudio, msg.Kind)
}
