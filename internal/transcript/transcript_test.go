package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelopeTranscript(t *testing.T) {
	output := []byte(`{
		"success": true,
		"data": {
			"full_text": "hello there everyone",
			"segments": [
				{"start": 0.0, "end": 2.5, "duration": 2.5, "text": "hello there"},
				{"start": 2.5, "end": 4.0, "duration": 1.5, "text": "everyone"}
			],
			"type": "generated",
			"language": "en"
		}
	}`)

	var payload Transcript
	require.NoError(t, decodeEnvelope(output, "transcript", &payload))
	require.Len(t, payload.Segments, 2)
	assert.Equal(t, 2.5, payload.Segments[1].Start)
	assert.Equal(t, "everyone", payload.Segments[1].Text)
	assert.Equal(t, "generated", payload.Type)
}

func TestDecodeEnvelopeFailure(t *testing.T) {
	output := []byte(`{"success": false, "error": "Transcripts are disabled for this video"}`)

	var payload Transcript
	err := decodeEnvelope(output, "transcript", &payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	var payload Metadata
	assert.Error(t, decodeEnvelope([]byte("not json"), "metadata", &payload))
}

func TestDecodeEnvelopeStream(t *testing.T) {
	output := []byte(`{
		"success": true,
		"data": {"stream_url": "https://cdn.example/v.mp4", "duration": 630, "width": 1920, "height": 1080, "ext": "mp4"}
	}`)

	var payload StreamInfo
	require.NoError(t, decodeEnvelope(output, "stream", &payload))
	assert.Equal(t, "https://cdn.example/v.mp4", payload.StreamURL)
	assert.Equal(t, 1920, payload.Width)
}
