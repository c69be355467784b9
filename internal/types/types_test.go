package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusComplete.Terminal())
	assert.True(t, StatusError.Terminal())
}

func TestResult_SilentTranscriptKeepsCompleteShape(t *testing.T) {
	job := Job{ID: "a", Status: StatusComplete, Result: CompleteResult(&Transcript{})}

	b, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.JSONEq(t, `""`, string(decoded.Result["text"]))
	assert.JSONEq(t, `[]`, string(decoded.Result["segments"]))
	assert.NotContains(t, decoded.Result, "error")
}

func TestResult_EmptyFailureGetsMessage(t *testing.T) {
	r := ErrorResult("")
	assert.Equal(t, DefaultFailure, r.Error)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"transcription failed"}`, string(b))
}

func TestResult_ShapesAreDistinct(t *testing.T) {
	complete, err := json.Marshal(CompleteResult(&Transcript{
		Text:     "hi",
		Language: "en",
		Segments: []Segment{{Start: 0, End: 1, Text: "hi"}},
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi","language":"en","segments":[{"start":0,"end":1,"text":"hi"}]}`, string(complete))

	failed, err := json.Marshal(ErrorResult("bad audio"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"bad audio"}`, string(failed))
}

func TestResult_DecodeStoredComplete(t *testing.T) {
	b, err := json.Marshal(CompleteResult(&Transcript{}))
	require.NoError(t, err)

	var r Result
	require.NoError(t, json.Unmarshal(b, &r))
	assert.NotNil(t, r.Segments)
	assert.Empty(t, r.Error)
}
