package recap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/journalrecap/ai/core/llm"
)

func TestParsePatch_KeepsReplyOrder(t *testing.T) {
	patch, err := ParsePatch(`{"summary":"c","events":["a","b"]}`, llm.DefaultResponseFormat())
	require.NoError(t, err)

	assert.Equal(t, Patch{
		{Key: "summary", Value: "c"},
		{Key: "events", Value: []string{"a", "b"}},
	}, patch)
}

func TestParsePatch_IdentityRoundTrip(t *testing.T) {
	reply := `{"events":["🌅 Morning walk by the lake","☕ Coffee with Mia"],"summary":"A slow, sunny day 💛"}`
	patch, err := ParsePatch(reply, llm.DefaultResponseFormat())
	require.NoError(t, err)

	raw, err := json.Marshal(patch)
	require.NoError(t, err)
	assert.JSONEq(t, reply, string(raw))
	assert.Equal(t, `{"events":["🌅 Morning walk by the lake","☕ Coffee with Mia"],"summary":"A slow, sunny day 💛"}`, string(raw))
}

func TestParsePatch_WithoutSchema(t *testing.T) {
	patch, err := ParsePatch(`{"anything":"goes"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"anything"}, patch.Keys())
}

func TestParsePatch_EmptyList(t *testing.T) {
	patch, err := ParsePatch(`{"events":[],"summary":"s"}`, llm.DefaultResponseFormat())
	require.NoError(t, err)
	assert.Equal(t, []string{}, patch[0].Value)
}

func TestParsePatch_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Kind
	}{
		{name: "empty", text: "", want: KindMalformedResponse},
		{name: "prose", text: "Sure! Here is your summary.", want: KindMalformedResponse},
		{name: "truncated", text: `{"events":["a"`, want: KindMalformedResponse},
		{name: "scalar reply", text: `"summary"`, want: KindSchemaMismatch},
		{name: "null value", text: `{"events":[],"summary":null}`, want: KindSchemaMismatch},
		{name: "mixed list", text: `{"events":["a",1],"summary":"s"}`, want: KindSchemaMismatch},
		{name: "bool value", text: `{"events":[],"summary":true}`, want: KindSchemaMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePatch(tt.text, llm.DefaultResponseFormat())
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, Kind(""), KindOf(assert.AnError))
	assert.Equal(t, KindNoInput, KindOf(newError(KindNoInput, "x", nil)))
}

func TestError_Unwrap(t *testing.T) {
	err := newError(KindTransportError, "failed", assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "TransportError")
}
