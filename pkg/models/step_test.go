package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepTag(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		expectTag string
		expectErr bool
	}{
		{
			name:      "plain step",
			raw:       `{"step":"core.set_recipients","recipients":[]}`,
			expectTag: "core.set_recipients",
		},
		{
			name:      "transport step",
			raw:       `{"step":"telegram.send","credential":"default"}`,
			expectTag: "telegram.send",
		},
		{
			name:      "missing tag",
			raw:       `{"credential":"default"}`,
			expectErr: true,
		},
		{
			name:      "not an object",
			raw:       `[1,2,3]`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Step
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &s))
			tag, err := s.Tag()
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectTag, tag)
		})
	}
}

func TestStepRoundTripPreservesUnknownFields(t *testing.T) {
	raw := `{"step":"mystery.do","nested":{"a":[1,2,{"b":null}]},"flag":true}`

	var s Step
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestStepDecode(t *testing.T) {
	s := MustStep(map[string]any{
		"step":       "sub.check",
		"channel":    "email",
		"irrelevant": 42,
	})

	var payload struct {
		Channel string `json:"channel"`
	}
	require.NoError(t, s.Decode(&payload))
	assert.Equal(t, "email", payload.Channel)
}

func TestNewStepRejectsTaglessPayload(t *testing.T) {
	_, err := NewStep(map[string]any{"channel": "email"})
	assert.ErrorIs(t, err, ErrStepTagMissing)
}

func TestStepListClone(t *testing.T) {
	list := StepList{
		MustStep(map[string]any{"step": "a.one"}),
		MustStep(map[string]any{"step": "b.two"}),
	}

	clone := list.Clone()
	require.Len(t, clone, 2)

	// Truncating the clone must not affect the original.
	clone = clone[:1]
	assert.Len(t, list, 2)
	assert.Len(t, clone, 1)
}
