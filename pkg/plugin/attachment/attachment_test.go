package attachment

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
)

func contextWithMessages(t *testing.T, n int) *models.PipelineContext {
	t.Helper()
	pctx, err := models.NewPipelineContext(uuid.New(), uuid.New(), "welcome", nil, nil)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		pctx.Messages = append(pctx.Messages, models.Message{
			ID:      uuid.Must(uuid.NewV7()),
			Content: map[string]string{"body": "hello"},
		})
	}
	return pctx
}

func TestAttach(t *testing.T) {
	tests := []struct {
		name     string
		plugin   *Plugin
		payload  string
		messages int
		wantErr  error
		wantURLs []string
	}{
		{
			name:     "single https attachment to default message",
			plugin:   New(false),
			payload:  `{"step": "attachment.attach", "attachments": [{"url": "https://example.com/report.pdf", "file_name": "report.pdf"}]}`,
			messages: 1,
			wantURLs: []string{"https://example.com/report.pdf"},
		},
		{
			name:     "multiple attachments",
			plugin:   New(false),
			payload:  `{"step": "attachment.attach", "attachments": [{"url": "https://a.example/1.png"}, {"url": "http://b.example/2.png"}]}`,
			messages: 1,
			wantURLs: []string{"https://a.example/1.png", "http://b.example/2.png"},
		},
		{
			name:     "explicit message index",
			plugin:   New(false),
			payload:  `{"step": "attachment.attach", "message": 1, "attachments": [{"url": "https://example.com/x.txt"}]}`,
			messages: 2,
			wantURLs: []string{"https://example.com/x.txt"},
		},
		{
			name:     "message index out of bounds",
			plugin:   New(false),
			payload:  `{"step": "attachment.attach", "message": 3, "attachments": [{"url": "https://example.com/x.txt"}]}`,
			messages: 1,
			wantErr:  engine.ErrInvalidStepPayload,
		},
		{
			name:     "file scheme rejected by default",
			plugin:   New(false),
			payload:  `{"step": "attachment.attach", "attachments": [{"url": "file:///etc/passwd"}]}`,
			messages: 1,
			wantErr:  engine.ErrInvalidStepPayload,
		},
		{
			name:     "file scheme allowed when enabled",
			plugin:   New(true),
			payload:  `{"step": "attachment.attach", "attachments": [{"url": "file:///var/data/report.csv"}]}`,
			messages: 1,
			wantURLs: []string{"file:///var/data/report.csv"},
		},
		{
			name:     "unsupported scheme",
			plugin:   New(true),
			payload:  `{"step": "attachment.attach", "attachments": [{"url": "ftp://example.com/x"}]}`,
			messages: 1,
			wantErr:  engine.ErrInvalidStepPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pctx := contextWithMessages(t, tt.messages)
			step := models.MustStep(json.RawMessage(tt.payload))

			outcome, err := tt.plugin.Execute(context.Background(), pctx, step)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, engine.OutcomeContinue, outcome)

			idx := 0
			if len(pctx.Messages) > 1 {
				idx = 1
			}
			got := make([]string, 0, len(pctx.Messages[idx].Attachments))
			for _, att := range pctx.Messages[idx].Attachments {
				got = append(got, att.URL)
			}
			assert.Equal(t, tt.wantURLs, got)
		})
	}
}

func TestAttachEmptyList(t *testing.T) {
	pctx := contextWithMessages(t, 1)
	step := models.MustStep(json.RawMessage(`{"step": "attachment.attach", "attachments": []}`))

	outcome, err := New(false).Execute(context.Background(), pctx, step)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeContinue, outcome)
	assert.Empty(t, pctx.Messages[0].Attachments)
}
