package gotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
)

func TestSplitCredential(t *testing.T) {
	tests := []struct {
		credential string
		server     string
		token      string
		wantErr    bool
	}{
		{credential: "https://gotify.example.com/AbCdEf123", server: "https://gotify.example.com", token: "AbCdEf123"},
		{credential: "https://gotify.example.com/sub/AbCdEf123", server: "https://gotify.example.com/sub", token: "AbCdEf123"},
		{credential: "https://gotify.example.com/AbCdEf123/", server: "https://gotify.example.com", token: "AbCdEf123"},
		{credential: "not-a-url", wantErr: true},
		{credential: "https://gotify.example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.credential, func(t *testing.T) {
			server, token, err := splitCredential(tt.credential)
			if tt.wantErr {
				require.ErrorIs(t, err, engine.ErrInvalidCredentialFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.server, server)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestSendMessage(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Gotify-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	msg := models.Message{
		ID:      uuid.Must(uuid.NewV7()),
		Content: map[string]string{"title": "Backup", "body": "Backup finished"},
	}

	tr := New()
	err := tr.SendMessage(context.Background(), server.URL+"/AppToken1", models.Contact{}, msg, nil)
	require.NoError(t, err)

	assert.Equal(t, "/message", gotPath)
	assert.Equal(t, "AppToken1", gotKey)
	assert.Equal(t, "Backup", gotBody["title"])
	assert.Equal(t, "Backup finished", gotBody["message"])
}

func TestTransportIsContactless(t *testing.T) {
	tr := New()
	assert.False(t, tr.HasContacts())
	assert.False(t, tr.SupportsContact("email"))
}
