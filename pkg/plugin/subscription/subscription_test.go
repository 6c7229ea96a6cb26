package subscription

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifico-tech/notifico/pkg/auth"
	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/store"
)

func newContextWithRecipient(t *testing.T) *models.PipelineContext {
	t.Helper()
	pctx, err := models.NewPipelineContext(uuid.New(), uuid.New(), "weekly-digest", nil, nil)
	require.NoError(t, err)
	pctx.Recipient = &models.Recipient{
		ID:       uuid.Must(uuid.NewV7()),
		Contacts: []models.Contact{{Type: "email", Value: "ada@example.com"}},
	}
	return pctx
}

func TestCheckSubscribedByDefault(t *testing.T) {
	plugin := New(store.NewMemory(), auth.NewIssuer([]byte("secret")), "")
	pctx := newContextWithRecipient(t)
	step := models.MustStep(json.RawMessage(`{"step": "sub.check", "channel": "email"}`))

	outcome, err := plugin.Execute(context.Background(), pctx, step)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeContinue, outcome)
}

func TestCheckInterruptsWhenUnsubscribed(t *testing.T) {
	subs := store.NewMemory()
	plugin := New(subs, auth.NewIssuer([]byte("secret")), "")
	pctx := newContextWithRecipient(t)

	err := subs.SetSubscribed(context.Background(), pctx.Recipient.ID, "weekly-digest", "email", false)
	require.NoError(t, err)

	step := models.MustStep(json.RawMessage(`{"step": "sub.check", "channel": "email"}`))
	outcome, err := plugin.Execute(context.Background(), pctx, step)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeInterrupt, outcome)
}

func TestCheckOtherChannelUnaffected(t *testing.T) {
	subs := store.NewMemory()
	plugin := New(subs, auth.NewIssuer([]byte("secret")), "")
	pctx := newContextWithRecipient(t)

	require.NoError(t, subs.SetSubscribed(context.Background(), pctx.Recipient.ID, "weekly-digest", "telegram", false))

	step := models.MustStep(json.RawMessage(`{"step": "sub.check", "channel": "email"}`))
	outcome, err := plugin.Execute(context.Background(), pctx, step)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeContinue, outcome)
}

func TestCheckWithoutRecipient(t *testing.T) {
	plugin := New(store.NewMemory(), auth.NewIssuer([]byte("secret")), "")
	pctx, err := models.NewPipelineContext(uuid.New(), uuid.New(), "weekly-digest", nil, nil)
	require.NoError(t, err)

	step := models.MustStep(json.RawMessage(`{"step": "sub.check", "channel": "email"}`))
	_, err = plugin.Execute(context.Background(), pctx, step)
	require.ErrorIs(t, err, engine.ErrRecipientNotSet)
}

func TestListUnsubscribe(t *testing.T) {
	issuer := auth.NewIssuer([]byte("secret"))
	plugin := New(store.NewMemory(), issuer, "https://notify.example.com/")
	pctx := newContextWithRecipient(t)

	step := models.MustStep(json.RawMessage(`{"step": "sub.list_unsubscribe"}`))
	outcome, err := plugin.Execute(context.Background(), pctx, step)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeContinue, outcome)

	raw, ok := pctx.PluginContexts[ListUnsubscribeKey].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(raw, "<"))
	require.True(t, strings.HasSuffix(raw, ">"))

	parsed, err := url.Parse(strings.Trim(raw, "<>"))
	require.NoError(t, err)
	assert.Equal(t, "notify.example.com", parsed.Host)
	assert.Equal(t, "/api/public/v1/email/unsubscribe", parsed.Path)
	assert.Equal(t, "weekly-digest", parsed.Query().Get("event"))

	// The embedded token must verify under the unsubscribe scope and carry
	// the recipient id.
	claims, err := issuer.Verify(parsed.Query().Get("token"), auth.ScopeListUnsubscribe)
	require.NoError(t, err)
	id, err := claims.RecipientID()
	require.NoError(t, err)
	assert.Equal(t, pctx.Recipient.ID, id)
	assert.Equal(t, "weekly-digest", claims.Event)
}

func TestListUnsubscribeWithoutPublicURL(t *testing.T) {
	plugin := New(store.NewMemory(), auth.NewIssuer([]byte("secret")), "")
	pctx := newContextWithRecipient(t)

	step := models.MustStep(json.RawMessage(`{"step": "sub.list_unsubscribe"}`))
	_, err := plugin.Execute(context.Background(), pctx, step)
	require.ErrorIs(t, err, ErrPublicURLNotSet)
}

func TestListUnsubscribeWithoutRecipient(t *testing.T) {
	plugin := New(store.NewMemory(), auth.NewIssuer([]byte("secret")), "https://notify.example.com")
	pctx, err := models.NewPipelineContext(uuid.New(), uuid.New(), "weekly-digest", nil, nil)
	require.NoError(t, err)

	step := models.MustStep(json.RawMessage(`{"step": "sub.list_unsubscribe"}`))
	_, err = plugin.Execute(context.Background(), pctx, step)
	require.ErrorIs(t, err, engine.ErrRecipientNotSet)
}
