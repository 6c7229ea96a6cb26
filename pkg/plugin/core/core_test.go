package core

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/queue"
	"github.com/notifico-tech/notifico/pkg/store"
)

func newContext(t *testing.T, projectID uuid.UUID) *models.PipelineContext {
	t.Helper()
	steps := models.StepList{
		models.MustStep(map[string]any{"step": StepSetRecipients}),
		models.MustStep(map[string]any{"step": "telegram.send", "credential": "default"}),
	}
	pctx, err := models.NewPipelineContext(projectID, uuid.New(), "welcome", steps, nil)
	require.NoError(t, err)
	return pctx
}

func selectorStep(t *testing.T, selectors ...models.RecipientSelector) models.Step {
	t.Helper()
	step, err := models.NewStep(map[string]any{
		"step":       StepSetRecipients,
		"recipients": selectors,
	})
	require.NoError(t, err)
	return step
}

func receiveChildren(t *testing.T, q *queue.Memory) []*models.PipelineContext {
	t.Helper()
	var out []*models.PipelineContext
	for q.Depth() > 0 {
		d, err := q.Receive(context.Background())
		require.NoError(t, err)
		var pctx models.PipelineContext
		require.NoError(t, d.Item.Decode(&pctx))
		out = append(out, &pctx)
	}
	return out
}

func TestSingletonFastPath(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	q := queue.NewMemory(0)
	p := New(store.NewMemory(), q)

	recipient := models.Recipient{
		ID:       uuid.New(),
		Contacts: []models.Contact{{Type: "telegram", Value: "42"}},
	}
	pctx := newContext(t, projectID)

	outcome, err := p.Execute(ctx, pctx, selectorStep(t, models.SelectorInline(recipient)))
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeContinue, outcome)
	assert.Equal(t, 0, q.Depth(), "no children on the fast path")
	require.NotNil(t, pctx.Recipient)
	require.NotNil(t, pctx.Contact)
	assert.Equal(t, "42", pctx.Contact.Value)
}

func TestFanOutPerRecipientContactPair(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	q := queue.NewMemory(0)
	p := New(store.NewMemory(), q)

	r1 := models.Recipient{ID: uuid.New(), Contacts: []models.Contact{
		{Type: "email", Value: "a@b.c"},
		{Type: "telegram", Value: "1"},
	}}
	r2 := models.Recipient{ID: uuid.New(), Contacts: []models.Contact{
		{Type: "email", Value: "d@e.f"},
	}}
	pctx := newContext(t, projectID)
	parentNotification := pctx.NotificationID

	outcome, err := p.Execute(ctx, pctx,
		selectorStep(t, models.SelectorInline(r1), models.SelectorInline(r2)))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeInterrupt, outcome)

	children := receiveChildren(t, q)
	require.Len(t, children, 3)

	// Children carry distinct fresh notification ids and resume after the
	// fan-out step.
	seen := map[uuid.UUID]bool{}
	for _, child := range children {
		assert.Equal(t, pctx.StepNumber+1, child.StepNumber)
		assert.NotEqual(t, parentNotification, child.NotificationID)
		assert.False(t, seen[child.NotificationID])
		seen[child.NotificationID] = true
		require.NotNil(t, child.Recipient)
		require.NotNil(t, child.Contact)
	}

	// Recipient order, then contact order.
	assert.Equal(t, "a@b.c", children[0].Contact.Value)
	assert.Equal(t, "1", children[1].Contact.Value)
	assert.Equal(t, "d@e.f", children[2].Contact.Value)
}

func TestResolveByIDAndGroupExpansion(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()
	m := store.NewMemory()

	r1 := models.Recipient{ID: uuid.New(), ProjectID: projectID,
		Contacts: []models.Contact{{Type: "email", Value: "a@b.c"}}}
	r2 := models.Recipient{ID: uuid.New(), ProjectID: projectID,
		Contacts: []models.Contact{{Type: "email", Value: "d@e.f"}}}
	m.AddRecipient(r1)
	m.AddRecipient(r2)
	group := models.Group{ID: uuid.New(), ProjectID: projectID, Name: "team"}
	m.AddGroup(group, []uuid.UUID{r1.ID, r2.ID})

	q := queue.NewMemory(0)
	p := New(m, q)
	pctx := newContext(t, projectID)

	outcome, err := p.Execute(ctx, pctx, selectorStep(t, models.SelectorByID(group.ID)))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeInterrupt, outcome)

	children := receiveChildren(t, q)
	require.Len(t, children, 2)
	assert.Equal(t, r1.ID, children[0].Recipient.ID)
	assert.Equal(t, r2.ID, children[1].Recipient.ID)
}

func TestEmptyResolutionContinues(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(0)
	p := New(store.NewMemory(), q)
	pctx := newContext(t, uuid.New())

	// Unknown uuid selectors are skipped; empty result means continue.
	outcome, err := p.Execute(ctx, pctx, selectorStep(t, models.SelectorByID(uuid.New())))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeContinue, outcome)
	assert.Nil(t, pctx.Recipient)
	assert.Equal(t, 0, q.Depth())
}

func TestRecipientWithoutContactsEmitsNoChild(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(0)
	p := New(store.NewMemory(), q)
	pctx := newContext(t, uuid.New())

	withContacts := models.Recipient{ID: uuid.New(),
		Contacts: []models.Contact{{Type: "email", Value: "a@b.c"}, {Type: "tel", Value: "+1"}}}
	noContacts := models.Recipient{ID: uuid.New()}

	outcome, err := p.Execute(ctx, pctx,
		selectorStep(t, models.SelectorInline(withContacts), models.SelectorInline(noContacts)))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeInterrupt, outcome)
	assert.Len(t, receiveChildren(t, q), 2)
}

func TestQueueFailurePropagates(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(0)
	require.NoError(t, q.Close(ctx))
	p := New(store.NewMemory(), q)
	pctx := newContext(t, uuid.New())

	r := models.Recipient{ID: uuid.New(), Contacts: []models.Contact{
		{Type: "email", Value: "a@b.c"},
		{Type: "email", Value: "x@y.z"},
	}}
	_, err := p.Execute(ctx, pctx, selectorStep(t, models.SelectorInline(r)))
	assert.ErrorIs(t, err, engine.ErrQueueSend)
}
