package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/notifico-tech/notifico/pkg/models"
)

type subscriptionKey struct {
	recipientID uuid.UUID
	event       string
	channel     string
}

type credentialKey struct {
	projectID uuid.UUID
	name      string
}

// Memory is the in-memory reference implementation of every store contract.
// It backs the single-process deployment when no database is configured and
// the engine's unit tests. Safe for concurrent use.
type Memory struct {
	mu            sync.RWMutex
	pipelines     []models.Pipeline
	events        map[uuid.UUID]models.Event
	recipients    map[uuid.UUID]models.Recipient
	groupMembers  map[uuid.UUID][]uuid.UUID
	groupProjects map[uuid.UUID]uuid.UUID
	templates     map[uuid.UUID]map[string]models.Template
	credentials   map[credentialKey]models.Credential
	subscriptions map[subscriptionKey]bool
	apiKeys       map[uuid.UUID]uuid.UUID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events:        make(map[uuid.UUID]models.Event),
		recipients:    make(map[uuid.UUID]models.Recipient),
		groupMembers:  make(map[uuid.UUID][]uuid.UUID),
		groupProjects: make(map[uuid.UUID]uuid.UUID),
		templates:     make(map[uuid.UUID]map[string]models.Template),
		credentials:   make(map[credentialKey]models.Credential),
		subscriptions: make(map[subscriptionKey]bool),
		apiKeys:       make(map[uuid.UUID]uuid.UUID),
	}
}

// --- seeding ---

// AddEvent registers a named event.
func (m *Memory) AddEvent(e models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
}

// AddPipeline registers a pipeline.
func (m *Memory) AddPipeline(p models.Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines = append(m.pipelines, p)
}

// AddRecipient registers a recipient, deduplicating its contacts.
func (m *Memory) AddRecipient(r models.Recipient) {
	r.DedupContacts()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[r.ID] = r
}

// AddGroup registers a group and its member recipient ids (in order).
func (m *Memory) AddGroup(g models.Group, memberIDs []uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupProjects[g.ID] = g.ProjectID
	m.groupMembers[g.ID] = append([]uuid.UUID(nil), memberIDs...)
}

// AddTemplate registers a template under (project, name).
func (m *Memory) AddTemplate(t models.Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := m.templates[t.ProjectID]
	if byName == nil {
		byName = make(map[string]models.Template)
		m.templates[t.ProjectID] = byName
	}
	byName[t.Name] = t
}

// AddCredential registers a credential under (project, name).
func (m *Memory) AddCredential(c models.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[credentialKey{c.ProjectID, c.Name}] = c
}

// AddAPIKey registers a bearer key for a project.
func (m *Memory) AddAPIKey(k models.APIKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys[k.Key] = k.ProjectID
}

// RemoveAPIKey revokes a bearer key.
func (m *Memory) RemoveAPIKey(key uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.apiKeys, key)
}

// --- contracts ---

// PipelinesForEvent implements PipelineStore.
func (m *Memory) PipelinesForEvent(_ context.Context, projectID uuid.UUID, event string) ([]models.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Pipeline
	for _, p := range m.pipelines {
		if p.ProjectID != projectID {
			continue
		}
		for _, eid := range p.EventIDs {
			e, ok := m.events[eid]
			if ok && e.Name == event && e.ProjectID == projectID {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

// ResolveRecipients implements RecipientDirectory.
func (m *Memory) ResolveRecipients(_ context.Context, projectID, id uuid.UUID) ([]models.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.recipients[id]; ok {
		if r.ProjectID != projectID {
			return nil, ErrNotFound
		}
		return []models.Recipient{r}, nil
	}
	if gp, ok := m.groupProjects[id]; ok {
		if gp != projectID {
			return nil, ErrNotFound
		}
		members := m.groupMembers[id]
		out := make([]models.Recipient, 0, len(members))
		for _, rid := range members {
			if r, ok := m.recipients[rid]; ok && r.ProjectID == projectID {
				out = append(out, r)
			}
		}
		return out, nil
	}
	return nil, ErrNotFound
}

// TemplateByName implements TemplateSource.
func (m *Memory) TemplateByName(_ context.Context, projectID uuid.UUID, name string) (*models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if t, ok := m.templates[projectID][name]; ok {
		return &t, nil
	}
	return nil, ErrNotFound
}

// Credential implements CredentialStore: project scope first, then the
// global (uuid.Nil) project.
func (m *Memory) Credential(_ context.Context, projectID uuid.UUID, name string) (*models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.credentials[credentialKey{projectID, name}]; ok {
		return &c, nil
	}
	if projectID != uuid.Nil {
		if c, ok := m.credentials[credentialKey{uuid.Nil, name}]; ok {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// IsSubscribed implements SubscriptionStore. Absence of a record means
// subscribed.
func (m *Memory) IsSubscribed(_ context.Context, recipientID uuid.UUID, event, channel string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sub, ok := m.subscriptions[subscriptionKey{recipientID, event, channel}]; ok {
		return sub, nil
	}
	return true, nil
}

// SetSubscribed implements SubscriptionStore.
func (m *Memory) SetSubscribed(_ context.Context, recipientID uuid.UUID, event, channel string, subscribed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[subscriptionKey{recipientID, event, channel}] = subscribed
	return nil
}

// ResolveKey implements APIKeyStore.
func (m *Memory) ResolveKey(_ context.Context, key uuid.UUID) (uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if projectID, ok := m.apiKeys[key]; ok {
		return projectID, nil
	}
	return uuid.Nil, ErrInvalidAPIKey
}
