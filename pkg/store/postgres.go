package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifico-tech/notifico/pkg/models"
)

// deliveriesChannel is the pg_notify channel the recorder emits on, so
// external consumers (the admin UI) can tail deliveries live.
const deliveriesChannel = "notifico_deliveries"

// Postgres implements the store contracts and the delivery recorder on top
// of a pgx connection pool. Schema management is out of scope; the expected
// tables are:
//
//	events            (id uuid pk, project_id uuid, name text,
//	                   unique (project_id, name))
//	pipelines         (id uuid pk, project_id uuid, steps jsonb)
//	pipeline_events   (pipeline_id uuid, event_id uuid,
//	                   unique (pipeline_id, event_id))
//	recipients        (id uuid pk, project_id uuid, extras jsonb,
//	                   contacts jsonb)
//	groups            (id uuid pk, project_id uuid, name text,
//	                   unique (project_id, name))
//	group_members     (group_id uuid, recipient_id uuid, position int)
//	templates         (id uuid pk, project_id uuid, channel text, name text,
//	                   parts jsonb, attachments jsonb, extras jsonb,
//	                   unique (project_id, name))
//	credentials       (project_id uuid, name text, transport text,
//	                   value text, unique (project_id, name))
//	subscriptions     (id uuid pk, recipient_id uuid, event text,
//	                   channel text, is_subscribed bool,
//	                   unique (recipient_id, event, channel))
//	api_keys          (id uuid pk, key uuid unique, project_id uuid,
//	                   description text, created_at timestamptz)
//	deliveries        (event_id uuid, notification_id uuid, message_id uuid,
//	                   transport text, contact_type text, contact_value text,
//	                   success bool, error text, at timestamptz)
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres connects a pool to the given URL and verifies it with a ping.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{
		pool:   pool,
		logger: slog.Default().With("component", "postgres-store"),
	}, nil
}

// Pool exposes the underlying pool for health checks.
func (s *Postgres) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Postgres) Close() { s.pool.Close() }

// PipelinesForEvent implements PipelineStore.
func (s *Postgres) PipelinesForEvent(ctx context.Context, projectID uuid.UUID, event string) ([]models.Pipeline, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT p.id, p.project_id, p.steps
		FROM pipelines p
		JOIN pipeline_events pe ON pe.pipeline_id = p.id
		JOIN events e ON e.id = pe.event_id
		WHERE p.project_id = $1 AND e.project_id = $1 AND e.name = $2
		ORDER BY p.id`,
		projectID, event)
	if err != nil {
		return nil, fmt.Errorf("pipeline query failed: %w", err)
	}
	defer rows.Close()

	var out []models.Pipeline
	for rows.Next() {
		var (
			p        models.Pipeline
			rawSteps []byte
		)
		if err := rows.Scan(&p.ID, &p.ProjectID, &rawSteps); err != nil {
			return nil, fmt.Errorf("pipeline scan failed: %w", err)
		}
		if err := json.Unmarshal(rawSteps, &p.Steps); err != nil {
			return nil, fmt.Errorf("malformed steps for pipeline %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolveRecipients implements RecipientDirectory: recipient id first, then
// group id with member expansion in member-position order.
func (s *Postgres) ResolveRecipients(ctx context.Context, projectID, id uuid.UUID) ([]models.Recipient, error) {
	r, err := s.scanRecipient(s.pool.QueryRow(ctx, `
		SELECT id, project_id, extras, contacts
		FROM recipients WHERE id = $1 AND project_id = $2`,
		id, projectID))
	if err == nil {
		return []models.Recipient{*r}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("recipient query failed: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.project_id, r.extras, r.contacts
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		JOIN recipients r ON r.id = gm.recipient_id
		WHERE g.id = $1 AND g.project_id = $2 AND r.project_id = $2
		ORDER BY gm.position`,
		id, projectID)
	if err != nil {
		return nil, fmt.Errorf("group member query failed: %w", err)
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		r, err := s.scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("group member scan failed: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		// Distinguish "empty group" from "no such id".
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1 AND project_id = $2)`,
			id, projectID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("group existence query failed: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
	}
	return out, nil
}

func (s *Postgres) scanRecipient(row pgx.Row) (*models.Recipient, error) {
	var (
		r                     models.Recipient
		rawExtras, rawContact []byte
	)
	if err := row.Scan(&r.ID, &r.ProjectID, &rawExtras, &rawContact); err != nil {
		return nil, err
	}
	if len(rawExtras) > 0 {
		if err := json.Unmarshal(rawExtras, &r.Extras); err != nil {
			return nil, fmt.Errorf("malformed extras for recipient %s: %w", r.ID, err)
		}
	}
	if len(rawContact) > 0 {
		if err := json.Unmarshal(rawContact, &r.Contacts); err != nil {
			return nil, fmt.Errorf("malformed contacts for recipient %s: %w", r.ID, err)
		}
	}
	r.DedupContacts()
	return &r, nil
}

// TemplateByName implements TemplateSource.
func (s *Postgres) TemplateByName(ctx context.Context, projectID uuid.UUID, name string) (*models.Template, error) {
	var (
		t                              models.Template
		rawParts, rawAttach, rawExtras []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, channel, name, parts, attachments, extras
		FROM templates WHERE project_id = $1 AND name = $2`,
		projectID, name).
		Scan(&t.ID, &t.ProjectID, &t.Channel, &t.Name, &rawParts, &rawAttach, &rawExtras)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("template query failed: %w", err)
	}
	if err := json.Unmarshal(rawParts, &t.Parts); err != nil {
		return nil, fmt.Errorf("malformed parts for template %s: %w", t.ID, err)
	}
	if len(rawAttach) > 0 {
		if err := json.Unmarshal(rawAttach, &t.Attachments); err != nil {
			return nil, fmt.Errorf("malformed attachments for template %s: %w", t.ID, err)
		}
	}
	if len(rawExtras) > 0 {
		if err := json.Unmarshal(rawExtras, &t.Extras); err != nil {
			return nil, fmt.Errorf("malformed extras for template %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

// Credential implements CredentialStore with the project-then-global
// fallback in a single query.
func (s *Postgres) Credential(ctx context.Context, projectID uuid.UUID, name string) (*models.Credential, error) {
	var c models.Credential
	err := s.pool.QueryRow(ctx, `
		SELECT project_id, name, transport, value
		FROM credentials
		WHERE name = $2 AND project_id IN ($1, '00000000-0000-0000-0000-000000000000')
		ORDER BY (project_id = $1) DESC
		LIMIT 1`,
		projectID, name).
		Scan(&c.ProjectID, &c.Name, &c.Transport, &c.Value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credential query failed: %w", err)
	}
	return &c, nil
}

// IsSubscribed implements SubscriptionStore.
func (s *Postgres) IsSubscribed(ctx context.Context, recipientID uuid.UUID, event, channel string) (bool, error) {
	var subscribed bool
	err := s.pool.QueryRow(ctx, `
		SELECT is_subscribed FROM subscriptions
		WHERE recipient_id = $1 AND event = $2 AND channel = $3`,
		recipientID, event, channel).Scan(&subscribed)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("subscription query failed: %w", err)
	}
	return subscribed, nil
}

// SetSubscribed implements SubscriptionStore via upsert.
func (s *Postgres) SetSubscribed(ctx context.Context, recipientID uuid.UUID, event, channel string, subscribed bool) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate subscription id: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, recipient_id, event, channel, is_subscribed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (recipient_id, event, channel)
		DO UPDATE SET is_subscribed = EXCLUDED.is_subscribed`,
		id, recipientID, event, channel, subscribed)
	if err != nil {
		return fmt.Errorf("subscription upsert failed: %w", err)
	}
	return nil
}

// ResolveKey implements APIKeyStore.
func (s *Postgres) ResolveKey(ctx context.Context, key uuid.UUID) (uuid.UUID, error) {
	var projectID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT project_id FROM api_keys WHERE key = $1`, key).Scan(&projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrInvalidAPIKey
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("api key query failed: %w", err)
	}
	return projectID, nil
}

// Record implements DeliveryRecorder: persist the attempt, then emit a
// pg_notify so live consumers see it without polling. Both are best-effort —
// a recording failure must not fail the sending step.
func (s *Postgres) Record(ctx context.Context, d Delivery) {
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries
			(event_id, notification_id, message_id, transport,
			 contact_type, contact_value, success, error, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.EventID, d.NotificationID, d.MessageID, d.Transport,
		d.ContactType, d.ContactValue, d.Success, d.Error, d.At)
	if err != nil {
		s.logger.Error("Failed to persist delivery record",
			"notification_id", d.NotificationID, "error", err)
		return
	}

	payload, err := json.Marshal(d)
	if err != nil {
		s.logger.Error("Failed to encode delivery notification", "error", err)
		return
	}
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, deliveriesChannel, string(payload)); err != nil {
		s.logger.Warn("Failed to notify delivery channel", "error", err)
	}
}
