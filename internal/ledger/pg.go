package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vorpalhq/vorpal/internal/models"
)

// PGStore persists audit events in Postgres. Appends take a transaction-
// scoped advisory lock on the chain scope, so two concurrent appends to the
// same chain serialize and the loser observes the moved head.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PGStore) Head(ctx context.Context, scope string) (string, error) {
	var h sql.NullString
	q := `SELECT event_hash FROM audit_events WHERE chain_scope = $1 ORDER BY ts DESC, id DESC LIMIT 1`
	if err := p.db.QueryRowContext(ctx, q, scope).Scan(&h); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	if !h.Valid {
		return "", nil
	}
	return h.String, nil
}

func (p *PGStore) Append(ctx context.Context, ev *models.AuditEvent, expectedPrev string) error {
	scope := ev.ChainScope()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	// Serializes appends per chain; released on commit/rollback.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope); err != nil {
		return fmt.Errorf("acquire chain lock: %w", err)
	}

	var head sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT event_hash FROM audit_events WHERE chain_scope = $1 ORDER BY ts DESC, id DESC LIMIT 1`,
		scope).Scan(&head)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read chain head: %w", err)
	}
	if head.String != expectedPrev {
		return ErrChainConflict
	}

	detailsJSON, err := marshalDetails(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	var resourceType, resourceID sql.NullString
	if ev.Resource != nil {
		resourceType = sql.NullString{String: ev.Resource.Type, Valid: true}
		if ev.Resource.ID != "" {
			resourceID = sql.NullString{String: ev.Resource.ID, Valid: true}
		}
	}
	var systemID sql.NullString
	if ev.SystemID != nil {
		systemID = sql.NullString{String: *ev.SystemID, Valid: true}
	}

	q := `
		INSERT INTO audit_events
		  (id, chain_scope, system_id, event_type, actor_id, actor_type, actor_name,
		   action, resource_type, resource_id, details, ip_address, user_agent,
		   request_id, previous_hash, event_hash, ts, stream_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,'pending')
	`
	_, err = tx.ExecContext(ctx, q,
		ev.ID,
		scope,
		systemID,
		ev.EventType,
		nullStr(ev.Actor.ID),
		string(ev.Actor.Type),
		nullStr(ev.Actor.DisplayName),
		ev.Action,
		resourceType,
		resourceID,
		detailsJSON,
		nullStr(ev.IPAddress),
		nullStr(ev.UserAgent),
		nullStr(ev.RequestID),
		nullStr(ev.PreviousHash),
		ev.EventHash,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit_event: %w", err)
	}
	return tx.Commit()
}

const eventColumns = `id, system_id, event_type, actor_id, actor_type, actor_name,
	action, resource_type, resource_id, details, ip_address, user_agent,
	request_id, previous_hash, event_hash, ts`

func (p *PGStore) Get(ctx context.Context, id string) (*models.AuditEvent, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit_event: %w", err)
	}
	return ev, nil
}

func (p *PGStore) Scan(ctx context.Context, f Filter) ([]models.AuditEvent, error) {
	where, args := filterClauses(f)
	order := "ts ASC, id ASC"
	if f.Descending {
		order = "ts DESC, id DESC"
	}
	q := `SELECT ` + eventColumns + ` FROM audit_events` + where + ` ORDER BY ` + order
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("scan audit_events: %w", err)
	}
	defer rows.Close()

	events := make([]models.AuditEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (p *PGStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := filterClauses(f)
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit_events: %w", err)
	}
	return n, nil
}

func (p *PGStore) Scopes(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT chain_scope FROM audit_events ORDER BY chain_scope`)
	if err != nil {
		return nil, fmt.Errorf("list chain scopes: %w", err)
	}
	defer rows.Close()
	var scopes []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}

// FetchPendingEvents claims up to limit events whose stream_status is
// pending or failed, marking them in_progress under FOR UPDATE SKIP LOCKED
// so concurrent streamer instances never claim the same row.
func (p *PGStore) FetchPendingEvents(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	q := `
		SELECT ` + eventColumns + `
		FROM audit_events
		WHERE stream_status IN ('pending','failed')
		ORDER BY ts ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending events: %w", err)
	}
	var events []models.AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range events {
		_, err := tx.ExecContext(ctx,
			`UPDATE audit_events SET stream_status = 'in_progress', stream_attempts = stream_attempts + 1 WHERE id = $1`,
			events[i].ID)
		if err != nil {
			return nil, fmt.Errorf("claim event %s: %w", events[i].ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return events, nil
}

// MarkStreamResult records the outcome of streaming one event. Success
// stores the archive object key; failure stores the error and returns the
// row to the failed state so it is retried.
func (p *PGStore) MarkStreamResult(ctx context.Context, id string, objectKey sql.NullString, ok bool, streamErr sql.NullString) error {
	var err error
	if ok {
		_, err = p.db.ExecContext(ctx,
			`UPDATE audit_events SET stream_status = 'streamed', streamed_at = NOW(), s3_object_key = $1, last_stream_error = NULL WHERE id = $2`,
			objectKey, id)
	} else {
		_, err = p.db.ExecContext(ctx,
			`UPDATE audit_events SET stream_status = 'failed', last_stream_error = $1 WHERE id = $2`,
			streamErr, id)
	}
	return err
}

func filterClauses(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Scope != nil {
		add("chain_scope = $%d", *f.Scope)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.From != nil {
		add("ts >= $%d", *f.From)
	}
	if f.To != nil {
		add("ts <= $%d", *f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.AuditEvent, error) {
	var (
		ev                              models.AuditEvent
		systemID, actorID, actorName    sql.NullString
		resourceType, resourceID        sql.NullString
		ipAddress, userAgent, requestID sql.NullString
		previousHash                    sql.NullString
		actorType                       string
		detailsBytes                    []byte
		ts                              time.Time
	)
	err := row.Scan(
		&ev.ID, &systemID, &ev.EventType, &actorID, &actorType, &actorName,
		&ev.Action, &resourceType, &resourceID, &detailsBytes, &ipAddress,
		&userAgent, &requestID, &previousHash, &ev.EventHash, &ts,
	)
	if err != nil {
		return nil, err
	}
	if systemID.Valid {
		ev.SystemID = &systemID.String
	}
	ev.Actor = models.Actor{
		ID:          actorID.String,
		Type:        models.ActorType(actorType),
		DisplayName: actorName.String,
	}
	if resourceType.Valid {
		ev.Resource = &models.Resource{Type: resourceType.String, ID: resourceID.String}
	}
	if len(detailsBytes) > 0 && string(detailsBytes) != "null" {
		// UseNumber keeps detail numbers textual, so hash recomputation
		// over reloaded events sees the same canonical bytes as append.
		dec := json.NewDecoder(bytes.NewReader(detailsBytes))
		dec.UseNumber()
		if err := dec.Decode(&ev.Details); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	ev.IPAddress = ipAddress.String
	ev.UserAgent = userAgent.String
	ev.RequestID = requestID.String
	ev.PreviousHash = previousHash.String
	ev.Timestamp = ts.UTC()
	return &ev, nil
}

func marshalDetails(details map[string]interface{}) ([]byte, error) {
	if details == nil {
		return []byte("null"), nil
	}
	return json.Marshal(details)
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
