package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gomarks/backend"
)

const retryColumns = `id, operation, entity_kind, payload, retry_count, max_retries, next_retry_at, last_error, created_at`

func scanRetry(row scanner) (*backend.RetryQueueEntry, error) {
	var e backend.RetryQueueEntry
	var op, kind, payload string
	var next, created int64
	if err := row.Scan(&e.ID, &op, &kind, &payload, &e.RetryCount, &e.MaxRetries, &next, &e.LastError, &created); err != nil {
		return nil, err
	}
	e.Operation = backend.RetryOperation(op)
	e.EntityKind = backend.EntityKind(kind)
	e.Payload = []byte(payload)
	e.NextRetryAt = fromMillis(next)
	e.CreatedAt = fromMillis(created)
	return &e, nil
}

// AddRetry stores a new retry entry. An empty ID is filled in.
func (t *Tx) AddRetry(e *backend.RetryQueueEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Operation == "" {
		e.Operation = backend.OpPush
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO retry_queue (id, owner_id, operation, entity_kind, payload, retry_count, max_retries,
		                         next_retry_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, t.ownerID, string(e.Operation), string(e.EntityKind), string(e.Payload), e.RetryCount, e.MaxRetries,
		toMillis(e.NextRetryAt), e.LastError, toMillis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add retry entry: %w", err)
	}
	return nil
}

// UpdateRetry saves the counters and error of an existing entry
func (t *Tx) UpdateRetry(e *backend.RetryQueueEntry) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE retry_queue SET retry_count = ?, next_retry_at = ?, last_error = ?
		WHERE owner_id = ? AND id = ?
	`, e.RetryCount, toMillis(e.NextRetryAt), e.LastError, t.ownerID, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update retry entry %s: %w", e.ID, err)
	}
	return nil
}

// DeleteRetry removes an entry
func (t *Tx) DeleteRetry(id string) error {
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM retry_queue WHERE owner_id = ? AND id = ?", t.ownerID, id); err != nil {
		return fmt.Errorf("failed to delete retry entry %s: %w", id, err)
	}
	return nil
}

// RetryEntries returns every entry for this owner ordered by next attempt
func (s *Store) RetryEntries(ctx context.Context) ([]backend.RetryQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+retryColumns+" FROM retry_queue WHERE owner_id = ? ORDER BY next_retry_at, created_at", s.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query retry queue: %w", err)
	}
	defer rows.Close()

	var out []backend.RetryQueueEntry
	for rows.Next() {
		e, err := scanRetry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retry entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ClearRetries drops every entry for this owner and returns how many were removed
func (s *Store) ClearRetries(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM retry_queue WHERE owner_id = ?", s.ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear retry queue: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
