package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RecordRepo reads and writes encrypted credential envelopes. It knows
// nothing about the envelope format; the vault's file backend owns the
// cryptography.
type RecordRepo struct {
	db *DB
}

func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// Put stores or replaces the envelope for sourceID. The upsert runs in a
// single implicit transaction: it either fully replaces the row or leaves
// the prior row intact.
func (r *RecordRepo) Put(ctx context.Context, sourceID string, envelope []byte) error {
	const query = `
		INSERT INTO credentials (source_id, envelope, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(source_id) DO UPDATE SET
			envelope = excluded.envelope,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := r.db.Writer.ExecContext(ctx, query, sourceID, envelope); err != nil {
		return fmt.Errorf("put credential record %q: %w", sourceID, err)
	}
	return nil
}

// Get returns the envelope for sourceID, or (nil, nil) when no row exists.
func (r *RecordRepo) Get(ctx context.Context, sourceID string) ([]byte, error) {
	const query = `SELECT envelope FROM credentials WHERE source_id = ?`

	var envelope []byte
	err := r.db.Reader.QueryRowContext(ctx, query, sourceID).Scan(&envelope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential record %q: %w", sourceID, err)
	}
	return envelope, nil
}

// Delete removes the row for sourceID and reports whether one existed.
func (r *RecordRepo) Delete(ctx context.Context, sourceID string) (bool, error) {
	const query = `DELETE FROM credentials WHERE source_id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, sourceID)
	if err != nil {
		return false, fmt.Errorf("delete credential record %q: %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credential record %q: %w", sourceID, err)
	}
	return n > 0, nil
}

// ListSourceIDs enumerates stored keys in stable order without touching
// envelope contents.
func (r *RecordRepo) ListSourceIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT source_id FROM credentials ORDER BY source_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credential records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan credential record: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credential records: %w", err)
	}
	return ids, nil
}
