package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/lockstep/internal/sink"
)

// Store is the staging table shared by the producer jobs and publisher-job.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Stage inserts payloads for source in one transaction.
func (s *Store) Stage(ctx context.Context, source string, payloads []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stage: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, p := range payloads {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", source, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO staged_record(source, payload, staged_at) VALUES(?, ?, ?);
`, source, string(data), now); err != nil {
			return fmt.Errorf("stage %s record: %w", source, err)
		}
	}
	return tx.Commit()
}

// Unpublished returns up to limit records not yet published, oldest first.
func (s *Store) Unpublished(ctx context.Context, limit int) ([]sink.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source, payload, staged_at FROM staged_record
WHERE published_at IS NULL
ORDER BY id ASC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished: %w", err)
	}
	defer rows.Close()

	var out []sink.Record
	for rows.Next() {
		var (
			r               sink.Record
			payload, staged string
		)
		if err := rows.Scan(&r.ID, &r.Source, &payload, &staged); err != nil {
			return nil, fmt.Errorf("scan staged record: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		r.StagedAt, _ = time.Parse(time.RFC3339Nano, staged)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkPublished stamps ids as published. Already published rows keep
// their original stamp.
func (s *Store) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	if _, err := s.db.ExecContext(ctx, `
UPDATE staged_record SET published_at = ?
WHERE published_at IS NULL AND id IN (`+placeholders+`);
`, args...); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// Pending counts unpublished records.
func (s *Store) Pending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staged_record WHERE published_at IS NULL;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}
