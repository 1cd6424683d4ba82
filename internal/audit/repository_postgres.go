package audit

import (
	"context"
	"database/sql"
)

// NOTE: call_events is INSERT-only; rows go away only through the
// ON DELETE CASCADE from calls.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, call_id, type, from_status, to_status, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CallID, e.Type, e.FromStatus, e.ToStatus, e.Message, e.CreatedAt)
	return err
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID int64) ([]Event, error) {
	const q = `
SELECT id, call_id, type, from_status, to_status, message, created_at
FROM call_events
WHERE call_id = $1
ORDER BY created_at, id
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CallID, &e.Type, &e.FromStatus, &e.ToStatus, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
