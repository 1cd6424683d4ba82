package calls

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"patient-followup/pkg/utils"
)

// NOTE: This repository assumes the calls and transcripts tables from
// pkg/utils/schema.sql, including UNIQUE (transcripts.call_id).

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `id, patient_id, call_sid, status, duration, cost, started_at, ended_at`

func scanCall(row interface{ Scan(...any) error }) (Call, error) {
	var c Call
	var ended sql.NullTime
	if err := row.Scan(&c.ID, &c.PatientID, &c.CallSID, &c.Status, &c.Duration, &c.Cost, &c.StartedAt, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	if ended.Valid {
		t := ended.Time
		c.EndedAt = &t
	}
	return c, nil
}

func (r *PostgresRepo) Create(ctx context.Context, c Call) (Call, error) {
	const q = `
INSERT INTO calls (patient_id, call_sid, status, duration, cost, started_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING ` + callColumns
	return scanCall(r.db.QueryRowContext(ctx, q, c.PatientID, c.CallSID, c.Status, c.Duration, c.Cost, c.StartedAt))
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (Call, error) {
	return scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id))
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Call, error) {
	var where []string
	var args []any
	if f.PatientID > 0 {
		args = append(args, f.PatientID)
		where = append(where, "patient_id = $"+strconv.Itoa(len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, "started_at >= $"+strconv.Itoa(len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, "started_at < $"+strconv.Itoa(len(args)))
	}
	q := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SetCallSID(ctx context.Context, id int64, sid string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE calls SET call_sid = $2 WHERE id = $1`, id, sid)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *PostgresRepo) Transition(ctx context.Context, id int64, from, to Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE calls SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// Distinguish "wrong state" from "no such call".
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PostgresRepo) Finalize(ctx context.Context, f Finalization) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the call row to serialize finalizations across replicas.
		c, err := scanCall(tx.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1 FOR UPDATE`, f.CallID))
		if err != nil {
			return err
		}
		if !finalizable(c.Status) {
			return ErrInvalidState
		}

		const upd = `
UPDATE calls
SET status = $2, duration = $3, cost = $4, ended_at = $5
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, upd, f.CallID, StatusCompleted, f.Duration, f.Cost, f.EndedAt); err != nil {
			return err
		}

		t := f.Transcript
		const ups = `
INSERT INTO transcripts (
  call_id, full_transcript, summary, stt_cost, llm_cost, tts_cost, telephony_cost, needs_review, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$9
)
ON CONFLICT (call_id)
DO UPDATE SET full_transcript = EXCLUDED.full_transcript,
              summary = EXCLUDED.summary,
              stt_cost = EXCLUDED.stt_cost,
              llm_cost = EXCLUDED.llm_cost,
              tts_cost = EXCLUDED.tts_cost,
              telephony_cost = EXCLUDED.telephony_cost,
              needs_review = EXCLUDED.needs_review,
              updated_at = EXCLUDED.updated_at
`
		_, err = tx.ExecContext(ctx, ups,
			f.CallID,
			string(t.FullTranscript),
			string(t.Summary),
			t.STTCost,
			t.LLMCost,
			t.TTSCost,
			t.TelephonyCost,
			t.NeedsReview,
			f.EndedAt,
		)
		return err
	})
}

func (r *PostgresRepo) GetTranscript(ctx context.Context, callID int64) (Transcript, error) {
	const q = `
SELECT id, call_id, full_transcript, summary, stt_cost, llm_cost, tts_cost, telephony_cost, needs_review, created_at, updated_at
FROM transcripts
WHERE call_id = $1
`
	var t Transcript
	var full, sum string
	err := r.db.QueryRowContext(ctx, q, callID).Scan(
		&t.ID,
		&t.CallID,
		&full,
		&sum,
		&t.STTCost,
		&t.LLMCost,
		&t.TTSCost,
		&t.TelephonyCost,
		&t.NeedsReview,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transcript{}, ErrTranscriptNotFound
		}
		return Transcript{}, err
	}
	t.FullTranscript = []byte(full)
	t.Summary = []byte(sum)
	return t, nil
}

func (r *PostgresRepo) CountByPatient(ctx context.Context) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT patient_id, COUNT(*) FROM calls GROUP BY patient_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]int{}
	for rows.Next() {
		var pid int64
		var n int
		if err := rows.Scan(&pid, &n); err != nil {
			return nil, err
		}
		out[pid] = n
	}
	return out, rows.Err()
}

// DeleteByPatient deletes the calls explicitly; transcripts and events follow by cascade.
func (r *PostgresRepo) DeleteByPatient(ctx context.Context, patientID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM calls WHERE patient_id = $1 RETURNING id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
