package patients

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This repository assumes the patients table from pkg/utils/schema.sql:
// phone is UNIQUE and calls reference patients with ON DELETE CASCADE.

const uniqueViolation = "23505"

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const patientColumns = `id, name, phone, age, language, custom_questions, patient_type, created_at`

func scanPatient(row interface{ Scan(...any) error }) (Patient, error) {
	var p Patient
	var age sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.Phone, &age, &p.Language, &p.CustomQuestions, &p.PatientType, &p.CreatedAt); err != nil {
		return Patient{}, err
	}
	if age.Valid {
		a := int(age.Int64)
		p.Age = &a
	}
	return p, nil
}

func nullAge(age *int) sql.NullInt64 {
	if age == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*age), Valid: true}
}

func (r *PostgresRepo) Create(ctx context.Context, p Patient) (Patient, error) {
	const q = `
INSERT INTO patients (name, phone, age, language, custom_questions, patient_type, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + patientColumns

	out, err := scanPatient(r.db.QueryRowContext(ctx, q, p.Name, p.Phone, nullAge(p.Age), p.Language, p.CustomQuestions, p.PatientType, p.CreatedAt))
	if err != nil {
		return Patient{}, mapErr(err)
	}
	return out, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (Patient, error) {
	const q = `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	p, err := scanPatient(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Patient{}, mapErr(err)
	}
	return p, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Patient, error) {
	const q = `SELECT ` + patientColumns + ` FROM patients ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, p Patient) (Patient, error) {
	const q = `
UPDATE patients
SET name = $2, phone = $3, age = $4, language = $5, custom_questions = $6, patient_type = $7
WHERE id = $1
RETURNING ` + patientColumns

	out, err := scanPatient(r.db.QueryRowContext(ctx, q, p.ID, p.Name, p.Phone, nullAge(p.Age), p.Language, p.CustomQuestions, p.PatientType))
	if err != nil {
		return Patient{}, mapErr(err)
	}
	return out, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicatePhone
	}
	return err
}
