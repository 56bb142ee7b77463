package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/medtest-appointment-scheduling/internal/appointment"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

var ErrResultNotFound = errors.New("test result not found")

type Repository interface {
	// Record stores a result and marks its appointment completed in one transaction.
	Record(ctx context.Context, in NewResult) (*Recorded, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Detail, error)
	GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*Detail, error)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxPool interface {
	dbtx
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool pgxPool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func newPgRepositoryWithPool(pool pgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

const detailSelect = `
	SELECT r.id, r.appointment_id, r.test_id, r.patient_id, r.hospital_id, r.result_type,
	       r.numeric_results, r.text_results, r.status, r.priority, r.created_at, r.updated_at,
	       a.reference, a.appointment_date::text, a.time_slot,
	       h.id, h.name, h.phone, h.district,
	       t.id, t.name, t.category, t.price::float8, t.currency, t.duration
	FROM test_results r
	JOIN appointments a ON a.id = r.appointment_id
	JOIN hospitals h ON h.id = r.hospital_id
	JOIN medical_tests t ON t.id = r.test_id`

func scanDetail(row pgx.Row) (*Detail, error) {
	var (
		d                Detail
		numeric, text    []byte
		status, priority string
	)
	err := row.Scan(
		&d.ID,
		&d.AppointmentID,
		&d.TestID,
		&d.PatientID,
		&d.HospitalID,
		&d.ResultType,
		&numeric,
		&text,
		&status,
		&priority,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.Reference,
		&d.AppointmentDate,
		&d.TimeSlot,
		&d.Hospital.ID,
		&d.Hospital.Name,
		&d.Hospital.Phone,
		&d.Hospital.District,
		&d.Test.ID,
		&d.Test.Name,
		&d.Test.Category,
		&d.Test.Price,
		&d.Test.Currency,
		&d.Test.Duration,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	d.Status, d.Priority = Status(status), Priority(priority)
	d.NumericResults = []NumericResult{}
	d.TextResults = map[string]string{}
	if len(numeric) > 0 {
		if err := json.Unmarshal(numeric, &d.NumericResults); err != nil {
			return nil, fmt.Errorf("decode numeric results: %w", err)
		}
	}
	if len(text) > 0 {
		if err := json.Unmarshal(text, &d.TextResults); err != nil {
			return nil, fmt.Errorf("decode text results: %w", err)
		}
	}
	return &d, nil
}

func (r *PgRepository) Record(ctx context.Context, in NewResult) (*Recorded, error) {
	numeric, err := json.Marshal(in.NumericResults)
	if err != nil {
		return nil, err
	}
	text, err := json.Marshal(in.TextResults)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	rec, err := recordTx(ctx, tx, in, numeric, text)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return nil, errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return rec, nil
}

func recordTx(ctx context.Context, tx dbtx, in NewResult, numeric, text []byte) (*Recorded, error) {
	var (
		patientID, hospitalID, testID uuid.UUID
		status                        string
	)
	err := tx.QueryRow(ctx, `
		SELECT patient_id, hospital_id, test_id, status
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, in.AppointmentID).Scan(&patientID, &hospitalID, &testID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appointment.Status(status) == appointment.StatusCancelled {
		return nil, scheduling.NewValidationError("appointment_id", "Cannot record results for a cancelled appointment.")
	}

	id := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO test_results (id, appointment_id, test_id, patient_id, hospital_id, result_type,
		                          numeric_results, text_results, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, in.AppointmentID, testID, patientID, hospitalID, in.ResultType, numeric, text, string(in.Status), string(in.Priority))
	if err != nil {
		return nil, fmt.Errorf("insert test result: %w", err)
	}

	if appointment.Status(status) != appointment.StatusCompleted {
		if _, err := tx.Exec(ctx, `
			UPDATE appointments SET status = 'completed', updated_at = now()
			WHERE id = $1
		`, in.AppointmentID); err != nil {
			return nil, fmt.Errorf("complete appointment: %w", err)
		}
	}

	detail, err := scanDetail(tx.QueryRow(ctx, detailSelect+`
		WHERE r.id = $1
	`, id))
	if err != nil {
		return nil, fmt.Errorf("load test result: %w", err)
	}
	return &Recorded{Detail: *detail, PreviousAppointmentStatus: status}, nil
}

func (r *PgRepository) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+`
		WHERE r.patient_id = $1
		ORDER BY r.created_at DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list test results: %w", err)
	}
	defer rows.Close()

	result := []Detail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

// GetForPatient only matches results that belong to patientID.
func (r *PgRepository) GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*Detail, error) {
	return scanDetail(r.pool.QueryRow(ctx, detailSelect+`
		WHERE r.id = $1 AND r.patient_id = $2
	`, id, patientID))
}
