package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
	"github.com/hackgods/medtest-appointment-scheduling/internal/reference"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgUndefinedTable      = "42P01"

	constraintReference  = "appointments_reference_key"
	constraintActiveSlot = "appointments_active_slot_idx"
	constraintHospitalFK = "appointments_hospital_id_fkey"
	constraintTestFK     = "appointments_test_id_fkey"
	constraintPatientFK  = "appointments_patient_id_fkey"
)

// dbtx is satisfied by both the pool and a transaction.
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

func (r *PgRepository) WithinTx(ctx context.Context, fn func(uow UnitOfWork) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&pgUnitOfWork{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

const appointmentColumns = `a.id, a.reference, a.patient_id, a.hospital_id, a.test_id, a.appointment_date::text,
	a.time_slot, a.status, a.patient_name, a.patient_phone, a.created_at, a.updated_at`

const detailSelect = `
	SELECT ` + appointmentColumns + `,
	       h.id, h.name, h.phone, h.district,
	       t.id, t.name, t.category, t.price::float8, t.currency, t.duration
	FROM appointments a
	JOIN hospitals h ON h.id = a.hospital_id
	JOIN medical_tests t ON t.id = a.test_id`

func appointmentDest(a *Appointment, status *string) []any {
	return []any{
		&a.ID,
		&a.Reference,
		&a.PatientID,
		&a.HospitalID,
		&a.TestID,
		&a.AppointmentDate,
		&a.TimeSlot,
		status,
		&a.PatientName,
		&a.PatientPhone,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	if err := row.Scan(appointmentDest(&a, &status)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var status string

	dest := appointmentDest(&d.Appointment, &status)
	dest = append(dest,
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

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	d.Status = Status(status)
	return &d, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func pgErrorCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// mapWriteError turns constraint violations on appointments into domain errors.
func mapWriteError(err error) error {
	code, constraint := pgErrorCode(err)
	switch {
	case code == pgUniqueViolation && constraint == constraintReference:
		return scheduling.NewReferenceCollisionError()
	case code == pgUniqueViolation && constraint == constraintActiveSlot:
		return scheduling.NewConflictError("Selected time overlaps with another appointment at this hospital. Please choose a different time.")
	case code == pgForeignKeyViolation && constraint == constraintHospitalFK:
		return catalog.ErrHospitalNotFound
	case code == pgForeignKeyViolation && constraint == constraintTestFK:
		return catalog.ErrTestNotFound
	case code == pgForeignKeyViolation && constraint == constraintPatientFK:
		return ErrPatientNotFound
	}
	return err
}

// withSavepoint runs fn so that its failure leaves the surrounding transaction usable.
func withSavepoint(ctx context.Context, q dbtx, name string, fn func() error) error {
	if _, err := q.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(); err != nil {
		if _, rbErr := q.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint %s: %w", name, rbErr))
		}
		return err
	}
	if _, err := q.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

// Queries shared by the pool and the unit of work

func getTestDuration(ctx context.Context, q dbtx, hospitalID, testID uuid.UUID) (*string, error) {
	var duration *string
	err := q.QueryRow(ctx, `
		SELECT duration
		FROM medical_tests
		WHERE id = $1 AND hospital_id = $2
	`, testID, hospitalID).Scan(&duration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrTestNotFound
		}
		return nil, fmt.Errorf("load test duration: %w", err)
	}
	return duration, nil
}

func listActiveBookings(ctx context.Context, q dbtx, hospitalID uuid.UUID, date string) ([]scheduling.Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT a.id::text, a.time_slot, COALESCE(t.duration, '')
		FROM appointments a
		LEFT JOIN medical_tests t ON t.id = a.test_id
		WHERE a.hospital_id = $1
		  AND a.appointment_date = $2::date
		  AND a.status <> 'cancelled'
		ORDER BY a.time_slot
	`, hospitalID, date)
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	defer rows.Close()

	var bookings []scheduling.Booking
	for rows.Next() {
		var b scheduling.Booking
		if err := rows.Scan(&b.ID, &b.TimeSlot, &b.TestDuration); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func getAppointmentDetail(ctx context.Context, q dbtx, id uuid.UUID) (*AppointmentDetail, error) {
	return scanDetail(q.QueryRow(ctx, detailSelect+`
		WHERE a.id = $1
	`, id))
}

// Interface methods

func (r *PgRepository) GetTestDuration(ctx context.Context, hospitalID, testID uuid.UUID) (*string, error) {
	return getTestDuration(ctx, r.pool, hospitalID, testID)
}

func (r *PgRepository) ListActiveBookings(ctx context.Context, hospitalID uuid.UUID, date string) ([]scheduling.Booking, error) {
	return listActiveBookings(ctx, r.pool, hospitalID, date)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return getAppointmentDetail(ctx, r.pool, id)
}

func (r *PgRepository) GetAppointmentByReference(ctx context.Context, ref string) (*AppointmentDetail, error) {
	return scanDetail(r.pool.QueryRow(ctx, detailSelect+`
		WHERE a.reference = $1
	`, ref))
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+`
		WHERE a.patient_id = $1
		ORDER BY a.appointment_date DESC, a.time_slot DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]AppointmentDetail, int, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE ($1::text IS NULL OR status = $1)
	`, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	rows, err := r.pool.Query(ctx, detailSelect+`
		WHERE ($1::text IS NULL OR a.status = $1)
		ORDER BY a.created_at DESC
		LIMIT $2 OFFSET $3
	`, status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	details, err := collectDetails(rows)
	if err != nil {
		return nil, 0, err
	}
	return details, total, nil
}

// Unit of work

type pgUnitOfWork struct {
	q dbtx
}

func (u *pgUnitOfWork) LockHospitalDay(ctx context.Context, hospitalID uuid.UUID, date string) error {
	_, err := u.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1 || '|' || $2, 0))`, hospitalID.String(), date)
	if err != nil {
		return fmt.Errorf("advisory lock hospital day: %w", err)
	}
	return nil
}

func (u *pgUnitOfWork) GetTestDuration(ctx context.Context, hospitalID, testID uuid.UUID) (*string, error) {
	return getTestDuration(ctx, u.q, hospitalID, testID)
}

func (u *pgUnitOfWork) ListActiveBookings(ctx context.Context, hospitalID uuid.UUID, date string) ([]scheduling.Booking, error) {
	return listActiveBookings(ctx, u.q, hospitalID, date)
}

func (u *pgUnitOfWork) NextReferenceSequence(ctx context.Context) (int64, error) {
	var n int64
	err := withSavepoint(ctx, u.q, "reference_seq", func() error {
		return u.q.QueryRow(ctx, `SELECT nextval('appointment_ref_seq')`).Scan(&n)
	})
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgUndefinedTable {
			return 0, reference.ErrSequenceUnavailable
		}
		return 0, err
	}
	return n, nil
}

func (u *pgUnitOfWork) LatestReference(ctx context.Context, prefix string) (string, error) {
	var ref string
	err := withSavepoint(ctx, u.q, "reference_latest", func() error {
		err := u.q.QueryRow(ctx, `
			SELECT reference
			FROM appointments
			WHERE reference LIKE $1
			ORDER BY created_at DESC
			LIMIT 1
		`, prefix+"%").Scan(&ref)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("latest reference: %w", err)
	}
	return ref, nil
}

func (u *pgUnitOfWork) InsertAppointment(ctx context.Context, a NewAppointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := u.q.QueryRow(ctx, `
		INSERT INTO appointments AS a (id, reference, patient_id, hospital_id, test_id, appointment_date,
		                               time_slot, status, patient_name, patient_phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, 'pending', $8, $9, now(), now())
		RETURNING `+appointmentColumns,
		id, a.Reference, a.PatientID, a.HospitalID, a.TestID, a.AppointmentDate, a.TimeSlot, a.PatientName, a.PatientPhone)

	created, err := scanAppointment(row)
	if err != nil {
		if mapped := mapWriteError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (u *pgUnitOfWork) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return getAppointmentDetail(ctx, u.q, id)
}

func (u *pgUnitOfWork) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(u.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
		FOR UPDATE
	`, id))
}

func (u *pgUnitOfWork) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	updated, err := scanAppointment(u.q.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $2,
		    updated_at = now()
		WHERE a.id = $1
		RETURNING `+appointmentColumns,
		id, string(to)))
	if err != nil {
		if mapped := mapWriteError(err); mapped != err {
			return nil, mapped
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return updated, nil
}

// InsertEvent writes an audit row. It runs under a savepoint so a failed insert does
// not abort the booking.
func (u *pgUnitOfWork) InsertEvent(ctx context.Context, ev EventLog) error {
	err := withSavepoint(ctx, u.q, "appointment_event", func() error {
		_, err := u.q.Exec(ctx, `
			INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
			VALUES ($1, $2, $3, COALESCE($4, now()))
		`, ev.EventType, ev.AppointmentID, []byte(ev.Payload), nullableTime(ev.CreatedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("insert appointment event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
