package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
	"github.com/hackgods/medtest-appointment-scheduling/internal/reference"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

var appointmentCols = []string{"id", "reference", "patient_id", "hospital_id", "test_id", "appointment_date", "time_slot", "status", "patient_name", "patient_phone", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, newPgRepositoryWithPool(mock)
}

// insertArgs matches the nine bind parameters of the appointment insert.
func insertArgs() []any {
	args := make([]any, 9)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestWithinTxCommits(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(pgxmock.AnyArg(), "2026-10-19").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	err := repo.WithinTx(context.Background(), func(uow UnitOfWork) error {
		return uow.LockHospitalDay(context.Background(), uuid.New(), "2026-10-19")
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	mock, repo := newMockRepo(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(UnitOfWork) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextReferenceSequence(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT reference_seq$`).WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectQuery(`SELECT nextval\('appointment_ref_seq'\)`).
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(17)))
	mock.ExpectExec(`^RELEASE SAVEPOINT reference_seq$`).WillReturnResult(pgxmock.NewResult("RELEASE", 0))
	mock.ExpectCommit()

	var got int64
	err := repo.WithinTx(context.Background(), func(uow UnitOfWork) error {
		var err error
		got, err = uow.NextReferenceSequence(context.Background())
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(17), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextReferenceSequenceMissing(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT reference_seq$`).WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectQuery(`SELECT nextval`).
		WillReturnError(&pgconn.PgError{Code: pgUndefinedTable, Message: `relation "appointment_ref_seq" does not exist`})
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT reference_seq$`).WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(uow UnitOfWork) error {
		_, err := uow.NextReferenceSequence(context.Background())
		return err
	})

	assert.ErrorIs(t, err, reference.ErrSequenceUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestReferenceNone(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT reference_latest$`).WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectQuery(`WHERE reference LIKE \$1`).
		WithArgs("APT-2026-%").
		WillReturnRows(pgxmock.NewRows([]string{"reference"}))
	mock.ExpectExec(`^RELEASE SAVEPOINT reference_latest$`).WillReturnResult(pgxmock.NewResult("RELEASE", 0))
	mock.ExpectCommit()

	var got string
	err := repo.WithinTx(context.Background(), func(uow UnitOfWork) error {
		var err error
		got, err = uow.LatestReference(context.Background(), "APT-2026-")
		return err
	})

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAppointmentReferenceCollision(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(insertArgs()...).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintReference})
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(uow UnitOfWork) error {
		_, err := uow.InsertAppointment(context.Background(), NewAppointment{Reference: "APT-2026-000001", AppointmentDate: "2026-10-19", TimeSlot: "09:00"})
		return err
	})

	assert.ErrorIs(t, err, scheduling.ErrReferenceCollision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAppointmentMapsConstraintErrors(t *testing.T) {
	cases := []struct {
		code, constraint string
		want             error
	}{
		{pgUniqueViolation, constraintActiveSlot, scheduling.ErrConflict},
		{pgForeignKeyViolation, constraintHospitalFK, catalog.ErrHospitalNotFound},
		{pgForeignKeyViolation, constraintTestFK, catalog.ErrTestNotFound},
		{pgForeignKeyViolation, constraintPatientFK, ErrPatientNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			mock, repo := newMockRepo(t)
			mock.ExpectBegin()
			mock.ExpectQuery(`INSERT INTO appointments`).
				WithArgs(insertArgs()...).
				WillReturnError(&pgconn.PgError{Code: tc.code, ConstraintName: tc.constraint})
			mock.ExpectRollback()

			err := repo.WithinTx(context.Background(), func(uow UnitOfWork) error {
				_, err := uow.InsertAppointment(context.Background(), NewAppointment{Reference: "APT-2026-000002"})
				return err
			})

			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestInsertAppointmentReturnsRow(t *testing.T) {
	mock, repo := newMockRepo(t)
	id, patient, hospital, test := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	now := time.Now()
	name := "Aline"

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(id, "APT-2026-000003", patient, hospital, test, "2026-10-19", "09:00", &name, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(id, "APT-2026-000003", patient, hospital, test, "2026-10-19", "09:00", "pending", &name, (*string)(nil), now, now))
	mock.ExpectCommit()

	var got *Appointment
	err := repo.WithinTx(context.Background(), func(uow UnitOfWork) error {
		var err error
		got, err = uow.InsertAppointment(context.Background(), NewAppointment{
			ID: id, Reference: "APT-2026-000003", PatientID: patient, HospitalID: hospital, TestID: test,
			AppointmentDate: "2026-10-19", TimeSlot: "09:00", PatientName: &name,
		})
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "APT-2026-000003", got.Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveBookings(t *testing.T) {
	mock, repo := newMockRepo(t)
	hospital := uuid.New()

	mock.ExpectQuery(`AND a.status <> 'cancelled'`).
		WithArgs(hospital, "2026-10-19").
		WillReturnRows(pgxmock.NewRows([]string{"id", "time_slot", "duration"}).
			AddRow("a1", "09:00", "30").
			AddRow("a2", "bad", ""))

	bookings, err := repo.ListActiveBookings(context.Background(), hospital, "2026-10-19")

	require.NoError(t, err)
	assert.Equal(t, []scheduling.Booking{
		{ID: "a1", TimeSlot: "09:00", TestDuration: "30"},
		{ID: "a2", TimeSlot: "bad", TestDuration: ""},
	}, bookings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTestDurationNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id, hospital := uuid.New(), uuid.New()

	mock.ExpectQuery(`WHERE id = \$1 AND hospital_id = \$2`).
		WithArgs(id, hospital).
		WillReturnRows(pgxmock.NewRows([]string{"duration"}))

	_, err := repo.GetTestDuration(context.Background(), hospital, id)

	assert.ErrorIs(t, err, catalog.ErrTestNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppointmentByReferenceNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery(`WHERE a.reference = \$1`).
		WithArgs("APT-2026-999999").
		WillReturnRows(pgxmock.NewRows(append(append([]string{}, appointmentCols...),
			"h_id", "h_name", "h_phone", "h_district", "t_id", "t_name", "t_category", "t_price", "t_currency", "t_duration")))

	_, err := repo.GetAppointmentByReference(context.Background(), "APT-2026-999999")

	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
