package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/medtest-appointment-scheduling/internal/reference"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
)

// Repository contains all DB interactions needed by the service outside a booking.
type Repository interface {
	// WithinTx runs fn in one transaction. fn's error rolls everything back.
	WithinTx(ctx context.Context, fn func(uow UnitOfWork) error) error

	GetTestDuration(ctx context.Context, hospitalID, testID uuid.UUID) (*string, error)
	ListActiveBookings(ctx context.Context, hospitalID uuid.UUID, date string) ([]scheduling.Booking, error)

	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	GetAppointmentByReference(ctx context.Context, ref string) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]AppointmentDetail, int, error)
}

// UnitOfWork is the transactional view handed to each booking step.
type UnitOfWork interface {
	reference.Store

	// LockHospitalDay serializes writers for one hospital and date until the
	// transaction ends.
	LockHospitalDay(ctx context.Context, hospitalID uuid.UUID, date string) error

	// GetTestDuration returns the raw duration of a test offered by hospitalID (nil
	// when unset) or catalog.ErrTestNotFound.
	GetTestDuration(ctx context.Context, hospitalID, testID uuid.UUID) (*string, error)
	// ListActiveBookings returns the non-cancelled appointments at a hospital on date
	// with their test's raw duration.
	ListActiveBookings(ctx context.Context, hospitalID uuid.UUID, date string) ([]scheduling.Booking, error)

	InsertAppointment(ctx context.Context, a NewAppointment) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
