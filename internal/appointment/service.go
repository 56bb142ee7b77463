package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
	"github.com/hackgods/medtest-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/medtest-appointment-scheduling/internal/redis"
	"github.com/hackgods/medtest-appointment-scheduling/internal/reference"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	// ErrBookingInProgress means another booking for the same hospital and day held
	// the lock for longer than we were willing to wait.
	ErrBookingInProgress = errors.New("another booking for this hospital and day is in progress, please retry")
)

var tracer = otel.Tracer("medtest.internal.appointment")

// Notifier is told about committed changes. Implementations must not block.
type Notifier interface {
	AppointmentBooked(detail AppointmentDetail)
	AppointmentStatusChanged(detail AppointmentDetail, previous Status)
}

type nopNotifier struct{}

func (nopNotifier) AppointmentBooked(AppointmentDetail)                 {}
func (nopNotifier) AppointmentStatusChanged(AppointmentDetail, Status) {}

type Service struct {
	repo        Repository
	locker      redisclient.Locker
	policy      scheduling.Policy
	refs        *reference.Generator
	notifier    Notifier
	metrics     *metrics.BookingMetrics
	logger      zerolog.Logger
	phoneRegion string
	now         func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithPhoneRegion(region string) Option {
	return func(s *Service) { s.phoneRegion = region }
}

func WithReferenceGenerator(g *reference.Generator) Option {
	return func(s *Service) { s.refs = g }
}

func NewService(repo Repository, locker redisclient.Locker, policy scheduling.Policy, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		locker:      locker,
		policy:      policy,
		refs:        reference.New(),
		notifier:    nopNotifier{},
		logger:      zerolog.Nop(),
		phoneRegion: "RW",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = redisclient.NopLocker{}
	}
	return s
}

// Policy returns the booking policy the service enforces.
func (s *Service) Policy() scheduling.Policy {
	return s.policy
}

// BookAppointment creates a pending appointment.
//
// Validation, the conflict check, reference generation and the insert all run in one
// transaction while the hospital day is locked, so two bookings for the same hospital
// and date are never checked against the same snapshot. Notification happens after commit.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*AppointmentDetail, error) {
	started := s.now()
	ctx, span := tracer.Start(ctx, "appointment.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("medtest.hospital_id", req.HospitalID),
		attribute.String("medtest.test_id", req.TestID),
		attribute.String("medtest.appointment_date", req.AppointmentDate),
		attribute.String("medtest.time_slot", req.TimeSlot),
	)

	detail, strategy, err := s.book(ctx, req)
	outcome := bookingOutcome(err)
	s.metrics.ObserveBooking(outcome, s.now().Sub(started))
	if err != nil {
		recordSpanError(span, err)
		evt := s.logger.Info()
		if outcome == "error" {
			evt = s.logger.Error()
		}
		evt.Err(err).
			Str("outcome", outcome).
			Str("hospital_id", req.HospitalID).
			Str("appointment_date", req.AppointmentDate).
			Str("time_slot", req.TimeSlot).
			Msg("booking rejected")
		return nil, err
	}

	s.metrics.ObserveReferenceStrategy(string(strategy))
	span.SetAttributes(attribute.String("medtest.reference", detail.Reference))
	s.logger.Info().
		Str("appointment_id", detail.ID.String()).
		Str("reference", detail.Reference).
		Str("reference_strategy", string(strategy)).
		Msg("appointment booked")

	s.notifier.AppointmentBooked(*detail)
	return detail, nil
}

func (s *Service) book(ctx context.Context, req BookingRequest) (*AppointmentDetail, reference.Strategy, error) {
	// (1) required fields
	hospitalID, testID, err := requireBookingFields(req)
	if err != nil {
		return nil, "", err
	}

	// (2) format, weekday and hours
	slot, err := s.policy.ValidateRequest(req.AppointmentDate, req.TimeSlot)
	if err != nil {
		return nil, "", err
	}
	date := slot.DateString()

	var (
		detail   *AppointmentDetail
		strategy reference.Strategy
	)

	err = s.locker.WithLock(ctx, redisclient.HospitalDayKey(hospitalID, date), func(lockCtx context.Context) error {
		return s.repo.WithinTx(lockCtx, func(uow UnitOfWork) error {
			// (3) duration of the requested test
			raw, err := uow.GetTestDuration(lockCtx, hospitalID, testID)
			if err != nil {
				return err
			}
			candidate := scheduling.NewInterval(slot.Start, s.policy.ResolveDuration(deref(raw)))
			if err := s.policy.ValidateFit(candidate); err != nil {
				return err
			}

			// (4) conflict check against the hospital day, serialized by the advisory lock
			if err := uow.LockHospitalDay(lockCtx, hospitalID, date); err != nil {
				return err
			}
			bookings, err := uow.ListActiveBookings(lockCtx, hospitalID, date)
			if err != nil {
				return err
			}
			if err := scheduling.CheckConflict(candidate, s.occupied(bookings)); err != nil {
				return err
			}

			// (5) reference
			ref, strat, err := s.refs.Generate(lockCtx, uow)
			if err != nil {
				return fmt.Errorf("generate reference: %w", err)
			}

			// (6) persist
			created, err := uow.InsertAppointment(lockCtx, NewAppointment{
				ID:              uuid.New(),
				Reference:       ref,
				PatientID:       req.Patient.ID,
				HospitalID:      hospitalID,
				TestID:          testID,
				AppointmentDate: date,
				TimeSlot:        scheduling.FormatSlot(slot.Start),
				PatientName:     optional(req.Patient.Name),
				PatientPhone:    optional(NormalizePhone(req.Patient.Phone, s.phoneRegion)),
			})
			if err != nil {
				return err
			}
			s.logEvent(lockCtx, uow, created.ID, EventAppointmentCreated, map[string]any{
				"reference":          created.Reference,
				"reference_strategy": strat,
				"hospital_id":        hospitalID.String(),
				"test_id":            testID.String(),
				"appointment_date":   date,
				"time_slot":          created.TimeSlot,
				"duration_minutes":   candidate.End - candidate.Start,
			})

			// (7) read back with hospital and test
			d, err := uow.GetAppointmentDetail(lockCtx, created.ID)
			if err != nil {
				return fmt.Errorf("reload appointment: %w", err)
			}
			detail, strategy = d, strat
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, "", ErrBookingInProgress
		}
		return nil, "", err
	}

	return detail, strategy, nil
}

func requireBookingFields(req BookingRequest) (hospitalID, testID uuid.UUID, err error) {
	required := []struct{ field, value string }{
		{"hospital_id", req.HospitalID},
		{"test_id", req.TestID},
		{"appointment_date", req.AppointmentDate},
		{"time_slot", req.TimeSlot},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return uuid.Nil, uuid.Nil, scheduling.NewValidationError(r.field, r.field+" is required.")
		}
	}
	if req.Patient.ID == uuid.Nil {
		return uuid.Nil, uuid.Nil, scheduling.NewValidationError("patient", "An authenticated patient is required.")
	}

	hospitalID, err = uuid.Parse(strings.TrimSpace(req.HospitalID))
	if err != nil {
		return uuid.Nil, uuid.Nil, scheduling.NewValidationError("hospital_id", "Invalid hospital_id.")
	}
	testID, err = uuid.Parse(strings.TrimSpace(req.TestID))
	if err != nil {
		return uuid.Nil, uuid.Nil, scheduling.NewValidationError("test_id", "Invalid test_id.")
	}
	return hospitalID, testID, nil
}

// occupied expands bookings into intervals, logging the ones whose slot cannot be read.
func (s *Service) occupied(bookings []scheduling.Booking) []scheduling.Interval {
	occupied, skipped := scheduling.OccupiedIntervals(bookings, s.policy.DefaultDuration)
	for _, b := range skipped {
		s.logger.Warn().
			Str("appointment_id", b.ID).
			Str("time_slot", b.TimeSlot).
			Msg("skipping appointment with malformed time slot")
	}
	return occupied
}

// Availability lists the open start times for a hospital day.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (*Availability, error) {
	d, err := scheduling.ParseDate(q.Date)
	if err != nil {
		return nil, err
	}
	date := d.Format(time.DateOnly)

	duration := s.policy.DefaultDuration
	switch {
	case q.TestID != nil:
		raw, err := s.repo.GetTestDuration(ctx, q.HospitalID, *q.TestID)
		if err != nil {
			return nil, err
		}
		duration = s.policy.ResolveDuration(deref(raw))
	case strings.TrimSpace(q.Duration) != "":
		duration = s.policy.ResolveDuration(q.Duration)
	}

	bookings, err := s.repo.ListActiveBookings(ctx, q.HospitalID, date)
	if err != nil {
		return nil, err
	}

	return &Availability{
		Date:     date,
		Slots:    s.policy.Calculator().OpenSlots(s.occupied(bookings), duration),
		Opens:    scheduling.FormatSlot(s.policy.Open),
		Closes:   scheduling.FormatSlot(s.policy.Close),
		Duration: duration,
	}, nil
}

// UpdateStatus moves an appointment to status. Bringing a cancelled appointment back
// re-runs the conflict check against the rest of its hospital day.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*AppointmentDetail, error) {
	if !status.Valid() {
		return nil, scheduling.NewValidationError("status", "Invalid status. Use one of: pending, confirmed, cancelled, completed, rescheduled.")
	}

	ctx, span := tracer.Start(ctx, "appointment.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("medtest.appointment_id", id.String()),
		attribute.String("medtest.status", string(status)),
	)

	var (
		detail   *AppointmentDetail
		previous Status
	)
	err := s.repo.WithinTx(ctx, func(uow UnitOfWork) error {
		current, err := uow.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previous = current.Status

		if current.Status != status {
			if !current.Status.Active() && status.Active() {
				if err := s.checkReactivation(ctx, uow, current); err != nil {
					return err
				}
			}
			if _, err := uow.UpdateAppointmentStatus(ctx, id, status); err != nil {
				return err
			}
			s.logEvent(ctx, uow, id, EventAppointmentStatusChanged, map[string]any{
				"from": previous,
				"to":   status,
			})
		}

		d, err := uow.GetAppointmentDetail(ctx, id)
		if err != nil {
			return fmt.Errorf("reload appointment: %w", err)
		}
		detail = d
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	if previous != status {
		s.metrics.ObserveStatusChange(string(status))
		s.logger.Info().
			Str("appointment_id", id.String()).
			Str("from", string(previous)).
			Str("to", string(status)).
			Msg("appointment status changed")
		s.notifier.AppointmentStatusChanged(*detail, previous)
	}
	return detail, nil
}

func (s *Service) checkReactivation(ctx context.Context, uow UnitOfWork, current *Appointment) error {
	start, err := scheduling.ParseSlot(current.TimeSlot)
	if err != nil {
		// legacy rows with unreadable slots never block or get blocked
		return nil
	}

	raw, err := uow.GetTestDuration(ctx, current.HospitalID, current.TestID)
	if err != nil && !errors.Is(err, catalog.ErrTestNotFound) {
		return err
	}
	candidate := scheduling.NewInterval(start, s.policy.ResolveDuration(deref(raw)))

	if err := uow.LockHospitalDay(ctx, current.HospitalID, current.AppointmentDate); err != nil {
		return err
	}
	bookings, err := uow.ListActiveBookings(ctx, current.HospitalID, current.AppointmentDate)
	if err != nil {
		return err
	}
	others := bookings[:0]
	for _, b := range bookings {
		if b.ID != current.ID.String() {
			others = append(others, b)
		}
	}
	return scheduling.CheckConflict(candidate, s.occupied(others))
}

// GetAppointment returns any appointment. Used by admins.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// GetForPatient returns the appointment only if it belongs to patientID.
func (s *Service) GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if detail.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	return detail, nil
}

// GetByReference looks an appointment up by its reference, scoped to patientID.
func (s *Service) GetByReference(ctx context.Context, ref string, patientID uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentByReference(ctx, strings.ToUpper(strings.TrimSpace(ref)))
	if err != nil {
		return nil, fmt.Errorf("get appointment by reference: %w", err)
	}
	if detail.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	return detail, nil
}

// ListForPatient returns a patient's appointments, latest date first.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// List pages through all appointments, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]AppointmentDetail, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	appointments, total, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, total, nil
}

func (s *Service) logEvent(ctx context.Context, uow UnitOfWork, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := uow.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert appointment event")
	}
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, scheduling.ErrValidation):
		return "validation"
	case errors.Is(err, scheduling.ErrPolicy):
		return "policy"
	case errors.Is(err, scheduling.ErrConflict):
		return "conflict"
	case errors.Is(err, scheduling.ErrReferenceCollision):
		return "reference_collision"
	case errors.Is(err, ErrBookingInProgress):
		return "in_progress"
	case errors.Is(err, catalog.ErrTestNotFound), errors.Is(err, catalog.ErrHospitalNotFound), errors.Is(err, ErrPatientNotFound):
		return "not_found"
	}
	return "error"
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
