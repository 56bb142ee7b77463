package results

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/medtest-appointment-scheduling/internal/metrics"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

const defaultResultType = "mixed"

// Notifier is told about recorded results after commit. Implementations must not block.
type Notifier interface {
	ResultReady(detail Detail)
}

type nopNotifier struct{}

func (nopNotifier) ResultReady(Detail) {}

type Service struct {
	repo     Repository
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   zerolog.Logger
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

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: nopNotifier{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores the result of a finished appointment and completes the
// appointment. The patient is notified once the transaction commits.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*Detail, error) {
	in, err := validateRecord(req)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.Record(ctx, in)
	if err != nil {
		return nil, err
	}

	if rec.PreviousAppointmentStatus != string(StatusCompleted) {
		s.metrics.ObserveStatusChange(string(StatusCompleted))
	}
	s.logger.Info().
		Str("result_id", rec.Detail.ID.String()).
		Str("reference", rec.Detail.Reference).
		Str("previous_status", rec.PreviousAppointmentStatus).
		Bool("critical", rec.Detail.HasCriticalValues()).
		Msg("test result recorded")

	s.notifier.ResultReady(rec.Detail)
	return &rec.Detail, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Detail, error) {
	return s.repo.ListForPatient(ctx, patientID)
}

func (s *Service) GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*Detail, error) {
	return s.repo.GetForPatient(ctx, id, patientID)
}

func validateRecord(req RecordRequest) (NewResult, error) {
	appointmentID, err := uuid.Parse(strings.TrimSpace(req.AppointmentID))
	if err != nil {
		return NewResult{}, scheduling.NewValidationError("appointment_id", "A valid appointment_id is required.")
	}

	in := NewResult{
		AppointmentID:  appointmentID,
		ResultType:     strings.TrimSpace(req.ResultType),
		NumericResults: req.NumericResults,
		TextResults:    req.TextResults,
		Status:         Status(strings.TrimSpace(req.Status)),
		Priority:       Priority(strings.TrimSpace(req.Priority)),
	}
	if in.ResultType == "" {
		in.ResultType = defaultResultType
	}
	if in.Status == "" {
		in.Status = StatusCompleted
	}
	if !in.Status.Valid() {
		return NewResult{}, scheduling.NewValidationError("status", "Invalid result status.")
	}
	if in.Priority == "" {
		in.Priority = PriorityRoutine
	}
	if !in.Priority.Valid() {
		return NewResult{}, scheduling.NewValidationError("priority", "Priority must be routine, urgent or stat.")
	}

	if in.NumericResults == nil {
		in.NumericResults = []NumericResult{}
	}
	for i := range in.NumericResults {
		in.NumericResults[i].Name = strings.TrimSpace(in.NumericResults[i].Name)
		if in.NumericResults[i].Name == "" {
			return NewResult{}, scheduling.NewValidationError("numeric_results", "Every numeric result needs a name.")
		}
	}
	if in.TextResults == nil {
		in.TextResults = map[string]string{}
	}
	if len(in.NumericResults) == 0 && len(in.TextResults) == 0 {
		return NewResult{}, scheduling.NewValidationError("numeric_results", "At least one numeric or text result is required.")
	}
	return in, nil
}
