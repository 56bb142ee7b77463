package results

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusVerified   Status = "verified"
	StatusAmended    Status = "amended"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusVerified, StatusAmended, StatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityRoutine Priority = "routine"
	PriorityUrgent  Priority = "urgent"
	PriorityStat    Priority = "stat"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityRoutine, PriorityUrgent, PriorityStat:
		return true
	}
	return false
}

const InterpretationCritical = "critical"

// NumericResult is one measured value of a test.
type NumericResult struct {
	Name           string  `json:"name"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit,omitempty"`
	ReferenceRange string  `json:"reference_range,omitempty"`
	Interpretation string  `json:"interpretation,omitempty"`
}

type Result struct {
	ID             uuid.UUID         `json:"id"`
	AppointmentID  uuid.UUID         `json:"appointment_id"`
	TestID         uuid.UUID         `json:"test_id"`
	PatientID      uuid.UUID         `json:"patient_id"`
	HospitalID     uuid.UUID         `json:"hospital_id"`
	ResultType     string            `json:"result_type"`
	NumericResults []NumericResult   `json:"numeric_results"`
	TextResults    map[string]string `json:"text_results"`
	Status         Status            `json:"status"`
	Priority       Priority          `json:"priority"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// HasCriticalValues reports whether any measurement is flagged critical.
func (r Result) HasCriticalValues() bool {
	for _, n := range r.NumericResults {
		if n.Interpretation == InterpretationCritical {
			return true
		}
	}
	return false
}

// Detail is a result with the appointment it closes.
type Detail struct {
	Result
	Reference       string                  `json:"reference"`
	AppointmentDate string                  `json:"appointment_date"`
	TimeSlot        string                  `json:"time_slot"`
	Hospital        catalog.HospitalSummary `json:"hospital"`
	Test            catalog.TestSummary     `json:"test"`
}

// RecordRequest is what an admin submits for a finished appointment. The test,
// patient and hospital are taken from the appointment.
type RecordRequest struct {
	AppointmentID  string            `json:"appointment_id"`
	ResultType     string            `json:"result_type"`
	NumericResults []NumericResult   `json:"numeric_results"`
	TextResults    map[string]string `json:"text_results"`
	Status         string            `json:"status"`
	Priority       string            `json:"priority"`
}

// NewResult is a validated RecordRequest.
type NewResult struct {
	AppointmentID  uuid.UUID
	ResultType     string
	NumericResults []NumericResult
	TextResults    map[string]string
	Status         Status
	Priority       Priority
}

// Recorded is the outcome of storing a result.
type Recorded struct {
	Detail Detail
	// PreviousAppointmentStatus is the appointment status before it was completed.
	PreviousAppointmentStatus string
}
