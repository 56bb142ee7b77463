package appointment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusRescheduled Status = "rescheduled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRescheduled:
		return true
	}
	return false
}

// Active reports whether an appointment in this status occupies its slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", raw)
	}
	return s, nil
}

type Appointment struct {
	ID              uuid.UUID `json:"id"`
	Reference       string    `json:"reference"`
	PatientID       uuid.UUID `json:"patient_id"`
	HospitalID      uuid.UUID `json:"hospital_id"`
	TestID          uuid.UUID `json:"test_id"`
	AppointmentDate string    `json:"appointment_date"`
	TimeSlot        string    `json:"time_slot"`
	Status          Status    `json:"status"`
	PatientName     *string   `json:"patient_name,omitempty"`
	PatientPhone    *string   `json:"patient_phone,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AppointmentDetail is an appointment with the hospital and test it refers to.
type AppointmentDetail struct {
	Appointment
	Hospital catalog.HospitalSummary `json:"hospital"`
	Test     catalog.TestSummary     `json:"test"`
}

// Patient is the authenticated caller on whose behalf a booking is made.
type Patient struct {
	ID    uuid.UUID
	Name  string
	Phone string
	Email string
}

// BookingRequest carries the raw booking input. Identifiers stay strings so that a
// missing or malformed value is reported as a validation error on its own field.
type BookingRequest struct {
	HospitalID      string
	TestID          string
	AppointmentDate string
	TimeSlot        string
	Patient         Patient
}

// NewAppointment is the row written by the booking transaction.
type NewAppointment struct {
	ID              uuid.UUID
	Reference       string
	PatientID       uuid.UUID
	HospitalID      uuid.UUID
	TestID          uuid.UUID
	AppointmentDate string
	TimeSlot        string
	PatientName     *string
	PatientPhone    *string
}

// AvailabilityQuery selects a hospital day and the duration to fit. When TestID is set
// the duration comes from the test; otherwise Duration (or the default) is used.
type AvailabilityQuery struct {
	HospitalID uuid.UUID
	Date       string
	TestID     *uuid.UUID
	Duration   string
}

type Availability struct {
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
	Opens    string   `json:"opens"`
	Closes   string   `json:"closes"`
	Duration int      `json:"duration"`
}

type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       json.RawMessage
	CreatedAt     time.Time
}
