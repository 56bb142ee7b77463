package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

type Hospital struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Province  *string   `json:"province,omitempty"`
	District  *string   `json:"district,omitempty"`
	Sector    *string   `json:"sector,omitempty"`
	Street    *string   `json:"street,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MedicalTest struct {
	ID          uuid.UUID `json:"id"`
	HospitalID  uuid.UUID `json:"hospital_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	// Duration is stored as free text; see DurationMinutes.
	Duration    *string   `json:"duration,omitempty"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DurationMinutes resolves the stored duration, falling back to def.
func (t MedicalTest) DurationMinutes(def int) int {
	if t.Duration == nil {
		return def
	}
	return scheduling.ResolveDuration(*t.Duration, def)
}

// HospitalSummary is the projection embedded in appointment responses.
type HospitalSummary struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Phone    *string   `json:"phone,omitempty"`
	District *string   `json:"district,omitempty"`
}

// TestSummary is the projection embedded in appointment responses.
type TestSummary struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category *string   `json:"category,omitempty"`
	Price    float64   `json:"price"`
	Currency string    `json:"currency"`
	Duration *string   `json:"duration,omitempty"`
}
