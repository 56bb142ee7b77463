package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultDurationMinutes = 45
	DefaultStepMinutes     = 15
	DefaultOpenMinutes     = 8 * 60
	DefaultCloseMinutes    = 17 * 60
)

// Policy holds the booking rules: which weekdays take bookings, the business window
// and the granularity used when enumerating slots.
type Policy struct {
	AllowedDays     []time.Weekday
	Open            int
	Close           int
	Step            int
	DefaultDuration int
}

func DefaultPolicy() Policy {
	return Policy{
		AllowedDays:     []time.Weekday{time.Monday, time.Thursday},
		Open:            DefaultOpenMinutes,
		Close:           DefaultCloseMinutes,
		Step:            DefaultStepMinutes,
		DefaultDuration: DefaultDurationMinutes,
	}
}

// Validate checks the policy is internally consistent.
func (p Policy) Validate() error {
	if p.Open < 0 || p.Close > 24*60 || p.Close <= p.Open {
		return fmt.Errorf("business close %s must be after open %s", FormatSlot(p.Close), FormatSlot(p.Open))
	}
	if p.Step <= 0 {
		return errors.New("slot step must be positive")
	}
	if p.DefaultDuration <= 0 {
		return errors.New("default test duration must be positive")
	}
	if len(p.AllowedDays) == 0 {
		return errors.New("at least one allowed weekday is required")
	}
	return nil
}

// Calculator returns an availability calculator over the policy's business window.
func (p Policy) Calculator() Calculator {
	return Calculator{Open: p.Open, Close: p.Close, Step: p.Step}
}

// ResolveDuration applies the policy's default to a raw medical test duration.
func (p Policy) ResolveDuration(raw string) int {
	return ResolveDuration(raw, p.DefaultDuration)
}

// AllowedDayNames returns the allow-list as English weekday names.
func (p Policy) AllowedDayNames() []string {
	names := make([]string, 0, len(p.AllowedDays))
	for _, d := range p.AllowedDays {
		names = append(names, d.String())
	}
	return names
}

// Slot is a booking request that passed the format, weekday and hours checks.
type Slot struct {
	Date  time.Time
	Start int
}

// DateString renders the slot's calendar date as YYYY-MM-DD.
func (s Slot) DateString() string {
	return s.Date.Format(time.DateOnly)
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if !datePattern.MatchString(date) {
		return time.Time{}, NewValidationError("appointment_date", "Invalid appointment_date format. Use YYYY-MM-DD.")
	}
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, NewValidationError("appointment_date", "Invalid appointment date/time.")
	}
	return d, nil
}

// ValidateRequest runs the format, weekday and business hours checks, in that order.
func (p Policy) ValidateRequest(date, timeSlot string) (Slot, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Slot{}, err
	}
	if !slotPattern.MatchString(strings.TrimSpace(timeSlot)) {
		return Slot{}, NewValidationError("time_slot", "Invalid time_slot format. Use HH:MM (24-hour).")
	}
	start, err := ParseSlot(timeSlot)
	if err != nil {
		return Slot{}, NewValidationError("time_slot", "Invalid appointment date/time.")
	}

	if err := p.checkWeekday(d.Weekday()); err != nil {
		return Slot{}, err
	}

	if start < p.Open || start >= p.Close {
		return Slot{}, NewPolicyError("time_slot", fmt.Sprintf("Appointments must be between %s and %s.", FormatSlot(p.Open), FormatSlot(p.Close)))
	}

	return Slot{Date: d, Start: start}, nil
}

func (p Policy) checkWeekday(day time.Weekday) error {
	if day == time.Saturday || day == time.Sunday {
		return NewPolicyError("appointment_date", "Appointments can only be scheduled Monday to Friday.")
	}
	for _, allowed := range p.AllowedDays {
		if allowed == day {
			return nil
		}
	}
	return NewPolicyError("appointment_date", fmt.Sprintf("This test is only available on: %s.", strings.Join(p.AllowedDayNames(), ", ")))
}

// ValidateFit rejects a booking that would run past closing time.
func (p Policy) ValidateFit(candidate Interval) error {
	if candidate.End > p.Close {
		return NewPolicyError("time_slot", fmt.Sprintf("Appointment must finish by %s; the selected test takes %d minutes.",
			FormatSlot(p.Close), candidate.End-candidate.Start))
	}
	return nil
}

// CheckConflict fails when candidate overlaps any occupied interval.
func CheckConflict(candidate Interval, occupied []Interval) error {
	if overlapsAny(candidate, occupied) {
		return NewConflictError("Selected time overlaps with another appointment at this hospital. Please choose a different time.")
	}
	return nil
}

// ParseWeekdays parses a comma separated list of English weekday names, case insensitive.
func ParseWeekdays(list string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(list, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		day, ok := weekdaysByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", strings.TrimSpace(part))
		}
		days = append(days, day)
	}
	if len(days) == 0 {
		return nil, errors.New("no weekdays given")
	}
	return days, nil
}

var weekdaysByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
