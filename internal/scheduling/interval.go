package scheduling

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	slotPattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ErrMalformedSlot is returned when a time slot is not a valid H:MM / HH:MM wall clock time.
var ErrMalformedSlot = errors.New("malformed time slot")

// Interval is a half-open span [Start, End) in minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// NewInterval builds the interval covered by a booking starting at start for duration minutes.
func NewInterval(start, duration int) Interval {
	return Interval{Start: start, End: start + duration}
}

// IntervalFor parses slot and expands it by duration.
func IntervalFor(slot string, duration int) (Interval, error) {
	start, err := ParseSlot(slot)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(start, duration), nil
}

// Overlaps reports whether the two intervals intersect. Touching endpoints do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && i.End > other.Start
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", FormatSlot(i.Start), FormatSlot(i.End))
}

// ParseSlot converts an H:MM or HH:MM slot into minutes since midnight.
func ParseSlot(slot string) (int, error) {
	slot = strings.TrimSpace(slot)
	if !slotPattern.MatchString(slot) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedSlot, slot)
	}
	hh, mm, _ := strings.Cut(slot, ":")
	hour, _ := strconv.Atoi(hh)
	minute, _ := strconv.Atoi(mm)
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedSlot, slot)
	}
	return hour*60 + minute, nil
}

// FormatSlot renders minutes since midnight as zero padded HH:MM.
func FormatSlot(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Booking is an existing appointment as seen by the conflict check: its start slot and
// the raw duration of its medical test.
type Booking struct {
	ID           string
	TimeSlot     string
	TestDuration string
}

// OccupiedIntervals expands bookings into intervals. Bookings whose slot cannot be parsed
// are returned in skipped and do not block anything.
func OccupiedIntervals(bookings []Booking, defaultDuration int) (occupied []Interval, skipped []Booking) {
	occupied = make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		iv, err := IntervalFor(b.TimeSlot, ResolveDuration(b.TestDuration, defaultDuration))
		if err != nil {
			skipped = append(skipped, b)
			continue
		}
		occupied = append(occupied, iv)
	}
	return occupied, skipped
}

// ResolveDuration parses a medical test duration in minutes. Missing, non numeric or
// non positive values resolve to def.
func ResolveDuration(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
