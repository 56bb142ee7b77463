package scheduling

// Calculator enumerates open start times inside a business window.
type Calculator struct {
	Open  int // minutes since midnight
	Close int
	Step  int
}

// OpenSlots returns, in ascending order, every step aligned start time from Open up to
// Close-duration whose interval overlaps none of occupied.
func (c Calculator) OpenSlots(occupied []Interval, duration int) []string {
	slots := []string{}
	if duration <= 0 || c.Step <= 0 {
		return slots
	}
	for start := c.Open; start+duration <= c.Close; start += c.Step {
		candidate := NewInterval(start, duration)
		if !overlapsAny(candidate, occupied) {
			slots = append(slots, FormatSlot(start))
		}
	}
	return slots
}

func overlapsAny(candidate Interval, occupied []Interval) bool {
	for _, o := range occupied {
		if candidate.Overlaps(o) {
			return true
		}
	}
	return false
}
