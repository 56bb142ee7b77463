package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

// verifyNoOverlaps loads every active booking on dates and reports any pair at the
// same hospital whose intervals overlap.
func verifyNoOverlaps(ctx context.Context, pool *pgxpool.Pool, dates []string, defaultDuration int) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT a.id::text, a.hospital_id::text, a.appointment_date::text, a.time_slot, COALESCE(t.duration, '')
		FROM appointments a
		LEFT JOIN medical_tests t ON t.id = a.test_id
		WHERE a.status <> 'cancelled'
		  AND a.appointment_date = ANY($1::date[])
	`, dates)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	defer rows.Close()

	days := make(map[string][]scheduling.Booking)
	for rows.Next() {
		var (
			b                    scheduling.Booking
			hospitalID, dateText string
		)
		if err := rows.Scan(&b.ID, &hospitalID, &dateText, &b.TimeSlot, &b.TestDuration); err != nil {
			return nil, err
		}
		key := hospitalID + " " + dateText
		days[key] = append(days[key], b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return findOverlaps(days, defaultDuration), nil
}

// findOverlaps checks each hospital day independently.
func findOverlaps(days map[string][]scheduling.Booking, defaultDuration int) []string {
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var violations []string
	for _, key := range keys {
		bookings := days[key]
		for i := 0; i < len(bookings); i++ {
			a, err := scheduling.IntervalFor(bookings[i].TimeSlot, scheduling.ResolveDuration(bookings[i].TestDuration, defaultDuration))
			if err != nil {
				continue
			}
			for j := i + 1; j < len(bookings); j++ {
				b, err := scheduling.IntervalFor(bookings[j].TimeSlot, scheduling.ResolveDuration(bookings[j].TestDuration, defaultDuration))
				if err != nil {
					continue
				}
				if a.Overlaps(b) {
					violations = append(violations, fmt.Sprintf("%s: %s %s overlaps %s %s",
						key, bookings[i].ID, a, bookings[j].ID, b))
				}
			}
		}
	}
	return violations
}
