package booking

import (
	"time"

	"github.com/google/uuid"
)

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Shared endpoints do not count, so back-to-back
// appointments never conflict.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// conflictsAmong filters candidates down to those whose interval overlaps
// [start, end), skipping the excluded appointment and anything in a
// non-blocking status. The exclusion lets an in-place reschedule ignore the
// appointment being moved.
func conflictsAmong(candidates []Appointment, start, end time.Time, exclude uuid.UUID) []Appointment {
	var conflicts []Appointment
	for _, a := range candidates {
		if a.ID == exclude {
			continue
		}
		if !a.Status.Blocks() {
			continue
		}
		if Overlaps(start, end, a.ScheduledAt, a.ScheduledEndAt) {
			conflicts = append(conflicts, a)
		}
	}
	return conflicts
}
