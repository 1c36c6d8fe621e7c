package booking

import (
	"sort"
	"time"
)

// DaySlot is one bookable candidate within a day. Start carries the full
// timestamp; Available is false when an existing appointment covers any part
// of the slot.
type DaySlot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// DayAvailability summarizes one calendar day in a resolver response.
type DayAvailability struct {
	Date            time.Time
	HasAvailability bool
	SlotCount       int
	Slots           []DaySlot
}

// ResolveAvailability computes open slots per day in [from, to] (dates,
// inclusive) from the provider's templates and booked appointments.
//
// For each day, every template applying to that day is expanded into
// candidate slots stepped by the consultation type's default duration, or by
// step when no type filter is given. Candidates overlapping a blocking
// appointment are kept in the listing but flagged unavailable. Overlapping
// templates expand independently; creation-time invariants are the only
// dedup. A day with no matching template yields a zero-slot entry.
func ResolveAvailability(templates []AvailabilityTemplate, booked []Appointment, from, to time.Time, step time.Duration, filter *ConsultationType) []DayAvailability {
	slotLen := step
	if filter != nil && filter.DefaultDurationMin > 0 {
		slotLen = time.Duration(filter.DefaultDurationMin) * time.Minute
	}
	if slotLen <= 0 {
		slotLen = 30 * time.Minute
	}

	var days []DayAvailability

	for day := dateOnly(from); !day.After(dateOnly(to)); day = day.AddDate(0, 0, 1) {
		entry := DayAvailability{Date: day}

		for i := range templates {
			t := &templates[i]
			if !t.AppliesOn(day) {
				continue
			}
			if filter != nil && !templateServes(t, filter) {
				continue
			}

			windowStart := day.Add(time.Duration(t.StartMinute) * time.Minute)
			windowEnd := day.Add(time.Duration(t.EndMinute) * time.Minute)

			for s := windowStart; !s.Add(slotLen).After(windowEnd); s = s.Add(slotLen) {
				e := s.Add(slotLen)
				slot := DaySlot{Start: s, End: e, Available: true}
				for _, a := range booked {
					if a.Status.Blocks() && Overlaps(s, e, a.ScheduledAt, a.ScheduledEndAt) {
						slot.Available = false
						break
					}
				}
				entry.Slots = append(entry.Slots, slot)
			}
		}

		sort.Slice(entry.Slots, func(i, j int) bool {
			return entry.Slots[i].Start.Before(entry.Slots[j].Start)
		})

		for _, s := range entry.Slots {
			if s.Available {
				entry.SlotCount++
			}
		}
		entry.HasAvailability = entry.SlotCount > 0

		days = append(days, entry)
	}

	return days
}

// templateServes reports whether a template can host the given consultation
// type: it must share at least one delivery channel, and a template pinned to
// a specific type only serves that type.
func templateServes(t *AvailabilityTemplate, ct *ConsultationType) bool {
	if t.ConsultationTypeID != nil && *t.ConsultationTypeID != ct.ID {
		return false
	}
	if ct.VideoEnabled && t.VideoEnabled {
		return true
	}
	if ct.InPersonEnabled && t.InPersonEnabled {
		return true
	}
	return false
}
