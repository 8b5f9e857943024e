package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// GetAvailability parses date before touching any store, then returns the free
// slots of a published doctor.
func (s *Service) GetAvailability(ctx context.Context, slug, date string) ([]Clock, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	d, err := s.PublishedDoctor(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.AvailableSlots(ctx, d.ID, day)
}

// AvailableSlots returns the doctor's free slot start times on date, ascending.
// The result is computed from the live ledger on every call.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Clock, error) {
	date = truncateDate(date)

	entries, err := s.repo.EntriesFor(ctx, doctorID, ISOWeekday(date))
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if len(entries) == 0 {
		s.observer.ObserveAvailability(0)
		return []Clock{}, nil
	}

	occupied, err := s.repo.OccupiedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load occupied times: %w", err)
	}

	slots := FreeSlots(entries, occupied)
	s.observer.ObserveAvailability(len(slots))
	return slots, nil
}

// FreeSlots walks every entry in SlotDuration steps over [start, end) and
// returns the unoccupied starts, sorted and deduplicated. A trailing partial
// step is dropped.
func FreeSlots(entries []ScheduleEntry, occupied []Clock) []Clock {
	taken := make(map[Clock]struct{}, len(occupied))
	for _, t := range occupied {
		taken[t] = struct{}{}
	}

	var slots []Clock
	for _, e := range entries {
		for t := e.Start; t.Add(SlotDuration) <= e.End; t = t.Add(SlotDuration) {
			if _, ok := taken[t]; !ok {
				slots = append(slots, t)
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	out := make([]Clock, 0, len(slots))
	for i, t := range slots {
		if i > 0 && t == slots[i-1] {
			continue
		}
		out = append(out, t)
	}
	return out
}
