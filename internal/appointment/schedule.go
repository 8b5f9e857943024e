package appointment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const maxSlugAttempts = 20

// NewDoctor builds a published doctor with a slug derived from its name.
func NewDoctor(name, specialization, office string) (*Doctor, error) {
	name = strings.TrimSpace(name)
	office = strings.TrimSpace(office)
	if name == "" || office == "" {
		return nil, fmt.Errorf("%w: name and office are required", ErrInvalidDoctor)
	}
	return &Doctor{
		ID:             uuid.New(),
		Name:           name,
		Specialization: strings.TrimSpace(specialization),
		Office:         office,
		Slug:           slugFor(name, 1),
		Published:      true,
	}, nil
}

// slugFor returns the attempt-th candidate slug for name: "ivan-petrov", "ivan-petrov-2", ...
func slugFor(name string, attempt int) string {
	base := slug.Make(name)
	if base == "" {
		base = "doctor"
	}
	if attempt <= 1 {
		return base
	}
	return base + "-" + strconv.Itoa(attempt)
}

// NewScheduleEntry builds a weekly window for d. An empty office falls back to the doctor's.
func NewScheduleEntry(d *Doctor, dayOfWeek int, start, end Clock, office string) (*ScheduleEntry, error) {
	if dayOfWeek < 1 || dayOfWeek > 7 {
		return nil, fmt.Errorf("%w: day_of_week must be 1..7", ErrInvalidSchedule)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: start must be before end", ErrInvalidSchedule)
	}
	if !start.OnGrid() {
		return nil, fmt.Errorf("%w: start must fall on a %d-minute boundary", ErrInvalidSchedule, SlotDuration)
	}
	office = strings.TrimSpace(office)
	if office == "" {
		office = d.Office
	}
	return &ScheduleEntry{
		ID:        uuid.New(),
		DoctorID:  d.ID,
		DayOfWeek: dayOfWeek,
		Start:     start,
		End:       end,
		Office:    office,
	}, nil
}

// CreateDoctor registers a doctor. Slug collisions get a numeric suffix.
func (s *Service) CreateDoctor(ctx context.Context, actor Actor, name, specialization, office string, published bool) (*Doctor, error) {
	if err := AuthorizeAdmin(actor); err != nil {
		return nil, err
	}
	d, err := NewDoctor(name, specialization, office)
	if err != nil {
		return nil, err
	}
	d.Published = published

	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		d.Slug = slugFor(d.Name, attempt)
		err = s.repo.CreateDoctor(ctx, d)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, ErrDuplicateSlug) {
			return nil, fmt.Errorf("create doctor: %w", err)
		}
	}
	return nil, ErrDuplicateSlug
}

// AddScheduleEntry adds a weekly window to the doctor identified by slug.
func (s *Service) AddScheduleEntry(ctx context.Context, actor Actor, doctorSlug string, dayOfWeek int, start, end, office string) (*ScheduleEntry, error) {
	if err := AuthorizeAdmin(actor); err != nil {
		return nil, err
	}
	from, err := ParseClock(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseClock(end)
	if err != nil {
		return nil, err
	}

	d, err := s.DoctorBySlug(ctx, doctorSlug)
	if err != nil {
		return nil, err
	}

	entry, err := NewScheduleEntry(d, dayOfWeek, from, to, office)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddScheduleEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrScheduleConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("add schedule entry: %w", err)
	}
	return entry, nil
}
