package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process. It backs STORE_BACKEND=memory and tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	schedule     []ScheduleEntry
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		appointments: make(map[uuid.UUID]*Appointment),
		now:          time.Now,
	}
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

// AddPatient registers a fixture patient, assigning an id when p has none.
func (r *MemoryRepository) AddPatient(p Patient) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_ = r.CreatePatient(context.Background(), &p)
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) GetDoctorBySlug(ctx context.Context, slug string) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.doctors {
		if d.Slug == slug {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *MemoryRepository) ListPublishedDoctors(ctx context.Context, limit, offset int) ([]Doctor, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Doctor
	for _, d := range r.doctors {
		if d.Published {
			all = append(all, *d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Slug < all[j].Slug })

	return window(all, limit, offset), len(all), nil
}

func (r *MemoryRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.doctors {
		if existing.Slug == d.Slug {
			return ErrDuplicateSlug
		}
	}
	now := r.now()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	r.doctors[d.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) CreatePatient(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.patients[p.ID]
	if !ok {
		return ErrPatientNotFound
	}
	existing.Name = p.Name
	existing.Email = p.Email
	existing.UpdatedAt = r.now()
	*p = *existing
	return nil
}

func (r *MemoryRepository) EntriesFor(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]ScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ScheduleEntry
	for _, e := range r.schedule {
		if e.DoctorID == doctorID && e.DayOfWeek == dayOfWeek {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (r *MemoryRepository) ListSchedule(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ScheduleEntry
	for _, e := range r.schedule {
		if e.DoctorID == doctorID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (r *MemoryRepository) AddScheduleEntry(ctx context.Context, e *ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.schedule {
		if existing.DayOfWeek != e.DayOfWeek || existing.Start != e.Start {
			continue
		}
		if existing.DoctorID == e.DoctorID || existing.Office == e.Office {
			return ErrScheduleConflict
		}
	}
	e.CreatedAt = r.now()
	r.schedule = append(r.schedule, *e)
	return nil
}

func (r *MemoryRepository) OccupiedTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Clock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Clock
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.Active() {
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindActiveConflict(ctx context.Context, doctorID uuid.UUID, office string, date time.Time, t Clock) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a := r.conflictLocked(doctorID, office, date, t); a != nil {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) conflictLocked(doctorID uuid.UUID, office string, date time.Time, t Clock) *Appointment {
	for _, a := range r.appointments {
		if !a.Active() || !a.Date.Equal(date) || a.Time != t {
			continue
		}
		if a.DoctorID == doctorID || a.Office == office {
			return a
		}
	}
	return nil
}

func (r *MemoryRepository) InsertScheduled(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictLocked(a.DoctorID, a.Office, a.Date, a.Time) != nil {
		return ErrDuplicateSlot
	}
	now := r.now()
	a.Status = StatusScheduled
	a.Published = true
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	r.appointments[a.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = r.now()
	cp := *a
	return &cp, nil
}

// SetPublished toggles the soft-delete marker.
func (r *MemoryRepository) SetPublished(id uuid.UUID, published bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.appointments[id]; ok {
		a.Published = published
	}
}

func (r *MemoryRepository) ListScheduledByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID && a.Published && a.Status == StatusScheduled {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.Before(all[j].Date)
		}
		return all[i].Time < all[j].Time
	})

	return window(all, limit, offset), len(all), nil
}

func (r *MemoryRepository) FindElapsedScheduled(ctx context.Context, date time.Time, t Clock) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.Status != StatusScheduled {
			continue
		}
		if a.Date.Before(date) || (a.Date.Equal(date) && a.Time <= t) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
