package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDuplicateSlug       = errors.New("doctor slug already exists")
	ErrScheduleConflict    = errors.New("schedule entry conflicts with an existing entry")
	ErrDuplicateSlot       = errors.New("slot already has an active appointment")
)

// DoctorStore holds doctors and patients.
type DoctorStore interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDoctorBySlug(ctx context.Context, slug string) (*Doctor, error)
	ListPublishedDoctors(ctx context.Context, limit, offset int) ([]Doctor, int, error)
	CreateDoctor(ctx context.Context, d *Doctor) error

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) error
	// UpdatePatient overwrites name and email; ErrPatientNotFound if p.ID is unknown.
	UpdatePatient(ctx context.Context, p *Patient) error
}

// ScheduleStore holds recurring weekly availability.
type ScheduleStore interface {
	// EntriesFor returns the doctor's entries for a weekday ordered by start.
	EntriesFor(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]ScheduleEntry, error)
	// ListSchedule returns all of the doctor's entries ordered by day then start.
	ListSchedule(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error)
	// AddScheduleEntry fails with ErrScheduleConflict when (doctor, day, start)
	// or (office, day, start) is already taken.
	AddScheduleEntry(ctx context.Context, e *ScheduleEntry) error
}

// Ledger holds appointment records. Rows are never deleted.
type Ledger interface {
	// OccupiedTimes returns the times of active appointments for the doctor on date.
	OccupiedTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Clock, error)
	// FindActiveConflict returns an active appointment for (doctor, date, t) or
	// (office, date, t), or ErrAppointmentNotFound.
	FindActiveConflict(ctx context.Context, doctorID uuid.UUID, office string, date time.Time, t Clock) (*Appointment, error)
	// InsertScheduled stores a new scheduled appointment; ErrDuplicateSlot on a key collision.
	InsertScheduled(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateAppointmentStatus transitions from -> to, or returns ErrAppointmentNotFound
	// when the row is missing or not in status from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	ListScheduledByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, int, error)
	// FindElapsedScheduled returns scheduled appointments starting at or before (date, t).
	FindElapsedScheduled(ctx context.Context, date time.Time, t Clock) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository contains all storage interactions needed by the service.
type Repository interface {
	DoctorStore
	ScheduleStore
	Ledger
	Ping(ctx context.Context) error
}
