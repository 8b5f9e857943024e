package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Occupies reports whether an appointment in this status holds its slot.
func (s AppointmentStatus) Occupies() bool {
	return s == StatusScheduled || s == StatusCompleted
}

type Role string

const (
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// Actor is the caller on whose behalf an operation runs. Authentication happens upstream.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	Office         string
	Slug           string
	Published      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScheduleEntry is a recurring weekly window. End is exclusive.
type ScheduleEntry struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	DayOfWeek int
	Start     Clock
	End       Clock
	Office    string
	CreatedAt time.Time
}

// Offers reports whether a full slot starting at t fits inside the entry.
func (e ScheduleEntry) Offers(t Clock) bool {
	if t < e.Start || t.Add(SlotDuration) > e.End {
		return false
	}
	return (t-e.Start)%SlotDuration == 0
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Office    string
	Date      time.Time
	Time      Clock
	Status    AppointmentStatus
	Published bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the appointment occupies its slot.
func (a Appointment) Active() bool {
	return a.Published && a.Status.Occupies()
}

// StartsAt combines date and time in loc.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	y, m, d := a.Date.Date()
	return time.Date(y, m, d, a.Time.Hour(), a.Time.Minute(), 0, 0, loc)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// DoctorDetail is a doctor with its weekly schedule ordered by day and start.
type DoctorDetail struct {
	Doctor
	Schedule []ScheduleEntry
}

// CancelOutcome is the result of a cancellation. AlreadyCancelled marks a no-op.
type CancelOutcome struct {
	Appointment      *Appointment
	AlreadyCancelled bool
}

// Page is a 1-based page of results.
type Page[T any] struct {
	Items   []T
	Page    int
	Total   int
	HasNext bool
}
