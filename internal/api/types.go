package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

type CreateAppointmentRequest struct {
	Date      string `json:"date" validate:"required"`
	Time      string `json:"time" validate:"required"`
	PatientID string `json:"patient_id,omitempty"`
}

type CreateDoctorRequest struct {
	Name           string `json:"name" validate:"required,max=255"`
	Specialization string `json:"specialization" validate:"max=255"`
	Office         string `json:"office" validate:"required,max=50"`
	Published      *bool  `json:"published,omitempty"`
}

type AddScheduleEntryRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"required,min=1,max=7"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Office    string `json:"office" validate:"max=50"`
}

type RegisterPatientRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email,omitempty" validate:"omitempty,email,max=255"`
}

// UpdatePatientRequest fields are optional; an empty email clears it.
type UpdatePatientRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
}

type PatientResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AppointmentResponse struct {
	ID               uuid.UUID `json:"id"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	Office           string    `json:"office"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	Status           string    `json:"status"`
	AlreadyCancelled bool      `json:"already_cancelled,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type AvailabilityResponse struct {
	Doctor string   `json:"doctor"`
	Date   string   `json:"date"`
	Slots  []string `json:"slots"`
}

type DoctorResponse struct {
	ID             uuid.UUID `json:"id"`
	Slug           string    `json:"slug"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	Office         string    `json:"office"`
	Published      bool      `json:"published"`
}

type ScheduleEntryResponse struct {
	ID        uuid.UUID `json:"id"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Office    string    `json:"office"`
}

type DoctorDetailResponse struct {
	DoctorResponse
	Schedule []ScheduleEntryResponse `json:"schedule"`
}

type PageResponse[T any] struct {
	Items   []T  `json:"items"`
	Page    int  `json:"page"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Office:    a.Office,
		Date:      appointment.FormatDate(a.Date),
		Time:      a.Time.String(),
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toPatientResponse(p *appointment.Patient) PatientResponse {
	return PatientResponse{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toDoctorResponse(d *appointment.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:             d.ID,
		Slug:           d.Slug,
		Name:           d.Name,
		Specialization: d.Specialization,
		Office:         d.Office,
		Published:      d.Published,
	}
}

func toScheduleEntryResponse(e *appointment.ScheduleEntry) ScheduleEntryResponse {
	return ScheduleEntryResponse{
		ID:        e.ID,
		DayOfWeek: e.DayOfWeek,
		StartTime: e.Start.String(),
		EndTime:   e.End.String(),
		Office:    e.Office,
	}
}

func toPageResponse[S, T any](p *appointment.Page[S], conv func(*S) T) PageResponse[T] {
	items := make([]T, 0, len(p.Items))
	for i := range p.Items {
		items = append(items, conv(&p.Items[i]))
	}
	return PageResponse[T]{
		Items:   items,
		Page:    p.Page,
		Total:   p.Total,
		HasNext: p.HasNext,
	}
}
