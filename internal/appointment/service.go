package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/lock"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

// PageSize is the page length for doctor and patient listings.
const PageSize = 5

var (
	ErrInvalidDate             = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidTime             = errors.New("invalid time, expected HH:MM")
	ErrDoctorUnavailable       = errors.New("doctor is not accepting appointments")
	ErrSlotNotOffered          = errors.New("time is not offered by the doctor's schedule")
	ErrSlotTaken               = errors.New("slot already has an active appointment")
	ErrSlotBusy                = errors.New("slot is currently being booked, please retry")
	ErrForbidden               = errors.New("actor may not access this resource")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidSchedule         = errors.New("invalid schedule entry")
	ErrInvalidDoctor           = errors.New("invalid doctor")
	ErrInvalidPatient          = errors.New("invalid patient")
)

// Observer receives operation outcomes, typically for metrics.
type Observer interface {
	ObserveBooking(outcome string)
	ObserveCancellation(outcome string)
	ObserveAvailability(slots int)
}

type nopObserver struct{}

func (nopObserver) ObserveBooking(string)      {}
func (nopObserver) ObserveCancellation(string) {}
func (nopObserver) ObserveAvailability(int)    {}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides the time source used by the completion sweep.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	repo     Repository
	locker   lock.Locker
	cfg      config.Config
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

func NewService(repo Repository, locker lock.Locker, cfg config.Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:     repo,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) location() *time.Location {
	if s.cfg.Location != nil {
		return s.cfg.Location
	}
	return time.UTC
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// DoctorBySlug returns a doctor regardless of its published flag.
func (s *Service) DoctorBySlug(ctx context.Context, slug string) (*Doctor, error) {
	d, err := s.repo.GetDoctorBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return d, nil
}

// PublishedDoctor returns a doctor visible to the public; unpublished doctors are not found.
func (s *Service) PublishedDoctor(ctx context.Context, slug string) (*Doctor, error) {
	d, err := s.DoctorBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !d.Published {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

// ListDoctors returns a page of published doctors ordered by slug.
func (s *Service) ListDoctors(ctx context.Context, page int) (*Page[Doctor], error) {
	page = normalizePage(page)
	doctors, total, err := s.repo.ListPublishedDoctors(ctx, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return &Page[Doctor]{
		Items:   doctors,
		Page:    page,
		Total:   total,
		HasNext: page*PageSize < total,
	}, nil
}

// DoctorDetail returns a published doctor with its weekly schedule.
func (s *Service) DoctorDetail(ctx context.Context, slug string) (*DoctorDetail, error) {
	d, err := s.PublishedDoctor(ctx, slug)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListSchedule(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	return &DoctorDetail{Doctor: *d, Schedule: entries}, nil
}

// GetAppointment returns an appointment visible to the actor.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.loadPublished(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// PatientAppointments lists a patient's upcoming scheduled appointments ordered by date and time.
func (s *Service) PatientAppointments(ctx context.Context, actor Actor, patientID uuid.UUID, page int) (*Page[Appointment], error) {
	if err := AuthorizePatient(actor, patientID); err != nil {
		return nil, err
	}
	page = normalizePage(page)
	items, total, err := s.repo.ListScheduledByPatient(ctx, patientID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return &Page[Appointment]{
		Items:   items,
		Page:    page,
		Total:   total,
		HasNext: page*PageSize < total,
	}, nil
}

// CompleteElapsed marks scheduled appointments whose slot has ended as completed.
// It is intended to be called by the completion worker periodically.
func (s *Service) CompleteElapsed(ctx context.Context) (int, error) {
	cutoff := s.now().In(s.location()).Add(-SlotDuration.Duration())
	date := truncateDate(cutoff)
	at := NewClock(cutoff.Hour(), cutoff.Minute())

	candidates, err := s.repo.FindElapsedScheduled(ctx, date, at)
	if err != nil {
		return 0, fmt.Errorf("find elapsed appointments: %w", err)
	}

	completed := 0
	for _, appt := range candidates {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusCompleted)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Warn("failed to complete appointment", zap.Stringer("appointment_id", appt.ID), zap.Error(err))
			}
			continue
		}
		completed++
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"reason": "worker",
		})
	}

	return completed, nil
}

func (s *Service) loadPublished(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.Published {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.Stringer("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
