package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/lock"
)

// CreateAppointment validates caller input and the actor, then books the slot.
// A zero patientID means the actor books for themselves.
func (s *Service) CreateAppointment(ctx context.Context, actor Actor, slug string, patientID uuid.UUID, date, at string) (*Appointment, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	t, err := ParseClock(at)
	if err != nil {
		return nil, err
	}

	if patientID == uuid.Nil {
		patientID = actor.ID
	}
	if err := AuthorizePatient(actor, patientID); err != nil {
		return nil, err
	}

	d, err := s.DoctorBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.Book(ctx, d.ID, patientID, day, t)
}

// Book turns a slot into a scheduled appointment. Preconditions are checked in
// order: doctor published, patient known, slot offered, slot free. The last
// check runs again inside a critical section keyed by (office, date, time) and
// (doctor, date, time) so that concurrent callers see exactly one winner.
func (s *Service) Book(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, at Clock) (*Appointment, error) {
	appt, err := s.book(ctx, doctorID, patientID, truncateDate(date), at)
	s.observer.ObserveBooking(bookingOutcome(err))
	return appt, err
}

func (s *Service) book(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, at Clock) (*Appointment, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Published {
		return nil, ErrDoctorUnavailable
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	entry, err := s.offeringEntry(ctx, doctor.ID, date, at)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithLock(ctx, SlotLockKeys(doctor.ID, entry.Office, date, at), func(lockCtx context.Context) error {
		existing, err := s.repo.FindActiveConflict(lockCtx, doctor.ID, entry.Office, date, at)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotTaken
		}

		appt := &Appointment{
			ID:        uuid.New(),
			DoctorID:  doctor.ID,
			PatientID: patientID,
			Office:    entry.Office,
			Date:      date,
			Time:      at,
			Status:    StatusScheduled,
			Published: true,
		}
		if err := s.repo.InsertScheduled(lockCtx, appt); err != nil {
			if errors.Is(err, ErrDuplicateSlot) {
				return ErrSlotTaken
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"doctor_id":  doctor.ID.String(),
			"patient_id": patientID.String(),
			"office":     entry.Office,
			"date":       FormatDate(date),
			"time":       at.String(),
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, lock.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.logger.Info("appointment booked",
		zap.Stringer("appointment_id", created.ID),
		zap.Stringer("doctor_id", doctor.ID),
		zap.String("office", entry.Office),
		zap.String("date", FormatDate(date)),
		zap.Stringer("time", at),
	)

	return created, nil
}

// offeringEntry finds the schedule entry that offers a full slot at t on date's weekday.
func (s *Service) offeringEntry(ctx context.Context, doctorID uuid.UUID, date time.Time, t Clock) (*ScheduleEntry, error) {
	if !t.OnGrid() {
		return nil, ErrSlotNotOffered
	}
	entries, err := s.repo.EntriesFor(ctx, doctorID, ISOWeekday(date))
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	for i := range entries {
		if entries[i].Offers(t) {
			return &entries[i], nil
		}
	}
	return nil, ErrSlotNotOffered
}

// SlotLockKeys returns the critical-section keys for a booking.
func SlotLockKeys(doctorID uuid.UUID, office string, date time.Time, t Clock) []string {
	suffix := FormatDate(date) + ":" + t.String()
	return []string{
		"slot:office:" + office + ":" + suffix,
		"slot:doctor:" + doctorID.String() + ":" + suffix,
	}
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrDoctorNotFound):
		return "doctor_not_found"
	case errors.Is(err, ErrDoctorUnavailable):
		return "doctor_unavailable"
	case errors.Is(err, ErrPatientNotFound):
		return "patient_not_found"
	case errors.Is(err, ErrSlotNotOffered):
		return "slot_not_offered"
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, ErrSlotBusy):
		return "slot_busy"
	default:
		return "error"
	}
}
