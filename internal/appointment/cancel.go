package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cancel moves a scheduled appointment to cancelled. Cancelling an already
// cancelled appointment succeeds and changes nothing.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*CancelOutcome, error) {
	out, err := s.cancel(ctx, id, actor)
	s.observer.ObserveCancellation(cancelOutcome(out, err))
	return out, err
}

func (s *Service) cancel(ctx context.Context, id uuid.UUID, actor Actor) (*CancelOutcome, error) {
	appt, err := s.loadPublished(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, appt); err != nil {
		return nil, err
	}

	switch appt.Status {
	case StatusCancelled:
		return &CancelOutcome{Appointment: appt, AlreadyCancelled: true}, nil
	case StatusCompleted:
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusCancelled)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("cancel appointment: %w", err)
		}
		// status moved between read and update
		current, rerr := s.loadPublished(ctx, appt.ID)
		if rerr != nil {
			return nil, rerr
		}
		if current.Status == StatusCancelled {
			return &CancelOutcome{Appointment: current, AlreadyCancelled: true}, nil
		}
		return nil, ErrInvalidStatusTransition
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"actor_id":   actor.ID.String(),
		"actor_role": string(actor.Role),
	})
	s.logger.Info("appointment cancelled",
		zap.Stringer("appointment_id", updated.ID),
		zap.Stringer("actor_id", actor.ID),
	)

	return &CancelOutcome{Appointment: updated}, nil
}

func cancelOutcome(out *CancelOutcome, err error) string {
	switch {
	case err == nil && out.AlreadyCancelled:
		return "already_cancelled"
	case err == nil:
		return "cancelled"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidStatusTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
