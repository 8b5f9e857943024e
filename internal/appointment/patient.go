package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewPatient builds a patient record. An empty email is stored as NULL.
func NewPatient(name, email string) (*Patient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPatient)
	}
	return &Patient{
		ID:    uuid.New(),
		Name:  name,
		Email: optionalEmail(email),
	}, nil
}

func optionalEmail(email string) *string {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	return &email
}

// RegisterPatient creates a patient. The returned id is what the caller
// presents as its actor id from then on.
func (s *Service) RegisterPatient(ctx context.Context, name, email string) (*Patient, error) {
	p, err := NewPatient(name, email)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, actor Actor, id uuid.UUID) (*Patient, error) {
	if err := AuthorizePatient(actor, id); err != nil {
		return nil, err
	}
	return s.loadPatient(ctx, id)
}

// UpdatePatient edits the profile. Nil fields are left unchanged; an empty
// email clears it.
func (s *Service) UpdatePatient(ctx context.Context, actor Actor, id uuid.UUID, name, email *string) (*Patient, error) {
	if err := AuthorizePatient(actor, id); err != nil {
		return nil, err
	}
	p, err := s.loadPatient(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidPatient)
		}
		p.Name = n
	}
	if email != nil {
		p.Email = optionalEmail(*email)
	}

	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return p, nil
}

func (s *Service) loadPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return p, nil
}
