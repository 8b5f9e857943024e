package appointment

import "github.com/google/uuid"

// Authorize allows the appointment's patient or an admin.
func Authorize(actor Actor, appt *Appointment) error {
	return AuthorizePatient(actor, appt.PatientID)
}

// AuthorizePatient allows the patient themselves or an admin to act on patientID's records.
func AuthorizePatient(actor Actor, patientID uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == RolePatient && actor.ID != uuid.Nil && actor.ID == patientID {
		return nil
	}
	return ErrForbidden
}

// AuthorizeAdmin allows administrative actors only.
func AuthorizeAdmin(actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	return ErrForbidden
}
