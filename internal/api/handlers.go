package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

var validate = validator.New()

func getAvailabilityHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		date := r.URL.Query().Get("date")

		slots, err := svc.GetAvailability(r.Context(), slug, date)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		resp := AvailabilityResponse{
			Doctor: slug,
			Date:   date,
			Slots:  make([]string, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, s.String())
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if !decode(w, r, &req) {
			return
		}

		var patientID uuid.UUID
		if req.PatientID != "" {
			id, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			patientID = id
		}

		appt, err := svc.CreateAppointment(r.Context(), actor, chi.URLParam(r, "slug"), patientID, req.Date, req.Time)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		out, err := svc.Cancel(r.Context(), id, actor)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		resp := toAppointmentResponse(out.Appointment)
		resp.AlreadyCancelled = out.AlreadyCancelled
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id, actor)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func registerPatientHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterPatientRequest
		if !decode(w, r, &req) {
			return
		}

		p, err := svc.RegisterPatient(r.Context(), req.Name, req.Email)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPatientResponse(p))
	}
}

func getPatientHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, ok := patientIDParam(w, r)
		if !ok {
			return
		}

		p, err := svc.GetPatient(r.Context(), actor, id)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}

func updatePatientHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, ok := patientIDParam(w, r)
		if !ok {
			return
		}

		var req UpdatePatientRequest
		if !decode(w, r, &req) {
			return
		}

		p, err := svc.UpdatePatient(r.Context(), actor, id, req.Name, req.Email)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}

func listPatientAppointmentsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		patientID, ok := patientIDParam(w, r)
		if !ok {
			return
		}
		page, ok := pageParam(w, r)
		if !ok {
			return
		}

		result, err := svc.PatientAppointments(r.Context(), actor, patientID, page)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toPageResponse(result, toAppointmentResponse))
	}
}

func listDoctorsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := pageParam(w, r)
		if !ok {
			return
		}

		result, err := svc.ListDoctors(r.Context(), page)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toPageResponse(result, toDoctorResponse))
	}
}

func getDoctorHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := svc.DoctorDetail(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		resp := DoctorDetailResponse{
			DoctorResponse: toDoctorResponse(&detail.Doctor),
			Schedule:       make([]ScheduleEntryResponse, 0, len(detail.Schedule)),
		}
		for i := range detail.Schedule {
			resp.Schedule = append(resp.Schedule, toScheduleEntryResponse(&detail.Schedule[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createDoctorHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req CreateDoctorRequest
		if !decode(w, r, &req) {
			return
		}

		published := true
		if req.Published != nil {
			published = *req.Published
		}

		d, err := svc.CreateDoctor(r.Context(), actor, req.Name, req.Specialization, req.Office, published)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toDoctorResponse(d))
	}
}

func addScheduleEntryHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req AddScheduleEntryRequest
		if !decode(w, r, &req) {
			return
		}

		entry, err := svc.AddScheduleEntry(r.Context(), actor, chi.URLParam(r, "slug"), req.DayOfWeek, req.StartTime, req.EndTime, req.Office)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toScheduleEntryResponse(entry))
	}
}

func requireActor(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	actor, ok := GetActor(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", HeaderActorID+" header is required")
		return appointment.Actor{}, false
	}
	return actor, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func patientIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
		return 0, false
	}
	return page, true
}

func handleError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, appointment.ErrInvalidTime):
		writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
	case errors.Is(err, appointment.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
	case errors.Is(err, appointment.ErrInvalidDoctor):
		writeError(w, http.StatusBadRequest, "invalid_doctor", err.Error())
	case errors.Is(err, appointment.ErrInvalidPatient):
		writeError(w, http.StatusBadRequest, "invalid_patient", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorUnavailable):
		writeError(w, http.StatusConflict, "doctor_unavailable", err.Error())
	case errors.Is(err, appointment.ErrSlotNotOffered):
		writeError(w, http.StatusConflict, "slot_not_offered", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, appointment.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_busy", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrScheduleConflict):
		writeError(w, http.StatusConflict, "schedule_conflict", err.Error())
	case errors.Is(err, appointment.ErrDuplicateSlug):
		writeError(w, http.StatusConflict, "duplicate_slug", err.Error())
	default:
		logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
