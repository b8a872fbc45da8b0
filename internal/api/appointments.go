package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

const dateLayout = "2006-01-02"

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !bindJSON(w, r, &req) {
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			ClinicID:    req.ClinicID,
			PatientID:   req.PatientID,
			ProviderID:  req.ProviderID,
			LocationID:  req.LocationID,
			Start:       req.Start,
			End:         req.End,
			ServiceCode: req.ServiceCode,
			ChairID:     req.ChairID,
			Notes:       req.Notes,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := uuidQuery(w, r, "clinic_id")
		if !ok {
			return
		}
		day, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		list, err := svc.ListDay(r.Context(), clinicID, day)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func patientAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_patient_id")
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		list, err := svc.ListByPatient(r.Context(), id, limit, offset)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

// transitionHandler serves the body-less lifecycle actions.
func transitionHandler(action func(context.Context, uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		appt, err := action(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		var req CompleteAppointmentRequest
		if !bindJSON(w, r, &req) {
			return
		}

		procedures := make([]appointment.Procedure, 0, len(req.Procedures))
		for _, p := range req.Procedures {
			procedures = append(procedures, appointment.Procedure(p))
		}
		appt, err := svc.Complete(r.Context(), id, appointment.CompleteRequest{
			Procedures:   procedures,
			MaterialCost: req.MaterialCost,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		var req CancelAppointmentRequest
		if !bindJSON(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, appointment.CancelRequest{
			Reason: appointment.CancelReason(req.Reason),
			Notes:  req.Notes,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		var req RescheduleAppointmentRequest
		if !bindJSON(w, r, &req) {
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, appointment.RescheduleRequest{
			Start:      req.Start,
			End:        req.End,
			ProviderID: req.ProviderID,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func bulkConfirmHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkConfirmRequest
		if !bindJSON(w, r, &req) {
			return
		}

		res := svc.BulkConfirm(r.Context(), req.IDs)
		resp := BulkConfirmResponse{Confirmed: res.Confirmed, Failed: res.Failed}
		if resp.Confirmed == nil {
			resp.Confirmed = []uuid.UUID{}
		}
		if resp.Failed == nil {
			resp.Failed = map[uuid.UUID]string{}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// calendarHandler exports a single appointment as an iCalendar file.
func calendarHandler(svc AppointmentService, directory PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		entry := appointment.CalendarEntry{
			Summary:     "Dental appointment: " + appt.ServiceCode,
			Description: "Please arrive 10 minutes early.",
		}
		if directory != nil {
			if p, err := directory.Get(r.Context(), appt.PatientID); err == nil {
				entry.Summary = fmt.Sprintf("Dental appointment for %s: %s", p.FullName(), appt.ServiceCode)
			}
			if locations, err := directory.ListLocations(r.Context(), appt.ClinicID); err == nil {
				for _, l := range locations {
					if l.ID == appt.LocationID {
						entry.Location = l.Name
						break
					}
				}
			}
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="appointment-%s.ics"`, appt.ID))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(appointment.ICS(*appt, entry, time.Now())))
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenancy.ErrMissingOrganization):
		writeError(w, http.StatusBadRequest, "missing_organization", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, appointment.ErrScheduleConflict):
		writeError(w, http.StatusConflict, "schedule_conflict", err.Error())
	case errors.Is(err, appointment.ErrAppointmentBusy):
		writeError(w, http.StatusConflict, "appointment_busy", "appointment is currently being modified, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrInvalidTimeRange),
		errors.Is(err, appointment.ErrNotesRequired),
		errors.Is(err, appointment.ErrInvalidReason),
		errors.Is(err, appointment.ErrNoProcedures),
		errors.Is(err, appointment.ErrInvalidProcedure),
		errors.Is(err, appointment.ErrNegativeMaterial),
		errors.Is(err, appointment.ErrMissingParticipant):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
