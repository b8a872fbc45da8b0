package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/patient"
	"github.com/hackgods/dental-practice-portal/internal/scheduling"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

func searchPatientsHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := svc.Search(r.Context(), r.URL.Query().Get("q"), limit)
		if err != nil {
			handlePatientError(w, err)
			return
		}
		if list == nil {
			list = []patient.Patient{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getPatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_patient_id")
		if !ok {
			return
		}
		p, err := svc.Get(r.Context(), id)
		if err != nil {
			handlePatientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func createPatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePatientRequest
		if !bindJSON(w, r, &req) {
			return
		}
		p, err := svc.Create(r.Context(), patient.CreateRequest{
			ClinicID:    req.ClinicID,
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			Email:       req.Email,
			Phone:       req.Phone,
			DateOfBirth: req.DateOfBirth,
		})
		if err != nil {
			handlePatientError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func updatePatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_patient_id")
		if !ok {
			return
		}
		var req UpdatePatientRequest
		if !bindJSON(w, r, &req) {
			return
		}
		p, err := svc.Update(r.Context(), id, patient.UpdateRequest(req))
		if err != nil {
			handlePatientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func deletePatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_patient_id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			handlePatientError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listProvidersHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := uuidParam(w, r, "id", "invalid_clinic_id")
		if !ok {
			return
		}
		list, err := svc.ListProviders(r.Context(), clinicID)
		if err != nil {
			handlePatientError(w, err)
			return
		}
		if list == nil {
			list = []patient.Provider{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func listLocationsHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := uuidParam(w, r, "id", "invalid_clinic_id")
		if !ok {
			return
		}
		list, err := svc.ListLocations(r.Context(), clinicID)
		if err != nil {
			handlePatientError(w, err)
			return
		}
		if list == nil {
			list = []patient.Location{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func slotsHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := uuidParam(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}
		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		minutes, err := strconv.Atoi(r.URL.Query().Get("duration"))
		if err != nil || minutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a positive number of minutes")
			return
		}

		slots, err := svc.Slots(r.Context(), providerID, date, time.Duration(minutes)*time.Minute)
		if err != nil {
			switch {
			case errors.Is(err, tenancy.ErrMissingOrganization):
				writeError(w, http.StatusBadRequest, "missing_organization", err.Error())
			case errors.Is(err, appointment.ErrProviderNotFound):
				writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
			case errors.Is(err, scheduling.ErrInvalidDuration), errors.Is(err, scheduling.ErrInvalidWindow):
				writeError(w, http.StatusBadRequest, "invalid_slot_query", err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{Start: s.Start, End: s.End})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handlePatientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenancy.ErrMissingOrganization):
		writeError(w, http.StatusBadRequest, "missing_organization", err.Error())
	case errors.Is(err, patient.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, patient.ErrNameRequired), errors.Is(err, patient.ErrInvalidEmail):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.Is(err, patient.ErrNoChanges):
		writeError(w, http.StatusBadRequest, "no_changes", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
