package api

import (
	"errors"
	"net/http"

	"github.com/hackgods/dental-practice-portal/internal/mfa"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

func generateBackupCodesHandler(svc MFAService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "id", "invalid_user_id")
		if !ok {
			return
		}
		codes, err := svc.Generate(r.Context(), userID)
		if err != nil {
			handleMFAError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, BackupCodesResponse{Codes: codes})
	}
}

// exportBackupCodesHandler serves the one-time plaintext download.
func exportBackupCodesHandler(svc MFAService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "id", "invalid_user_id")
		if !ok {
			return
		}
		text, err := svc.Export(r.Context(), userID)
		if err != nil {
			handleMFAError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="backup-codes.txt"`)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))
	}
}

func redeemBackupCodeHandler(svc MFAService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "id", "invalid_user_id")
		if !ok {
			return
		}
		var req RedeemBackupCodeRequest
		if !bindJSON(w, r, &req) {
			return
		}
		if err := svc.Redeem(r.Context(), userID, req.Code); err != nil {
			handleMFAError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMFAError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenancy.ErrMissingOrganization):
		writeError(w, http.StatusBadRequest, "missing_organization", err.Error())
	case errors.Is(err, mfa.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, mfa.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, "invalid_backup_code", err.Error())
	case errors.Is(err, mfa.ErrExportUnavailable):
		writeError(w, http.StatusGone, "export_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
