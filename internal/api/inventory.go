package api

import (
	"errors"
	"net/http"

	"github.com/hackgods/dental-practice-portal/internal/inventory"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

func listItemsHandler(svc InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListItems(r.Context())
		if err != nil {
			handleInventoryError(w, err)
			return
		}
		if items == nil {
			items = []inventory.ItemView{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func consumptionPlanHandler(svc InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConsumptionPlanRequest
		if !bindJSON(w, r, &req) {
			return
		}
		plan, err := svc.LoadPlan(r.Context(), req.ProcedureCodes)
		if err != nil {
			handleInventoryError(w, err)
			return
		}
		if plan.Lines == nil {
			plan.Lines = []inventory.Consumption{}
		}
		warnings := plan.Warnings()
		if warnings == nil {
			warnings = []inventory.Warning{}
		}
		writeJSON(w, http.StatusOK, ConsumptionPlanResponse{
			Plan:       plan,
			Warnings:   warnings,
			CanConfirm: plan.CanConfirm(),
			TotalCost:  plan.TotalCost(),
		})
	}
}

func consumptionConfirmHandler(svc InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConsumptionConfirmRequest
		if !bindJSON(w, r, &req) {
			return
		}
		res, err := svc.Confirm(r.Context(), inventory.ConfirmRequest{
			AppointmentID: req.AppointmentID,
			Lines:         req.Lines,
		})
		if err != nil {
			handleInventoryError(w, err)
			return
		}
		warnings := res.Warnings
		if warnings == nil {
			warnings = []inventory.Warning{}
		}
		writeJSON(w, http.StatusOK, ConsumptionConfirmResponse{MaterialCost: res.MaterialCost, Warnings: warnings})
	}
}

// ConsumptionBlockedResponse carries the warnings that prevented a confirmation.
type ConsumptionBlockedResponse struct {
	Error    string              `json:"error"`
	Warnings []inventory.Warning `json:"warnings"`
}

func handleInventoryError(w http.ResponseWriter, err error) {
	var blocked *inventory.BlockedError
	switch {
	case errors.As(err, &blocked):
		writeJSON(w, http.StatusUnprocessableEntity, ConsumptionBlockedResponse{Error: "consumption_blocked", Warnings: blocked.Warnings})
	case errors.Is(err, tenancy.ErrMissingOrganization):
		writeError(w, http.StatusBadRequest, "missing_organization", err.Error())
	case errors.Is(err, inventory.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, inventory.ErrNothingToConsume):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
