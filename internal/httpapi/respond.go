// Package httpapi holds the one place where domain errors become HTTP
// responses. Repositories and services return typed errors; handlers hand
// them to WriteDomainError and never pick status codes themselves.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/elberthomay/storefront/internal/domain"
)

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, map[string]string{"error": message})
}

// WriteDomainError maps the domain error taxonomy onto status codes:
// validation 400, forbidden 403, not found 404, stale inventory and invalid
// transitions 409, insufficient stock 422. Anything unclassified is logged
// and reported as a generic 500.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr domain.ValidationError
	var inventoryErr *domain.InventoryError
	var statusErr *domain.InvalidStatusError

	switch {
	case errors.As(err, &validationErr):
		WriteError(w, logger, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, logger, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, logger, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrStaleInventory):
		WriteError(w, logger, http.StatusConflict, err.Error())
	case errors.As(err, &statusErr):
		WriteError(w, logger, http.StatusConflict, statusErr.Error())
	case errors.As(err, &inventoryErr):
		WriteJSON(w, logger, http.StatusUnprocessableEntity, map[string]any{
			"error": inventoryErr.Error(),
			"items": inventoryErr.Items,
		})
	default:
		logger.Error("unhandled error", "error", err)
		WriteError(w, logger, http.StatusInternalServerError, "internal server error")
	}
}
