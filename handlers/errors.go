package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"

	"live-requests/internal/status"
)

// mapError translates the service error taxonomy into API responses.
func mapError(err error) error {
	switch {
	case errors.Is(err, status.ErrValidation):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrEventNotLive):
		return apis.NewApiError(http.StatusConflict, "Event is not live", nil)
	case errors.Is(err, status.ErrInvalidState):
		return apis.NewApiError(http.StatusConflict, "Someone else already handled this", nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.Is(err, status.ErrPaymentInitiation):
		return apis.NewApiError(http.StatusBadGateway, "Payment could not be initiated", nil)
	default:
		return apis.NewInternalServerError("Internal error", err)
	}
}
