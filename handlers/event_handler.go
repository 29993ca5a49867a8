package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"live-requests/models"
	"live-requests/services"
)

type EventHandler struct {
	app       *pocketbase.PocketBase
	lifecycle *services.LifecycleService
	store     services.RecordStore
}

func NewEventHandler(app *pocketbase.PocketBase, lifecycle *services.LifecycleService, store services.RecordStore) *EventHandler {
	return &EventHandler{
		app:       app,
		lifecycle: lifecycle,
		store:     store,
	}
}

// Start puts the authenticated artist live.
func (h *EventHandler) Start(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		DonationMode     models.DonationMode `json:"donation_mode"`
		MinDonationValue decimal.Decimal     `json:"min_donation_value"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if req.DonationMode == "" {
		req.DonationMode = models.DonationOptional
	}

	event, err := h.lifecycle.StartEvent(e.Request.Context(), e.Auth.Id, req.DonationMode, req.MinDonationValue)
	if err != nil {
		return mapError(err)
	}

	return e.JSON(http.StatusOK, event)
}

// End finishes the artist's live event. Pending requests are left
// untouched.
func (h *EventHandler) End(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.PathValue("id")
	if eventID == "" {
		return apis.NewBadRequestError("Missing event id", nil)
	}

	event, err := h.store.FindEvent(e.Request.Context(), eventID)
	if err != nil {
		return mapError(err)
	}
	if event.ArtistID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	event, err = h.lifecycle.EndEvent(e.Request.Context(), eventID)
	if err != nil {
		return mapError(err)
	}

	return e.JSON(http.StatusOK, event)
}

// Current returns the authenticated artist's live event, if any.
func (h *EventHandler) Current(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	event, err := h.store.FindLiveEventByArtist(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return mapError(err)
	}

	return e.JSON(http.StatusOK, event)
}
