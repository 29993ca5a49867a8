package handlers

import (
	"context"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"live-requests/models"
	"live-requests/services"
)

type RequestHandler struct {
	app         *pocketbase.PocketBase
	submissions *services.SubmissionService
	lifecycle   *services.LifecycleService
	store       services.RecordStore
}

func NewRequestHandler(app *pocketbase.PocketBase, submissions *services.SubmissionService, lifecycle *services.LifecycleService, store services.RecordStore) *RequestHandler {
	return &RequestHandler{
		app:         app,
		submissions: submissions,
		lifecycle:   lifecycle,
		store:       store,
	}
}

// Create admits one audience submission. Open to guests; an
// authenticated submitter is linked to the request.
func (h *RequestHandler) Create(e *core.RequestEvent) error {
	var req struct {
		EventID   string          `json:"event_id"`
		Content   string          `json:"content"`
		Amount    decimal.Decimal `json:"amount"`
		GuestName string          `json:"guest_name"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	params := services.SubmitParams{
		EventID:   req.EventID,
		GuestName: req.GuestName,
		Content:   req.Content,
		Amount:    req.Amount,
	}
	if e.Auth != nil {
		params.UserID = e.Auth.Id
	}

	result, err := h.submissions.Submit(e.Request.Context(), params)
	if err != nil {
		return mapError(err)
	}

	resp := map[string]any{
		"request_id": result.Request.ID,
	}
	if result.Request.Amount.IsPositive() {
		resp["qr_code"] = result.QRCode
		resp["qr_code_base64"] = result.QRCodeBase64
	}

	return e.JSON(http.StatusOK, resp)
}

// Accept marks a pending request as played.
func (h *RequestHandler) Accept(e *core.RequestEvent) error {
	return h.transition(e, h.lifecycle.Accept)
}

// Reject archives a pending request.
func (h *RequestHandler) Reject(e *core.RequestEvent) error {
	return h.transition(e, h.lifecycle.Reject)
}

func (h *RequestHandler) transition(e *core.RequestEvent, fn func(context.Context, string) (models.Request, error)) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	requestID := e.Request.PathValue("id")
	if requestID == "" {
		return apis.NewBadRequestError("Missing request id", nil)
	}

	updated, err := fn(e.Request.Context(), requestID)
	if err != nil {
		return mapError(err)
	}

	return e.JSON(http.StatusOK, updated)
}

// List returns an event's requests, optionally narrowed to a payment
// filter over the pending ones.
func (h *RequestHandler) List(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return apis.NewBadRequestError("Missing event id", nil)
	}

	requests, err := h.store.ListRequestsByEvent(e.Request.Context(), eventID)
	if err != nil {
		return mapError(err)
	}

	filter := models.PaymentFilter(e.Request.URL.Query().Get("filter"))
	if filter != "" && filter != models.FilterAll {
		view := services.ProjectQueue(requests)
		requests = services.FilterWaiting(view.Waiting, filter)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"requests": requests,
	})
}

// Queue returns the projected three-bucket view for the performer.
func (h *RequestHandler) Queue(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return apis.NewBadRequestError("Missing event id", nil)
	}

	requests, err := h.store.ListRequestsByEvent(e.Request.Context(), eventID)
	if err != nil {
		return mapError(err)
	}

	return e.JSON(http.StatusOK, services.ProjectQueue(requests))
}
