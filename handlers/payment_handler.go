package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"live-requests/internal/services/pix"
	"live-requests/services"
)

type PaymentHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
	provider       *pix.Provider
}

func NewPaymentHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService, provider *pix.Provider) *PaymentHandler {
	return &PaymentHandler{
		app:            app,
		paymentService: paymentService,
		provider:       provider,
	}
}

// Webhook is the provider's settlement callback. Every delivery is
// logged before processing, including ones with a bad signature.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	if h.provider == nil {
		return apis.NewApiError(http.StatusServiceUnavailable, "Payment provider not configured", nil)
	}

	ctx := e.Request.Context()

	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Invalid body", err)
	}

	signature := e.Request.Header.Get("X-Signature")
	valid := h.provider.VerifyWebhook(body, signature)

	headers, _ := json.Marshal(map[string]string{
		"X-Signature": signature,
		"User-Agent":  e.Request.Header.Get("User-Agent"),
	})

	outcome, err := h.paymentService.ProcessWebhook(ctx, headers, body, valid)
	if !valid {
		return apis.NewForbiddenError("Invalid signature", nil)
	}
	if err != nil {
		slog.Error("apply webhook settlement", "outcome", outcome, "error", err)
		return mapError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": outcome})
}

// Status is the submitter's polling fallback while waiting for PAID.
func (h *PaymentHandler) Status(e *core.RequestEvent) error {
	reference := e.Request.PathValue("reference")
	if reference == "" {
		return apis.NewBadRequestError("Missing payment reference", nil)
	}

	st, err := h.paymentService.SessionStatus(e.Request.Context(), reference)
	if err != nil {
		return mapError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"status": st})
}

// SimulateSettlement settles a payment without the provider, for
// development environments only.
func (h *PaymentHandler) SimulateSettlement(e *core.RequestEvent) error {
	var req struct {
		Reference string `json:"reference"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.paymentService.HandleSettlement(e.Request.Context(), req.Reference); err != nil {
		return mapError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Settlement simulation applied"})
}
