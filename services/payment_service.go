package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"live-requests/internal/status"
	"live-requests/models"
)

// ChargeCreator is the pix provider surface the payment service needs.
type ChargeCreator interface {
	CreateCharge(ctx context.Context, reference string, req models.Request) (providerID, qrCode, qrCodeBase64 string, err error)
}

// PaymentService sits on the payment provider boundary: it opens a
// charge for every positive-amount request and turns settlement
// notifications into idempotent payment confirmations.
type PaymentService struct {
	Redis      *redis.Client
	store      RecordStore
	lifecycle  *LifecycleService
	charges    ChargeCreator
	sessionTTL time.Duration

	// newReference generates the provider-facing payment reference.
	// Overridable in tests.
	newReference func() string
}

func NewPaymentService(redisClient *redis.Client, store RecordStore, lifecycle *LifecycleService, charges ChargeCreator, sessionTTL time.Duration) *PaymentService {
	return &PaymentService{
		Redis:        redisClient,
		store:        store,
		lifecycle:    lifecycle,
		charges:      charges,
		sessionTTL:   sessionTTL,
		newReference: uuid.NewString,
	}
}

func paymentKey(reference string) string {
	return fmt.Sprintf("payment:%s", reference)
}

// Initiate creates a provider charge for the request, persists the
// payment record, and caches a session hash with a TTL so the submitter
// can poll status without hitting the store.
func (s *PaymentService) Initiate(ctx context.Context, req models.Request) (models.PaymentSession, error) {
	if s.charges == nil {
		return models.PaymentSession{}, fmt.Errorf("%w: no payment provider configured", status.ErrPaymentInitiation)
	}

	reference := s.newReference()

	providerID, qrCode, qrCodeBase64, err := s.charges.CreateCharge(ctx, reference, req)
	if err != nil {
		if errors.Is(err, status.ErrPaymentInitiation) {
			return models.PaymentSession{}, err
		}
		return models.PaymentSession{}, fmt.Errorf("%w: %s", status.ErrPaymentInitiation, err)
	}

	payment := models.Payment{
		RequestID:    req.ID,
		Reference:    reference,
		ProviderID:   providerID,
		QRCode:       qrCode,
		QRCodeBase64: qrCodeBase64,
		Amount:       req.Amount,
		Status:       "pending",
	}
	if err := s.store.CreatePayment(ctx, &payment); err != nil {
		return models.PaymentSession{}, fmt.Errorf("%w: persist payment: %s", status.ErrPaymentInitiation, err)
	}

	sessionKey := paymentKey(reference)
	s.Redis.HSet(ctx, sessionKey,
		"reference", reference,
		"request_id", req.ID,
		"event_id", req.EventID,
		"amount", req.Amount.String(),
		"status", "pending",
	)
	s.Redis.Expire(ctx, sessionKey, s.sessionTTL)

	slog.Info("payment session opened",
		"reference", reference, "request_id", req.ID, "amount", req.Amount)

	return models.PaymentSession{
		Reference:    reference,
		QRCode:       qrCode,
		QRCodeBase64: qrCodeBase64,
	}, nil
}

// Webhook outcomes recorded on the delivery log.
const (
	WebhookRejected  = "rejected"
	WebhookIgnored   = "ignored"
	WebhookFailed    = "failed"
	WebhookProcessed = "processed"
)

// ProcessWebhook records one provider delivery and, when the signature
// checks out and the payload reports a settlement, applies it. Every
// delivery is logged, bad signatures included, and the log row ends up
// carrying the outcome of the processing attempt.
func (s *PaymentService) ProcessWebhook(ctx context.Context, headers, body []byte, signatureValid bool) (string, error) {
	wl := models.WebhookLog{
		Headers:          headers,
		Payload:          body,
		SignatureValid:   signatureValid,
		ProcessingStatus: "received",
	}
	if err := s.store.CreateWebhookLog(ctx, &wl); err != nil {
		slog.Error("persist webhook log", "error", err)
	}

	outcome := func(result string) string {
		if wl.ID != "" {
			if err := s.store.UpdateWebhookLogStatus(ctx, wl.ID, result); err != nil {
				slog.Error("update webhook log", "id", wl.ID, "error", err)
			}
		}
		return result
	}

	if !signatureValid {
		return outcome(WebhookRejected), nil
	}

	var payload struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return outcome(WebhookRejected), fmt.Errorf("%w: malformed webhook payload", status.ErrValidation)
	}

	if payload.Status != "success" && payload.Status != "approved" {
		slog.Info("ignoring non-settled webhook", "reference", payload.Reference, "status", payload.Status)
		return outcome(WebhookIgnored), nil
	}

	if err := s.HandleSettlement(ctx, payload.Reference); err != nil {
		return outcome(WebhookFailed), err
	}

	return outcome(WebhookProcessed), nil
}

// HandleSettlement applies one provider settlement. Confirmation is
// idempotent, so replays and late notifications are safe; they must
// still be applied even if the submitter stopped watching.
func (s *PaymentService) HandleSettlement(ctx context.Context, reference string) error {
	payment, err := s.store.FindPaymentByReference(ctx, reference)
	if err != nil {
		return err
	}

	req, err := s.lifecycle.ConfirmPayment(ctx, payment.RequestID)
	if err != nil {
		return err
	}

	if payment.Status != "completed" {
		if err := s.store.UpdatePaymentStatus(ctx, payment.ID, "completed"); err != nil {
			return err
		}
	}

	s.Redis.HSet(ctx, paymentKey(reference), "status", "completed")

	slog.Info("settlement applied",
		"reference", reference, "request_id", req.ID, "event_id", req.EventID)
	return nil
}

// ListenSettlements drains provider settlement notifications until the
// context is cancelled.
func (s *PaymentService) ListenSettlements(ctx context.Context, txCh <-chan *status.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx := <-txCh:
			if tx == nil {
				continue
			}
			if tx.Status != "success" && tx.Status != "approved" {
				slog.Info("ignoring non-settled notification",
					"reference", tx.Reference, "status", tx.Status)
				continue
			}
			if err := s.HandleSettlement(ctx, tx.Reference); err != nil {
				slog.Error("apply settlement", "reference", tx.Reference, "error", err)
			}
		}
	}
}

// SessionStatus reads the cached session status, falling back to the
// durable payment record once the session hash has expired.
func (s *PaymentService) SessionStatus(ctx context.Context, reference string) (string, error) {
	st, err := s.Redis.HGet(ctx, paymentKey(reference), "status").Result()
	if err == nil && st != "" {
		return st, nil
	}

	payment, err := s.store.FindPaymentByReference(ctx, reference)
	if err != nil {
		return "", err
	}
	return payment.Status, nil
}
