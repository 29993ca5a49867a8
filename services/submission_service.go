package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"live-requests/internal/status"
	"live-requests/models"
)

// PaymentInitiator opens a payment session for a positive-amount
// request. Implemented by PaymentService; faked in tests.
type PaymentInitiator interface {
	Initiate(ctx context.Context, req models.Request) (models.PaymentSession, error)
}

// SubmitParams is one audience submission as received from the API.
type SubmitParams struct {
	EventID   string
	GuestName string
	Content   string
	UserID    string
	Amount    decimal.Decimal
}

// SubmitResult carries the created request plus, for paid requests, the
// rendering fields of the payment session.
type SubmitResult struct {
	Request      models.Request
	QRCode       string
	QRCodeBase64 string
}

// SubmissionService validates and admits new requests. It owns the
// policies the lifecycle manager does not: the event must be LIVE, and a
// failed payment initiation rolls the pending record back instead of
// leaving it dangling in WAITING.
type SubmissionService struct {
	store     RecordStore
	lifecycle *LifecycleService
	payments  PaymentInitiator
}

func NewSubmissionService(store RecordStore, lifecycle *LifecycleService, payments PaymentInitiator) *SubmissionService {
	return &SubmissionService{
		store:     store,
		lifecycle: lifecycle,
		payments:  payments,
	}
}

func (s *SubmissionService) Submit(ctx context.Context, params SubmitParams) (SubmitResult, error) {
	if strings.TrimSpace(params.EventID) == "" {
		return SubmitResult{}, fmt.Errorf("%w: event is required", status.ErrValidation)
	}

	event, err := s.store.FindEvent(ctx, params.EventID)
	if err != nil {
		return SubmitResult{}, err
	}

	if !event.IsLive() {
		return SubmitResult{}, fmt.Errorf("%w: event %s is %s", status.ErrEventNotLive, event.ID, event.Status)
	}

	req, err := s.lifecycle.Submit(ctx, event, params.GuestName, params.Content, params.UserID, params.Amount)
	if err != nil {
		return SubmitResult{}, err
	}

	result := SubmitResult{Request: req}

	if req.Amount.IsPositive() {
		session, err := s.payments.Initiate(ctx, req)
		if err != nil {
			if discardErr := s.lifecycle.Discard(ctx, req.ID); discardErr != nil {
				slog.Error("roll back request after failed payment initiation",
					"request_id", req.ID, "error", discardErr)
			}
			if errors.Is(err, status.ErrPaymentInitiation) {
				return SubmitResult{}, err
			}
			return SubmitResult{}, fmt.Errorf("%w: %s", status.ErrPaymentInitiation, err)
		}

		result.QRCode = session.QRCode
		result.QRCodeBase64 = session.QRCodeBase64
	}

	return result, nil
}
