package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"live-requests/internal/status"
	"live-requests/models"
	"live-requests/monitoring"
)

// RecordStore is the durable storage contract the lifecycle relies on.
// The conditional update methods must apply "update iff current value
// still equals from" atomically and report a lost condition as
// status.ErrInvalidState.
type RecordStore interface {
	CreateEvent(ctx context.Context, ev *models.Event) error
	FindEvent(ctx context.Context, id string) (models.Event, error)
	FindLiveEventByArtist(ctx context.Context, artistID string) (models.Event, error)
	UpdateEventStatus(ctx context.Context, id string, from, to models.EventStatus) (models.Event, error)

	CreateRequest(ctx context.Context, req *models.Request) error
	FindRequest(ctx context.Context, id string) (models.Request, error)
	ListRequestsByEvent(ctx context.Context, eventID string) ([]models.Request, error)
	DeleteRequest(ctx context.Context, id string) error
	UpdateRequestStatus(ctx context.Context, id string, from, to models.RequestStatus) (models.Request, error)
	UpdateRequestPaymentStatus(ctx context.Context, id string, from, to models.PaymentStatus) (models.Request, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	FindPaymentByReference(ctx context.Context, reference string) (models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id string, paymentStatus string) error
	CreateWebhookLog(ctx context.Context, wl *models.WebhookLog) error
	UpdateWebhookLogStatus(ctx context.Context, id, processingStatus string) error
}

// LifecycleService owns the request and event state machines. It is the
// only writer of a request's status and payment_status, and it publishes
// a delta after every committed write.
type LifecycleService struct {
	store   RecordStore
	bus     Bus
	monitor *monitoring.Monitor
}

func NewLifecycleService(store RecordStore, bus Bus, monitor *monitoring.Monitor) *LifecycleService {
	return &LifecycleService{
		store:   store,
		bus:     bus,
		monitor: monitor,
	}
}

// StartEvent puts the artist live. At most one LIVE event may exist per
// artist, so an artist who is already live gets ErrInvalidState.
func (s *LifecycleService) StartEvent(ctx context.Context, artistID string, mode models.DonationMode, minDonation decimal.Decimal) (models.Event, error) {
	if artistID == "" {
		return models.Event{}, fmt.Errorf("%w: artist is required", status.ErrValidation)
	}
	if mode != models.DonationOptional && mode != models.DonationMandatory {
		return models.Event{}, fmt.Errorf("%w: unknown donation mode %q", status.ErrValidation, mode)
	}
	if minDonation.IsNegative() {
		return models.Event{}, fmt.Errorf("%w: minimum donation must not be negative", status.ErrValidation)
	}

	if _, err := s.store.FindLiveEventByArtist(ctx, artistID); err == nil {
		return models.Event{}, fmt.Errorf("%w: artist already has a live event", status.ErrInvalidState)
	}

	ev := models.Event{
		ArtistID:         artistID,
		Status:           models.EventLive,
		DonationMode:     mode,
		MinDonationValue: minDonation,
	}
	if err := s.store.CreateEvent(ctx, &ev); err != nil {
		return models.Event{}, err
	}

	slog.Info("event started", "event_id", ev.ID, "artist_id", artistID, "mode", mode)
	return ev, nil
}

// EndEvent finishes a LIVE event. Pending requests stay pending; the
// submission gateway stops admitting new ones because the event is no
// longer LIVE.
func (s *LifecycleService) EndEvent(ctx context.Context, eventID string) (models.Event, error) {
	ev, err := s.store.UpdateEventStatus(ctx, eventID, models.EventLive, models.EventFinished)
	if err != nil {
		return models.Event{}, err
	}

	slog.Info("event finished", "event_id", ev.ID)
	return ev, nil
}

// Submit creates a request against an event. The payment status derives
// from the amount: zero is FREE forever, positive starts WAITING. The
// donation-mode floor is enforced here at submission time and never
// re-checked later.
func (s *LifecycleService) Submit(ctx context.Context, event models.Event, guestName, content, userID string, amount decimal.Decimal) (models.Request, error) {
	guestName = strings.TrimSpace(guestName)
	content = strings.TrimSpace(content)

	if guestName == "" {
		return models.Request{}, fmt.Errorf("%w: guest name is required", status.ErrValidation)
	}
	if content == "" {
		return models.Request{}, fmt.Errorf("%w: content is required", status.ErrValidation)
	}
	if amount.IsNegative() {
		return models.Request{}, fmt.Errorf("%w: amount must not be negative", status.ErrValidation)
	}
	if event.DonationMode == models.DonationMandatory && amount.LessThan(event.MinDonationValue) {
		return models.Request{}, fmt.Errorf("%w: amount %s below the event minimum %s",
			status.ErrValidation, amount, event.MinDonationValue)
	}

	paymentStatus := models.PaymentFree
	if amount.IsPositive() {
		paymentStatus = models.PaymentWaiting
	}

	req := models.Request{
		EventID:       event.ID,
		UserID:        userID,
		GuestName:     guestName,
		Content:       content,
		Amount:        amount,
		Status:        models.RequestPending,
		PaymentStatus: paymentStatus,
	}
	if err := s.store.CreateRequest(ctx, &req); err != nil {
		return models.Request{}, err
	}

	s.publish(ctx, DeltaInsert, req)
	s.monitor.TrackSubmission(req.EventID, string(req.PaymentStatus))

	slog.Info("request submitted",
		"request_id", req.ID, "event_id", req.EventID, "payment_status", req.PaymentStatus)
	return req, nil
}

// Discard rolls back a just-created request whose payment session could
// not be initiated, so no row dangles in WAITING with no live charge.
func (s *LifecycleService) Discard(ctx context.Context, requestID string) error {
	req, err := s.store.FindRequest(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteRequest(ctx, requestID); err != nil {
		return err
	}

	s.publish(ctx, DeltaDelete, req)
	return nil
}

// ConfirmPayment marks a request PAID. It is the only path that may set
// PAID and it is idempotent: a request already PAID is returned as-is
// with no observable transition. It must never run for a FREE request.
func (s *LifecycleService) ConfirmPayment(ctx context.Context, requestID string) (models.Request, error) {
	req, err := s.store.FindRequest(ctx, requestID)
	if err != nil {
		return models.Request{}, err
	}

	switch req.PaymentStatus {
	case models.PaymentPaid:
		return req, nil
	case models.PaymentFree:
		return models.Request{}, fmt.Errorf("%w: free request has no payment to confirm", status.ErrInvalidState)
	}

	updated, err := s.store.UpdateRequestPaymentStatus(ctx, requestID,
		models.PaymentWaiting, models.PaymentPaid)
	if err != nil {
		// A concurrent confirmation already won; re-read and return the
		// paid row to keep the call idempotent.
		if cur, findErr := s.store.FindRequest(ctx, requestID); findErr == nil && cur.PaymentStatus == models.PaymentPaid {
			return cur, nil
		}
		return models.Request{}, err
	}

	s.publish(ctx, DeltaUpdate, updated)
	s.monitor.TrackPaymentConfirmed(updated.EventID)

	slog.Info("payment confirmed", "request_id", updated.ID, "event_id", updated.EventID)
	return updated, nil
}

// Accept transitions a PENDING request to PLAYED. The store's
// conditional update resolves a concurrent accept/reject: the loser gets
// ErrInvalidState and must not retry.
func (s *LifecycleService) Accept(ctx context.Context, requestID string) (models.Request, error) {
	return s.transition(ctx, requestID, models.RequestPlayed)
}

// Reject transitions a PENDING request to ARCHIVED.
func (s *LifecycleService) Reject(ctx context.Context, requestID string) (models.Request, error) {
	return s.transition(ctx, requestID, models.RequestArchived)
}

func (s *LifecycleService) transition(ctx context.Context, requestID string, to models.RequestStatus) (models.Request, error) {
	updated, err := s.store.UpdateRequestStatus(ctx, requestID, models.RequestPending, to)
	if err != nil {
		return models.Request{}, err
	}

	s.publish(ctx, DeltaUpdate, updated)
	s.monitor.TrackTransition(updated.EventID, string(to))

	slog.Info("request transitioned",
		"request_id", updated.ID, "event_id", updated.EventID, "status", to)
	return updated, nil
}

func (s *LifecycleService) publish(ctx context.Context, kind DeltaKind, req models.Request) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, req.EventID, Delta{Kind: kind, Request: req}); err != nil {
		// Subscribers reconcile via a full read on reconnect, so a lost
		// delta degrades freshness, not correctness.
		slog.Error("publish delta", "request_id", req.ID, "kind", kind, "error", err)
	}
}
