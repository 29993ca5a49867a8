// Package store is the durable record layer on top of the PocketBase
// database: point reads, filtered range reads, and the conditional
// single-row updates the lifecycle transitions rely on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"live-requests/internal/status"
	"live-requests/models"
)

type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

// ---- events ----

func (s *Store) CreateEvent(ctx context.Context, ev *models.Event) error {
	collection, err := s.app.FindCollectionByNameOrId("events")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("artist", ev.ArtistID)
	record.Set("status", string(ev.Status))
	record.Set("donation_mode", string(ev.DonationMode))
	record.Set("min_donation_value", ev.MinDonationValue.InexactFloat64())

	if err := s.app.Save(record); err != nil {
		// The partial unique index on (artist) WHERE status = 'LIVE' is
		// the authoritative guard: concurrent go-live attempts race past
		// any pre-check, but only one insert survives it.
		if uniqueViolation(err) {
			return fmt.Errorf("%w: artist already has a live event", status.ErrInvalidState)
		}
		return err
	}

	*ev = eventFromRecord(record)
	return nil
}

func (s *Store) FindEvent(ctx context.Context, id string) (models.Event, error) {
	record, err := s.app.FindRecordById("events", id)
	if err != nil {
		return models.Event{}, notFoundOr(err)
	}
	return eventFromRecord(record), nil
}

// FindLiveEventByArtist returns the artist's LIVE event, or ErrNotFound
// when the artist is not live.
func (s *Store) FindLiveEventByArtist(ctx context.Context, artistID string) (models.Event, error) {
	records, err := s.app.FindRecordsByFilter("events",
		"artist = {:artist} && status = {:status}",
		"-created", 1, 0,
		dbx.Params{"artist": artistID, "status": string(models.EventLive)})
	if err != nil {
		return models.Event{}, err
	}
	if len(records) == 0 {
		return models.Event{}, status.ErrNotFound
	}
	return eventFromRecord(records[0]), nil
}

// UpdateEventStatus transitions an event's status iff its current status
// still equals from. A lost condition surfaces as ErrInvalidState.
func (s *Store) UpdateEventStatus(ctx context.Context, id string, from, to models.EventStatus) (models.Event, error) {
	res, err := s.app.DB().Update("events",
		dbx.Params{"status": string(to), "updated": types.NowDateTime().String()},
		dbx.And(dbx.HashExp{"id": id}, dbx.HashExp{"status": string(from)}),
	).Execute()
	if err != nil {
		return models.Event{}, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindEvent(ctx, id); err != nil {
			return models.Event{}, err
		}
		return models.Event{}, status.ErrInvalidState
	}

	return s.FindEvent(ctx, id)
}

// ---- requests ----

func (s *Store) CreateRequest(ctx context.Context, req *models.Request) error {
	collection, err := s.app.FindCollectionByNameOrId("requests")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("event", req.EventID)
	record.Set("user", req.UserID)
	record.Set("guest_name", req.GuestName)
	record.Set("content", req.Content)
	record.Set("amount", req.Amount.InexactFloat64())
	record.Set("status", string(req.Status))
	record.Set("payment_status", string(req.PaymentStatus))
	record.Set("artist_reply", req.ArtistReply)

	if err := s.app.Save(record); err != nil {
		return err
	}

	*req = requestFromRecord(record)
	return nil
}

func (s *Store) FindRequest(ctx context.Context, id string) (models.Request, error) {
	record, err := s.app.FindRecordById("requests", id)
	if err != nil {
		return models.Request{}, notFoundOr(err)
	}
	return requestFromRecord(record), nil
}

// ListRequestsByEvent returns every request of one event, newest first.
func (s *Store) ListRequestsByEvent(ctx context.Context, eventID string) ([]models.Request, error) {
	records, err := s.app.FindRecordsByFilter("requests",
		"event = {:event}", "-created", 0, 0,
		dbx.Params{"event": eventID})
	if err != nil {
		return nil, err
	}

	requests := make([]models.Request, 0, len(records))
	for _, record := range records {
		requests = append(requests, requestFromRecord(record))
	}
	return requests, nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	record, err := s.app.FindRecordById("requests", id)
	if err != nil {
		return notFoundOr(err)
	}
	return s.app.Delete(record)
}

// UpdateRequestStatus is the optimistic transition primitive for the
// request status axis: the row is updated iff its status still equals
// from. The loser of a concurrent transition gets ErrInvalidState.
func (s *Store) UpdateRequestStatus(ctx context.Context, id string, from, to models.RequestStatus) (models.Request, error) {
	res, err := s.app.DB().Update("requests",
		dbx.Params{"status": string(to), "updated": types.NowDateTime().String()},
		dbx.And(dbx.HashExp{"id": id}, dbx.HashExp{"status": string(from)}),
	).Execute()
	if err != nil {
		return models.Request{}, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindRequest(ctx, id); err != nil {
			return models.Request{}, err
		}
		return models.Request{}, status.ErrInvalidState
	}

	return s.FindRequest(ctx, id)
}

// UpdateRequestPaymentStatus is the same primitive on the orthogonal
// payment axis.
func (s *Store) UpdateRequestPaymentStatus(ctx context.Context, id string, from, to models.PaymentStatus) (models.Request, error) {
	res, err := s.app.DB().Update("requests",
		dbx.Params{"payment_status": string(to), "updated": types.NowDateTime().String()},
		dbx.And(dbx.HashExp{"id": id}, dbx.HashExp{"payment_status": string(from)}),
	).Execute()
	if err != nil {
		return models.Request{}, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindRequest(ctx, id); err != nil {
			return models.Request{}, err
		}
		return models.Request{}, status.ErrInvalidState
	}

	return s.FindRequest(ctx, id)
}

// ---- payments ----

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	collection, err := s.app.FindCollectionByNameOrId("payments")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("request", p.RequestID)
	record.Set("reference", p.Reference)
	record.Set("provider_id", p.ProviderID)
	record.Set("qr_code", p.QRCode)
	record.Set("qr_code_base64", p.QRCodeBase64)
	record.Set("transaction_amount", p.Amount.InexactFloat64())
	record.Set("status", p.Status)

	if err := s.app.Save(record); err != nil {
		return err
	}

	*p = paymentFromRecord(record)
	return nil
}

func (s *Store) FindPaymentByReference(ctx context.Context, reference string) (models.Payment, error) {
	record, err := s.app.FindFirstRecordByData("payments", "reference", reference)
	if err != nil {
		return models.Payment{}, notFoundOr(err)
	}
	return paymentFromRecord(record), nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, paymentStatus string) error {
	record, err := s.app.FindRecordById("payments", id)
	if err != nil {
		return notFoundOr(err)
	}
	record.Set("status", paymentStatus)
	return s.app.Save(record)
}

// ---- webhook logs ----

func (s *Store) CreateWebhookLog(ctx context.Context, wl *models.WebhookLog) error {
	collection, err := s.app.FindCollectionByNameOrId("webhook_logs")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("headers", string(wl.Headers))
	record.Set("payload", string(wl.Payload))
	record.Set("signature_valid", wl.SignatureValid)
	record.Set("processing_status", wl.ProcessingStatus)

	if err := s.app.Save(record); err != nil {
		return err
	}

	wl.ID = record.Id
	wl.ReceivedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *Store) UpdateWebhookLogStatus(ctx context.Context, id, processingStatus string) error {
	record, err := s.app.FindRecordById("webhook_logs", id)
	if err != nil {
		return notFoundOr(err)
	}
	record.Set("processing_status", processingStatus)
	return s.app.Save(record)
}

// ---- mapping ----

func eventFromRecord(record *core.Record) models.Event {
	return models.Event{
		ID:               record.Id,
		ArtistID:         record.GetString("artist"),
		Status:           models.EventStatus(record.GetString("status")),
		DonationMode:     models.DonationMode(record.GetString("donation_mode")),
		MinDonationValue: decimal.NewFromFloat(record.GetFloat("min_donation_value")),
		Created:          record.GetDateTime("created").Time(),
		Updated:          record.GetDateTime("updated").Time(),
	}
}

func requestFromRecord(record *core.Record) models.Request {
	return models.Request{
		ID:            record.Id,
		EventID:       record.GetString("event"),
		UserID:        record.GetString("user"),
		GuestName:     record.GetString("guest_name"),
		Content:       record.GetString("content"),
		Amount:        decimal.NewFromFloat(record.GetFloat("amount")),
		Status:        models.RequestStatus(record.GetString("status")),
		PaymentStatus: models.PaymentStatus(record.GetString("payment_status")),
		ArtistReply:   record.GetString("artist_reply"),
		Created:       record.GetDateTime("created").Time(),
		Updated:       record.GetDateTime("updated").Time(),
	}
}

func paymentFromRecord(record *core.Record) models.Payment {
	return models.Payment{
		ID:           record.Id,
		RequestID:    record.GetString("request"),
		Reference:    record.GetString("reference"),
		ProviderID:   record.GetString("provider_id"),
		QRCode:       record.GetString("qr_code"),
		QRCodeBase64: record.GetString("qr_code_base64"),
		Amount:       decimal.NewFromFloat(record.GetFloat("transaction_amount")),
		Status:       record.GetString("status"),
		Created:      record.GetDateTime("created").Time(),
	}
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", status.ErrNotFound, err)
	}
	return err
}

// uniqueViolation detects a lost unique index, whether it surfaces as a
// raw sqlite error or as a record validation failure.
func uniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "must be unique") ||
		strings.Contains(msg, "validation_not_unique")
}
