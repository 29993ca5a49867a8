package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"live-requests/internal/status"
	"live-requests/models"
)

// memoryStore is an in-memory RecordStore with the same conditional
// update semantics as the real one: "update iff current value equals
// from" under a single mutex, lost conditions reported as
// status.ErrInvalidState.
type memoryStore struct {
	mu sync.Mutex

	seq         int
	events      map[string]models.Event
	requests    map[string]models.Request
	payments    map[string]models.Payment
	webhookLogs map[string]models.WebhookLog

	paymentStatusUpdates int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		events:      make(map[string]models.Event),
		requests:    make(map[string]models.Request),
		payments:    make(map[string]models.Payment),
		webhookLogs: make(map[string]models.WebhookLog),
	}
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_%03d", prefix, m.seq)
}

func (m *memoryStore) CreateEvent(_ context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Mirrors the partial unique index on (artist) WHERE status = 'LIVE'.
	if ev.Status == models.EventLive {
		for _, existing := range m.events {
			if existing.ArtistID == ev.ArtistID && existing.Status == models.EventLive {
				return status.ErrInvalidState
			}
		}
	}

	ev.ID = m.nextID("evt")
	ev.Created = time.Now()
	ev.Updated = ev.Created
	m.events[ev.ID] = *ev
	return nil
}

func (m *memoryStore) FindEvent(_ context.Context, id string) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return models.Event{}, status.ErrNotFound
	}
	return ev, nil
}

func (m *memoryStore) FindLiveEventByArtist(_ context.Context, artistID string) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range m.events {
		if ev.ArtistID == artistID && ev.Status == models.EventLive {
			return ev, nil
		}
	}
	return models.Event{}, status.ErrNotFound
}

func (m *memoryStore) UpdateEventStatus(_ context.Context, id string, from, to models.EventStatus) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return models.Event{}, status.ErrNotFound
	}
	if ev.Status != from {
		return models.Event{}, status.ErrInvalidState
	}

	ev.Status = to
	ev.Updated = time.Now()
	m.events[id] = ev
	return ev, nil
}

func (m *memoryStore) CreateRequest(_ context.Context, req *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req.ID = m.nextID("req")
	if req.Created.IsZero() {
		req.Created = time.Now()
	}
	req.Updated = req.Created
	m.requests[req.ID] = *req
	return nil
}

func (m *memoryStore) FindRequest(_ context.Context, id string) (models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return models.Request{}, status.ErrNotFound
	}
	return req, nil
}

func (m *memoryStore) ListRequestsByEvent(_ context.Context, eventID string) ([]models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Request
	for _, req := range m.requests {
		if req.EventID == eventID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *memoryStore) DeleteRequest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[id]; !ok {
		return status.ErrNotFound
	}
	delete(m.requests, id)
	return nil
}

func (m *memoryStore) UpdateRequestStatus(_ context.Context, id string, from, to models.RequestStatus) (models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return models.Request{}, status.ErrNotFound
	}
	if req.Status != from {
		return models.Request{}, status.ErrInvalidState
	}

	req.Status = to
	req.Updated = time.Now()
	m.requests[id] = req
	return req, nil
}

func (m *memoryStore) UpdateRequestPaymentStatus(_ context.Context, id string, from, to models.PaymentStatus) (models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return models.Request{}, status.ErrNotFound
	}
	if req.PaymentStatus != from {
		return models.Request{}, status.ErrInvalidState
	}

	req.PaymentStatus = to
	req.Updated = time.Now()
	m.requests[id] = req
	return req, nil
}

func (m *memoryStore) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.nextID("pay")
	p.Created = time.Now()
	m.payments[p.ID] = *p
	return nil
}

func (m *memoryStore) FindPaymentByReference(_ context.Context, reference string) (models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.Reference == reference {
			return p, nil
		}
	}
	return models.Payment{}, status.ErrNotFound
}

func (m *memoryStore) UpdatePaymentStatus(_ context.Context, id string, paymentStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return status.ErrNotFound
	}
	p.Status = paymentStatus
	m.payments[id] = p
	m.paymentStatusUpdates++
	return nil
}

func (m *memoryStore) CreateWebhookLog(_ context.Context, wl *models.WebhookLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wl.ID = m.nextID("whl")
	wl.ReceivedAt = time.Now()
	m.webhookLogs[wl.ID] = *wl
	return nil
}

func (m *memoryStore) UpdateWebhookLogStatus(_ context.Context, id, processingStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wl, ok := m.webhookLogs[id]
	if !ok {
		return status.ErrNotFound
	}
	wl.ProcessingStatus = processingStatus
	m.webhookLogs[id] = wl
	return nil
}

func (m *memoryStore) webhookLogList() []models.WebhookLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.WebhookLog, 0, len(m.webhookLogs))
	for _, wl := range m.webhookLogs {
		out = append(out, wl)
	}
	return out
}

func (m *memoryStore) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// fakeBus delivers deltas synchronously to in-process subscribers and
// records everything published, in order.
type fakeBus struct {
	mu sync.Mutex

	published  []Delta
	subs       map[string][]func(Delta)
	publishErr error
	cancels    int
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string][]func(Delta))}
}

func (b *fakeBus) Publish(_ context.Context, eventID string, delta Delta) error {
	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, delta)
	deliver := append([]func(Delta){}, b.subs[eventID]...)
	b.mu.Unlock()

	for _, fn := range deliver {
		fn(delta)
	}
	return nil
}

func (b *fakeBus) Subscribe(eventID string, deliver func(Delta)) (func(), error) {
	b.mu.Lock()
	b.subs[eventID] = append(b.subs[eventID], deliver)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.cancels++
			b.subs[eventID] = nil
			b.mu.Unlock()
		})
	}, nil
}

func (b *fakeBus) deltas() []Delta {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Delta{}, b.published...)
}

func (b *fakeBus) deltasFor(requestID string) []Delta {
	var out []Delta
	for _, d := range b.deltas() {
		if d.Request.ID == requestID {
			out = append(out, d)
		}
	}
	return out
}
