package services

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-requests/internal/status"
	"live-requests/models"
)

func setupLifecycle(t *testing.T) (*LifecycleService, *memoryStore, *fakeBus) {
	t.Helper()
	store := newMemoryStore()
	bus := newFakeBus()
	return NewLifecycleService(store, bus, nil), store, bus
}

func liveEvent(t *testing.T, store *memoryStore, mode models.DonationMode, minDonation string) models.Event {
	t.Helper()
	ev := models.Event{
		ArtistID:         "artist-1",
		Status:           models.EventLive,
		DonationMode:     mode,
		MinDonationValue: decimal.RequireFromString(minDonation),
	}
	require.NoError(t, store.CreateEvent(context.Background(), &ev))
	return ev
}

func TestLifecycleService_StartEvent(t *testing.T) {
	service, _, _ := setupLifecycle(t)
	ctx := context.Background()

	ev, err := service.StartEvent(ctx, "artist-1", models.DonationOptional, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, models.EventLive, ev.Status)
	assert.True(t, ev.IsLive())

	// A second live event for the same artist is refused.
	_, err = service.StartEvent(ctx, "artist-1", models.DonationOptional, decimal.Zero)
	assert.ErrorIs(t, err, status.ErrInvalidState)

	// A different artist can still go live.
	_, err = service.StartEvent(ctx, "artist-2", models.DonationMandatory, decimal.RequireFromString("5"))
	assert.NoError(t, err)
}

func TestLifecycleService_ConcurrentStartEvent_OneLive(t *testing.T) {
	service, store, _ := setupLifecycle(t)
	ctx := context.Background()

	// All callers pass the pre-check before any row exists; the store's
	// unique constraint decides the winner.
	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.StartEvent(ctx, "artist-1", models.DonationOptional, decimal.Zero)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, status.ErrInvalidState)
		}
	}
	assert.Equal(t, 1, wins)

	var live int
	for _, ev := range store.events {
		if ev.Status == models.EventLive {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestLifecycleService_StartEvent_Validation(t *testing.T) {
	service, _, _ := setupLifecycle(t)
	ctx := context.Background()

	_, err := service.StartEvent(ctx, "", models.DonationOptional, decimal.Zero)
	assert.ErrorIs(t, err, status.ErrValidation)

	_, err = service.StartEvent(ctx, "artist-1", models.DonationMode("WHATEVER"), decimal.Zero)
	assert.ErrorIs(t, err, status.ErrValidation)

	_, err = service.StartEvent(ctx, "artist-1", models.DonationOptional, decimal.RequireFromString("-1"))
	assert.ErrorIs(t, err, status.ErrValidation)
}

func TestLifecycleService_EndEvent(t *testing.T) {
	service, store, _ := setupLifecycle(t)
	ctx := context.Background()
	ev := liveEvent(t, store, models.DonationOptional, "0")

	// A pending request stays pending after the event ends.
	req, err := service.Submit(ctx, ev, "ana", "play something", "", decimal.Zero)
	require.NoError(t, err)

	ended, err := service.EndEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventFinished, ended.Status)

	got, err := store.FindRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, got.Status)

	// Ending twice loses the condition.
	_, err = service.EndEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, status.ErrInvalidState)

	_, err = service.EndEvent(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestLifecycleService_Submit_DerivesPaymentStatus(t *testing.T) {
	service, store, bus := setupLifecycle(t)
	ctx := context.Background()
	ev := liveEvent(t, store, models.DonationOptional, "0")

	free, err := service.Submit(ctx, ev, "ana", "acoustic one", "", decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFree, free.PaymentStatus)
	assert.Equal(t, models.RequestPending, free.Status)

	paid, err := service.Submit(ctx, ev, "bruno", "the loud one", "user-7", decimal.RequireFromString("20"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentWaiting, paid.PaymentStatus)

	deltas := bus.deltas()
	require.Len(t, deltas, 2)
	assert.Equal(t, DeltaInsert, deltas[0].Kind)
	assert.Equal(t, free.ID, deltas[0].Request.ID)
	assert.Equal(t, DeltaInsert, deltas[1].Kind)
}

func TestLifecycleService_Submit_Validation(t *testing.T) {
	service, store, bus := setupLifecycle(t)
	ctx := context.Background()
	ev := liveEvent(t, store, models.DonationOptional, "0")

	cases := []struct {
		name      string
		guestName string
		content   string
		amount    string
	}{
		{"blank guest name", "   ", "play it", "0"},
		{"blank content", "ana", "\t\n", "0"},
		{"negative amount", "ana", "play it", "-5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Submit(ctx, ev, tc.guestName, tc.content, "", decimal.RequireFromString(tc.amount))
			assert.ErrorIs(t, err, status.ErrValidation)
		})
	}

	assert.Empty(t, bus.deltas())
	assert.Equal(t, 0, store.requestCount())
}

func TestLifecycleService_Submit_MandatoryDonationFloor(t *testing.T) {
	service, store, _ := setupLifecycle(t)
	ctx := context.Background()
	ev := liveEvent(t, store, models.DonationMandatory, "10")

	_, err := service.Submit(ctx, ev, "ana", "play it", "", decimal.RequireFromString("5"))
	assert.ErrorIs(t, err, status.ErrValidation)

	req, err := service.Submit(ctx, ev, "ana", "play it", "", decimal.RequireFromString("10"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentWaiting, req.PaymentStatus)
}

func TestLifecycleService_ConfirmPayment_Idempotent(t *testing.T) {
	service, store, bus := setupLifecycle(t)
	ctx := context.Background()
	ev := liveEvent(t, store, models.DonationOptional, "0")

	req, err := service.Submit(ctx, ev, "bruno", "the loud one", "", decimal.RequireFromString("20"))
	require.NoError(t, err)

	confirmed, err := service.ConfirmPayment(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, confirmed.PaymentStatus)

	// Replays return the paid row without another observable transition.
	again, err := service.ConfirmPayment(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, again.PaymentStatus)

	var updates int
	for _, d := range bus.deltasFor(req.ID) {
		if d.Kind == DeltaUpdate {
			updates++
		}
	}
	assert.Equal(t, 1, updates)
}

func TestLifecycleService_ConfirmPayment_FreeRequest(t *testing.T) {
	service, store, _ := setupLifecycle(t)
	ctx := context.Background()
	ev := liveEvent(t, store, models.DonationOptional, "0")

	req, err := service.Submit(ctx, ev, "ana", "acoustic one", "", decimal.Zero)
	require.NoError(t, err)

	_, err = service.ConfirmPayment(ctx, req.ID)
	assert.ErrorIs(t, err, status.ErrInvalidState)

	got, err := store.FindRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFree, got.PaymentStatus)
}

func TestLifecycleService_AcceptAndReject(t *testing.T) {
	service, store, bus := setupLifecycle(t)
	ctx := context.Background()
	ev := liveEvent(t, store, models.DonationOptional, "0")

	req, err := service.Submit(ctx, ev, "ana", "play it", "", decimal.Zero)
	require.NoError(t, err)

	played, err := service.Accept(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPlayed, played.Status)
	assert.True(t, played.Terminal())

	// The request is terminal now; the second moderation loses.
	_, err = service.Reject(ctx, req.ID)
	assert.ErrorIs(t, err, status.ErrInvalidState)
	_, err = service.Accept(ctx, req.ID)
	assert.ErrorIs(t, err, status.ErrInvalidState)

	got, err := store.FindRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPlayed, got.Status)

	deltas := bus.deltasFor(req.ID)
	require.Len(t, deltas, 2)
	assert.Equal(t, DeltaUpdate, deltas[1].Kind)
	assert.Equal(t, models.RequestPlayed, deltas[1].Request.Status)
}

func TestLifecycleService_ConcurrentModeration_ExactlyOneWins(t *testing.T) {
	service, store, _ := setupLifecycle(t)
	ctx := context.Background()
	ev := liveEvent(t, store, models.DonationOptional, "0")

	req, err := service.Submit(ctx, ev, "ana", "play it", "", decimal.Zero)
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = service.Accept(ctx, req.ID)
			} else {
				_, err = service.Reject(ctx, req.ID)
			}
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, status.ErrInvalidState)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, losses)

	got, err := store.FindRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, got.Terminal())
}

func TestLifecycleService_Discard(t *testing.T) {
	service, store, bus := setupLifecycle(t)
	ctx := context.Background()
	ev := liveEvent(t, store, models.DonationOptional, "0")

	req, err := service.Submit(ctx, ev, "bruno", "the loud one", "", decimal.RequireFromString("20"))
	require.NoError(t, err)

	require.NoError(t, service.Discard(ctx, req.ID))
	_, err = store.FindRequest(ctx, req.ID)
	assert.ErrorIs(t, err, status.ErrNotFound)

	deltas := bus.deltasFor(req.ID)
	require.Len(t, deltas, 2)
	assert.Equal(t, DeltaDelete, deltas[1].Kind)

	assert.ErrorIs(t, service.Discard(ctx, req.ID), status.ErrNotFound)
}
