package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-requests/models"
)

func sessionRequest(id string, st models.RequestStatus, ps models.PaymentStatus) models.Request {
	return models.Request{
		ID:            id,
		EventID:       "evt_001",
		GuestName:     "guest-" + id,
		Content:       "song " + id,
		Amount:        decimal.RequireFromString("20"),
		Status:        st,
		PaymentStatus: ps,
		Created:       time.Now(),
	}
}

func TestSession_AppliesDeltas(t *testing.T) {
	bus := newFakeBus()
	ctx := context.Background()

	var inserted, updated, deleted []string
	session, err := OpenSession(bus, "evt_001", SessionCallbacks{
		OnInsert: func(r models.Request) { inserted = append(inserted, r.ID) },
		OnUpdate: func(r models.Request) { updated = append(updated, r.ID) },
		OnDelete: func(r models.Request) { deleted = append(deleted, r.ID) },
	}, nil)
	require.NoError(t, err)
	defer session.Close()

	a := sessionRequest("a", models.RequestPending, models.PaymentFree)
	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaInsert, Request: a}))

	a.Status = models.RequestPlayed
	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaUpdate, Request: a}))

	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaDelete, Request: a}))

	assert.Equal(t, []string{"a"}, inserted)
	assert.Equal(t, []string{"a"}, updated)
	assert.Equal(t, []string{"a"}, deleted)
	assert.Empty(t, session.Snapshot())
}

func TestSession_UpdateForUnknownRowIsInsert(t *testing.T) {
	bus := newFakeBus()
	ctx := context.Background()

	var inserted, updated []string
	session, err := OpenSession(bus, "evt_001", SessionCallbacks{
		OnInsert: func(r models.Request) { inserted = append(inserted, r.ID) },
		OnUpdate: func(r models.Request) { updated = append(updated, r.ID) },
	}, nil)
	require.NoError(t, err)
	defer session.Close()

	// The update arrives before the session ever saw the insert, as
	// happens when a client subscribes mid-stream.
	a := sessionRequest("a", models.RequestPlayed, models.PaymentFree)
	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaUpdate, Request: a}))

	assert.Equal(t, []string{"a"}, inserted)
	assert.Empty(t, updated)

	snapshot := session.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, models.RequestPlayed, snapshot[0].Status)
}

func TestSession_IgnoresOtherEvents(t *testing.T) {
	bus := newFakeBus()
	ctx := context.Background()

	session, err := OpenSession(bus, "evt_001", SessionCallbacks{}, nil)
	require.NoError(t, err)
	defer session.Close()

	other := sessionRequest("x", models.RequestPending, models.PaymentFree)
	other.EventID = "evt_002"
	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaInsert, Request: other}))

	assert.Empty(t, session.Snapshot())
}

func TestSession_ReconcileReplacesState(t *testing.T) {
	bus := newFakeBus()
	ctx := context.Background()

	session, err := OpenSession(bus, "evt_001", SessionCallbacks{}, nil)
	require.NoError(t, err)
	defer session.Close()

	stale := sessionRequest("stale", models.RequestPending, models.PaymentFree)
	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaInsert, Request: stale}))

	fresh := []models.Request{
		sessionRequest("a", models.RequestPending, models.PaymentFree),
		sessionRequest("b", models.RequestPlayed, models.PaymentPaid),
	}
	session.Reconcile(fresh)

	snapshot := session.Snapshot()
	assert.Len(t, snapshot, 2)
	for _, r := range snapshot {
		assert.NotEqual(t, "stale", r.ID)
	}

	view := session.View()
	assert.Len(t, view.Waiting, 1)
	assert.Len(t, view.History, 1)
}

func TestSession_WatchPayment(t *testing.T) {
	bus := newFakeBus()
	ctx := context.Background()

	session, err := OpenSession(bus, "evt_001", SessionCallbacks{}, nil)
	require.NoError(t, err)
	defer session.Close()

	b := sessionRequest("b", models.RequestPending, models.PaymentWaiting)
	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaInsert, Request: b}))

	var fired []models.PaymentStatus
	session.WatchPayment("b", func(r models.Request) {
		fired = append(fired, r.PaymentStatus)
	})
	assert.Empty(t, fired)

	b.PaymentStatus = models.PaymentPaid
	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaUpdate, Request: b}))
	require.Len(t, fired, 1)
	assert.Equal(t, models.PaymentPaid, fired[0])

	// The watcher fires once; further updates do not replay it.
	b.Status = models.RequestPlayed
	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaUpdate, Request: b}))
	assert.Len(t, fired, 1)
}

func TestSession_WatchPayment_AlreadyPaid(t *testing.T) {
	bus := newFakeBus()
	ctx := context.Background()

	session, err := OpenSession(bus, "evt_001", SessionCallbacks{}, nil)
	require.NoError(t, err)
	defer session.Close()

	b := sessionRequest("b", models.RequestPending, models.PaymentPaid)
	require.NoError(t, bus.Publish(ctx, "evt_001", Delta{Kind: DeltaInsert, Request: b}))

	called := false
	session.WatchPayment("b", func(r models.Request) { called = true })
	assert.True(t, called)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	bus := newFakeBus()

	session, err := OpenSession(bus, "evt_001", SessionCallbacks{}, nil)
	require.NoError(t, err)

	session.Close()
	session.Close()
	assert.Equal(t, 1, bus.cancels)
}
