package services

import (
	"sort"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"live-requests/models"
)

// priorityFloor is the anti-spam floor for the paid spotlight: a paid
// request must exceed it to rank there. Defaults to one currency major
// unit; configurable at startup via SetPriorityFloor.
var priorityFloor atomic.Pointer[decimal.Decimal]

func init() {
	one := decimal.NewFromInt(1)
	priorityFloor.Store(&one)
}

// SetPriorityFloor replaces the paid-spotlight floor. Call it once
// during startup, before projections run.
func SetPriorityFloor(floor decimal.Decimal) {
	priorityFloor.Store(&floor)
}

// ProjectQueue derives the performer-facing buckets from the full
// request set of one event. It is a pure function of the current state:
// callers re-run it on every delta instead of patching buckets, so the
// view can never drift from the underlying set.
func ProjectQueue(requests []models.Request) models.QueueView {
	view := models.QueueView{
		History:  []models.Request{},
		Waiting:  []models.Request{},
		Priority: []models.Request{},
	}

	for _, r := range requests {
		switch r.Status {
		case models.RequestPlayed:
			view.History = append(view.History, r)
		case models.RequestPending:
			view.Waiting = append(view.Waiting, r)
		}
	}

	sortNewestFirst(view.History)
	sortNewestFirst(view.Waiting)

	floor := *priorityFloor.Load()
	for _, r := range view.Waiting {
		if r.PaymentStatus == models.PaymentPaid && r.Amount.GreaterThan(floor) {
			view.Priority = append(view.Priority, r)
		}
	}

	return view
}

// FilterWaiting narrows the waiting bucket by payment status. It never
// mutates its input; the waiting bucket stays the single source of
// truth.
func FilterWaiting(waiting []models.Request, filter models.PaymentFilter) []models.Request {
	if filter == models.FilterAll || filter == "" {
		return waiting
	}

	out := make([]models.Request, 0, len(waiting))
	for _, r := range waiting {
		if r.PaymentStatus == models.PaymentStatus(filter) {
			out = append(out, r)
		}
	}
	return out
}

func sortNewestFirst(requests []models.Request) {
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].Created.After(requests[j].Created)
	})
}
