package models

// QueueView is the performer-facing projection of one event's requests.
// It is recomputed from the full request set on every delta, never
// patched incrementally.
type QueueView struct {
	// History holds requests already accepted (PLAYED).
	History []Request `json:"history"`

	// Waiting is the authoritative queue: every PENDING request,
	// newest first.
	Waiting []Request `json:"waiting"`

	// Priority spotlights paid requests: the subset of Waiting with
	// payment_status PAID and an amount above the anti-spam floor.
	Priority []Request `json:"priority"`
}

// PaymentFilter is a non-mutating narrowing of the Waiting bucket the UI
// can ask for.
type PaymentFilter string

const (
	FilterAll     PaymentFilter = "ALL"
	FilterPaid    PaymentFilter = "PAID"
	FilterFree    PaymentFilter = "FREE"
	FilterWaiting PaymentFilter = "WAITING"
)
