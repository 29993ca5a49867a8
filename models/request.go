package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestPlayed   RequestStatus = "PLAYED"
	RequestArchived RequestStatus = "ARCHIVED"

	// RequestRead is reserved. No transition produces it.
	RequestRead RequestStatus = "READ"
)

type PaymentStatus string

const (
	PaymentWaiting PaymentStatus = "WAITING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFree    PaymentStatus = "FREE"
)

// Request is one audience submission tied to exactly one event. Amounts
// are in currency major units. A zero amount is always FREE; a positive
// amount starts WAITING and can only move to PAID.
type Request struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	UserID        string          `json:"user_id,omitempty"`
	GuestName     string          `json:"guest_name"`
	Content       string          `json:"content"`
	Amount        decimal.Decimal `json:"amount"`
	Status        RequestStatus   `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	ArtistReply   string          `json:"artist_reply,omitempty"`
	Created       time.Time       `json:"created_at"`
	Updated       time.Time       `json:"updated_at"`
}

// Terminal reports whether the request left PENDING. Terminal requests
// never change status again.
func (r Request) Terminal() bool {
	return r.Status == RequestPlayed || r.Status == RequestArchived
}
