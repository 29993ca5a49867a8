package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventStatus string

const (
	EventScheduled EventStatus = "SCHEDULED"
	EventLive      EventStatus = "LIVE"
	EventFinished  EventStatus = "FINISHED"
)

type DonationMode string

const (
	DonationOptional  DonationMode = "OPTIONAL"
	DonationMandatory DonationMode = "MANDATORY"
)

// Event is one live performance window during which requests are accepted.
// At most one LIVE event exists per artist at any time.
type Event struct {
	ID               string          `json:"id"`
	ArtistID         string          `json:"artist_id"`
	Status           EventStatus     `json:"status"`
	DonationMode     DonationMode    `json:"donation_mode"`
	MinDonationValue decimal.Decimal `json:"min_donation_value"`
	Created          time.Time       `json:"created_at"`
	Updated          time.Time       `json:"updated_at"`
}

// IsLive reports whether the event currently accepts submissions.
func (e Event) IsLive() bool {
	return e.Status == EventLive
}
