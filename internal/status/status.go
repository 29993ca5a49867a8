package status

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation covers bad input that the caller can correct and retry.
	ErrValidation = errors.New("validation: invalid input")

	// ErrEventNotLive is returned when a submission targets an event that
	// is not currently LIVE.
	ErrEventNotLive = errors.New("event: not live")

	// ErrInvalidState is returned when a transition is attempted on a
	// record that is not in the required precondition state. Callers must
	// not retry it.
	ErrInvalidState = errors.New("state: invalid transition")

	// ErrNotFound is returned for unknown identifiers.
	ErrNotFound = errors.New("record: not found")

	// ErrPaymentInitiation is returned when the external payment provider
	// refuses or fails to create a charge.
	ErrPaymentInitiation = errors.New("payment: initiation failed")
)

// Transaction is a settlement notification from the payment provider,
// arriving over its notification channel or its webhook.
type Transaction struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"`
}
