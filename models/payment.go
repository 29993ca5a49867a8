package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payment ties a request to a provider transaction. The core consumes it
// as an event source for the request's payment_status; settlement itself
// happens at the provider.
type Payment struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"request_id"`
	Reference    string          `json:"reference"`
	ProviderID   string          `json:"provider_id,omitempty"`
	QRCode       string          `json:"qr_code,omitempty"`
	QRCodeBase64 string          `json:"qr_code_base64,omitempty"`
	Amount       decimal.Decimal `json:"transaction_amount"`
	Status       string          `json:"status"` // pending, completed, failed
	Created      time.Time       `json:"created_at"`
}

// PaymentSession is what the submitter's client needs to complete a
// charge: the reference for reconciliation plus the two rendering fields.
type PaymentSession struct {
	Reference    string `json:"reference"`
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
}

// WebhookLog records every settlement webhook delivery, valid or not.
type WebhookLog struct {
	ID               string          `json:"id"`
	Headers          json.RawMessage `json:"headers,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	SignatureValid   bool            `json:"signature_valid"`
	ProcessingStatus string          `json:"processing_status"`
	ReceivedAt       time.Time       `json:"received_at"`
}
