package pix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type client struct {
	// baseURL is the base url of the pix provider backend.
	baseURL string

	// merchantID identifies the receiving account.
	merchantID string

	// clientID and clientKey authenticate API calls.
	clientID  string
	clientKey string

	// hmacKey signs request bodies.
	hmacKey string

	// hc is the http client.
	hc *http.Client
}

func newClient(c *Config) *client {
	return &client{
		baseURL:    c.BaseURL,
		merchantID: c.MerchantID,
		clientID:   c.ClientID,
		clientKey:  c.ClientKey,
		hmacKey:    c.HMACKey,

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type createChargeRequest struct {
	MerchantID     string          `json:"merchant_id"`
	Reference      string          `json:"external_reference"`
	Label          string          `json:"reference_label,omitempty"`
	Amount         decimal.Decimal `json:"transaction_amount"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description,omitempty"`
	ExpiryMinutes  int             `json:"expiry_minutes,omitempty"`
	NotificationCh string          `json:"notification_channel,omitempty"`
}

type createChargeResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	Message      string `json:"message,omitempty"`
}

func (c *client) createCharge(ctx context.Context, body *createChargeRequest) (*createChargeResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/charges", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", c.clientID)
	req.Header.Set("X-Client-Key", c.clientKey)
	req.Header.Set("X-Signature", Hmac256(payload, []byte(c.hmacKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out createChargeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pix: decode charge response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("pix: create charge: status %d: %s", resp.StatusCode, out.Message)
	}

	return &out, nil
}
