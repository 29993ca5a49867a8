package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-requests/internal/status"
	"live-requests/models"
	"live-requests/utils"
)

func TestPixCharges_OpenBreakerFailsAsPaymentInitiation(t *testing.T) {
	breaker := utils.NewCircuitBreaker(utils.BreakerSettings{
		Name:         "pix-create-charge",
		MaxRequests:  1,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	})

	// Trip the breaker.
	_, err := breaker.Execute(context.Background(), func() (any, error) {
		return nil, errors.New("provider down")
	})
	require.Error(t, err)

	// The open breaker fails fast before touching the provider, so a
	// nil provider must not be dereferenced.
	charges := NewPixCharges(nil, breaker)
	req := models.Request{
		ID:        "req_001",
		EventID:   "evt_001",
		GuestName: "bruno",
		Amount:    decimal.RequireFromString("20"),
	}

	_, _, _, err = charges.CreateCharge(context.Background(), "ref-1", req)
	assert.ErrorIs(t, err, status.ErrPaymentInitiation)
	assert.ErrorIs(t, err, utils.ErrBreakerOpen)
}
