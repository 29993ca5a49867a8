package services

import (
	"context"
	"errors"
	"fmt"

	"live-requests/internal/services/pix"
	"live-requests/internal/status"
	"live-requests/models"
	"live-requests/utils"
)

// PixCharges adapts the pix provider to the ChargeCreator contract,
// guarding every provider call with a circuit breaker so a struggling
// provider sheds load fast instead of stalling submissions.
type PixCharges struct {
	provider *pix.Provider
	breaker  *utils.CircuitBreaker
}

func NewPixCharges(provider *pix.Provider, breaker *utils.CircuitBreaker) *PixCharges {
	return &PixCharges{
		provider: provider,
		breaker:  breaker,
	}
}

func (p *PixCharges) CreateCharge(ctx context.Context, reference string, req models.Request) (string, string, string, error) {
	label, _ := utils.GenerateCode(4)

	result, err := p.breaker.Execute(ctx, func() (interface{}, error) {
		return p.provider.CreateCharge(ctx, &pix.Charge{
			Reference:     reference,
			Label:         fmt.Sprintf("%s-%s", req.EventID, label),
			Amount:        req.Amount,
			Description:   fmt.Sprintf("Pedido de %s", req.GuestName),
			ExpiryMinutes: 10,
		})
	})
	if err != nil {
		// An open breaker never reached the provider; surface it as a
		// payment initiation failure so the pending row rolls back.
		if errors.Is(err, utils.ErrBreakerOpen) || errors.Is(err, utils.ErrBreakerSaturated) {
			return "", "", "", fmt.Errorf("%w: %w", status.ErrPaymentInitiation, err)
		}
		return "", "", "", err
	}

	code := result.(*pix.ChargeCode)
	return code.ProviderID, code.CopyPaste, code.ImageBase64, nil
}
