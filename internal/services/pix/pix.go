package pix

import (
	"context"
	"encoding/json"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"

	"live-requests/internal/status"
)

type Config struct {
	BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
	ClientID   string `json:"clientId" mapstructure:"client_id"`
	ClientKey  string `json:"clientKey" mapstructure:"client_key"`
	HMACKey    string `json:"hmacKey" mapstructure:"hmac_key"`
	Currency   string `json:"currency" mapstructure:"currency"`

	PNSubKey  string `json:"pn_subkey" mapstructure:"pn_subkey"`
	PNUUID    string `json:"pn_uuid" mapstructure:"pn_uuid"`
	PNChannel string `json:"pn_channel" mapstructure:"pn_channel"`
}

// Charge is a request to create one pix charge. Label is the short
// human-readable code the payer sees on the bank statement.
type Charge struct {
	Reference     string
	Label         string
	Amount        decimal.Decimal
	Description   string
	ExpiryMinutes int
}

// ChargeCode is the renderable result of a created charge.
type ChargeCode struct {
	ProviderID  string
	CopyPaste   string
	ImageBase64 string
}

// Provider talks to the pix payment backend: charge creation over signed
// HTTP, settlement notifications over the provider's PubNub channel.
type Provider struct {
	currency string

	c *client

	pn        *pubnub.PubNub
	listener  *pubnub.Listener
	pnChannel string

	txCh chan *status.Transaction

	done chan struct{}
}

// New creates a pix provider, or nil when no provider is configured.
// When the config carries a notification subscribe key, the provider
// starts listening for settlements; callers receive them on the channel
// set via SetTransactionChannel.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, nil
	}

	p := &Provider{
		currency:  cfg.Currency,
		c:         newClient(cfg),
		pnChannel: cfg.PNChannel,
		done:      make(chan struct{}),
	}

	if cfg.PNSubKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PNUUID))
		pnConfig.SubscribeKey = cfg.PNSubKey

		p.pn = pubnub.NewPubNub(pnConfig)
		p.listener = pubnub.NewListener()
		p.pn.AddListener(p.listener)
		p.pn.Subscribe().
			Channels([]string{p.pnChannel}).
			Execute()

		go p.listen(ctx)
	}

	return p, nil
}

// SetTransactionChannel sets the channel receiving settlement
// notifications.
func (p *Provider) SetTransactionChannel(ch chan *status.Transaction) {
	p.txCh = ch
}

// CreateCharge asks the provider to create a charge and returns the
// copy-paste code and base64 image to forward to the submitter.
func (p *Provider) CreateCharge(ctx context.Context, charge *Charge) (*ChargeCode, error) {
	resp, err := p.c.createCharge(ctx, &createChargeRequest{
		MerchantID:     p.c.merchantID,
		Reference:      charge.Reference,
		Label:          charge.Label,
		Amount:         charge.Amount,
		Currency:       p.currency,
		Description:    charge.Description,
		ExpiryMinutes:  charge.ExpiryMinutes,
		NotificationCh: p.pnChannel,
	})
	if err != nil {
		return nil, err
	}

	return &ChargeCode{
		ProviderID:  resp.ID,
		CopyPaste:   resp.QRCode,
		ImageBase64: resp.QRCodeBase64,
	}, nil
}

// VerifyWebhook checks a webhook body against its signature header.
func (p *Provider) VerifyWebhook(body []byte, signature string) bool {
	return VerifySignature(body, []byte(p.c.hmacKey), signature)
}

func (p *Provider) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case message := <-p.listener.Message:
			p.handleMessage(message)
		}
	}
}

func (p *Provider) handleMessage(message *pubnub.PNMessage) {
	if p.txCh == nil {
		return
	}

	data, ok := message.Message.(map[string]any)
	if !ok {
		return
	}

	jsonData, _ := json.Marshal(data)

	var tx status.Transaction
	if err := json.Unmarshal(jsonData, &tx); err != nil {
		slog.Error("pix: parse settlement notification", "error", err)
		return
	}

	p.txCh <- &tx
}

// Close stops the settlement listener. Safe to call with no listener
// running.
func (p *Provider) Close(ctx context.Context) error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}

	if p.pn != nil {
		p.pn.Unsubscribe().
			Channels([]string{p.pnChannel}).
			Execute()
	}

	return nil
}
