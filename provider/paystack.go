package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"payment-gateway/apperr"
	"payment-gateway/logging"
	"payment-gateway/models"
)

const (
	PaystackName = "paystack"

	paystackSignatureHeader = "x-paystack-signature"
	// Paystack amounts are in kobo.
	paystackMinorExp = 2
)

// Paystack handles the domestic currency.
type Paystack struct {
	client        *apiClient
	webhookSecret string
}

func NewPaystack(opts Options) *Paystack {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.paystack.co"
	}
	return &Paystack{
		client:        newAPIClient(PaystackName, opts),
		webhookSecret: opts.webhookSecret(),
	}
}

func (p *Paystack) Name() string                  { return PaystackName }
func (p *Paystack) Currencies() []models.Currency { return []models.Currency{models.NGN} }
func (p *Paystack) SignatureHeader() string       { return paystackSignatureHeader }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeRequest struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Reference   string         `json:"reference"`
	Metadata    map[string]any `json:"metadata"`
	CallbackURL string         `json:"callback_url,omitempty"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransaction struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at"`
	Channel   string `json:"channel"`
	Fees      int64  `json:"fees"`
}

func (p *Paystack) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	kobo, err := ToMinor(req.Amount, paystackMinorExp)
	if err != nil {
		return nil, apperr.ProviderErr(PaystackName, "Amount is not representable in kobo", err)
	}

	body := paystackInitializeRequest{
		Email:       req.Email,
		Amount:      kobo,
		Currency:    string(req.Currency),
		Reference:   req.Reference,
		Metadata:    withPaymentID(req.PaymentID, req.Metadata),
		CallbackURL: req.CallbackURL,
	}

	var envelope paystackEnvelope
	if err := p.client.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Status {
		return nil, apperr.ProviderErr(PaystackName, messageOr(envelope.Message, "Payment initialization failed"), nil)
	}

	var data paystackInitializeData
	if err := json.Unmarshal(envelope.Data, &data); err != nil || data.AuthorizationURL == "" {
		return nil, apperr.InternalErr("unexpected response from "+PaystackName, err)
	}

	providerRef := data.AccessCode
	if providerRef == "" {
		providerRef = data.Reference
	}
	return &InitializeResult{AuthorizationURL: data.AuthorizationURL, ProviderReference: providerRef}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var envelope paystackEnvelope
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := p.client.do(ctx, "verify", http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Status {
		return nil, apperr.ProviderErr(PaystackName, messageOr(envelope.Message, "Payment verification failed"), nil)
	}

	var tx paystackTransaction
	if err := json.Unmarshal(envelope.Data, &tx); err != nil {
		return nil, apperr.InternalErr("unexpected response from "+PaystackName, err)
	}

	status := models.StatusFailed
	if tx.Status == "success" {
		status = models.StatusCompleted
	}
	return &VerifyResult{
		Status:    status,
		Reference: tx.Reference,
		Amount:    FromMinor(tx.Amount, paystackMinorExp),
		Currency:  models.Currency(strings.ToUpper(tx.Currency)),
		PaidAt:    parseTime(tx.PaidAt),
		Channel:   tx.Channel,
		Fees:      FromMinor(tx.Fees, paystackMinorExp),
		Raw:       rawFields(envelope.Data),
	}, nil
}

type paystackWebhook struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type paystackWebhookData struct {
	ID        json.RawMessage `json:"id"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
}

func (p *Paystack) DecodeWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	if !verifyHexSHA512(p.webhookSecret, payload, signature) {
		return nil, apperr.AuthErr(PaystackName)
	}

	var hook paystackWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, apperr.InternalErr("malformed "+PaystackName+" webhook", err)
	}

	event := &models.WebhookEvent{Kind: models.EventUnhandled, Provider: PaystackName, ProviderEvent: hook.Event}
	switch hook.Event {
	case "charge.success":
		event.Kind = models.EventPaymentCompleted
	case "charge.failed":
		event.Kind = models.EventPaymentFailed
	default:
		logging.Info("Unhandled webhook event", zap.String("provider", PaystackName), zap.String("event", hook.Event))
		return event, nil
	}

	var data paystackWebhookData
	if err := json.Unmarshal(hook.Data, &data); err != nil {
		return nil, apperr.InternalErr("malformed "+PaystackName+" webhook", err)
	}
	if data.Reference == "" {
		return nil, apperr.InternalErr(PaystackName+" webhook missing reference", nil)
	}
	event.Reference = data.Reference
	event.ProviderReference = rawID(data.ID)
	event.Amount = FromMinor(data.Amount, paystackMinorExp)
	event.Currency = models.Currency(strings.ToUpper(data.Currency))
	if event.Kind == models.EventPaymentCompleted {
		event.PaidAt = parseTime(data.PaidAt)
	}
	return event, nil
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}

var _ Adapter = (*Paystack)(nil)
