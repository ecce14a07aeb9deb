package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-gateway/apperr"
	"payment-gateway/logging"
	"payment-gateway/models"
)

const (
	FlutterwaveName = "flutterwave"

	flutterwaveSignatureHeader = "flutterwave-signature"
	flutterwaveMinorExp        = 2
)

// Flutterwave handles the international currencies. Its API takes amounts
// in major units.
type Flutterwave struct {
	client        *apiClient
	webhookSecret string
}

func NewFlutterwave(opts Options) *Flutterwave {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.flutterwave.com/v3"
	}
	return &Flutterwave{
		client:        newAPIClient(FlutterwaveName, opts),
		webhookSecret: opts.webhookSecret(),
	}
}

func (f *Flutterwave) Name() string { return FlutterwaveName }

func (f *Flutterwave) Currencies() []models.Currency {
	return []models.Currency{models.USD, models.GHS, models.KES}
}

func (f *Flutterwave) SignatureHeader() string { return flutterwaveSignatureHeader }

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flutterwaveCustomer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type flutterwaveCustomizations struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type flutterwaveInitializeRequest struct {
	TxRef          string                    `json:"tx_ref"`
	Amount         json.Number               `json:"amount"`
	Currency       string                    `json:"currency"`
	RedirectURL    string                    `json:"redirect_url,omitempty"`
	PaymentOptions string                    `json:"payment_options"`
	Customer       flutterwaveCustomer       `json:"customer"`
	Customizations flutterwaveCustomizations `json:"customizations"`
	Meta           map[string]any            `json:"meta"`
}

type flutterwaveInitializeData struct {
	Link string `json:"link"`
}

type flutterwaveTransaction struct {
	ID          json.RawMessage `json:"id"`
	Status      string          `json:"status"`
	TxRef       string          `json:"tx_ref"`
	FlwRef      string          `json:"flw_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CreatedAt   string          `json:"created_at"`
	PaymentType string          `json:"payment_type"`
	AppFee      decimal.Decimal `json:"app_fee"`
}

// paymentOptions lists the checkout channels offered per currency.
func paymentOptions(currency models.Currency) string {
	switch currency {
	case models.GHS, models.KES:
		return "card,mobilemoney"
	default:
		return "card"
	}
}

func (f *Flutterwave) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	// The API takes major units but settles in cents.
	if _, err := ToMinor(req.Amount, flutterwaveMinorExp); err != nil {
		return nil, apperr.ProviderErr(FlutterwaveName, "Amount is not representable in minor units", err)
	}

	name, _ := req.Metadata["customerName"].(string)
	if name == "" {
		name = "Customer"
	}

	body := flutterwaveInitializeRequest{
		TxRef:          req.Reference,
		Amount:         json.Number(req.Amount.String()),
		Currency:       string(req.Currency),
		RedirectURL:    req.CallbackURL,
		PaymentOptions: paymentOptions(req.Currency),
		Customer:       flutterwaveCustomer{Email: req.Email, Name: name},
		Customizations: flutterwaveCustomizations{
			Title:       "Payment Gateway Service",
			Description: "Payment for items in cart",
		},
		Meta: withPaymentID(req.PaymentID, req.Metadata),
	}

	var envelope flutterwaveEnvelope
	if err := f.client.do(ctx, "initialize", http.MethodPost, "/payments", body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status != "success" {
		return nil, apperr.ProviderErr(FlutterwaveName, messageOr(envelope.Message, "Payment initialization failed"), nil)
	}

	var data flutterwaveInitializeData
	if err := json.Unmarshal(envelope.Data, &data); err != nil || data.Link == "" {
		return nil, apperr.InternalErr("unexpected response from "+FlutterwaveName, err)
	}
	// Flutterwave assigns no id until checkout; tx_ref is the handle.
	return &InitializeResult{AuthorizationURL: data.Link, ProviderReference: req.Reference}, nil
}

func (f *Flutterwave) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var envelope flutterwaveEnvelope
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)
	if err := f.client.do(ctx, "verify", http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status != "success" {
		return nil, apperr.ProviderErr(FlutterwaveName, messageOr(envelope.Message, "Payment verification failed"), nil)
	}

	var tx flutterwaveTransaction
	if err := json.Unmarshal(envelope.Data, &tx); err != nil {
		return nil, apperr.InternalErr("unexpected response from "+FlutterwaveName, err)
	}

	status := models.StatusFailed
	if tx.Status == "successful" {
		status = models.StatusCompleted
	}
	return &VerifyResult{
		Status:            status,
		Reference:         tx.TxRef,
		ProviderReference: tx.FlwRef,
		Amount:            tx.Amount,
		Currency:          models.Currency(strings.ToUpper(tx.Currency)),
		PaidAt:            parseTime(tx.CreatedAt),
		Channel:           tx.PaymentType,
		Fees:              tx.AppFee,
		Raw:               rawFields(envelope.Data),
	}, nil
}

type flutterwaveWebhook struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (f *Flutterwave) DecodeWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	if !verifyBase64SHA256(f.webhookSecret, payload, signature) {
		return nil, apperr.AuthErr(FlutterwaveName)
	}

	var hook flutterwaveWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, apperr.InternalErr("malformed "+FlutterwaveName+" webhook", err)
	}

	event := &models.WebhookEvent{Kind: models.EventUnhandled, Provider: FlutterwaveName, ProviderEvent: hook.Event}
	switch hook.Event {
	case "charge.completed", "charge.failed":
	default:
		logging.Info("Unhandled webhook event", zap.String("provider", FlutterwaveName), zap.String("event", hook.Event))
		return event, nil
	}

	var tx flutterwaveTransaction
	if err := json.Unmarshal(hook.Data, &tx); err != nil {
		return nil, apperr.InternalErr("malformed "+FlutterwaveName+" webhook", err)
	}
	if tx.TxRef == "" {
		return nil, apperr.InternalErr(FlutterwaveName+" webhook missing tx_ref", nil)
	}

	// charge.completed is also sent for declined charges; data.status decides.
	event.Kind = models.EventPaymentFailed
	if hook.Event == "charge.completed" && tx.Status == "successful" {
		event.Kind = models.EventPaymentCompleted
		event.PaidAt = parseTime(tx.CreatedAt)
	}
	event.Reference = tx.TxRef
	event.ProviderReference = tx.FlwRef
	if event.ProviderReference == "" {
		event.ProviderReference = rawID(tx.ID)
	}
	event.Amount = tx.Amount
	event.Currency = models.Currency(strings.ToUpper(tx.Currency))
	return event, nil
}

var _ Adapter = (*Flutterwave)(nil)
