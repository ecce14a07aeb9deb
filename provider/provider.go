// Package provider holds the per-provider adapters that translate a payment
// intent into provider API calls, and the registry that routes currencies to
// adapters.
package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"payment-gateway/models"
)

// Adapter is the capability set every payment provider implements.
// All errors returned are *apperr.Error values.
type Adapter interface {
	Name() string
	// Currencies lists the currencies this adapter is responsible for.
	Currencies() []models.Currency
	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string

	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	// DecodeWebhook authenticates payload against signature and normalizes
	// it. A signature mismatch is always an apperr.Auth error.
	DecodeWebhook(payload []byte, signature string) (*models.WebhookEvent, error)
}

type InitializeRequest struct {
	PaymentID   string
	Reference   string
	Amount      decimal.Decimal
	Currency    models.Currency
	Email       string
	Metadata    map[string]any
	CallbackURL string
}

type InitializeResult struct {
	AuthorizationURL  string
	ProviderReference string
}

// VerifyResult is the provider's answer to "has this payment completed".
// Status is always StatusCompleted or StatusFailed.
type VerifyResult struct {
	Status            models.Status
	Reference         string
	ProviderReference string
	Amount            decimal.Decimal
	Currency          models.Currency
	PaidAt            *time.Time
	Channel           string
	Fees              decimal.Decimal
	Raw               map[string]any
}

// Options configures an HTTP-backed adapter.
type Options struct {
	BaseURL   string
	SecretKey string
	// WebhookSecret keys the webhook HMAC; adapters fall back to SecretKey.
	WebhookSecret string
	Timeout       time.Duration
}

func (o Options) webhookSecret() string {
	if o.WebhookSecret != "" {
		return o.WebhookSecret
	}
	return o.SecretKey
}

func withPaymentID(id string, metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	if id != "" {
		out["payment_id"] = id
	}
	return out
}
