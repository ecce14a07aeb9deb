package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending     Status = "pending"
	StatusInitialized Status = "initialized"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInitialized, StatusCompleted, StatusFailed}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Currency is an ISO 4217 code from the supported set.
type Currency string

const (
	NGN Currency = "NGN"
	USD Currency = "USD"
	GHS Currency = "GHS"
	KES Currency = "KES"
)

// MaxAmount is the largest accepted payment in major units; the
// validate tag on PaymentIntent.Amount carries the same bound.
var MaxAmount = decimal.NewFromInt(1_000_000_000_000)

// DefaultCurrency applies when a request omits the currency.
const DefaultCurrency = NGN

// PaymentRecord is the persisted state of one payment attempt.
type PaymentRecord struct {
	ID                string          `json:"id"`
	Reference         string          `json:"reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          Currency        `json:"currency"`
	Email             string          `json:"email"`
	Status            Status          `json:"status"`
	Provider          string          `json:"provider"`
	ProviderReference *string         `json:"provider_reference"`
	AuthorizationURL  *string         `json:"authorization_url"`
	Metadata          map[string]any  `json:"metadata"`
	Error             *string         `json:"error,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	VerifiedAt        *time.Time      `json:"verified_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with r.
func (r *PaymentRecord) Clone() *PaymentRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.ProviderReference = cloneString(r.ProviderReference)
	out.AuthorizationURL = cloneString(r.AuthorizationURL)
	out.Error = cloneString(r.Error)
	out.PaidAt = cloneTime(r.PaidAt)
	out.VerifiedAt = cloneTime(r.VerifiedAt)
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// PaymentIntent is the caller's request to start a payment.
type PaymentIntent struct {
	Amount    decimal.Decimal `json:"amount" validate:"gt=0,lte=1000000000000"`
	Currency  Currency        `json:"currency" validate:"supported_currency"`
	Email     string          `json:"email" validate:"required,email"`
	Reference string          `json:"reference,omitempty" validate:"omitempty,max=100"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// EventKind is the normalized meaning of a provider webhook.
type EventKind string

const (
	EventPaymentCompleted EventKind = "payment_completed"
	EventPaymentFailed    EventKind = "payment_failed"
	EventUnhandled        EventKind = "unhandled"
)

// WebhookEvent is a provider notification after authentication and decoding.
type WebhookEvent struct {
	Kind              EventKind       `json:"kind"`
	Provider          string          `json:"provider"`
	ProviderEvent     string          `json:"provider_event"`
	Reference         string          `json:"reference,omitempty"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          Currency        `json:"currency,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
}

// Status returns the lifecycle state the event reports, if any.
func (e *WebhookEvent) Status() (Status, bool) {
	switch e.Kind {
	case EventPaymentCompleted:
		return StatusCompleted, true
	case EventPaymentFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

// WebhookAck is returned to the provider once a webhook is accepted.
type WebhookAck struct {
	Event   *WebhookEvent `json:"event"`
	Applied bool          `json:"applied"`
	Reason  string        `json:"reason,omitempty"`
}

// ListFilter narrows ListPayments; zero values match everything.
type ListFilter struct {
	Status Status
	Email  string
}

// PaymentPage is one page of ListPayments.
type PaymentPage struct {
	Payments []*PaymentRecord `json:"data"`
	Total    int64            `json:"total"`
	Limit    int              `json:"limit"`
	Skip     int              `json:"skip"`
}

// HasMore reports whether another page follows this one.
func (p *PaymentPage) HasMore() bool {
	return int64(p.Skip+p.Limit) < p.Total
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
