package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"payment-gateway/apperr"
	"payment-gateway/models"
	"payment-gateway/provider"
	"payment-gateway/store"
)

const webhookSecret = "sk_test_webhook"

func newWebhookFixture(t *testing.T) (*PaymentService, *store.Memory) {
	t.Helper()
	registry, err := provider.NewRegistry(
		provider.NewPaystack(provider.Options{SecretKey: webhookSecret}),
		&fakeAdapter{name: "flutterwave", currencies: []models.Currency{models.USD, models.GHS, models.KES}},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	st := store.NewMemory()
	return NewPaymentService(noop.NewTracerProvider().Tracer("test"), st, registry, Options{}), st
}

func seed(t *testing.T, st *store.Memory, reference string, status models.Status) *models.PaymentRecord {
	t.Helper()
	now := time.Now().UTC()
	rec := &models.PaymentRecord{
		ID:        "id-" + reference,
		Reference: reference,
		Amount:    decimal.NewFromInt(5000),
		Currency:  models.NGN,
		Email:     "a@b.com",
		Status:    status,
		Provider:  provider.PaystackName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec
}

func paystackEvent(event, reference string, kobo int64) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"data":{"id":99,"reference":%q,"amount":%d,"currency":"NGN","paid_at":"2024-01-02T10:00:00Z"}}`, event, reference, kobo))
}

func TestWebhookCompletesPaymentOnce(t *testing.T) {
	svc, st := newWebhookFixture(t)
	rec := seed(t, st, "PAY_W1", models.StatusInitialized)
	payload := paystackEvent("charge.success", "PAY_W1", 500000)
	sig := provider.SignHexSHA512(webhookSecret, payload)

	ack, err := svc.HandleWebhook(context.Background(), "paystack", payload, sig)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if !ack.Applied || ack.Event.Kind != models.EventPaymentCompleted {
		t.Fatalf("expected applied completion, got %+v", ack)
	}
	first, _ := st.FindByID(context.Background(), rec.ID)
	if first.Status != models.StatusCompleted || first.PaidAt == nil {
		t.Fatalf("unexpected record %+v", first)
	}

	ack, err = svc.HandleWebhook(context.Background(), "paystack", payload, sig)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if ack.Applied {
		t.Fatalf("redelivery must be a no-op")
	}
	second, _ := st.FindByID(context.Background(), rec.ID)
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("redelivery touched the record")
	}
}

func TestWebhookInvalidSignatureNeverMutates(t *testing.T) {
	svc, st := newWebhookFixture(t)
	rec := seed(t, st, "PAY_W2", models.StatusInitialized)
	payload := paystackEvent("charge.success", "PAY_W2", 500000)

	for _, sig := range []string{"", "deadbeef", provider.SignHexSHA512("wrong", payload)} {
		_, err := svc.HandleWebhook(context.Background(), "paystack", payload, sig)
		if apperr.KindOf(err) != apperr.Auth {
			t.Fatalf("expected auth error for %q, got %v", sig, err)
		}
	}
	stored, _ := st.FindByID(context.Background(), rec.ID)
	if stored.Status != models.StatusInitialized {
		t.Fatalf("record mutated to %s", stored.Status)
	}
}

func TestWebhookFailureNeverOverwritesCompleted(t *testing.T) {
	svc, st := newWebhookFixture(t)
	rec := seed(t, st, "PAY_W3", models.StatusCompleted)
	payload := paystackEvent("charge.failed", "PAY_W3", 500000)

	ack, err := svc.HandleWebhook(context.Background(), "paystack", payload, provider.SignHexSHA512(webhookSecret, payload))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if ack.Applied {
		t.Fatalf("failure must not apply over completed")
	}
	stored, _ := st.FindByID(context.Background(), rec.ID)
	if stored.Status != models.StatusCompleted {
		t.Fatalf("completed record regressed to %s", stored.Status)
	}
}

func TestWebhookCompletionOverridesFailed(t *testing.T) {
	svc, st := newWebhookFixture(t)
	rec := seed(t, st, "PAY_W4", models.StatusFailed)
	payload := paystackEvent("charge.success", "PAY_W4", 500000)

	ack, err := svc.HandleWebhook(context.Background(), "paystack", payload, provider.SignHexSHA512(webhookSecret, payload))
	if err != nil || !ack.Applied {
		t.Fatalf("expected applied completion, got %+v %v", ack, err)
	}
	stored, _ := st.FindByID(context.Background(), rec.ID)
	if stored.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
}

func TestWebhookAcknowledgedWithoutChange(t *testing.T) {
	svc, st := newWebhookFixture(t)
	seed(t, st, "PAY_W5", models.StatusInitialized)

	cases := []struct {
		name    string
		payload []byte
		reason  string
	}{
		{"unknown reference", paystackEvent("charge.success", "PAY_NOPE", 500000), "unknown reference"},
		{"amount mismatch", paystackEvent("charge.success", "PAY_W5", 100), "amount mismatch"},
		{"unhandled", []byte(`{"event":"subscription.create","data":{}}`), "unhandled event"},
	}
	for _, tc := range cases {
		ack, err := svc.HandleWebhook(context.Background(), "paystack", tc.payload, provider.SignHexSHA512(webhookSecret, tc.payload))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ack.Applied || ack.Reason != tc.reason {
			t.Fatalf("%s: unexpected ack %+v", tc.name, ack)
		}
	}

	stored, _ := st.FindByReference(context.Background(), "PAY_W5")
	if stored.Status != models.StatusInitialized {
		t.Fatalf("mismatched amount completed the payment")
	}
}

func TestWebhookProviderMismatch(t *testing.T) {
	svc, st := newWebhookFixture(t)
	_ = st.Create(context.Background(), &models.PaymentRecord{
		ID: "other", Reference: "PAY_W8", Amount: decimal.NewFromInt(5000), Currency: models.USD,
		Status: models.StatusInitialized, Provider: provider.FlutterwaveName,
	})

	payload := paystackEvent("charge.success", "PAY_W8", 500000)
	ack, err := svc.HandleWebhook(context.Background(), "paystack", payload, provider.SignHexSHA512(webhookSecret, payload))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if ack.Applied || ack.Reason != "provider mismatch" {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestWebhookUnknownProvider(t *testing.T) {
	svc, _ := newWebhookFixture(t)
	if _, err := svc.HandleWebhook(context.Background(), "stripe", []byte(`{}`), "x"); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok := svc.SignatureHeader("stripe"); ok {
		t.Fatalf("unknown provider must have no signature header")
	}
	if h, _ := svc.SignatureHeader("paystack"); h != "x-paystack-signature" {
		t.Fatalf("unexpected header %q", h)
	}
}

func TestWebhookRecordsProviderTransactionReference(t *testing.T) {
	svc, st := newWebhookFixture(t)
	rec := seed(t, st, "PAY_W9", models.StatusInitialized)
	payload := paystackEvent("charge.success", "PAY_W9", 500000)

	if _, err := svc.HandleWebhook(context.Background(), "paystack", payload, provider.SignHexSHA512(webhookSecret, payload)); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	stored, _ := st.FindByID(context.Background(), rec.ID)
	if stored.ProviderReference == nil || *stored.ProviderReference != "99" {
		t.Fatalf("expected provider reference 99, got %v", stored.ProviderReference)
	}
}
