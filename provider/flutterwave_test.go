package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"payment-gateway/apperr"
	"payment-gateway/models"
)

func TestFlutterwaveInitializeSendsMajorUnits(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"link":"https://checkout.flutterwave.com/v3/hosted/pay/x"}}`))
	}))
	defer srv.Close()

	f := NewFlutterwave(Options{BaseURL: srv.URL, SecretKey: "FLWSECK"})
	res, err := f.Initialize(context.Background(), InitializeRequest{
		PaymentID: "id-1",
		Reference: "PAY_9",
		Amount:    decimal.RequireFromString("49.99"),
		Currency:  models.KES,
		Email:     "a@b.co",
		Metadata:  map[string]any{"customerName": "Ada"},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if got["amount"] != 49.99 {
		t.Fatalf("expected major-unit amount, got %v", got["amount"])
	}
	if got["tx_ref"] != "PAY_9" || got["payment_options"] != "card,mobilemoney" {
		t.Fatalf("unexpected body %v", got)
	}
	customer, _ := got["customer"].(map[string]any)
	if customer["name"] != "Ada" {
		t.Fatalf("expected customer name from metadata, got %v", customer)
	}
	if res.AuthorizationURL != "https://checkout.flutterwave.com/v3/hosted/pay/x" || res.ProviderReference != "PAY_9" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestFlutterwaveInitializeRejectsSubCent(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"status":"success","data":{"link":"https://checkout.flutterwave.com/x"}}`))
	}))
	defer srv.Close()

	f := NewFlutterwave(Options{BaseURL: srv.URL, SecretKey: "FLWSECK"})
	for _, amount := range []string{"10.005", "100000000000000000000"} {
		_, err := f.Initialize(context.Background(), InitializeRequest{
			Reference: "PAY_1",
			Amount:    decimal.RequireFromString(amount),
			Currency:  models.USD,
		})
		if apperr.KindOf(err) != apperr.Provider {
			t.Fatalf("%s: expected provider error, got %v", amount, err)
		}
	}
	if called {
		t.Fatalf("invalid amount reached the provider")
	}
}

func TestFlutterwaveVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/verify_by_reference" || r.URL.Query().Get("tx_ref") != "PAY_9" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"status":"success","data":{"id":4812,"status":"successful","tx_ref":"PAY_9","flw_ref":"FLW-MOCK-1","amount":49.99,"currency":"KES","created_at":"2024-03-01T09:00:00.000Z","payment_type":"mobilemoneykenya","app_fee":1.4}}`))
	}))
	defer srv.Close()

	res, err := NewFlutterwave(Options{BaseURL: srv.URL, SecretKey: "k"}).Verify(context.Background(), "PAY_9")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Status != models.StatusCompleted || res.ProviderReference != "FLW-MOCK-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.Amount.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("unexpected amount %s", res.Amount)
	}
	if res.Channel != "mobilemoneykenya" {
		t.Fatalf("unexpected channel %q", res.Channel)
	}
}

func TestFlutterwaveErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"No transaction was found for this id"}`))
	}))
	defer srv.Close()

	_, err := NewFlutterwave(Options{BaseURL: srv.URL, SecretKey: "k"}).Verify(context.Background(), "PAY_9")
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.Provider || ae.Message != "No transaction was found for this id" {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestFlutterwaveWebhook(t *testing.T) {
	f := NewFlutterwave(Options{SecretKey: "FLWSECK", WebhookSecret: "hash"})

	completed := []byte(`{"event":"charge.completed","data":{"id":1,"tx_ref":"PAY_9","flw_ref":"FLW-1","amount":20,"currency":"USD","status":"successful","created_at":"2024-03-01T09:00:00Z"}}`)
	event, err := f.DecodeWebhook(completed, SignBase64SHA256("hash", completed))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Kind != models.EventPaymentCompleted || event.Reference != "PAY_9" || event.ProviderReference != "FLW-1" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.PaidAt == nil {
		t.Fatalf("expected paid_at")
	}

	if _, err := f.DecodeWebhook(completed, SignBase64SHA256("FLWSECK", completed)); apperr.KindOf(err) != apperr.Auth {
		t.Fatalf("secret key must not validate when a webhook hash is configured, got %v", err)
	}

	declined := []byte(`{"event":"charge.completed","data":{"id":2,"tx_ref":"PAY_9","amount":20,"currency":"USD","status":"failed"}}`)
	event, err = f.DecodeWebhook(declined, SignBase64SHA256("hash", declined))
	if err != nil || event.Kind != models.EventPaymentFailed {
		t.Fatalf("expected failed event, got %+v %v", event, err)
	}
	if event.ProviderReference != "2" {
		t.Fatalf("expected id fallback, got %q", event.ProviderReference)
	}

	other := []byte(`{"event":"transfer.completed","data":{}}`)
	event, err = f.DecodeWebhook(other, SignBase64SHA256("hash", other))
	if err != nil || event.Kind != models.EventUnhandled {
		t.Fatalf("expected unhandled event, got %+v %v", event, err)
	}
}

func TestFlutterwaveWebhookMissingReference(t *testing.T) {
	f := NewFlutterwave(Options{SecretKey: "k"})
	payload := []byte(`{"event":"charge.failed","data":{"amount":20}}`)
	if _, err := f.DecodeWebhook(payload, SignBase64SHA256("k", payload)); apperr.KindOf(err) != apperr.Internal {
		t.Fatalf("expected internal error, got %v", err)
	}
}
