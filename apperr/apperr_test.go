package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", ValidationErr([]string{"bad"}), http.StatusBadRequest},
		{"not found", NotFoundErr("payment %s not found", "x"), http.StatusNotFound},
		{"auth", AuthErr("paystack"), http.StatusUnauthorized},
		{"provider", ProviderErr("paystack", "Invalid key", nil), http.StatusBadGateway},
		{"transport", TransportErr("paystack", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"verification provider", VerificationErr(ProviderErr("paystack", "no", nil)), http.StatusBadGateway},
		{"verification transport", VerificationErr(TransportErr("paystack", errors.New("dial"))), http.StatusGatewayTimeout},
		{"foreign", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("create: %w", ValidationErr(nil)), http.StatusBadRequest},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestRetryableLooksThroughVerification(t *testing.T) {
	err := VerificationErr(TransportErr("flutterwave", context.DeadlineExceeded))
	if !Retryable(err) {
		t.Fatalf("expected transport cause to be retryable")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain")
	}
	if Retryable(VerificationErr(ProviderErr("flutterwave", "declined", nil))) {
		t.Fatalf("provider failures are not retryable")
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	err := InternalErr("decode provider response", errors.New("unexpected EOF"))
	if got := PublicMessage(err); got != "Internal server error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := PublicMessage(AuthErr("paystack")); got != "Invalid webhook signature" {
		t.Fatalf("unexpected auth message %q", got)
	}
}
