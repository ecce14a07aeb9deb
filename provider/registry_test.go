package provider

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"payment-gateway/models"
)

func TestRegistryRoutesEverySupportedCurrency(t *testing.T) {
	r, err := NewRegistry(NewPaystack(Options{}), NewFlutterwave(Options{}))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	want := map[models.Currency]string{
		models.NGN: PaystackName,
		models.USD: FlutterwaveName,
		models.GHS: FlutterwaveName,
		models.KES: FlutterwaveName,
	}
	for currency, provider := range want {
		for i := 0; i < 3; i++ {
			got, ok := r.SelectProvider(currency)
			if !ok || got != provider {
				t.Fatalf("%s: expected %s, got %q", currency, provider, got)
			}
		}
		if !r.Supports(currency) {
			t.Fatalf("%s should be supported", currency)
		}
	}
	if _, ok := r.SelectProvider("EUR"); ok {
		t.Fatalf("EUR should not be routable")
	}
	if got := r.SupportedCurrencies(); len(got) != 4 || got[0] != models.NGN {
		t.Fatalf("unexpected currency list %v", got)
	}
}

func TestRegistryRejectsOverlap(t *testing.T) {
	if _, err := NewRegistry(NewFlutterwave(Options{}), NewFlutterwave(Options{})); err == nil {
		t.Fatalf("expected duplicate provider error")
	}
}

func TestMinorUnitConversion(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"1", 100},
		{"1500.5", 150050},
		{"0.01", 1},
		{"19.99", 1999},
	}
	for _, tc := range cases {
		got, err := ToMinor(decimal.RequireFromString(tc.amount), 2)
		if err != nil || got != tc.want {
			t.Fatalf("%s: expected %d, got %d (%v)", tc.amount, tc.want, got, err)
		}
		if back := FromMinor(got, 2); !back.Equal(decimal.RequireFromString(tc.amount)) {
			t.Fatalf("%s: round trip produced %s", tc.amount, back)
		}
	}
	if _, err := ToMinor(decimal.RequireFromString("0.001"), 2); err == nil {
		t.Fatalf("expected sub-minor amount to be rejected")
	}
}

func TestMinorUnitConversionRejectsOverflow(t *testing.T) {
	for _, amount := range []string{"100000000000000000000", "-100000000000000000000", "92233720368547758.08"} {
		if got, err := ToMinor(decimal.RequireFromString(amount), 2); err == nil {
			t.Fatalf("%s: expected out of range error, got %d", amount, got)
		}
	}
	got, err := ToMinor(decimal.RequireFromString("92233720368547758.07"), 2)
	if err != nil || got != math.MaxInt64 {
		t.Fatalf("expected max int64, got %d (%v)", got, err)
	}
}
