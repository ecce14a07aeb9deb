package provider

import (
	"fmt"

	"payment-gateway/models"
)

// Registry maps each supported currency to exactly one adapter.
type Registry struct {
	adapters   map[string]Adapter
	routes     map[models.Currency]string
	currencies []models.Currency
}

// NewRegistry builds the routing table from the adapters' declared
// currencies. A currency claimed by two adapters is a configuration error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		routes:   make(map[models.Currency]string),
	}
	for _, a := range adapters {
		name := a.Name()
		if _, dup := r.adapters[name]; dup {
			return nil, fmt.Errorf("provider %q registered twice", name)
		}
		r.adapters[name] = a
		for _, c := range a.Currencies() {
			if owner, taken := r.routes[c]; taken {
				return nil, fmt.Errorf("currency %s claimed by both %s and %s", c, owner, name)
			}
			r.routes[c] = name
			r.currencies = append(r.currencies, c)
		}
	}
	return r, nil
}

// SelectProvider returns the provider responsible for currency.
func (r *Registry) SelectProvider(currency models.Currency) (string, bool) {
	name, ok := r.routes[currency]
	return name, ok
}

// Adapter resolves a provider name recorded on a payment.
func (r *Registry) Adapter(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Supports(currency models.Currency) bool {
	_, ok := r.routes[currency]
	return ok
}

// SupportedCurrencies returns currencies in registration order.
func (r *Registry) SupportedCurrencies() []models.Currency {
	out := make([]models.Currency, len(r.currencies))
	copy(out, r.currencies)
	return out
}
