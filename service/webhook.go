package service

import (
	"payment-gateway/apperr"
	"payment-gateway/models"
	"payment-gateway/provider"
)

// WebhookProcessor authenticates and normalizes provider notifications. It
// never touches the store.
type WebhookProcessor struct {
	registry *provider.Registry
}

func NewWebhookProcessor(registry *provider.Registry) *WebhookProcessor {
	return &WebhookProcessor{registry: registry}
}

// SignatureHeader names the header providerName signs its webhooks in.
func (w *WebhookProcessor) SignatureHeader(providerName string) (string, bool) {
	adapter, ok := w.registry.Adapter(providerName)
	if !ok {
		return "", false
	}
	return adapter.SignatureHeader(), true
}

// Process resolves the adapter for providerName and decodes payload. An
// unhandled event kind is returned as a valid event.
func (w *WebhookProcessor) Process(providerName string, payload []byte, signature string) (*models.WebhookEvent, error) {
	adapter, ok := w.registry.Adapter(providerName)
	if !ok {
		return nil, apperr.NotFoundErr("Unknown payment provider %q", providerName)
	}
	return adapter.DecodeWebhook(payload, signature)
}
