package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"payment-gateway/apperr"
	"payment-gateway/service"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	paymentService *service.PaymentService
}

func NewWebhookHandler(paymentService *service.PaymentService) *WebhookHandler {
	return &WebhookHandler{paymentService: paymentService}
}

// Receive handles POST /api/webhooks/:provider. The signature is checked
// against the raw body, so the body is read before any decoding.
func (h *WebhookHandler) Receive(c *gin.Context) {
	providerName := c.Param("provider")
	header, ok := h.paymentService.SignatureHeader(providerName)
	if !ok {
		respondError(c, apperr.NotFoundErr("Unknown payment provider %q", providerName))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, apperr.ValidationErr([]string{"Webhook body too large or unreadable"}))
		return
	}

	ack, err := h.paymentService.HandleWebhook(c.Request.Context(), providerName, payload, c.GetHeader(header))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"event":   ack.Event.Kind,
		"applied": ack.Applied,
		"reason":  ack.Reason,
	})
}
