package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"payment-gateway/apperr"
	"payment-gateway/models"
	"payment-gateway/service"
)

// PaymentHandler handles HTTP requests for payments
type PaymentHandler struct {
	paymentService *service.PaymentService
	frontendURL    string
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *service.PaymentService, frontendURL string) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		frontendURL:    strings.TrimRight(frontendURL, "/"),
	}
}

// CreatePayment handles POST /api/payments.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req models.PaymentIntent
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.ValidationErr([]string{"Invalid request body: " + err.Error()}))
		return
	}

	rec, err := h.paymentService.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	trace.SpanFromContext(c.Request.Context()).AddEvent("payment_created_successfully")
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Payment initialized successfully",
		"data":    rec,
	})
}

// VerifyPayment handles GET /api/payments/verify/:reference.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	rec, err := h.paymentService.VerifyPayment(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
}

// GetPayment handles GET /api/payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	rec, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
}

// ListPayments handles GET /api/payments/all.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	h.list(c, models.ListFilter{})
}

// ListByEmail handles GET /api/payments/user/:email.
func (h *PaymentHandler) ListByEmail(c *gin.Context) {
	h.list(c, models.ListFilter{Email: c.Param("email")})
}

// ListByStatus handles GET /api/payments/status/:status.
func (h *PaymentHandler) ListByStatus(c *gin.Context) {
	h.list(c, models.ListFilter{Status: models.Status(strings.ToLower(c.Param("status")))})
}

func (h *PaymentHandler) list(c *gin.Context, filter models.ListFilter) {
	limit := queryInt(c, "limit", 10)
	skip := queryInt(c, "skip", 0)

	page, err := h.paymentService.ListPayments(c.Request.Context(), filter, limit, skip)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    page.Payments,
		"meta": gin.H{
			"total":    page.Total,
			"limit":    page.Limit,
			"skip":     page.Skip,
			"has_more": page.HasMore(),
		},
	})
}

// PaymentCallback handles the provider redirect after checkout: it verifies
// the payment and sends the customer on to the frontend.
func (h *PaymentHandler) PaymentCallback(c *gin.Context) {
	reference := firstNonEmpty(c.Query("reference"), c.Query("trxref"), c.Query("tx_ref"))
	if reference == "" {
		h.redirect(c, "/payment/failed", url.Values{"error": {"Missing payment reference"}})
		return
	}

	rec, err := h.paymentService.VerifyPayment(c.Request.Context(), reference)
	if err != nil {
		logError(c, err)
		h.redirect(c, "/payment/failed", url.Values{
			"reference": {reference},
			"error":     {apperr.PublicMessage(err)},
		})
		return
	}
	if rec.Status != models.StatusCompleted {
		h.redirect(c, "/payment/failed", url.Values{
			"reference": {reference},
			"error":     {"Payment " + string(rec.Status)},
		})
		return
	}
	h.redirect(c, "/payment/success", url.Values{
		"reference": {reference},
		"status":    {string(rec.Status)},
	})
}

func (h *PaymentHandler) redirect(c *gin.Context, path string, query url.Values) {
	c.Redirect(http.StatusFound, h.frontendURL+path+"?"+query.Encode())
}

// HealthCheck handles health check requests
func (h *PaymentHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
