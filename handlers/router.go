package handlers

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"payment-gateway/logging"
	"payment-gateway/service"
)

// RouterConfig carries the HTTP-level settings of the service.
type RouterConfig struct {
	ServiceName string
	FrontendURL string
	RateLimit   int
	RateWindow  time.Duration

	AllowedOrigins        []string
	AllowedOriginSuffixes []string
}

// NewRouter wires the payment and webhook routes onto a gin engine.
func NewRouter(cfg RouterConfig, paymentService *service.PaymentService) *gin.Engine {
	paymentHandler := NewPaymentHandler(paymentService, cfg.FrontendURL)
	webhookHandler := NewWebhookHandler(paymentService)

	r := gin.New()
	r.Use(gin.Recovery())

	// OpenTelemetry middleware
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(requestIDMiddleware())
	r.Use(securityHeadersMiddleware())
	r.Use(cors.New(corsConfig(cfg)))
	r.Use(httpMetricsMiddleware())
	r.Use(accessLogMiddleware())

	r.GET("/health", paymentHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider deliveries are authenticated by signature and bypass the limiter.
	r.POST("/api/webhooks/:provider", webhookHandler.Receive)

	payments := r.Group("/api/payments")
	if cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		payments.Use(newRateLimiter(cfg.RateLimit, cfg.RateWindow).middleware())
	}
	payments.POST("", paymentHandler.CreatePayment)
	payments.GET("/all", paymentHandler.ListPayments)
	payments.GET("/verify/:reference", paymentHandler.VerifyPayment)
	payments.GET("/user/:email", paymentHandler.ListByEmail)
	payments.GET("/status/:status", paymentHandler.ListByStatus)
	payments.GET("/callback", paymentHandler.PaymentCallback)
	payments.POST("/callback", paymentHandler.PaymentCallback)
	payments.GET("/:id", paymentHandler.GetPayment)

	return r
}

func corsConfig(cfg RouterConfig) cors.Config {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins)+1)
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	if cfg.FrontendURL != "" {
		allowed[strings.TrimRight(cfg.FrontendURL, "/")] = true
	}

	return cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if allowed[origin] {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil || u.Hostname() == "" {
				return false
			}
			for _, suffix := range cfg.AllowedOriginSuffixes {
				if strings.HasSuffix(u.Hostname(), suffix) {
					return true
				}
			}
			logging.Warn("CORS rejected origin", zap.String("origin", origin))
			return false
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}
