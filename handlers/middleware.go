package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"payment-gateway/apperr"
	"payment-gateway/logging"
	"payment-gateway/monitoring"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware propagates or assigns a request id.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("http.request_id", id))
		c.Next()
	}
}

// securityHeadersMiddleware sets the hardening headers on every response.
// TLS is terminated upstream, so no redirect or HSTS here.
func securityHeadersMiddleware() gin.HandlerFunc {
	return secure.New(secure.Config{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	})
}

// httpMetricsMiddleware records HTTP request metrics
func httpMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := float64(time.Since(start).Milliseconds())
		monitoring.HTTPServerDuration.Record(c.Request.Context(), duration,
			metric.WithAttributes(
				attribute.String("http_method", c.Request.Method),
				attribute.String("http_route", c.FullPath()),
				attribute.String("http_status_code", strconv.Itoa(c.Writer.Status())),
			),
		)
	}
}

// accessLogMiddleware writes one structured line per request.
func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger := logging.WithTraceContext(trace.SpanFromContext(c.Request.Context()))
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}

// rateLimiter is a per-key fixed window counter.
type rateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	items  map[string]*rateLimitEntry
	now    func() time.Time
}

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		items:  make(map[string]*rateLimitEntry),
		now:    time.Now,
	}
}

func (r *rateLimiter) Allow(key string) bool {
	now := r.now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.items[key]
	if entry == nil || now.Sub(entry.windowStart) >= r.window {
		entry = &rateLimitEntry{windowStart: now}
		r.items[key] = entry
		r.sweep(now)
	}

	if entry.count >= r.limit {
		return false
	}
	entry.count++
	return true
}

// sweep drops expired windows; callers hold mu.
func (r *rateLimiter) sweep(now time.Time) {
	for key, entry := range r.items {
		if now.Sub(entry.windowStart) >= r.window {
			delete(r.items, key)
		}
	}
}

func (r *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests from this IP, please try again later.",
			})
			return
		}
		c.Next()
	}
}

// respondError renders err by kind and logs it once.
func respondError(c *gin.Context, err error) {
	status := logError(c, err)

	body := gin.H{"success": false, "error": apperr.PublicMessage(err)}
	if ae, ok := apperr.As(err); ok {
		if len(ae.Violations) > 0 {
			body["details"] = ae.Violations
		}
		if status != http.StatusInternalServerError && ae.Provider != "" {
			body["provider"] = ae.Provider
		}
		if apperr.Retryable(err) {
			body["retryable"] = true
		}
	}
	c.JSON(status, body)
}

// logError logs err at a level matching its HTTP status and returns it.
func logError(c *gin.Context, err error) int {
	status := apperr.HTTPStatus(err)
	logger := logging.WithTraceContext(trace.SpanFromContext(c.Request.Context())).With(
		zap.String("path", c.FullPath()),
		zap.String("kind", string(apperr.KindOf(err))),
	)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err), zap.Int("status", status))
	} else {
		logger.Info("Request rejected", zap.String("reason", apperr.PublicMessage(err)), zap.Int("status", status))
	}
	return status
}
