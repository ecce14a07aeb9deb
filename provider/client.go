package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"payment-gateway/apperr"
	"payment-gateway/logging"
	"payment-gateway/monitoring"
)

const defaultTimeout = 10 * time.Second

// apiClient performs authenticated JSON calls against one provider and
// classifies failures into provider, transport and internal errors.
type apiClient struct {
	provider  string
	baseURL   string
	secretKey string
	http      *http.Client
}

func newAPIClient(provider string, opts Options) *apiClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &apiClient{
		provider:  provider,
		baseURL:   opts.BaseURL,
		secretKey: opts.SecretKey,
		// otelhttp.NewTransport instruments every outbound call
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

// errorEnvelope is the subset of an error body both providers share.
type errorEnvelope struct {
	Message string `json:"message"`
}

// do sends body (nil for GET) to path and decodes a 2xx response into out.
func (c *apiClient) do(ctx context.Context, operation, method, path string, body, out any) error {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("external.service", c.provider),
		attribute.String("external.operation", operation),
	)
	logger := logging.WithTraceContext(span).With(
		zap.String("provider", c.provider),
		zap.String("operation", operation),
	)

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return apperr.InternalErr("encode provider request", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.InternalErr("build provider request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(ctx, operation, "error", start)
		span.SetAttributes(attribute.String("external.status", "error"))
		logger.Error("Provider unreachable", zap.Error(err))
		return apperr.TransportErr(c.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(ctx, operation, "error", start)
		logger.Error("Provider response truncated", zap.Error(err))
		return apperr.TransportErr(c.provider, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.record(ctx, operation, "failed", start)
		span.SetAttributes(
			attribute.Int("external.status_code", resp.StatusCode),
			attribute.String("external.status", "failed"),
		)
		var envelope errorEnvelope
		_ = json.Unmarshal(raw, &envelope)
		msg := envelope.Message
		if msg == "" {
			msg = fmt.Sprintf("%s returned status %d", c.provider, resp.StatusCode)
		}
		cause := fmt.Errorf("%s returned status %d", c.provider, resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError {
			logger.Error("Provider server error", zap.Int("status_code", resp.StatusCode), zap.String("message", msg))
			return apperr.TransportErr(c.provider, cause)
		}
		logger.Warn("Provider rejected request", zap.Int("status_code", resp.StatusCode), zap.String("message", msg))
		return apperr.ProviderErr(c.provider, msg, cause)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.record(ctx, operation, "error", start)
		logger.Error("Provider response undecodable", zap.Error(err), zap.Int("status_code", resp.StatusCode))
		return apperr.InternalErr("unexpected response from "+c.provider, err)
	}

	c.record(ctx, operation, "success", start)
	span.SetAttributes(attribute.String("external.status", "success"))
	return nil
}

func (c *apiClient) record(ctx context.Context, operation, status string, start time.Time) {
	monitoring.ExternalCallDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("provider", c.provider),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// parseTime accepts the RFC 3339 variants providers emit; empty is nil.
func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func rawFields(data json.RawMessage) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// rawID renders a JSON id that may be a number or a string.
func rawID(raw json.RawMessage) string {
	id := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if id == "null" {
		return ""
	}
	return id
}
