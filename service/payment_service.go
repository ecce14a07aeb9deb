package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"payment-gateway/apperr"
	"payment-gateway/logging"
	"payment-gateway/models"
	"payment-gateway/monitoring"
	"payment-gateway/provider"
	"payment-gateway/store"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	referencePrefix  = "PAY_"
)

// Options tunes a PaymentService.
type Options struct {
	// CallbackURL is where providers send the customer after checkout.
	CallbackURL     string
	ProviderTimeout time.Duration
	// Node generates payment references; one node id per process.
	Node *snowflake.Node
}

// PaymentService orchestrates the payment lifecycle across the store and
// the provider adapters.
type PaymentService struct {
	tracer      trace.Tracer
	store       store.PaymentStore
	registry    *provider.Registry
	webhooks    *WebhookProcessor
	validator   *intentValidator
	callbackURL string
	timeout     time.Duration
	node        *snowflake.Node
	now         func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(tracer trace.Tracer, st store.PaymentStore, registry *provider.Registry, opts Options) *PaymentService {
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	node := opts.Node
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	return &PaymentService{
		tracer:      tracer,
		store:       st,
		registry:    registry,
		webhooks:    NewWebhookProcessor(registry),
		validator:   newIntentValidator(registry),
		callbackURL: opts.CallbackURL,
		timeout:     timeout,
		node:        node,
		now:         time.Now,
	}
}

// SignatureHeader names the header a provider's webhooks are signed in.
func (s *PaymentService) SignatureHeader(providerName string) (string, bool) {
	return s.webhooks.SignatureHeader(providerName)
}

// CreatePayment validates intent, persists a pending record and initializes
// it with the provider that owns its currency.
func (s *PaymentService) CreatePayment(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "create_payment")
	defer span.End()
	logger := logging.WithTraceContext(span)

	intent = normalizeIntent(intent)
	if violations := s.validator.Check(intent); len(violations) > 0 {
		span.SetStatus(codes.Error, "validation failed")
		logger.Info("Payment rejected", zap.Strings("violations", violations))
		return nil, apperr.ValidationErr(violations)
	}

	providerName, _ := s.registry.SelectProvider(intent.Currency)
	adapter, _ := s.registry.Adapter(providerName)

	reference := intent.Reference
	if reference == "" {
		reference = s.newReference()
	}
	now := s.now().UTC()
	rec := &models.PaymentRecord{
		ID:        uuid.NewString(),
		Reference: reference,
		Amount:    intent.Amount,
		Currency:  intent.Currency,
		Email:     intent.Email,
		Status:    models.StatusPending,
		Provider:  providerName,
		Metadata:  intent.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}

	span.SetAttributes(
		attribute.String("payment.id", rec.ID),
		attribute.String("payment.reference", rec.Reference),
		attribute.String("payment.currency", string(rec.Currency)),
		attribute.String("payment.provider", providerName),
		attribute.String("payment.amount", rec.Amount.String()),
	)
	logger = logger.With(zap.String("payment_id", rec.ID), zap.String("reference", rec.Reference))

	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			span.SetStatus(codes.Error, "duplicate reference")
			return nil, apperr.ValidationErr([]string{"Reference already exists."})
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "store create failed")
		logger.Error("Failed to save payment", zap.Error(err))
		return nil, apperr.InternalErr("Failed to save payment", err)
	}
	monitoring.PaymentCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("currency", string(rec.Currency)),
		attribute.String("provider", providerName),
	))
	logger.Info("Payment created",
		zap.String("provider", providerName),
		zap.String("currency", string(rec.Currency)),
		zap.String("amount", rec.Amount.String()),
	)

	initCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := adapter.Initialize(initCtx, provider.InitializeRequest{
		PaymentID:   rec.ID,
		Reference:   rec.Reference,
		Amount:      rec.Amount,
		Currency:    rec.Currency,
		Email:       rec.Email,
		Metadata:    rec.Metadata,
		CallbackURL: s.callbackURL,
	})
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialization failed")
		logger.Warn("Payment initialization failed", zap.Error(err), zap.String("kind", string(apperr.KindOf(err))))

		// The caller's context may already be done; the failure must still be recorded.
		msg := errorMessage(err)
		if _, uerr := s.transition(context.WithoutCancel(ctx), rec, store.Update{
			Status:    store.StatusOf(models.StatusFailed),
			Error:     &msg,
			ExpectNot: []models.Status{models.StatusCompleted},
		}, "initialize"); uerr != nil {
			logger.Error("Failed to record initialization failure", zap.Error(uerr))
		}
		return nil, err
	}

	updated, err := s.transition(ctx, rec, store.Update{
		Status:            store.StatusOf(models.StatusInitialized),
		AuthorizationURL:  &result.AuthorizationURL,
		ProviderReference: &result.ProviderReference,
		ExpectNot:         []models.Status{models.StatusCompleted, models.StatusFailed},
	}, "initialize")
	if errors.Is(err, store.ErrStatusConflict) {
		// A webhook settled the payment before initialization was recorded.
		return s.store.FindByID(ctx, rec.ID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.InternalErr("Failed to update payment", err)
	}

	span.AddEvent("payment_initialized")
	logger.Info("Payment initialized", zap.String("status", string(updated.Status)))
	return updated, nil
}

// VerifyPayment reconciles the stored status with the provider. A completed
// payment is returned without contacting the provider.
func (s *PaymentService) VerifyPayment(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "verify_payment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", reference))
	logger := logging.WithTraceContext(span).With(zap.String("reference", reference))

	rec, err := s.store.FindByReference(ctx, reference)
	if err != nil {
		return nil, s.lookupErr(span, err)
	}
	if rec.Status == models.StatusCompleted {
		span.AddEvent("already_completed")
		return rec, nil
	}

	adapter, ok := s.registry.Adapter(rec.Provider)
	if !ok {
		logger.Error("Payment has no registered provider", zap.String("provider", rec.Provider))
		return nil, apperr.InternalErr("Unknown provider "+rec.Provider, nil)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := adapter.Verify(verifyCtx, reference)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification failed")
		logger.Warn("Payment verification failed", zap.Error(err), zap.Bool("retryable", apperr.Retryable(err)))
		return nil, apperr.VerificationErr(err)
	}

	if result.Status == models.StatusCompleted && !amountMatches(rec, result.Amount, result.Currency) {
		logger.Warn("Verified amount differs from payment",
			zap.String("expected", rec.Amount.String()+" "+string(rec.Currency)),
			zap.String("reported", result.Amount.String()+" "+string(result.Currency)),
		)
	}

	now := s.now().UTC()
	update := store.Update{
		Status:     store.StatusOf(result.Status),
		VerifiedAt: &now,
		ExpectNot:  []models.Status{models.StatusCompleted},
	}
	if result.ProviderReference != "" {
		update.ProviderReference = &result.ProviderReference
	}
	if result.Status == models.StatusCompleted {
		paidAt := now
		if result.PaidAt != nil {
			paidAt = *result.PaidAt
		}
		update.PaidAt = &paidAt
	}

	updated, err := s.transition(ctx, rec, update, "verify")
	if errors.Is(err, store.ErrStatusConflict) {
		// A webhook completed the payment while the provider was being asked.
		return s.store.FindByID(ctx, rec.ID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.InternalErr("Failed to update payment", err)
	}
	logger.Info("Payment verified", zap.String("status", string(updated.Status)))
	return updated, nil
}

// HandleWebhook authenticates a provider notification and applies the
// outcome it reports. Accepted notifications that change nothing are
// acknowledged with Applied=false and a reason.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, payload []byte, signature string) (*models.WebhookAck, error) {
	ctx, span := s.tracer.Start(ctx, "handle_webhook")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.provider", providerName))
	logger := logging.WithTraceContext(span).With(zap.String("provider", providerName))

	event, err := s.webhooks.Process(providerName, payload, signature)
	if err != nil {
		s.countWebhook(ctx, providerName, "", "rejected")
		span.SetStatus(codes.Error, "webhook rejected")
		logger.Warn("Webhook rejected", zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("webhook.event", event.ProviderEvent),
		attribute.String("payment.reference", event.Reference),
	)
	logger = logger.With(zap.String("event", event.ProviderEvent), zap.String("reference", event.Reference))

	ack := func(applied bool, reason string) *models.WebhookAck {
		result := "ignored"
		if applied {
			result = "applied"
		}
		s.countWebhook(ctx, providerName, event.Kind, result)
		if !applied {
			logger.Info("Webhook acknowledged without change", zap.String("reason", reason))
		}
		return &models.WebhookAck{Event: event, Applied: applied, Reason: reason}
	}

	status, ok := event.Status()
	if !ok {
		return ack(false, "unhandled event"), nil
	}

	rec, err := s.store.FindByReference(ctx, event.Reference)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("Webhook for unknown payment")
		return ack(false, "unknown reference"), nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.InternalErr("Failed to load payment", err)
	}

	switch {
	case rec.Provider != event.Provider:
		logger.Warn("Webhook provider does not own payment", zap.String("owner", rec.Provider))
		return ack(false, "provider mismatch"), nil
	case rec.Status == models.StatusCompleted:
		return ack(false, "payment already completed"), nil
	case rec.Status == status:
		return ack(false, "payment already "+string(status)), nil
	case status == models.StatusCompleted && !amountMatches(rec, event.Amount, event.Currency):
		logger.Warn("Webhook amount differs from payment",
			zap.String("expected", rec.Amount.String()+" "+string(rec.Currency)),
			zap.String("reported", event.Amount.String()+" "+string(event.Currency)),
		)
		return ack(false, "amount mismatch"), nil
	}

	update := store.Update{
		Status:    store.StatusOf(status),
		ExpectNot: []models.Status{models.StatusCompleted},
	}
	if event.ProviderReference != "" {
		update.ProviderReference = &event.ProviderReference
	}
	if status == models.StatusCompleted {
		paidAt := s.now().UTC()
		if event.PaidAt != nil {
			paidAt = *event.PaidAt
		}
		update.PaidAt = &paidAt
	} else {
		msg := "Payment failed at " + providerName
		update.Error = &msg
	}

	if _, err := s.transition(ctx, rec, update, "webhook"); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return ack(false, "payment already completed"), nil
		}
		span.RecordError(err)
		return nil, apperr.InternalErr("Failed to update payment", err)
	}
	return ack(true, ""), nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "get_payment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", id))

	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.lookupErr(span, err)
	}
	return rec, nil
}

// ListPayments returns one page of payments, newest first. limit is clamped
// to [1, 100] with 10 as the default.
func (s *PaymentService) ListPayments(ctx context.Context, filter models.ListFilter, limit, skip int) (*models.PaymentPage, error) {
	ctx, span := s.tracer.Start(ctx, "list_payments")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		names := make([]string, len(models.Statuses))
		for i, st := range models.Statuses {
			names[i] = string(st)
		}
		return nil, apperr.ValidationErr([]string{"Invalid status. Valid statuses are " + strings.Join(names, ", ") + "."})
	}
	filter.Email = strings.ToLower(strings.TrimSpace(filter.Email))
	limit = clampLimit(limit)
	if skip < 0 {
		skip = 0
	}
	span.SetAttributes(
		attribute.String("filter.status", string(filter.Status)),
		attribute.Int("page.limit", limit),
		attribute.Int("page.skip", skip),
	)

	records, total, err := s.store.List(ctx, filter, limit, skip)
	if err != nil {
		span.RecordError(err)
		logging.WithTraceContext(span).Error("Failed to list payments", zap.Error(err))
		return nil, apperr.InternalErr("Failed to list payments", err)
	}
	if records == nil {
		records = []*models.PaymentRecord{}
	}
	return &models.PaymentPage{Payments: records, Total: total, Limit: limit, Skip: skip}, nil
}

// transition writes u and records the status change it caused.
func (s *PaymentService) transition(ctx context.Context, rec *models.PaymentRecord, u store.Update, source string) (*models.PaymentRecord, error) {
	updated, err := s.store.Update(ctx, rec.ID, u)
	if err != nil {
		return nil, err
	}
	if updated.Status != rec.Status {
		monitoring.StatusTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(rec.Status)),
			attribute.String("to", string(updated.Status)),
			attribute.String("provider", rec.Provider),
			attribute.String("source", source),
		))
	}
	return updated, nil
}

func (s *PaymentService) lookupErr(span trace.Span, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return apperr.NotFoundErr("Payment not found")
	}
	span.RecordError(err)
	logging.WithTraceContext(span).Error("Failed to load payment", zap.Error(err))
	return apperr.InternalErr("Failed to load payment", err)
}

func (s *PaymentService) countWebhook(ctx context.Context, providerName string, kind models.EventKind, result string) {
	monitoring.WebhookCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("event", string(kind)),
		attribute.String("result", result),
	))
}

func (s *PaymentService) newReference() string {
	return referencePrefix + strings.ToUpper(s.node.Generate().Base36())
}

// normalizeIntent returns a cleaned copy; the caller's intent is untouched.
func normalizeIntent(in *models.PaymentIntent) *models.PaymentIntent {
	intent := *in
	intent.Currency = models.Currency(strings.ToUpper(strings.TrimSpace(string(intent.Currency))))
	if intent.Currency == "" {
		intent.Currency = models.DefaultCurrency
	}
	intent.Email = strings.ToLower(strings.TrimSpace(intent.Email))
	intent.Reference = strings.TrimSpace(intent.Reference)
	return &intent
}

// amountMatches treats a zero amount or empty currency as "not reported".
func amountMatches(rec *models.PaymentRecord, amount decimal.Decimal, currency models.Currency) bool {
	if !amount.IsZero() && !amount.Equal(rec.Amount) {
		return false
	}
	return currency == "" || currency == rec.Currency
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

func errorMessage(err error) string {
	if ae, ok := apperr.As(err); ok && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
