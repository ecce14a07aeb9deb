package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"payment-gateway/logging"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_messages_published_total",
		Help: "Outbox messages delivered to Kafka",
	}, []string{"event_type"})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_errors_total",
		Help: "Outbox batches that failed to publish",
	})
	pendingBatch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_last_batch_size",
		Help: "Messages claimed by the most recent relay pass",
	})
)

// MessageWriter is the part of *kafka.Writer the relay uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer that keys messages by payment id so a
// payment's events stay ordered within a partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

type Relay struct {
	pool      *pgxpool.Pool
	writer    MessageWriter
	interval  time.Duration
	batchSize int
}

func NewRelay(pool *pgxpool.Pool, writer MessageWriter, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{pool: pool, writer: writer, interval: interval, batchSize: batchSize}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logging.Info("Outbox relay started", zap.Duration("interval", r.interval), zap.Int("batch_size", r.batchSize))
	for {
		select {
		case <-ctx.Done():
			logging.Info("Outbox relay stopping")
			return r.writer.Close()
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				publishErrors.Inc()
				logging.Error("Error processing outbox messages", zap.Error(err))
			}
		}
	}
}

// ProcessBatch claims up to batchSize unprocessed rows, publishes them and
// marks them processed. Rows stay claimed only for the transaction, so a
// failed publish leaves them for the next pass.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(
		ctx,
		"SELECT id, entity_id, event_type, payload, created_at FROM outbox_messages WHERE processed_at IS NULL ORDER BY created_at LIMIT $1 FOR UPDATE SKIP LOCKED",
		r.batchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("query outbox: %w", err)
	}
	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.EntityID, &m.EventType, &m.Payload, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox: %w", err)
		}
		messages = append(messages, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}

	pendingBatch.Set(float64(len(messages)))
	if len(messages) == 0 {
		return 0, nil
	}

	if err := r.writer.WriteMessages(ctx, KafkaMessages(messages)...); err != nil {
		return 0, fmt.Errorf("publish: %w", err)
	}

	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID.String()
	}
	if _, err := tx.Exec(ctx, "UPDATE outbox_messages SET processed_at = $1 WHERE id = ANY($2::uuid[])", time.Now().UTC(), ids); err != nil {
		return 0, fmt.Errorf("mark processed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	for _, m := range messages {
		publishedTotal.WithLabelValues(m.EventType).Inc()
	}
	logging.Info("Published outbox messages", zap.Int("count", len(messages)))
	return len(messages), nil
}

// KafkaMessages maps outbox rows onto Kafka records keyed by payment id.
func KafkaMessages(messages []Message) []kafka.Message {
	out := make([]kafka.Message, len(messages))
	for i, m := range messages {
		out[i] = kafka.Message{
			Key:   []byte(m.EntityID),
			Value: m.Payload,
			Time:  m.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(m.ID.String())},
				{Key: "event_type", Value: []byte(m.EventType)},
			},
		}
	}
	return out
}
