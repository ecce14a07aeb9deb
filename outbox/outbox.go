// Package outbox records payment lifecycle events in the same Postgres
// transaction as the state change and relays them to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payment-gateway/models"
)

const (
	EventPaymentCreated = "payment_created"
	EventPaymentUpdated = "payment_updated"
)

// PaymentEvent is the payload published for every recorded change.
type PaymentEvent struct {
	Type       string                `json:"type"`
	OccurredAt time.Time             `json:"occurred_at"`
	Data       *models.PaymentRecord `json:"data"`
}

// Message is one row of outbox_messages.
type Message struct {
	ID        uuid.UUID
	EntityID  string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// NewMessage encodes an event for rec.
func NewMessage(eventType string, rec *models.PaymentRecord) (*Message, error) {
	now := time.Now().UTC()
	payload, err := json.Marshal(PaymentEvent{Type: eventType, OccurredAt: now, Data: rec})
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.New(),
		EntityID:  rec.ID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: now,
	}, nil
}

// Insert writes an event for rec inside tx.
func Insert(ctx context.Context, tx pgx.Tx, eventType string, rec *models.PaymentRecord) error {
	msg, err := NewMessage(eventType, rec)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		ctx,
		"INSERT INTO outbox_messages (id, entity_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)",
		msg.ID, msg.EntityID, msg.EventType, msg.Payload, msg.CreatedAt,
	)
	return err
}
