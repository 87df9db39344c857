// Package events publishes order and product changes to Kafka and consumes the product
// stream to keep caches fresh.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/Troha7/E-store/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const (
	OrderKeyPrefix   = "order"
	ProductKeyPrefix = "product"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Producer writes one message per event. The message key is "<prefix>-<event>-<id>" so all
// events of one entity land on the same partition.
type Producer struct {
	writer messageWriter
	prefix string
	now    func() time.Time
}

func NewProducer(writer messageWriter, prefix string) *Producer {
	return &Producer{writer: writer, prefix: prefix, now: time.Now}
}

func (p *Producer) Publish(ctx context.Context, eventType string, entityID int64, payload any) error {
	event := entity.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		EntityID:   entityID,
		OccurredAt: p.now().UTC(),
		Payload:    payload,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	key := MessageKey(p.prefix, eventType, entityID)
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("write message %s: %w", key, err)
	}

	logger.Debug().Msgf("Event %s published", key)
	return nil
}

func MessageKey(prefix, eventType string, entityID int64) string {
	return fmt.Sprintf("%s-%s-%d", prefix, eventType, entityID)
}

// Nop drops every event; it is used when EVENTS_ENABLED is off.
type Nop struct{}

func (Nop) Publish(context.Context, string, int64, any) error { return nil }
