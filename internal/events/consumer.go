package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/Troha7/E-store/internal/entity"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CacheInvalidator drops a product from the local cache.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, id int64)
}

// Consumer listens to the product topic and drops cached copies of updated or deleted
// products, so every instance serves fresh prices.
type Consumer struct {
	reader   messageReader
	products CacheInvalidator
}

func NewConsumer(reader messageReader, products CacheInvalidator) *Consumer {
	return &Consumer{reader: reader, products: products}
}

// Start reads until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing kafka reader")
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info().Msg("Product consumer stopped")
				return nil
			}
			logger.Error().Err(err).Msg("Error reading message")
			return err
		}

		c.processMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error().Err(err).Msgf("Error committing message %s", msg.Key)
		}
	}
}

// processMessage processes the message received from the product topic
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	var event entity.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Error().Err(err).Msgf("Error unmarshalling message %s", msg.Key)
		return
	}

	switch event.Type {
	case entity.EventProductUpdated, entity.EventProductDeleted:
		c.products.InvalidateCache(ctx, event.EntityID)
		logger.Info().Msgf("Product %d dropped from cache after %s event", event.EntityID, event.Type)
	default:
		logger.Warn().Msgf("Unknown product event: %s", event.Type)
	}
}
