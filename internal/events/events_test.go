package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/Troha7/E-store/internal/entity"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducer(w, OrderKeyPrefix)
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	err := p.Publish(context.Background(), entity.EventOrderItemAdded, 42, map[string]int{"quantity": 3})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, "order-item-added-42", string(w.msgs[0].Key))

	var event entity.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	require.Equal(t, entity.EventOrderItemAdded, event.Type)
	require.Equal(t, int64(42), event.EntityID)
	require.True(t, p.now().Equal(event.OccurredAt))
	_, err = uuid.Parse(event.ID)
	require.NoError(t, err)
}

func TestProducer_PublishError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewProducer(&fakeWriter{err: boom}, ProductKeyPrefix)

	err := p.Publish(context.Background(), entity.EventProductDeleted, 1, nil)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "product-deleted-1")
}

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed int
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-r.msgs:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed += len(msgs)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type invalidations struct {
	mu  sync.Mutex
	ids []int64
}

func (i *invalidations) InvalidateCache(_ context.Context, id int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids = append(i.ids, id)
}

func (i *invalidations) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ids)
}

func productMessage(t *testing.T, eventType string, id int64) kafka.Message {
	t.Helper()
	value, err := json.Marshal(entity.Event{Type: eventType, EntityID: id})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(MessageKey(ProductKeyPrefix, eventType, id)), Value: value}
}

func TestConsumer_InvalidatesProducts(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 4)}
	inv := &invalidations{}
	c := NewConsumer(reader, inv)

	reader.msgs <- productMessage(t, entity.EventProductUpdated, 1)
	reader.msgs <- kafka.Message{Key: []byte("garbage"), Value: []byte("{")}
	reader.msgs <- productMessage(t, "restocked", 2)
	reader.msgs <- productMessage(t, entity.EventProductDeleted, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return inv.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []int64{1, 3}, inv.ids)
	require.Equal(t, 4, reader.committed)
	require.True(t, reader.closed)
}

func TestNop(t *testing.T) {
	require.NoError(t, Nop{}.Publish(context.Background(), "created", 1, nil))
}
