package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// Producer writes outbox records synchronously; a record counts as sent only once the
// brokers acknowledged it. Topic comes from each record, not from the writer.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{}, // key = order_id
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, recs []orders.OutboxRecord) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, ToMessage(r))
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }

// ToMessage builds the broker message for an outbox record.
func ToMessage(r orders.OutboxRecord) kafka.Message {
	return kafka.Message{
		Topic: r.Topic,
		Key:   []byte(r.Key),
		Value: r.Payload,
		Time:  r.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(PeekEventType(r.Payload))},
			{Key: HeaderEventVersion, Value: []byte("1")},
		},
	}
}
