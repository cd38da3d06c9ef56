package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher 把确认事件写入 Kafka，以交易 ID 为 key 保证同一交易有序。
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.ConfirmationEvent) error {
	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// KafkaConsumer 消费确认事件并转发给 sink（通常是 *Bus）。
type KafkaConsumer struct {
	r    *kafka.Reader
	sink Publisher
	log  *zap.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, sink Publisher, log *zap.Logger) *KafkaConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaConsumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       1 << 20,
			CommitInterval: time.Second,
		}),
		sink: sink,
		log:  log.Named("notify.kafka"),
	}
}

// Run 阻塞消费直到 ctx 取消；无法解析的消息记录后跳过。
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("notify: kafka read: %w", err)
		}
		ev, err := decodeEvent(m)
		if err != nil {
			c.log.Warn("drop malformed confirmation", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if err := c.sink.Publish(ctx, ev); err != nil {
			c.log.Warn("forward confirmation failed", zap.String("transaction_id", ev.TransactionID), zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) Close() error { return c.r.Close() }

func encodeEvent(ev models.ConfirmationEvent) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(ev.TransactionID), Value: data, Time: ev.Timestamp}, nil
}

func decodeEvent(m kafka.Message) (models.ConfirmationEvent, error) {
	var ev models.ConfirmationEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return ev, err
	}
	if ev.TransactionID == "" {
		ev.TransactionID = string(m.Key)
	}
	if ev.TransactionID == "" {
		return ev, fmt.Errorf("notify: confirmation without transaction id")
	}
	return ev, nil
}
