package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/domain/model"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Writerの差し替え用（テストで使う）
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// 注文通知をKafkaに流す。メール送信は購読側。
type KafkaNotifier struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaNotifier(topic string, logger *zap.Logger, brokers ...string) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		// リクエストを待たせない
		Async: true,
	}
	// Asyncなので送信エラーはここでしか拾えない
	w.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			logger.Error("kafka notification delivery failed",
				zap.Int("messages", len(messages)),
				zap.Error(err),
			)
		}
	}
	return &KafkaNotifier{writer: w, now: time.Now}
}

func (n *KafkaNotifier) SendOrderConfirmation(ctx context.Context, order model.Order) error {
	return n.publish(ctx, TypeOrderConfirmation, order)
}

func (n *KafkaNotifier) SendPaymentConfirmation(ctx context.Context, order model.Order) error {
	return n.publish(ctx, TypePaymentConfirmation, order)
}

func (n *KafkaNotifier) publish(ctx context.Context, typ string, order model.Order) error {
	payload, err := json.Marshal(newMessage(typ, order, n.now()))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(order.ID), // 注文ごとに順序を保つ
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(typ)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
