package collaborators

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes escalation alerts as domain events, mirroring the
// teacher's publishEvent helper: best-effort, fire-and-forget from the
// caller's point of view (the chat driver never waits on the result).
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (k *KafkaNotifier) Notify(ctx context.Context, alert EscalationAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal escalation alert: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.SessionID),
		Value: payload,
	})
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
