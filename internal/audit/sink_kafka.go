package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes events to a kafka topic keyed by subject id, so one
// subject's events land on one partition in order.
type KafkaSink struct {
	writer *kafka.Writer
	log    *slog.Logger
}

func NewKafkaSink(brokers []string, topic string, log *slog.Logger) *KafkaSink {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 100 * time.Millisecond,
		},
		log: log,
	}
}

func (s *KafkaSink) Emit(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.log.Error("audit event marshal failed", "error", err, "action", e.Action)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(fmt.Sprint(e.SubjectID)),
		Value: data,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.log.Error("audit event publish failed", "error", err, "action", e.Action)
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
