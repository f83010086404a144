package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a Kafka topic, keyed by owner so one
// account's trail stays ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects to the brokers and ensures the topic exists.
func NewKafkaSink(ctx context.Context, brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Already-exists is fine; anything else is a real provisioning failure.
		if !strings.Contains(err.Error(), "TOPIC_ALREADY_EXISTS") {
			client.Close()
			return nil, fmt.Errorf("ensure audit topic: %w", err)
		}
	}

	return &KafkaSink{client: client, topic: topic}, nil
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.OwnerID),
		Value: payload,
	}
	return s.client.ProduceSync(ctx, record).FirstErr()
}

// Close flushes pending produces and releases the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
