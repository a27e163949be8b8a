// Package redpanda publishes interview session snapshots to Redpanda/Kafka
// for downstream consumers (analytics, audit, replay). Publishing is
// fire-and-forget from the interview's point of view: a broker outage never
// blocks or fails a session.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// TopicSessionSnapshots receives one record per session snapshot, keyed by
// session id so all snapshots of a session land in one partition in order.
const TopicSessionSnapshots = "interview-session-snapshots"

// Producer wraps a Kafka producer and implements domain.SnapshotPublisher.
type Producer struct {
	client *kgo.Client
}

// NewProducer connects to the brokers and ensures the snapshot topic exists.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}

	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(
			kotel.TracerProvider(otel.GetTracerProvider()),
		)),
	)
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(kotelService.Hooks()...),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, TopicSessionSnapshots, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", TopicSessionSnapshots),
			slog.Any("error", err))
	}
	return &Producer{client: client}, nil
}

// PublishSnapshot emits one session snapshot record. Errors are returned for
// logging; callers must not fail the session on them.
func (p *Producer) PublishSnapshot(ctx context.Context, s *domain.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("op=snapshot.publish: marshal: %w", err)
	}
	record := &kgo.Record{
		Topic: TopicSessionSnapshots,
		Key:   []byte(s.ID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(uuid.New().String())},
			{Key: "phase", Value: []byte(s.Phase)},
		},
	}
	res := p.client.ProduceSync(ctx, record)
	if err := res.FirstErr(); err != nil {
		return fmt.Errorf("op=snapshot.publish: %w", err)
	}
	return nil
}

// Close flushes and shuts down the underlying client.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
