// Package outbox streams committed ledger entries to Kafka for downstream
// SIEM and reporting pipelines. The ledger row is the source of truth; the
// stream is an export, so produce failures are logged and counted but never
// fail the append they follow.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"docket/internal/ledger"
	"docket/internal/ledger/metrics"
)

// Publisher produces ledger entries to a Kafka topic, keyed by tenant so each
// tenant's entries preserve chain order within a partition.
type Publisher struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPublisher(brokers []string, topic string, logger *slog.Logger, m *metrics.Metrics) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic, logger: logger, metrics: m}, nil
}

// EnsureTopic creates the export topic if it does not exist yet. Called once
// at startup; safe to call against an existing topic.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicas int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopic(ctx, partitions, replicas, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	// kadm surfaces per-topic errors on the response, not the call.
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

// Publish produces one committed entry asynchronously. Errors reach the
// callback, where they are logged and counted.
func (p *Publisher) Publish(ctx context.Context, entry *ledger.Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal ledger entry for export", "error", err, "entry_id", entry.ID)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.TenantID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			if p.metrics != nil {
				p.metrics.PublishFailures.Inc()
			}
			p.logger.Error("publish ledger entry", "error", err, "entry_id", entry.ID.String())
			return
		}
		if p.metrics != nil {
			p.metrics.EntriesPublished.Inc()
		}
	})
}

// Close flushes pending records and releases the client.
func (p *Publisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	p.client.Close()
	return nil
}
