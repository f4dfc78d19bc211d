// Package worker relays committed audit entries from the outbox table to Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	auditpg "unionregistry/pkg/platform/audit/store/postgres"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = 2 * time.Second
)

// Outbox is the queue side of the audit store.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]auditpg.OutboxMessage, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

// Producer publishes records synchronously. *kgo.Client satisfies it.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Worker polls the outbox and publishes each batch. Rows are marked published
// only after the whole batch is acknowledged, so delivery is at-least-once.
type Worker struct {
	outbox       Outbox
	producer     Producer
	topic        string
	logger       *slog.Logger
	batchSize    int
	pollInterval time.Duration
}

// Option configures the Worker.
type Option func(*Worker)

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func New(outbox Outbox, producer Producer, topic string, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		outbox:       outbox,
		producer:     producer,
		topic:        topic,
		logger:       logger,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Publish failures are logged and retried
// on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were delivered.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	msgs, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, len(msgs))
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		records[i] = &kgo.Record{
			Topic: w.topic,
			Key:   []byte(m.EntityID),
			Value: m.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "audit-entry-id", Value: []byte(m.EntryID.String())},
			},
		}
		ids[i] = m.ID
	}

	if err := w.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, err
	}
	if err := w.outbox.MarkPublished(ctx, ids, time.Now()); err != nil {
		return 0, err
	}
	w.logger.DebugContext(ctx, "audit outbox relayed", "count", len(msgs))
	return len(msgs), nil
}
