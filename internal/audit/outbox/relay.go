// Package outbox relays committed audit entries from the audit_outbox table
// to Kafka. Rows are claimed with FOR UPDATE SKIP LOCKED so several relays can
// run side by side; a row is stamped only after the broker acknowledged it.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"

	auditstore "benefits/internal/audit/store"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "benefits_audit_outbox_published_total",
		Help: "Audit outbox rows published to Kafka",
	})
	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "benefits_audit_outbox_failures_total",
		Help: "Audit outbox relay batches that failed",
	})
)

// Store is the outbox half of the Postgres audit store.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]auditstore.OutboxMessage, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Relay struct {
	store    Store
	tx       tx.Runner
	producer Producer
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger

	// produceTimeout stays below the transaction deadline so a slow broker
	// fails the batch before the row locks time out.
	produceTimeout time.Duration
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithProduceTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.produceTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func New(store Store, runner tx.Runner, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		store:    store,
		tx:       runner,
		producer: producer,
		topic:    topic,
		interval:       2 * time.Second,
		batch:          100,
		produceTimeout: 3 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. Batch failures are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				n, err := r.RelayOnce(ctx)
				if err != nil {
					failuresTotal.Inc()
					r.logger.ErrorContext(ctx, "audit outbox relay failed", "error", err)
					break
				}
				if n < r.batch {
					break
				}
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many rows it stamped.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.tx.RunInTx(ctx, func(txCtx context.Context) error {
		msgs, err := r.store.FetchPending(txCtx, r.batch)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}

		records := make([]*kgo.Record, 0, len(msgs))
		for _, m := range msgs {
			records = append(records, &kgo.Record{
				Topic: r.topic,
				Key:   []byte(m.AuditID.String()),
				Value: m.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(m.EventType)},
				},
				Timestamp: m.CreatedAt,
			})
		}
		produceCtx, cancel := context.WithTimeout(txCtx, r.produceTimeout)
		defer cancel()
		if err := r.producer.ProduceSync(produceCtx, records...).FirstErr(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("broker did not acknowledge within %s: %w", r.produceTimeout, err)
			}
			return err
		}

		ids := make([]uuid.UUID, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		if err := r.store.MarkPublished(txCtx, ids, requestcontext.Now(txCtx)); err != nil {
			return err
		}
		published = len(msgs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	publishedTotal.Add(float64(published))
	return published, nil
}
