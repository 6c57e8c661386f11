package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	auditstore "benefits/internal/audit/store"
	"benefits/pkg/platform/tx"
)

type fakeOutbox struct {
	pending   []auditstore.OutboxMessage
	published map[uuid.UUID]time.Time
	fetchErr  error
}

func (f *fakeOutbox) FetchPending(_ context.Context, limit int) ([]auditstore.OutboxMessage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []auditstore.OutboxMessage
	for _, m := range f.pending {
		if _, done := f.published[m.ID]; done {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		f.published[id] = at
	}
	return nil
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
	// hang waits for the context like an unresponsive broker.
	hang bool
}

func (p *fakeProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	if p.hang {
		<-ctx.Done()
		for _, r := range rs {
			results = append(results, kgo.ProduceResult{Record: r, Err: ctx.Err()})
		}
		return results
	}
	for _, r := range rs {
		if p.err == nil {
			p.records = append(p.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

type RelaySuite struct {
	suite.Suite
	store    *fakeOutbox
	producer *fakeProducer
	relay    *Relay
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.store = &fakeOutbox{published: map[uuid.UUID]time.Time{}}
	for i := 0; i < 3; i++ {
		s.store.pending = append(s.store.pending, auditstore.OutboxMessage{
			ID:        uuid.New(),
			AuditID:   uuid.New(),
			EventType: "reclamation_investigated",
			Payload:   []byte(`{"action_type":"reclamation_investigated"}`),
			CreatedAt: time.Now(),
		})
	}
	s.producer = &fakeProducer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.relay = New(s.store, tx.NewMemory(), s.producer, "benefits.audit", WithBatchSize(2), WithLogger(logger))
}

func (s *RelaySuite) TestRelayOnce() {
	s.Run("publishes a batch and stamps it", func() {
		n, err := s.relay.RelayOnce(context.Background())
		s.Require().NoError(err)
		s.Equal(2, n)
		s.Len(s.producer.records, 2)
		s.Len(s.store.published, 2)
		s.Equal("benefits.audit", s.producer.records[0].Topic)
		s.Equal([]byte(s.store.pending[0].AuditID.String()), s.producer.records[0].Key)
	})

	s.Run("drains the remainder", func() {
		n, err := s.relay.RelayOnce(context.Background())
		s.Require().NoError(err)
		s.Equal(1, n)

		n, err = s.relay.RelayOnce(context.Background())
		s.Require().NoError(err)
		s.Zero(n)
	})
}

func (s *RelaySuite) TestBrokerFailureLeavesRowsPending() {
	s.producer.err = errors.New("broker unavailable")
	n, err := s.relay.RelayOnce(context.Background())
	s.Require().Error(err)
	s.Zero(n)
	s.Empty(s.store.published)
}

func (s *RelaySuite) TestSlowBrokerGivesUpBeforeTheTransaction() {
	s.producer.hang = true
	relay := New(s.store, tx.NewMemory(), s.producer, "benefits.audit",
		WithProduceTimeout(20*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	start := time.Now()
	n, err := relay.RelayOnce(context.Background())
	s.Require().Error(err)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Contains(err.Error(), "did not acknowledge")
	s.Zero(n)
	s.Empty(s.store.published)
	s.Less(time.Since(start), time.Second)
}

func (s *RelaySuite) TestStoreFailure() {
	s.store.fetchErr = errors.New("connection reset")
	_, err := s.relay.RelayOnce(context.Background())
	s.Require().Error(err)
	s.Empty(s.producer.records)
}
