// Document store decorator recording metrics and logs per round trip
package server

import (
	"context"
	"sync"
	"time"

	"github.com/nainya/bookquery/internal/logger"
	"github.com/nainya/bookquery/internal/metrics"
	"github.com/nainya/bookquery/pkg/store"
)

// InstrumentedStore wraps a DocumentStore and observes every call.
type InstrumentedStore struct {
	inner   store.DocumentStore
	metrics *metrics.Metrics
	log     *logger.Logger
}

var _ store.DocumentStore = (*InstrumentedStore)(nil)

func NewInstrumentedStore(inner store.DocumentStore, m *metrics.Metrics, log *logger.Logger) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, metrics: m, log: log}
}

func (s *InstrumentedStore) observe(op string, start time.Time, docs int64, err error) {
	duration := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDbOperation(op, status, duration)
	s.log.LogDbOperation(op, duration, docs, err)
}

func (s *InstrumentedStore) Find(ctx context.Context, req store.FindRequest) (store.Cursor, error) {
	start := time.Now()
	cur, err := s.inner.Find(ctx, req)
	if err != nil {
		s.observe("find", start, 0, err)
		return nil, err
	}
	return s.countingCursor("find", start, cur), nil
}

func (s *InstrumentedStore) Aggregate(ctx context.Context, req store.AggregateRequest) (store.Cursor, error) {
	start := time.Now()
	cur, err := s.inner.Aggregate(ctx, req)
	if err != nil {
		s.observe("aggregate", start, 0, err)
		return nil, err
	}
	return s.countingCursor("aggregate", start, cur), nil
}

func (s *InstrumentedStore) UpdateOne(ctx context.Context, req store.UpdateRequest) (int64, error) {
	start := time.Now()
	n, err := s.inner.UpdateOne(ctx, req)
	s.observe("updateOne", start, n, err)
	if err == nil {
		s.metrics.RecordDocumentsModified("updateOne", n)
	}
	return n, err
}

func (s *InstrumentedStore) DeleteOne(ctx context.Context, req store.DeleteRequest) (int64, error) {
	start := time.Now()
	n, err := s.inner.DeleteOne(ctx, req)
	s.observe("deleteOne", start, n, err)
	if err == nil {
		s.metrics.RecordDocumentsModified("deleteOne", n)
	}
	return n, err
}

func (s *InstrumentedStore) CreateIndex(ctx context.Context, req store.IndexRequest) (store.IndexAck, error) {
	start := time.Now()
	ack, err := s.inner.CreateIndex(ctx, req)
	s.observe("createIndex", start, 0, err)
	return ack, err
}

func (s *InstrumentedStore) Explain(ctx context.Context, req store.FindRequest) (*store.ExplainReport, error) {
	start := time.Now()
	report, err := s.inner.Explain(ctx, req)
	var docs int64
	if report != nil {
		docs = report.DocsReturned
	}
	s.observe("explain", start, docs, err)
	return report, err
}

// Count forwards to the wrapped store when it can count its collection.
func (s *InstrumentedStore) Count(ctx context.Context) (int64, error) {
	counter, ok := s.inner.(interface {
		Count(context.Context) (int64, error)
	})
	if !ok {
		return 0, errCountUnsupported
	}
	return counter.Count(ctx)
}

// countingCursor reports the operation once the caller closes the cursor,
// so the duration covers iteration.
func (s *InstrumentedStore) countingCursor(op string, start time.Time, cur store.Cursor) store.Cursor {
	return &countingCursor{Cursor: cur, done: func(n int64, err error) {
		s.observe(op, start, n, err)
		s.metrics.RecordDocumentsReturned(op, n)
	}}
}

type countingCursor struct {
	store.Cursor
	n    int64
	once sync.Once
	done func(int64, error)
}

func (c *countingCursor) Next() bool {
	if c.Cursor.Next() {
		c.n++
		return true
	}
	return false
}

func (c *countingCursor) Close() error {
	err := c.Cursor.Close()
	c.once.Do(func() {
		iterErr := c.Cursor.Err()
		if iterErr == nil {
			iterErr = err
		}
		c.done(c.n, iterErr)
	})
	return err
}
