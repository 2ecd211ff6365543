package tasks

import (
	"context"
	"time"

	"github.com/platinummonkey/stager/pkg/observability"
)

// InstrumentedStore counts every operation of the wrapped store
type InstrumentedStore struct {
	Store
	backend string
	metrics *observability.Metrics
}

// Instrument wraps s. A nil metrics value makes the wrapper a pass-through.
func Instrument(s Store, backend string, metrics *observability.Metrics) *InstrumentedStore {
	return &InstrumentedStore{Store: s, backend: backend, metrics: metrics}
}

func (s *InstrumentedStore) Create(ctx context.Context, t *Task) error {
	err := s.Store.Create(ctx, t)
	s.metrics.RecordTaskStoreOp("create", s.backend, err)
	return err
}

func (s *InstrumentedStore) Update(ctx context.Context, t *Task) error {
	err := s.Store.Update(ctx, t)
	s.metrics.RecordTaskStoreOp("update", s.backend, err)
	return err
}

func (s *InstrumentedStore) Get(ctx context.Context, id string) (*Task, error) {
	t, err := s.Store.Get(ctx, id)
	s.metrics.RecordTaskStoreOp("get", s.backend, err)
	return t, err
}

func (s *InstrumentedStore) List(ctx context.Context, limit int) ([]*Task, error) {
	ts, err := s.Store.List(ctx, limit)
	s.metrics.RecordTaskStoreOp("list", s.backend, err)
	return ts, err
}

func (s *InstrumentedStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.Store.DeleteBefore(ctx, cutoff)
	s.metrics.RecordTaskStoreOp("delete_before", s.backend, err)
	return n, err
}
