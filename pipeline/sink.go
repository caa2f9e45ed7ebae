package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-harvest/metrics"
	"github.com/aluiziolira/go-harvest/models"
)

// Upserter accepts records produced by workers.
type Upserter interface {
	Upsert(ctx context.Context, record models.Record) error
}

// Sink fans each record out to every configured store. A single mutex
// serialises whole upserts so concurrent workers never interleave their
// read-modify-write cycles on the same file.
type Sink struct {
	mu      sync.Mutex
	schema  models.Schema
	stores  []Store
	metrics *metrics.Metrics
}

// NewSink returns a sink writing to stores in order. The first store's
// outcome is the one reported to metrics.
func NewSink(schema models.Schema, m *metrics.Metrics, stores ...Store) (*Sink, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	if len(stores) == 0 {
		return nil, fmt.Errorf("sink needs at least one store")
	}
	return &Sink{schema: schema, stores: stores, metrics: m}, nil
}

// Schema returns the layout records are written with.
func (s *Sink) Schema() models.Schema {
	return s.schema
}

// Upsert writes record to every store. A failing store does not prevent
// the others from being written; all failures are returned joined.
func (s *Sink) Upsert(ctx context.Context, record models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i, store := range s.stores {
		outcome, err := store.Upsert(ctx, record)
		if err != nil {
			slog.Error("store upsert failed",
				slog.String("store", store.Name()),
				slog.String("key", record.Get(s.schema.Key)),
				slog.Any("error", err),
			)
			errs = append(errs, err)
			if i == 0 {
				s.metrics.IncUpsert(metrics.OutcomeFailed)
			}
			continue
		}
		if i == 0 {
			s.metrics.IncUpsert(string(outcome))
		}
	}
	return errors.Join(errs...)
}

// Compact collapses duplicate keys in every store that supports it.
func (s *Sink) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, store := range s.stores {
		c, ok := store.(Compactor)
		if !ok {
			continue
		}
		before, after, err := c.Compact()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Info("compacted output",
			slog.String("store", store.Name()),
			slog.Int("rows_before", before),
			slog.Int("rows_after", after),
		)
	}
	return errors.Join(errs...)
}
