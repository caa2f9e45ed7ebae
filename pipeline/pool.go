package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-harvest/config"
	"github.com/aluiziolira/go-harvest/fetcher"
	"github.com/aluiziolira/go-harvest/metrics"
	"github.com/aluiziolira/go-harvest/models"
)

// ProcessFunc turns one URL into a record. A nil record with a nil error
// means the URL produced nothing.
type ProcessFunc func(ctx context.Context, url string) (models.Record, error)

// WorkerState is the lifecycle stage of a pool worker.
type WorkerState string

const (
	StateIdle       WorkerState = "idle"
	StateFetching   WorkerState = "fetching"
	StateProcessing WorkerState = "processing"
	StatePersisting WorkerState = "persisting"
	StateStopped    WorkerState = "stopped"
)

// Pool drains a URL list through a fixed number of workers.
type Pool struct {
	cfg      *config.Config
	sink     Upserter
	observer ProgressObserver
	metrics  *metrics.Metrics
	counter  *Counter

	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// PoolOption customises a Pool.
type PoolOption func(*Pool)

// WithObserver sets the progress observer.
func WithObserver(o ProgressObserver) PoolOption {
	return func(p *Pool) { p.observer = o }
}

// WithPoolMetrics attaches Prometheus collectors.
func WithPoolMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// WithCounter shares an externally owned progress counter.
func WithCounter(c *Counter) PoolOption {
	return func(p *Pool) { p.counter = c }
}

// WithPoolSleep replaces the politeness sleep.
func WithPoolSleep(fn func(ctx context.Context, d time.Duration) error) PoolOption {
	return func(p *Pool) { p.sleep = fn }
}

// NewPool returns a pool writing emitted records to sink.
func NewPool(cfg *config.Config, sink Upserter, opts ...PoolOption) *Pool {
	p := &Pool{
		cfg:       cfg,
		sink:      sink,
		counter:   &Counter{},
		sleep:     fetcher.Sleep,
		randFloat: rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Counter returns the pool's progress counter.
func (p *Pool) Counter() *Counter {
	return p.counter
}

type runStats struct {
	mu         sync.Mutex
	dequeued   int
	sentinels  int
	empty      int
	failed     int
	skipped    int
	failedURLs []string
}

func (s *runStats) add(fn func(*runStats)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

// Run processes every URL exactly once with fn and returns once all items
// and all stop sentinels have been acknowledged. Per-URL failures are
// logged and counted; they never abort the run. After ctx is cancelled the
// remaining items are acknowledged without processing and ctx.Err() is
// returned alongside the result.
func (p *Pool) Run(ctx context.Context, urls []string, fn ProcessFunc) (*models.RunResult, error) {
	if fn == nil {
		return nil, fmt.Errorf("process func is required")
	}
	if p.sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	workers := p.cfg.EffectiveWorkers(p.cfg.Workers)
	result := &models.RunResult{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		Workers:   workers,
		Enqueued:  len(urls),
	}
	slog.Info("starting worker pool",
		slog.String("run_id", result.RunID),
		slog.Int("workers", workers),
		slog.Int("urls", len(urls)),
	)

	queue := NewWorkQueue()
	for _, u := range urls {
		queue.Put(u)
	}
	p.metrics.SetQueueDepth(queue.Len())

	observer := p.observer
	if observer == nil {
		observer = &LogObserver{Total: len(urls)}
	}
	if ts, ok := observer.(TotalSetter); ok {
		ts.SetTotal(len(urls))
	}
	progress := startReporter(p.counter, observer, p.cfg.ProgressInterval)
	start := p.counter.Value()

	stats := &runStats{}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id, queue, fn, stats)
		}(i)
	}

	queue.Join()
	for i := 0; i < workers; i++ {
		queue.PutSentinel()
	}
	wg.Wait()
	queue.Join()
	progress.Stop()

	result.EndTime = time.Now()
	result.Emitted = p.counter.Value() - start
	result.Dequeued = stats.dequeued
	result.Sentinels = stats.sentinels
	result.Empty = stats.empty
	result.Failed = stats.failed
	result.Skipped = stats.skipped
	result.FailedURLs = stats.failedURLs

	slog.Info("worker pool finished",
		slog.String("run_id", result.RunID),
		slog.Int64("emitted", result.Emitted),
		slog.Int("failed", result.Failed),
		slog.Int("empty", result.Empty),
		slog.Int("skipped", result.Skipped),
		slog.Duration("duration", result.Duration()),
	)
	return result, ctx.Err()
}

func (p *Pool) worker(ctx context.Context, id int, queue *WorkQueue, fn ProcessFunc, stats *runStats) {
	setState := func(state WorkerState, url string) {
		slog.Debug("worker state", slog.Int("worker", id), slog.String("state", string(state)), slog.String("url", url))
	}

	for {
		setState(StateIdle, "")
		item := queue.Get()
		p.metrics.SetQueueDepth(queue.Len())
		if item.Sentinel {
			stats.add(func(s *runStats) { s.sentinels++ })
			setState(StateStopped, "")
			queue.Done()
			return
		}
		stats.add(func(s *runStats) { s.dequeued++ })
		p.process(ctx, item.URL, fn, stats, setState)
		queue.Done()
	}
}

func (p *Pool) process(ctx context.Context, url string, fn ProcessFunc, stats *runStats, setState func(WorkerState, string)) {
	if ctx.Err() != nil {
		stats.add(func(s *runStats) { s.skipped++ })
		return
	}

	setState(StateFetching, url)
	if err := p.sleep(ctx, p.politeDelay()); err != nil {
		stats.add(func(s *runStats) { s.skipped++ })
		return
	}

	setState(StateProcessing, url)
	record, err := invoke(ctx, url, fn)
	if err != nil {
		p.metrics.IncAdapterFailure()
		slog.Error("processing failed", slog.String("url", url), slog.Any("error", err))
		stats.add(func(s *runStats) {
			s.failed++
			s.failedURLs = append(s.failedURLs, url)
		})
		return
	}
	if record == nil {
		stats.add(func(s *runStats) { s.empty++ })
		return
	}

	if !record.Has("source") {
		record["source"] = p.cfg.SourceName
	}

	setState(StatePersisting, url)
	if err := p.sink.Upsert(ctx, record); err != nil {
		slog.Error("persisting record failed", slog.String("url", url), slog.Any("error", err))
		stats.add(func(s *runStats) {
			s.failed++
			s.failedURLs = append(s.failedURLs, url)
		})
		return
	}
	p.counter.Increment()
}

// invoke calls fn, converting a panic into an *AdapterError.
func invoke(ctx context.Context, url string, fn ProcessFunc) (record models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = nil
			err = &AdapterError{URL: url, Err: fmt.Errorf("%v", r), Panic: true}
		}
	}()
	record, err = fn(ctx, url)
	if err != nil {
		return nil, &AdapterError{URL: url, Err: err}
	}
	return record, nil
}

func (p *Pool) politeDelay() time.Duration {
	return fetcher.Uniform(p.cfg.MinDelay, p.cfg.MaxDelay, p.randFloat)
}
