package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/go-harvest/config"
	"github.com/aluiziolira/go-harvest/models"
)

type recordingSink struct {
	mu      sync.Mutex
	records []models.Record
	fail    map[string]bool
}

func (rs *recordingSink) Upsert(_ context.Context, record models.Record) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.fail[record.Get("sku")] {
		return &PersistenceError{Path: "memory", Err: errors.New("disk full")}
	}
	rs.records = append(rs.records, record.Clone())
	return nil
}

func (rs *recordingSink) all() []models.Record {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]models.Record(nil), rs.records...)
}

type collectingObserver struct {
	mu       sync.Mutex
	total    int
	expected int
}

func (co *collectingObserver) SetTotal(total int) {
	co.mu.Lock()
	co.expected = total
	co.mu.Unlock()
}

func (co *collectingObserver) Advance(delta int) {
	co.mu.Lock()
	co.total += delta
	co.mu.Unlock()
}

func (co *collectingObserver) Total() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.total
}

func poolConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MinDelay = 0
	cfg.MaxDelay = 0
	cfg.ProgressInterval = 5 * time.Millisecond
	cfg.SourceName = "shop"
	return cfg
}

func urlList(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://shop.test/p/%d", i)
	}
	return urls
}

func skuRecord(_ context.Context, url string) (models.Record, error) {
	return models.Record{"sku": url, "url": url}, nil
}

func TestPoolDrainsEveryItemOnce(t *testing.T) {
	for _, n := range []int{0, 1, 100} {
		for _, w := range []int{1, 3} {
			t.Run(fmt.Sprintf("n=%d/w=%d", n, w), func(t *testing.T) {
				cfg := poolConfig()
				cfg.Workers = w

				var mu sync.Mutex
				seen := make(map[string]int)
				fn := func(ctx context.Context, url string) (models.Record, error) {
					mu.Lock()
					seen[url]++
					mu.Unlock()
					return skuRecord(ctx, url)
				}

				sink := &recordingSink{}
				observer := &collectingObserver{}
				result, err := NewPool(cfg, sink, WithObserver(observer)).Run(context.Background(), urlList(n), fn)
				if err != nil {
					t.Fatalf("run: %v", err)
				}

				if result.Dequeued != n {
					t.Fatalf("dequeued = %d, want %d", result.Dequeued, n)
				}
				if result.Sentinels != w {
					t.Fatalf("sentinels = %d, want %d", result.Sentinels, w)
				}
				if result.Emitted != int64(n) {
					t.Fatalf("emitted = %d, want %d", result.Emitted, n)
				}
				if len(sink.all()) != n {
					t.Fatalf("sink received %d records, want %d", len(sink.all()), n)
				}
				for url, count := range seen {
					if count != 1 {
						t.Fatalf("%s processed %d times", url, count)
					}
				}
				if observer.expected != n {
					t.Fatalf("observer expected %d urls, want %d", observer.expected, n)
				}
				if observer.Total() != n {
					t.Fatalf("observer saw %d, want %d", observer.Total(), n)
				}
			})
		}
	}
}

func TestPoolRespectsHardWorkerCap(t *testing.T) {
	cfg := poolConfig()
	cfg.Workers = 10
	cfg.HardWorkerCap = 3

	var active, peak int64
	fn := func(ctx context.Context, url string) (models.Record, error) {
		now := atomic.AddInt64(&active, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if now <= old || atomic.CompareAndSwapInt64(&peak, old, now) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return skuRecord(ctx, url)
	}

	result, err := NewPool(cfg, &recordingSink{}).Run(context.Background(), urlList(30), fn)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Workers != 3 {
		t.Fatalf("workers = %d, want 3", result.Workers)
	}
	if got := atomic.LoadInt64(&peak); got > 3 {
		t.Fatalf("observed %d concurrent workers, cap is 3", got)
	}
}

func TestPoolIsolatesAdapterFailures(t *testing.T) {
	cfg := poolConfig()
	urls := []string{"ok-1", "panic", "error", "empty", "ok-2"}
	fn := func(ctx context.Context, url string) (models.Record, error) {
		switch url {
		case "panic":
			panic("selector exploded")
		case "error":
			return nil, errors.New("bad markup")
		case "empty":
			return nil, nil
		}
		return skuRecord(ctx, url)
	}

	sink := &recordingSink{}
	result, err := NewPool(cfg, sink).Run(context.Background(), urls, fn)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Emitted != 2 || result.Failed != 2 || result.Empty != 1 {
		t.Fatalf("emitted/failed/empty = %d/%d/%d, want 2/2/1", result.Emitted, result.Failed, result.Empty)
	}
	if result.Dequeued != len(urls) {
		t.Fatalf("dequeued = %d, want %d", result.Dequeued, len(urls))
	}
}

func TestInvokeWrapsPanics(t *testing.T) {
	_, err := invoke(context.Background(), "u", func(context.Context, string) (models.Record, error) {
		panic("boom")
	})
	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) || !adapterErr.Panic {
		t.Fatalf("expected panic AdapterError, got %v", err)
	}
}

func TestPoolSetsSourceWhenMissing(t *testing.T) {
	cfg := poolConfig()
	fn := func(_ context.Context, url string) (models.Record, error) {
		if url == "own" {
			return models.Record{"sku": url, "source": "feed"}, nil
		}
		return models.Record{"sku": url}, nil
	}

	sink := &recordingSink{}
	if _, err := NewPool(cfg, sink, WithCounter(&Counter{})).Run(context.Background(), []string{"own", "bare"}, fn); err != nil {
		t.Fatalf("run: %v", err)
	}

	sources := map[string]string{}
	for _, rec := range sink.all() {
		sources[rec.Get("sku")] = rec.Get("source")
	}
	if sources["own"] != "feed" || sources["bare"] != "shop" {
		t.Fatalf("unexpected sources: %v", sources)
	}
}

func TestPoolCountsOnlyPersistedRecords(t *testing.T) {
	cfg := poolConfig()
	sink := &recordingSink{fail: map[string]bool{"b": true}}
	counter := &Counter{}

	result, err := NewPool(cfg, sink, WithCounter(counter)).Run(context.Background(), []string{"a", "b", "c"}, skuRecord)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if counter.Value() != 2 || result.Emitted != 2 {
		t.Fatalf("counter = %d emitted = %d, want 2", counter.Value(), result.Emitted)
	}
	if result.Failed != 1 || len(result.FailedURLs) != 1 || result.FailedURLs[0] != "b" {
		t.Fatalf("failed = %d %v, want [b]", result.Failed, result.FailedURLs)
	}
}

func TestPoolSleepsBeforeEachItem(t *testing.T) {
	cfg := poolConfig()
	cfg.MinDelay = time.Second
	cfg.MaxDelay = 3 * time.Second

	var mu sync.Mutex
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}

	if _, err := NewPool(cfg, &recordingSink{}, WithPoolSleep(sleep)).Run(context.Background(), urlList(5), skuRecord); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(delays) != 5 {
		t.Fatalf("slept %d times, want 5", len(delays))
	}
	for _, d := range delays {
		if d < cfg.MinDelay || d > cfg.MaxDelay {
			t.Fatalf("delay %s outside [%s, %s]", d, cfg.MinDelay, cfg.MaxDelay)
		}
	}
}

func TestPoolSkipsAfterCancellation(t *testing.T) {
	cfg := poolConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int64
	fn := func(ctx context.Context, url string) (models.Record, error) {
		atomic.AddInt64(&calls, 1)
		return skuRecord(ctx, url)
	}

	result, err := NewPool(cfg, &recordingSink{}).Run(ctx, urlList(10), fn)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if atomic.LoadInt64(&calls) != 0 {
		t.Fatalf("process func called %d times after cancellation", calls)
	}
	if result.Skipped != 10 || result.Sentinels != result.Workers {
		t.Fatalf("skipped = %d sentinels = %d", result.Skipped, result.Sentinels)
	}
}

func TestPoolRequiresProcessFunc(t *testing.T) {
	if _, err := NewPool(poolConfig(), &recordingSink{}).Run(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil process func")
	}
}

func TestPoolPoliteDelayWithinBounds(t *testing.T) {
	cfg := poolConfig()
	cfg.MinDelay = time.Second
	cfg.MaxDelay = 3 * time.Second

	var mu sync.Mutex
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}
	p := NewPool(cfg, &recordingSink{}, WithPoolSleep(sleep))
	p.randFloat = func() float64 { return 0.5 }

	if _, err := p.Run(context.Background(), urlList(3), skuRecord); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(delays) != 3 {
		t.Fatalf("sleeps = %d, want 3", len(delays))
	}
	for _, d := range delays {
		if d != 2*time.Second {
			t.Errorf("delay = %s, want 2s", d)
		}
	}
}
