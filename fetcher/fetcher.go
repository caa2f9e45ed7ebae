// Package fetcher retrieves raw documents with politeness delays, bounded
// exponential retry and an optional per-category response cache.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aluiziolira/go-harvest/config"
	"github.com/aluiziolira/go-harvest/metrics"
	"github.com/aluiziolira/go-harvest/models"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Fetcher is the caching, retrying document fetcher.
type Fetcher struct {
	cfg       *config.Config
	transport Transport
	cache     *Cache
	metrics   *metrics.Metrics

	sleep     SleepFunc
	newTimer  func() backoff.Timer
	randFloat func() float64
	randIntn  func(int) int
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithTransport replaces the network transport.
func WithTransport(t Transport) Option {
	return func(f *Fetcher) { f.transport = t }
}

// WithCache replaces the response cache.
func WithCache(c *Cache) Option {
	return func(f *Fetcher) { f.cache = c }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithSleep replaces the politeness sleep.
func WithSleep(fn SleepFunc) Option {
	return func(f *Fetcher) { f.sleep = fn }
}

// WithTimer replaces the timer used between retries.
func WithTimer(fn func() backoff.Timer) Option {
	return func(f *Fetcher) { f.newTimer = fn }
}

// WithRand replaces the random sources used for jitter and header rotation.
func WithRand(floatFn func() float64, intnFn func(int) int) Option {
	return func(f *Fetcher) {
		f.randFloat = floatFn
		f.randIntn = intnFn
	}
}

// New builds a Fetcher from cfg. Without WithTransport it fetches directly,
// or through the remote renderer when that is enabled.
func New(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Fetcher{
		cfg:       cfg,
		sleep:     Sleep,
		randFloat: rand.Float64,
		randIntn:  rand.IntN,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.transport == nil {
		var t Transport = NewCollyTransport(cfg.Timeout)
		if cfg.RemoteRendererEnabled() {
			t = NewRendererTransport(cfg.RendererURL, cfg.RendererKey, t)
		}
		f.transport = t
	}
	if f.cache == nil {
		cache, err := NewCache(cfg.CacheDir, cfg.MemoryCacheSize, f.metrics)
		if err != nil {
			return nil, err
		}
		f.cache = cache
	}
	return f, nil
}

// Fetch returns the body for req. A cached entry is returned without any
// network activity; otherwise up to MaxRetries attempts are made and the
// last failure is reported as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, req models.FetchRequest) (string, error) {
	key := req.CacheKey()
	cacheable := f.cfg.CachesCategory(req.Category)
	if cacheable {
		if body, ok := f.cache.Get(req.Category, key); ok {
			slog.Debug("serving cached response",
				slog.String("url", key),
				slog.String("category", string(req.Category)),
			)
			return body, nil
		}
	}

	headers := req.Headers
	if len(headers) == 0 {
		headers = BrowserHeaders(f.randIntn)
	}

	maxAttempts := f.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	policy := newRetryPolicy(f.cfg.BackoffBase, f.cfg.RetryBackoffMax, f.randFloat)
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxAttempts-1)), ctx)

	var (
		body     string
		attempts int
	)
	operation := func() error {
		if err := f.sleep(ctx, f.politeDelay()); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		f.metrics.IncRequest(string(req.Category))
		start := time.Now()
		result, err := f.transport.Do(ctx, req, headers)
		f.metrics.ObserveDuration(time.Since(start))
		if err != nil {
			f.metrics.IncError(errorTypeLabel(err))
			slog.Warn("fetch attempt failed",
				slog.String("url", key),
				slog.Int("attempt", attempts),
				slog.Int("max_attempts", maxAttempts),
				slog.Any("error", err),
			)
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		body = result
		return nil
	}
	notify := func(err error, next time.Duration) {
		f.metrics.IncRetries()
		slog.Info("backing off before retry",
			slog.String("url", key),
			slog.Duration("delay", next),
		)
	}

	var timer backoff.Timer
	if f.newTimer != nil {
		timer = f.newTimer()
	}
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, timer); err != nil {
		return "", &FetchError{URL: key, Attempts: attempts, Err: err}
	}

	if cacheable {
		if err := f.cache.Put(req.Category, key, body); err != nil {
			slog.Warn("cache write failed", slog.String("url", key), slog.Any("error", err))
		}
	}
	return body, nil
}

// Cache exposes the response cache.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

func (f *Fetcher) politeDelay() time.Duration {
	return Uniform(f.cfg.MinDelay, f.cfg.MaxDelay, f.randFloat)
}

// Uniform returns a duration in [lo, hi] using rnd as the source of [0,1).
func Uniform(lo, hi time.Duration, rnd func() float64) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rnd()*float64(hi-lo))
}

// Sleep blocks for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsFetchError reports whether err carries a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
