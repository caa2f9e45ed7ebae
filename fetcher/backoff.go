package fetcher

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy is a backoff.BackOff producing base*2^n plus up to one base of
// jitter, capped at limit. Successive delays never decrease.
type retryPolicy struct {
	base   time.Duration
	limit  time.Duration
	jitter func() float64
	n      int
}

var _ backoff.BackOff = (*retryPolicy)(nil)

func newRetryPolicy(base, limit time.Duration, jitter func() float64) *retryPolicy {
	return &retryPolicy{base: base, limit: limit, jitter: jitter}
}

func (p *retryPolicy) NextBackOff() time.Duration {
	d := p.delay(p.n)
	p.n++
	return d
}

func (p *retryPolicy) Reset() {
	p.n = 0
}

func (p *retryPolicy) delay(n int) time.Duration {
	if n > 30 {
		n = 30
	}
	d := p.base*time.Duration(1<<n) + time.Duration(p.jitter()*float64(p.base))
	if p.limit > 0 && d > p.limit {
		d = p.limit
	}
	return d
}
