package pipeline

import (
	"log/slog"
	"sync"
	"time"
)

// ProgressObserver receives the number of records emitted since the last
// report.
type ProgressObserver interface {
	Advance(delta int)
}

// TotalSetter is implemented by observers that want the URL count before
// the first report.
type TotalSetter interface {
	SetTotal(total int)
}

// LogObserver reports progress through slog. Total is the number of URLs
// in the run and is only used for display.
type LogObserver struct {
	Total int

	mu      sync.Mutex
	emitted int
}

func (o *LogObserver) Advance(delta int) {
	o.mu.Lock()
	o.emitted += delta
	done := o.emitted
	o.mu.Unlock()
	slog.Info("harvest progress", slog.Int("emitted", done), slog.Int("urls", o.Total))
}

// reporter polls a Counter on a ticker and forwards deltas to an observer.
type reporter struct {
	counter  *Counter
	observer ProgressObserver
	interval time.Duration

	last     int64
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startReporter(counter *Counter, observer ProgressObserver, interval time.Duration) *reporter {
	r := &reporter{
		counter:  counter,
		observer: observer,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if observer == nil || interval <= 0 {
		close(r.done)
		return r
	}
	go r.loop()
	return r
}

func (r *reporter) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.report()
		case <-r.stop:
			return
		}
	}
}

func (r *reporter) report() {
	current := r.counter.Value()
	if delta := current - r.last; delta > 0 {
		r.observer.Advance(int(delta))
		r.last = current
	}
}

// Stop ends polling and flushes a final report.
func (r *reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		<-r.done
		if r.observer != nil {
			r.report()
		}
	})
}
