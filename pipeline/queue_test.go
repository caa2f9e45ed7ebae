package pipeline

import (
	"sync"
	"testing"
	"time"
)

func TestWorkQueueFIFO(t *testing.T) {
	q := NewWorkQueue()
	q.Put("a")
	q.Put("b")
	q.PutSentinel()

	if it := q.Get(); it.URL != "a" || it.Sentinel {
		t.Fatalf("first item = %+v", it)
	}
	if it := q.Get(); it.URL != "b" {
		t.Fatalf("second item = %+v", it)
	}
	if it := q.Get(); !it.Sentinel {
		t.Fatalf("third item should be a sentinel, got %+v", it)
	}
	if q.Len() != 0 {
		t.Fatalf("queue length = %d, want 0", q.Len())
	}
}

func TestWorkQueueJoinWaitsForDone(t *testing.T) {
	q := NewWorkQueue()
	q.Join()

	q.Put("a")
	q.Put("b")

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	q.Get()
	q.Done()
	select {
	case <-joined:
		t.Fatal("Join returned before every item was acknowledged")
	case <-time.After(20 * time.Millisecond):
	}

	q.Get()
	q.Done()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join did not return after all items were acknowledged")
	}
}

func TestWorkQueueGetBlocksUntilPut(t *testing.T) {
	q := NewWorkQueue()
	got := make(chan Item, 1)
	go func() { got <- q.Get() }()

	time.Sleep(10 * time.Millisecond)
	q.Put("late")

	select {
	case it := <-got:
		if it.URL != "late" {
			t.Fatalf("got %+v", it)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up")
	}
}

func TestCounterConcurrentIncrements(t *testing.T) {
	var c Counter
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				c.Increment()
			}
		}()
	}
	wg.Wait()
	if c.Value() != 2000 {
		t.Fatalf("counter = %d, want 2000", c.Value())
	}
}
