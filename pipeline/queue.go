package pipeline

import "sync"

// Item is a unit of work. A sentinel item tells the receiving worker to exit.
type Item struct {
	URL      string
	Sentinel bool
}

// WorkQueue is an unbounded FIFO with task acknowledgement. Join blocks
// until every item put so far has been acknowledged with Done.
type WorkQueue struct {
	mu         sync.Mutex
	notEmpty   *sync.Cond
	allDone    *sync.Cond
	items      []Item
	unfinished int
}

// NewWorkQueue returns an empty queue.
func NewWorkQueue() *WorkQueue {
	q := &WorkQueue{}
	q.notEmpty = sync.NewCond(&q.mu)
	q.allDone = sync.NewCond(&q.mu)
	return q
}

// Put enqueues a URL.
func (q *WorkQueue) Put(url string) {
	q.push(Item{URL: url})
}

// PutSentinel enqueues a stop marker for one worker.
func (q *WorkQueue) PutSentinel() {
	q.push(Item{Sentinel: true})
}

func (q *WorkQueue) push(it Item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.unfinished++
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// Get blocks until an item is available and removes it from the queue.
func (q *WorkQueue) Get() Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.notEmpty.Wait()
	}
	it := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	return it
}

// Done acknowledges one item obtained from Get.
func (q *WorkQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished <= 0 {
		panic("pipeline: Done called more times than items were put")
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.allDone.Broadcast()
	}
}

// Join blocks until every put item has been acknowledged.
func (q *WorkQueue) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.unfinished > 0 {
		q.allDone.Wait()
	}
}

// Len returns the number of items waiting to be taken.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
