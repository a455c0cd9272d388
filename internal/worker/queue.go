package worker

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/cuongbtq/schedulex/internal/domain"
)

// ErrQueueClosed is returned by Pop once the queue has been closed
var ErrQueueClosed = errors.New("ready queue closed")

// ReadyQueue holds due jobs until a worker takes them. Higher priority pops
// first; equal priorities pop in push order. A job id is held at most once
// at a time.
type ReadyQueue struct {
	mu     sync.Mutex
	items  jobHeap
	queued map[string]struct{}
	seq    uint64
	closed bool

	notify chan struct{}
	done   chan struct{}
}

// NewReadyQueue creates an empty queue
func NewReadyQueue() *ReadyQueue {
	return &ReadyQueue{
		queued: make(map[string]struct{}),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push adds a job without blocking. It returns false when the job is
// already queued or the queue is closed.
func (q *ReadyQueue) Push(job domain.Job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if _, dup := q.queued[job.JobID]; dup {
		q.mu.Unlock()
		return false
	}

	q.seq++
	heap.Push(&q.items, &queueItem{job: job, seq: q.seq})
	q.queued[job.JobID] = struct{}{}
	q.mu.Unlock()

	q.signal()
	return true
}

// Pop blocks until a job is available, ctx is done or the queue is closed
func (q *ReadyQueue) Pop(ctx context.Context) (domain.Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return domain.Job{}, ErrQueueClosed
		}
		if q.items.Len() > 0 {
			item := heap.Pop(&q.items).(*queueItem)
			delete(q.queued, item.job.JobID)
			more := q.items.Len() > 0
			q.mu.Unlock()

			// Pass the wake-up on so another waiter sees the remaining items
			if more {
				q.signal()
			}
			return item.job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Job{}, ctx.Err()
		case <-q.done:
			return domain.Job{}, ErrQueueClosed
		case <-q.notify:
		}
	}
}

// Len returns the number of queued jobs
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close wakes every waiter and rejects further pushes. Jobs still queued
// are dropped; they remain PENDING in the store.
func (q *ReadyQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *ReadyQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type queueItem struct {
	job domain.Job
	seq uint64
}

// jobHeap implements heap.Interface ordered by priority DESC, seq ASC
type jobHeap []*queueItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
