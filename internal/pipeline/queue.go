package pipeline

import (
	"context"
	"sync"

	"github.com/couchcryptid/location-picker/internal/domain"
)

// Queue is a bounded in-memory buffer of selection events. Offer never
// blocks, so it is safe to call from a widget's event goroutine.
type Queue struct {
	mu      sync.Mutex
	events  []domain.SelectionEvent
	limit   int
	notify  chan struct{}
	dropped func()
}

// NewQueue creates a queue holding at most capacity events. onDrop, if set,
// runs for every event rejected because the queue is full.
func NewQueue(capacity int, onDrop func()) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		limit:   capacity,
		notify:  make(chan struct{}, 1),
		dropped: onDrop,
	}
}

// Offer appends ev and reports whether it was accepted.
func (q *Queue) Offer(ev domain.SelectionEvent) bool {
	q.mu.Lock()
	if len(q.events) >= q.limit {
		q.mu.Unlock()
		if q.dropped != nil {
			q.dropped()
		}
		return false
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// ExtractBatch waits until at least one event is buffered and returns up to
// batchSize of them in arrival order.
func (q *Queue) ExtractBatch(ctx context.Context, batchSize int) ([]domain.SelectionEvent, error) {
	for {
		if batch := q.take(batchSize); len(batch) > 0 {
			return batch, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) take(n int) []domain.SelectionEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n > len(q.events) {
		n = len(q.events)
	}
	if n == 0 {
		return nil
	}
	batch := make([]domain.SelectionEvent, n)
	copy(batch, q.events)
	q.events = append(q.events[:0], q.events[n:]...)
	return batch
}
