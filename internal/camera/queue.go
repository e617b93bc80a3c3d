package camera

import (
	"context"
	"sync"
)

// Queue is a bounded frame queue that never blocks producers: when it is
// full the oldest frame is discarded to make room.
type Queue struct {
	mu    sync.Mutex // serializes Put
	ch    chan []byte
	drops func()
}

// NewQueue creates a queue holding up to size frames. onDrop, if non-nil,
// is called for every discarded frame.
func NewQueue(size int, onDrop func()) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		ch:    make(chan []byte, size),
		drops: onDrop,
	}
}

// Put enqueues frame, discarding the oldest queued frames if needed.
// It reports whether anything was discarded.
func (q *Queue) Put(frame []byte) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		select {
		case q.ch <- frame:
			return dropped
		default:
		}

		select {
		case <-q.ch:
			dropped = true
			if q.drops != nil {
				q.drops()
			}
		default:
		}
	}
}

// Get blocks until a frame is available or ctx is done.
func (q *Queue) Get(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-q.ch:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
