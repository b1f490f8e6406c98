package coordinator

import (
	"errors"
	"sync"
)

// DefaultMaxQueue is the default maximum number of pending requests.
const DefaultMaxQueue = 32

// ErrQueueFull is returned when attempting to enqueue to a full queue.
var ErrQueueFull = errors.New("request queue is full")

// requestQueue is a mutex-guarded FIFO of pending requests.
type requestQueue struct {
	mu      sync.Mutex
	entries []*Request
	maxSize int
}

// newRequestQueue creates a queue with the given maximum size.
// If maxSize is <= 0, DefaultMaxQueue is used.
func newRequestQueue(maxSize int) *requestQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxQueue
	}
	return &requestQueue{
		entries: make([]*Request, 0),
		maxSize: maxSize,
	}
}

// enqueue appends a request to the back of the queue.
// Returns ErrQueueFull when the queue is at capacity.
func (q *requestQueue) enqueue(req *Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		return ErrQueueFull
	}

	q.entries = append(q.entries, req)
	return nil
}

// dequeue removes and returns the request at the front of the queue.
func (q *requestQueue) dequeue() (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil, false
	}

	req := q.entries[0]
	q.entries = q.entries[1:]
	return req, true
}

// remove deletes the queued request with the given ID, preserving the order
// of the remaining entries.
func (q *requestQueue) remove(id string) (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, req := range q.entries {
		if req.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return req, true
		}
	}
	return nil, false
}

// length returns the current number of queued requests.
func (q *requestQueue) length() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// drain removes and returns all queued requests, leaving the queue empty.
func (q *requestQueue) drain() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}

	result := q.entries
	q.entries = make([]*Request, 0)
	return result
}
