// Package coordinator enforces single-flight admission over document
// transformation requests: at most one request is processing at a time,
// later ones queue FIFO behind it.
package coordinator

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/log"
)

// Status is the lifecycle state of a request.
type Status string

const (
	// StatusPending means the request is queued and has not started.
	StatusPending Status = "pending"
	// StatusProcessing means the request owns the session lane.
	StatusProcessing Status = "processing"
	// StatusCompleted means the tool replied and the marker was rewritten.
	StatusCompleted Status = "completed"
	// StatusFailed means the invocation failed; the failure was rendered
	// in the buffer when the marker was still locatable.
	StatusFailed Status = "failed"
	// StatusOrphaned means the marker could no longer be located, so the
	// payload was archived instead of written to the buffer.
	StatusOrphaned Status = "orphaned"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusOrphaned:
		return true
	}
	return false
}

// Request is one caller-issued unit of work. Once dequeued into processing
// it is owned by exactly one invocation and never re-enters the queue.
type Request struct {
	ID         string
	SessionKey string
	Prompt     string
	Selection  string
	FilePath   string
	CreatedAt  time.Time
	Status     Status
	Result     string
	Err        error
}

// FinishedFunc receives a snapshot of every request that reaches a terminal
// state. It is the sole notification channel out of the coordinator.
type FinishedFunc func(Request)

// ErrNoActive is returned by terminal transitions when nothing is processing.
var ErrNoActive = errors.New("no active request")

// Coordinator holds one optional active request plus an ordered queue of
// pending ones. It never blocks; callers drive it from their own flow.
type Coordinator struct {
	mu         sync.Mutex
	queue      *requestQueue
	active     *Request
	logger     *log.Logger
	onFinished FinishedFunc
}

// New creates a coordinator. maxQueue <= 0 uses DefaultMaxQueue. logger may
// be nil to discard. onFinished may be nil when completion routing is wired
// later via SetFinishedFunc.
func New(maxQueue int, logger *log.Logger, onFinished FinishedFunc) *Coordinator {
	return &Coordinator{
		queue:      newRequestQueue(maxQueue),
		logger:     logger,
		onFinished: onFinished,
	}
}

// SetFinishedFunc registers the completion callback.
func (c *Coordinator) SetFinishedFunc(fn FinishedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFinished = fn
}

// CreateRequest allocates a pending request at the tail of the queue and
// returns a snapshot of it. It does not start work. An empty id draws a
// fresh UUID; callers that must reference the request before it becomes
// visible to the queue (marker injection) pass their own.
func (c *Coordinator) CreateRequest(id, sessionKey, prompt, selection, filePath string) (Request, error) {
	if id == "" {
		id = uuid.NewString()
	}
	req := &Request{
		ID:         id,
		SessionKey: sessionKey,
		Prompt:     prompt,
		Selection:  selection,
		FilePath:   filePath,
		CreatedAt:  time.Now(),
		Status:     StatusPending,
	}

	if err := c.queue.enqueue(req); err != nil {
		return Request{}, err
	}

	c.logger.Debug(log.CatQueue, "request queued", "id", req.ID, "session", sessionKey, "pending", c.queue.length())
	return *req, nil
}

// NextRequest pops the head of the queue and marks it processing. It
// returns nil while another request is active (admission denied) or when
// the queue is empty.
func (c *Coordinator) NextRequest() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil
	}

	req, ok := c.queue.dequeue()
	if !ok {
		return nil
	}

	req.Status = StatusProcessing
	c.active = req
	c.logger.Debug(log.CatQueue, "request activated", "id", req.ID, "session", req.SessionKey)

	snapshot := *req
	return &snapshot
}

// Complete transitions the active request to completed.
func (c *Coordinator) Complete(result string) error {
	return c.finish(StatusCompleted, result, nil)
}

// Fail transitions the active request to failed.
func (c *Coordinator) Fail(err error) error {
	return c.finish(StatusFailed, "", err)
}

// Orphan transitions the active request to orphaned, retaining whatever
// result or error the invocation produced so the payload is not lost.
func (c *Coordinator) Orphan(result string, err error) error {
	return c.finish(StatusOrphaned, result, err)
}

// finish applies a terminal transition, clears the active slot, and invokes
// the completion callback outside the lock.
func (c *Coordinator) finish(status Status, result string, err error) error {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return ErrNoActive
	}

	c.active.Status = status
	c.active.Result = result
	c.active.Err = err
	snapshot := *c.active
	c.active = nil
	fn := c.onFinished
	c.mu.Unlock()

	c.logger.Debug(log.CatQueue, "request finished", "id", snapshot.ID, "status", status)
	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// CancelPending removes a still-queued request. It returns false for the
// active request or an unknown ID: an active request can only be stopped
// through the invocation's abort.
func (c *Coordinator) CancelPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && c.active.ID == id {
		return false
	}

	_, ok := c.queue.remove(id)
	if ok {
		c.logger.Debug(log.CatQueue, "pending request cancelled", "id", id)
	}
	return ok
}

// DrainPending removes every queued request and returns their snapshots in
// order. The active request, if any, is untouched. Used at shutdown so the
// caller can roll back the markers of work that will never run.
func (c *Coordinator) DrainPending() []Request {
	drained := c.queue.drain()
	out := make([]Request, 0, len(drained))
	for _, req := range drained {
		out = append(out, *req)
	}
	if len(out) > 0 {
		c.logger.Debug(log.CatQueue, "pending requests drained", "count", len(out))
	}
	return out
}

// Active returns a snapshot of the processing request, if any.
func (c *Coordinator) Active() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return Request{}, false
	}
	return *c.active, true
}

// Pending returns the number of queued requests.
func (c *Coordinator) Pending() int {
	return c.queue.length()
}
