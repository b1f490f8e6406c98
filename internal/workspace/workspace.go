// Package workspace glues the orchestration core together: it composes
// prompts, injects markers, drives the single-flight queue, and reconciles
// each finished request back into the buffer it came from — or archives it
// as an orphan when the marker has been lost.
package workspace

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/buffer"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/coordinator"
	"github.com/quillhq/quill/internal/invoke"
	"github.com/quillhq/quill/internal/log"
	"github.com/quillhq/quill/internal/marker"
	"github.com/quillhq/quill/internal/pubsub"
)

// binding ties an outstanding request to the buffer and marker it must be
// reconciled against.
type binding struct {
	buf buffer.Buffer
	rec *marker.Record
}

// Workspace owns one coordinator, one session registry, and one marker
// reconciler. Create it once at application start and thread it through.
type Workspace struct {
	cfg      config.Config
	log      *log.Logger
	registry *invoke.Registry
	coord    *coordinator.Coordinator
	markers  *marker.Reconciler
	orphans  *OrphanArchive
	broker   *pubsub.Broker[coordinator.Request]

	mu       sync.Mutex
	bindings map[string]*binding
}

// New wires a workspace from config. logger may be nil to discard.
func New(cfg config.Config, logger *log.Logger) *Workspace {
	base := cfg.Invoke()
	base.Logger = logger

	w := &Workspace{
		cfg:      cfg,
		log:      logger,
		registry: invoke.NewRegistry(base),
		markers: marker.NewReconciler(marker.Config{
			ScanWindow:    cfg.Marker.ScanWindow,
			MaxBlockLines: cfg.Marker.MaxBlockLines,
			Separator:     cfg.Marker.Separator,
			Logger:        logger,
		}),
		orphans:  NewOrphanArchive(cfg.OrphanRetention()),
		broker:   pubsub.NewBroker[coordinator.Request](),
		bindings: make(map[string]*binding),
	}
	w.coord = coordinator.New(cfg.QueueMax, logger, w.finished)
	return w
}

// AskOption customizes a single Ask call.
type AskOption func(*askOptions)

type askOptions struct {
	filePath string
}

// WithFilePath attaches file-path context to the composed prompt.
func WithFilePath(path string) AskOption {
	return func(o *askOptions) {
		if path != "" {
			o.filePath = path
		}
	}
}

// Ask captures the buffer's selection, injects a processing marker in its
// place, and queues a request against the given session. The request runs
// immediately when the lane is free, otherwise it waits its turn. Ask never
// blocks on the external tool.
func (w *Workspace) Ask(buf buffer.Buffer, sessionKey, instruction string, opts ...AskOption) (coordinator.Request, error) {
	var o askOptions
	for _, opt := range opts {
		opt(&o)
	}

	selection := buf.Selection()
	prompt := ComposePrompt(instruction, selection, o.filePath)

	// The marker and binding must exist before the request becomes visible
	// to the queue: the moment it is enqueued, a settlement on another
	// goroutine may pump and dispatch it.
	id := uuid.NewString()
	rec, _ := w.markers.Inject(buf, id, selection)
	w.mu.Lock()
	w.bindings[id] = &binding{buf: buf, rec: rec}
	w.mu.Unlock()

	req, err := w.coord.CreateRequest(id, sessionKey, prompt, selection, o.filePath)
	if err != nil {
		w.mu.Lock()
		delete(w.bindings, id)
		w.mu.Unlock()
		if rmErr := w.markers.Remove(buf, rec); rmErr != nil {
			w.log.Warn(log.CatWorkspace, "could not roll back marker for rejected request", "id", id)
		}
		return coordinator.Request{}, err
	}

	w.broker.Publish(pubsub.CreatedEvent, req)
	w.pump()
	return req, nil
}

// pump asks the coordinator for the next admissible request and dispatches
// it. It is called after every enqueue and after every terminal transition;
// when a request is already processing it is a no-op.
func (w *Workspace) pump() {
	req := w.coord.NextRequest()
	if req == nil {
		return
	}
	w.broker.Publish(pubsub.UpdatedEvent, *req)

	sess, err := w.session(req.SessionKey)
	if err != nil {
		w.settle(req.ID, "", err)
		return
	}

	inv, err := sess.Run(req.Prompt, invoke.Timeout{
		Duration: w.cfg.Timeout(),
		Auto:     w.cfg.AutoTimeout,
	})
	if err != nil {
		w.settle(req.ID, "", err)
		return
	}

	go func() {
		result, err := inv.Wait()
		w.settle(req.ID, result, err)
	}()
}

// session returns the lane for key, creating it on first use.
func (w *Workspace) session(key string) (*invoke.Session, error) {
	if s, ok := w.registry.Get(key); ok {
		return s, nil
	}
	return w.registry.Create(key, w.cfg.WorkDir)
}

// settle reconciles a settled invocation with the document. A locatable
// marker is rewritten in place; a lost marker demotes the outcome to
// orphaned with the payload preserved.
func (w *Workspace) settle(id, result string, invErr error) {
	w.mu.Lock()
	b := w.bindings[id]
	delete(w.bindings, id)
	w.mu.Unlock()

	if invErr == nil {
		if b != nil && w.markers.ResolveSuccess(b.buf, b.rec, result) == nil {
			_ = w.coord.Complete(result)
			return
		}
		_ = w.coord.Orphan(result, nil)
		return
	}

	if b != nil {
		resolveErr := w.markers.ResolveError(b.buf, b.rec, invErr.Error())
		if resolveErr == nil {
			_ = w.coord.Fail(invErr)
			return
		}
		if !errors.Is(resolveErr, marker.ErrMarkerNotFound) {
			w.log.ErrorErr(log.CatWorkspace, "marker resolution failed", resolveErr, "request", id)
		}
	}
	_ = w.coord.Orphan(result, invErr)
}

// finished is the coordinator's completion callback: archive orphans,
// notify subscribers, then drain the next queued request.
func (w *Workspace) finished(req coordinator.Request) {
	if req.Status == coordinator.StatusOrphaned {
		w.orphans.Add(req)
		w.log.Warn(log.CatWorkspace, "request orphaned", "id", req.ID, "resultLen", len(req.Result))
	}

	w.broker.Publish(pubsub.FinishedEvent, req)
	w.pump()
}

// CancelQueued removes a still-pending request and restores its marker to
// the original text. Returns false when the request is active or unknown.
func (w *Workspace) CancelQueued(id string) bool {
	if !w.coord.CancelPending(id) {
		return false
	}
	w.rollback(id)
	return true
}

// rollback drops the binding for id and restores its marker region to the
// original text.
func (w *Workspace) rollback(id string) {
	w.mu.Lock()
	b := w.bindings[id]
	delete(w.bindings, id)
	w.mu.Unlock()

	if b != nil {
		if err := w.markers.Remove(b.buf, b.rec); err != nil {
			w.log.Warn(log.CatWorkspace, "could not restore marker for cancelled request", "id", id)
		}
	}
}

// AbortSession cancels the session's current invocation, keeping the lane.
func (w *Workspace) AbortSession(key string) {
	w.registry.Abort(key)
}

// TerminateSession stops the session and removes its lane.
func (w *Workspace) TerminateSession(key string) {
	w.registry.Terminate(key)
}

// Shutdown rolls back the markers of requests that will never run,
// terminates every session, and closes the notification broker. No child
// process outlives the host.
func (w *Workspace) Shutdown() {
	for _, req := range w.coord.DrainPending() {
		w.rollback(req.ID)
	}
	w.registry.TerminateAll()
	w.broker.Close()
}

// Subscribe returns a channel of request snapshots: created on enqueue,
// updated on activation, finished on a terminal transition. This is the
// out-of-band surface through which results, failures, and orphan notices
// leave the core.
func (w *Workspace) Subscribe(ctx context.Context) <-chan pubsub.Event[coordinator.Request] {
	return w.broker.Subscribe(ctx)
}

// Orphans lists the archived orphaned requests still within retention.
func (w *Workspace) Orphans() []coordinator.Request {
	return w.orphans.List()
}

// Orphan returns a single archived request by ID.
func (w *Workspace) Orphan(id string) (coordinator.Request, bool) {
	return w.orphans.Get(id)
}

// Pending returns the number of queued requests.
func (w *Workspace) Pending() int {
	return w.coord.Pending()
}

// Registry exposes the session registry for shutdown wiring.
func (w *Workspace) Registry() *invoke.Registry {
	return w.registry
}
