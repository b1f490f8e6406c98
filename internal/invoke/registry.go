package invoke

import (
	"fmt"
	"sync"

	"github.com/quillhq/quill/internal/log"
)

// Registry owns the mapping from session key to its execution lane and
// routes abort/terminate calls by key. Construct one per process and thread
// it through; there is no package-level instance.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	base     Config
}

// NewRegistry creates an empty registry. base supplies the binary, model,
// and permission settings inherited by every session.
func NewRegistry(base Config) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		base:     base,
	}
}

// Create registers a new idle session lane. It fails when the key is
// already taken, even by a terminated session that was never removed.
func (r *Registry) Create(key, workDir string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[key]; exists {
		return nil, fmt.Errorf("session %q already exists", key)
	}

	s := newSession(key, workDir, r.base)
	r.sessions[key] = s
	r.base.Logger.Debug(log.CatSession, "session created", "session", key, "workDir", workDir)
	return s, nil
}

// Get returns the session for key, if registered.
func (r *Registry) Get(key string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Has reports whether key names a registered, still-alive session.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return ok && s.Alive()
}

// Terminate stops the session's current invocation and removes the lane.
// Unknown keys are a warned no-op.
func (r *Registry) Terminate(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	if !ok {
		r.base.Logger.Warn(log.CatSession, "terminate for unknown session", "session", key)
		return
	}
	s.Stop()
}

// Abort cancels the session's current invocation without removing the lane.
func (r *Registry) Abort(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	r.mu.Unlock()

	if !ok {
		r.base.Logger.Warn(log.CatSession, "abort for unknown session", "session", key)
		return
	}
	s.Abort()
}

// TerminateAll stops every lane concurrently and clears the registry.
// Used at process-wide shutdown so no child outlives the host.
func (r *Registry) TerminateAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
	r.base.Logger.Debug(log.CatSession, "all sessions terminated", "count", len(sessions))
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
