package invoke

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/quillhq/quill/internal/log"
)

// Timeout bundles the deadline for one invocation. When Auto is false no
// timer is armed and the caller is expected to offer manual abort instead.
type Timeout struct {
	Duration time.Duration
	Auto     bool
}

// Session is a named execution lane. It runs at most one invocation at a
// time and keeps a defensive record of every PID it ever spawned so that
// Stop can sweep up orphaned children.
type Session struct {
	Key     string
	WorkDir string
	Env     []string

	base Config

	mu      sync.Mutex
	alive   bool
	current *Invocation
	spawned map[int]struct{}
}

func newSession(key, workDir string, base Config) *Session {
	return &Session{
		Key:     key,
		WorkDir: workDir,
		base:    base,
		alive:   true,
		spawned: make(map[int]struct{}),
	}
}

// Run starts one invocation on this lane. It fails when the session has
// been terminated or when a previous invocation has not yet settled: a lane
// owns at most one live subprocess at any time.
func (s *Session) Run(prompt string, timeout Timeout) (*Invocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive {
		return nil, fmt.Errorf("session %q is terminated", s.Key)
	}
	if s.current != nil && !s.current.Settled() {
		return nil, fmt.Errorf("session %q already has an invocation in flight", s.Key)
	}

	cfg := s.base
	cfg.WorkDir = s.WorkDir
	if len(s.Env) > 0 {
		env := make([]string, 0, len(cfg.Env)+len(s.Env))
		env = append(env, cfg.Env...)
		env = append(env, s.Env...)
		cfg.Env = env
	}
	cfg.Timeout = timeout.Duration
	cfg.AutoTimeout = timeout.Auto

	inv, err := Start(cfg, prompt)
	if err != nil {
		return nil, err
	}

	s.current = inv
	s.spawned[inv.PID()] = struct{}{}
	s.base.Logger.Debug(log.CatSession, "invocation dispatched", "session", s.Key, "pid", inv.PID())
	return inv, nil
}

// Abort cancels the current invocation but keeps the session usable.
// No-op when nothing is in flight.
func (s *Session) Abort() {
	s.mu.Lock()
	inv := s.current
	s.mu.Unlock()

	if inv != nil {
		inv.Abort()
	}
}

// Stop marks the session dead, aborts any live invocation, and force-kills
// every process this session ever spawned that might still be alive. The
// bookkeeping set is cleared afterwards.
func (s *Session) Stop() {
	s.mu.Lock()
	s.alive = false
	inv := s.current
	s.current = nil
	pids := make([]int, 0, len(s.spawned))
	for pid := range s.spawned {
		pids = append(pids, pid)
	}
	s.spawned = make(map[int]struct{})
	s.mu.Unlock()

	if inv != nil {
		inv.Abort()
	}
	for _, pid := range pids {
		killPID(pid)
	}
	s.base.Logger.Debug(log.CatSession, "session stopped", "session", s.Key, "sweptPIDs", len(pids))
}

// Alive reports whether the session accepts new invocations.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Busy reports whether an invocation is currently in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.current.Settled()
}

// killPID sends a forced kill to a possibly-dead process group. The group
// address catches children the tool forked. Errors are ignored: the group
// usually exited long ago.
func killPID(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
