// Package invoke runs single spawn-to-settle invocations of an external AI
// CLI tool and owns the session lanes that serialize them.
package invoke

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/quillhq/quill/internal/log"
)

// DefaultBinary is the external tool invoked when none is configured.
const DefaultBinary = "claude"

// Config holds configuration for spawning the external tool.
type Config struct {
	Binary          string
	Model           string
	WorkDir         string
	Env             []string // Extra KEY=VALUE entries appended to the host env
	SkipPermissions bool
	ExtraArgs       []string
	Timeout         time.Duration
	AutoTimeout     bool
	Logger          *log.Logger // nil discards
}

// Invocation is one spawn-to-settle cycle of the external tool.
// The prompt is written once to the child's stdin, stdout and stderr are
// drained concurrently, and the invocation settles exactly once after the
// child has exited and both streams are fully closed.
type Invocation struct {
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
	pid    int
	logger *log.Logger

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu       sync.Mutex
	timer    *time.Timer
	result   string
	err      error
	aborted  bool
	timedOut bool
}

// Start spawns the external tool in print mode and begins draining its
// output. Failure to start the process is reported as KindSpawnFailure.
func Start(cfg Config, prompt string) (*Invocation, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	args := buildArgs(cfg)
	cfg.Logger.Debug(log.CatInvoke, "spawning external tool", "binary", binary, "args", strings.Join(args, " "), "workDir", cfg.WorkDir)

	// #nosec G204 -- binary and args come from config, not document text
	cmd := exec.Command(binary, args...)
	cmd.Dir = cfg.WorkDir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	// Own process group so a kill reaches children of the tool too. A
	// forked grandchild inheriting the stdio pipes would otherwise keep
	// the drain goroutines, and with them settlement, blocked past the
	// deadline.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &Error{Kind: KindSpawnFailure, Msg: "failed to create stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Kind: KindSpawnFailure, Msg: "failed to create stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &Error{Kind: KindSpawnFailure, Msg: "failed to create stderr pipe", Err: err}
	}

	inv := &Invocation{
		cmd:    cmd,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		cfg.Logger.Debug(log.CatInvoke, "failed to start external tool", "binary", binary, "error", err)
		return nil, &Error{Kind: KindSpawnFailure, Msg: "failed to start external tool", Err: err}
	}
	inv.pid = cmd.Process.Pid
	cfg.Logger.Debug(log.CatInvoke, "external tool started", "pid", inv.pid)

	// Write the prompt once, then close stdin so the tool runs in batch mode.
	go func() {
		_, _ = io.WriteString(stdin, prompt)
		_ = stdin.Close()
	}()

	inv.wg.Add(2)
	go inv.drain(&inv.stdout, stdout)
	go inv.drain(&inv.stderr, stderr)

	if cfg.AutoTimeout && cfg.Timeout > 0 {
		inv.mu.Lock()
		inv.timer = time.AfterFunc(cfg.Timeout, inv.onTimeout)
		inv.mu.Unlock()
	}

	go inv.waitForCompletion()

	return inv, nil
}

// buildArgs constructs the command line arguments for the external tool.
// The prompt itself travels over stdin, never as an argument.
func buildArgs(cfg Config) []string {
	args := []string{"--print"}

	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, cfg.ExtraArgs...)

	return args
}

// drain copies a stdio stream into its buffer until the stream closes.
func (inv *Invocation) drain(dst *bytes.Buffer, src io.Reader) {
	defer inv.wg.Done()
	_, _ = io.Copy(dst, src)
}

// waitForCompletion joins both stream readers, reaps the child, and settles.
// Waiting for full stream closure before settling prevents the accounting
// artifact where a terminated-but-undrained child lingers as a zombie.
func (inv *Invocation) waitForCompletion() {
	inv.wg.Wait()
	waitErr := inv.cmd.Wait()
	inv.settle(waitErr)
}

// onTimeout force-kills the child when the deadline expires.
func (inv *Invocation) onTimeout() {
	inv.mu.Lock()
	inv.timedOut = true
	inv.mu.Unlock()

	inv.logger.Debug(log.CatInvoke, "invocation timed out, killing process group", "pid", inv.pid)
	inv.kill()
}

// Abort cancels a live invocation with a forced kill. Calling Abort on an
// invocation that has already settled is a safe no-op.
func (inv *Invocation) Abort() {
	select {
	case <-inv.done:
		return
	default:
	}

	inv.mu.Lock()
	inv.aborted = true
	inv.mu.Unlock()

	inv.logger.Debug(log.CatInvoke, "aborting invocation", "pid", inv.pid)
	inv.kill()
}

// kill sends a non-catchable kill to the tool's whole process group, so
// children that inherited the stdio pipes die with it and the drain
// goroutines unblock. Errors are ignored: the group may already be gone.
func (inv *Invocation) kill() {
	if inv.pid > 0 {
		_ = syscall.Kill(-inv.pid, syscall.SIGKILL)
	}
}

// settle records the terminal outcome exactly once and releases the timer.
func (inv *Invocation) settle(waitErr error) {
	inv.once.Do(func() {
		inv.mu.Lock()
		if inv.timer != nil {
			inv.timer.Stop()
			inv.timer = nil
		}
		timedOut := inv.timedOut
		aborted := inv.aborted
		inv.mu.Unlock()

		result, err := classify(timedOut, aborted, waitErr, inv.stdout.String(), inv.stderr.String())

		inv.mu.Lock()
		inv.result = result
		inv.err = err
		inv.mu.Unlock()

		if err != nil {
			inv.logger.Debug(log.CatInvoke, "invocation settled with failure", "pid", inv.pid, "error", err)
		} else {
			inv.logger.Debug(log.CatInvoke, "invocation settled", "pid", inv.pid, "outputLen", len(result))
		}
		close(inv.done)
	})
}

// classify maps the raw process outcome onto the failure taxonomy.
func classify(timedOut, aborted bool, waitErr error, stdout, stderr string) (string, error) {
	switch {
	case timedOut:
		return "", &Error{Kind: KindTimeout, Msg: "external tool timed out"}
	case aborted:
		return "", &Error{Kind: KindUserAborted, Msg: "invocation aborted"}
	}

	out := CleanOutput(stdout)
	errText := strings.TrimSpace(stderr)

	if waitErr != nil {
		msg := errText
		if msg == "" {
			msg = "external tool exited with an error"
		}
		return "", &Error{Kind: KindToolError, Msg: msg, Err: waitErr}
	}
	if out != "" {
		return out, nil
	}
	if errText != "" {
		return "", &Error{Kind: KindToolError, Msg: errText}
	}
	return "", &Error{Kind: KindNoResponse, Msg: "external tool produced no response"}
}

// CleanOutput strips ANSI escape sequences and shell-prompt artifacts from
// raw tool output.
func CleanOutput(raw string) string {
	s := strings.TrimSpace(ansi.Strip(raw))
	lines := strings.Split(s, "\n")

	start, end := 0, len(lines)
	for start < end && isPromptArtifact(lines[start]) {
		start++
	}
	for end > start && isPromptArtifact(lines[end-1]) {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

// isPromptArtifact reports whether a line is only shell-prompt residue.
func isPromptArtifact(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "$" || trimmed == "%" || trimmed == ">"
}

// Wait blocks until the invocation settles, returning the cleaned output or
// the classified failure.
func (inv *Invocation) Wait() (string, error) {
	<-inv.done
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.result, inv.err
}

// Done is closed when the invocation settles.
func (inv *Invocation) Done() <-chan struct{} {
	return inv.done
}

// Settled reports whether the invocation has reached a terminal outcome.
func (inv *Invocation) Settled() bool {
	select {
	case <-inv.done:
		return true
	default:
		return false
	}
}

// PID returns the OS process ID of the child.
func (inv *Invocation) PID() int {
	return inv.pid
}

// timerArmed reports whether the timeout timer is still held. Used by tests
// to verify the resource-release contract.
func (inv *Invocation) timerArmed() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.timer != nil
}
