package invoke

import (
	"errors"
	"fmt"
)

// Kind classifies how an invocation failed. Callers branch on Kind rather
// than matching message strings.
type Kind int

const (
	// KindSpawnFailure means the external binary could not be started.
	KindSpawnFailure Kind = iota
	// KindToolError means the tool ran but reported an error.
	KindToolError
	// KindNoResponse means the tool exited cleanly with no output at all.
	KindNoResponse
	// KindTimeout means the deadline expired and the process was killed.
	KindTimeout
	// KindUserAborted means the caller cancelled the invocation.
	KindUserAborted
)

func (k Kind) String() string {
	switch k {
	case KindSpawnFailure:
		return "spawn_failure"
	case KindToolError:
		return "tool_error"
	case KindNoResponse:
		return "no_response"
	case KindTimeout:
		return "timeout"
	case KindUserAborted:
		return "user_aborted"
	default:
		return "unknown"
	}
}

// Error is the tagged failure type for invocations.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the invocation failure kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return 0, false
}
