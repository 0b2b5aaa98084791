package executor

import "errors"

// Errors returned by Executor operations. Names mirror the error taxonomy's
// machine-readable tags: State-violating (NotReady, Busy), Child-fatal
// (InitializationTimeout, TaskTimeout), and plain not-running.
var (
	ErrNotRunning            = errors.New("executor: not running")
	ErrAlreadyRunning        = errors.New("executor: already running")
	ErrBusy                  = errors.New("executor: busy")
	ErrNotReady              = errors.New("executor: not ready")
	ErrInitializationTimeout = errors.New("executor: initialization timeout")
	ErrTaskTimeout           = errors.New("executor: task timeout")
	ErrPermissionNotPending  = errors.New("executor: no pending permission request with that id")
)

// TaskError wraps an ErrorOccurred transition's message so callers of
// Execute can distinguish a CLI-reported failure from a Go-level error.
type TaskError struct {
	Message     string
	Recoverable bool
}

func (e *TaskError) Error() string { return "executor: task failed: " + e.Message }
