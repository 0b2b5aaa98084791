package pipeline

import (
	"context"
	"encoding/json"
)

// NativeFunc is a registered NativeCallable stage implementation. It
// receives the stage's resolved input and returns the stage's output.
type NativeFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// cliAgent is the subset of *executor.Executor a CliAgent stage needs.
// Defined locally (rather than importing *executor.Executor directly as a
// concrete type) so tests can substitute a fake without spawning a CLI
// subprocess, the same seam internal/executor itself uses for its own
// session dependency.
type cliAgent interface {
	Execute(ctx context.Context, prompt string) (string, error)
	Interrupt() error
}
