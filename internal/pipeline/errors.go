package pipeline

import "errors"

var (
	// ErrNoStages is returned by Define for a Definition with an empty
	// Stages list.
	ErrNoStages = errors.New("pipeline: definition has no stages")

	// ErrPipelineNotFound is returned by Start for an unknown pipeline id.
	ErrPipelineNotFound = errors.New("pipeline: definition not found")

	// ErrExecutionNotFound is returned by Cancel and GetStatus for an
	// unknown execution id.
	ErrExecutionNotFound = errors.New("pipeline: execution not found")

	// ErrUnknownCallable is returned when a NativeCallable stage names a
	// callable that was never registered.
	ErrUnknownCallable = errors.New("pipeline: unknown native callable")

	// ErrUnknownAgent is returned when a CliAgent stage names an agent id
	// the orchestrator has no Executor bound to.
	ErrUnknownAgent = errors.New("pipeline: unknown cli agent")

	// ErrUnresolvedRef is returned when an input template references a
	// stage that has not produced output yet (or never will, by name).
	ErrUnresolvedRef = errors.New("pipeline: unresolved input reference")
)
