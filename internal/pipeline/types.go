// Package pipeline implements the Pipeline Orchestrator described in
// spec.md §4.6: an ordered sequence of stages, each either a native
// in-process function or a delegated CLI agent turn, chained by a
// template that maps prior-stage outputs into the next stage's input.
package pipeline

import (
	"encoding/json"
	"time"
)

// StageKind selects how a Stage is executed.
type StageKind string

const (
	// NativeCallable runs a registered in-process function.
	NativeCallable StageKind = "native"
	// CliAgent delegates to an Executor bound to a specific agent.
	CliAgent StageKind = "cli-agent"
)

// Ref points at a field inside a prior stage's output, addressed by a
// dot-separated path through nested JSON objects (e.g. "x" or "a.b.c").
// An empty Path refers to the whole output value.
type Ref struct {
	Stage string `json:"stage" yaml:"stage"`
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
}

// InputTemplate resolves a stage's input from the map of prior-stage
// outputs. Each key becomes a field of the resulting JSON object; its
// value is either a literal (Literal non-nil) or a reference into a
// previous stage's output (From non-nil). A nil template passes the
// stage's default input through unchanged: the pipeline's initial_input
// for the first stage, the preceding stage's output for every later one.
type InputTemplate map[string]TemplateValue

// TemplateValue is exactly one of Literal or From.
type TemplateValue struct {
	Literal json.RawMessage `json:"literal,omitempty" yaml:"literal,omitempty"`
	From    *Ref            `json:"from,omitempty" yaml:"from,omitempty"`
}

// Stage is one step of a Pipeline Definition.
type Stage struct {
	Name  string        `json:"name" yaml:"name"`
	Kind  StageKind     `json:"kind" yaml:"kind"`
	Input InputTemplate `json:"input,omitempty" yaml:"input,omitempty"`

	// Callable names a registered NativeCallable function. Only used when
	// Kind == NativeCallable.
	Callable string `json:"callable,omitempty" yaml:"callable,omitempty"`

	// AgentID names the Executor-bound agent this stage delegates to. Only
	// used when Kind == CliAgent.
	AgentID string `json:"agentId,omitempty" yaml:"agentId,omitempty"`
}

// Definition is an ordered, named list of Stages.
type Definition struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name,omitempty" yaml:"name,omitempty"`
	Stages []Stage `json:"stages" yaml:"stages"`
}

// Status is an Execution's lifecycle state.
type Status string

const (
	Pending   Status = "Pending"
	Running   Status = "Running"
	Completed Status = "Completed"
	Failed    Status = "Failed"
	Cancelled Status = "Cancelled"
)

// StageResult is the recorded outcome of one stage run.
type StageResult struct {
	StageName string          `json:"stage_name"`
	Status    Status          `json:"status"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at,omitzero"`
}

// Execution is one run of a Pipeline Definition.
type Execution struct {
	ExecutionID        string        `json:"execution_id"`
	PipelineID         string        `json:"pipeline_id"`
	Status             Status        `json:"status"`
	CurrentStageIndex  int           `json:"current_stage_index"`
	Results            []StageResult `json:"results"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time,omitzero"`
}

// Progress is a pipeline:progress event (spec.md §6).
type Progress struct {
	ExecutionID     string  `json:"execution_id"`
	StageIndex      int     `json:"stage_index"`
	StageName       string  `json:"stage_name"`
	Status          string  `json:"status"`
	ProgressPercent float64 `json:"progress_percent"`
	Message         string  `json:"message,omitempty"`
}
