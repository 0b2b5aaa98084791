package command

import (
	"encoding/json"

	"github.com/shaharia-lab/acp-runtime/internal/pipeline"
	"github.com/shaharia-lab/acp-runtime/internal/registry"
)

// Request/response DTOs for the IPC command surface (spec.md §6). Field
// names follow the table's argument and result names directly.

type executorStartRequest struct {
	WorkingDir   string   `json:"working_dir,omitempty"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
}

type executorStartResponse struct {
	SessionID string `json:"session_id"`
}

type executorExecuteRequest struct {
	Prompt string `json:"prompt"`
}

type executorExecuteResponse struct {
	Output string `json:"output"`
}

type executorSubmitPermissionRequest struct {
	RequestID string `json:"request_id"`
	Allow     bool   `json:"allow"`
	Always    bool   `json:"always"`
}

type executorIsRunningResponse struct {
	Running bool `json:"running"`
}

type registryRegisterRequest struct {
	AgentCard registry.Card `json:"agent_card"`
}

type registryRegisterResponse struct {
	ID string `json:"id"`
}

type registryGetResponse struct {
	Card *registry.Card `json:"card,omitempty"`
}

type pipelineDefineRequest struct {
	Name   string           `json:"name"`
	Stages []pipeline.Stage `json:"stages"`
}

type pipelineDefineResponse struct {
	PipelineID string `json:"pipeline_id"`
}

type pipelineExecuteRequest struct {
	PipelineID   string          `json:"pipeline_id"`
	InitialInput json.RawMessage `json:"initial_input,omitempty"`
}

type pipelineExecuteResponse struct {
	ExecutionID string `json:"execution_id"`
}

type pipelineListActiveResponse struct {
	ExecutionIDs []string `json:"execution_ids"`
}

// apiError is the "typed error string" the spec's IPC table promises every
// command: a machine-readable tag plus a single human-readable message
// (spec.md §7).
type apiError struct {
	Tag     string `json:"tag"`
	Message string `json:"message"`
}
