// Package statemachine models one agent's lifecycle as a total state
// machine: every (state, event) pair has a defined transition, per spec §4.2.
package statemachine

import (
	"encoding/json"
	"time"
)

// Kind discriminates the State sum type. Exactly one Kind holds at any
// moment (spec §3 invariant).
type Kind string

const (
	Initializing         Kind = "initializing"
	Idle                 Kind = "idle"
	Processing           Kind = "processing"
	WaitingForPermission Kind = "waiting_for_permission"
	WaitingForInput      Kind = "waiting_for_input"
	ErrorState           Kind = "error"
	Completed            Kind = "completed"
)

// State is a tagged union; only the fields relevant to Kind are meaningful.
type State struct {
	Kind Kind

	// Idle / Completed
	LastOutput string

	// Processing
	CurrentTool string
	StartedAt   time.Time

	// WaitingForPermission
	ToolName  string
	ToolInput json.RawMessage
	RequestID string

	// WaitingForInput
	Question string
	Options  []string

	// Error
	Message     string
	Recoverable bool
}

// EventKind is the state machine's input alphabet (spec §3).
type EventKind string

const (
	Initialized        EventKind = "initialized"
	TaskStarted        EventKind = "task_started"
	ToolUseStarted     EventKind = "tool_use_started"
	ToolUseCompleted   EventKind = "tool_use_completed"
	PermissionRequired EventKind = "permission_required"
	PermissionGranted  EventKind = "permission_granted"
	PermissionDenied   EventKind = "permission_denied"
	InputRequired      EventKind = "input_required"
	InputReceived      EventKind = "input_received"
	ErrorOccurred      EventKind = "error_occurred"
	TaskCompleted      EventKind = "task_completed"
)

// Event carries the payload for one EventKind. Only the fields relevant to
// Kind are meaningful.
type Event struct {
	Kind EventKind

	Prompt string // TaskStarted

	ToolName  string          // ToolUseStarted, PermissionRequired
	ToolInput json.RawMessage // PermissionRequired
	Success   bool            // ToolUseCompleted

	RequestID string // PermissionRequired, PermissionGranted, PermissionDenied
	Reason    string // PermissionDenied

	Question string   // InputRequired
	Options  []string // InputRequired
	Answer   string   // InputReceived

	Message     string // ErrorOccurred
	Recoverable bool   // ErrorOccurred

	Output string // TaskCompleted
}

// Transition bundles the before/after states published to observers on
// every apply, matching the executor:state_changed event shape (spec §6).
type Transition struct {
	Old State
	New State
	Via Event
}
