package statemachine

import (
	"fmt"
	"sync"
)

// Machine owns the current State for one agent and fans out every
// transition to subscribers through a Hub. Only the owning Executor calls
// Apply; all other readers use Snapshot or Subscribe.
type Machine struct {
	mu    sync.RWMutex
	state State
	hub   *Hub
}

// New returns a Machine starting in Initializing, with its own Hub.
func New() *Machine {
	return &Machine{
		state: State{Kind: Initializing},
		hub:   NewHub(),
	}
}

// Snapshot returns the current state. Safe for concurrent use; the returned
// value is an independent copy.
func (m *Machine) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe returns a channel of Transitions. The channel is closed when
// Close is called, giving subscribers a weak-reference-like lifetime: they
// never hold a strong reference back to the Machine (spec §9).
func (m *Machine) Subscribe() <-chan Transition {
	return m.hub.Subscribe()
}

// Close shuts down the Hub, closing every subscriber channel.
func (m *Machine) Close() {
	m.hub.Close()
}

// Apply is total: every (state, event) pair yields a defined new State.
// Unexpected combinations transition to ErrorState{Recoverable: false}
// naming the offending pair, per spec §4.2.
func (m *Machine) Apply(event Event) State {
	m.mu.Lock()
	old := m.state
	next := transition(old, event)
	m.state = next
	m.mu.Unlock()

	m.hub.Broadcast(Transition{Old: old, New: next, Via: event})
	return next
}

func invalid(old State, event Event) State {
	return State{
		Kind:        ErrorState,
		Message:     fmt.Sprintf("invalid transition: state=%s event=%s", old.Kind, event.Kind),
		Recoverable: false,
	}
}

// transition implements the table in spec §4.2.
func transition(old State, event Event) State {
	// ErrorOccurred is valid from any state.
	if event.Kind == ErrorOccurred {
		return State{Kind: ErrorState, Message: event.Message, Recoverable: event.Recoverable}
	}

	switch old.Kind {
	case Initializing:
		if event.Kind == Initialized {
			return State{Kind: Idle}
		}

	case Idle:
		if event.Kind == TaskStarted {
			return State{Kind: Processing, StartedAt: nowFunc()}
		}

	case Processing:
		switch event.Kind {
		case ToolUseStarted:
			return State{Kind: Processing, CurrentTool: event.ToolName, StartedAt: old.StartedAt}
		case ToolUseCompleted:
			// Reported to observers via the broadcast Transition regardless of
			// Success; the task is not terminated by a failed tool call.
			return State{Kind: Processing, CurrentTool: "", StartedAt: old.StartedAt}
		case PermissionRequired:
			return State{
				Kind:      WaitingForPermission,
				ToolName:  event.ToolName,
				ToolInput: event.ToolInput,
				RequestID: event.RequestID,
			}
		case InputRequired:
			return State{Kind: WaitingForInput, Question: event.Question, Options: event.Options}
		case TaskCompleted:
			return State{Kind: Completed, LastOutput: event.Output}
		}

	case WaitingForPermission:
		switch event.Kind {
		case PermissionGranted:
			return State{Kind: Processing, CurrentTool: old.ToolName, StartedAt: old.StartedAt}
		case PermissionDenied:
			return State{Kind: Processing, CurrentTool: "", StartedAt: old.StartedAt}
		}

	case WaitingForInput:
		if event.Kind == InputReceived {
			return State{Kind: Processing, StartedAt: old.StartedAt}
		}

	case Completed:
		if event.Kind == TaskStarted {
			return State{Kind: Processing, StartedAt: nowFunc()}
		}

	case ErrorState:
		// Terminal except for a fresh ErrorOccurred, already handled above.
	}

	return invalid(old, event)
}
