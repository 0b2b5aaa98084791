package permission

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DecisionKind discriminates the Decision sum type (spec §3).
type DecisionKind string

const (
	Allow        DecisionKind = "allow"
	Deny         DecisionKind = "deny"
	RequireHuman DecisionKind = "require_human"
)

// Decision is the outcome of Classify.
type Decision struct {
	Kind DecisionKind

	Always bool // Allow

	Reason string // Deny

	RequestID  string          // RequireHuman
	ToolName   string          // RequireHuman
	ToolInput  json.RawMessage // RequireHuman
	ActionType ActionType      // RequireHuman, display-only
}

// Manager classifies tool calls under a mutable Policy plus memoized
// always-allow/always-deny decisions. classify is pure given the current
// policy and memo tables; it never performs I/O (spec §4.3).
type Manager struct {
	mu          sync.RWMutex
	policy      Policy
	alwaysAllow map[string]bool
	alwaysDeny  map[string]bool
	idGen       func() string
}

// NewManager returns a Manager starting on the named built-in policy.
// Panics if name is not one of the four defined policies — callers are
// expected to validate configuration at startup.
func NewManager(name PolicyName) *Manager {
	p, ok := Lookup(name)
	if !ok {
		panic(fmt.Sprintf("permission: unknown policy %q", name))
	}
	return &Manager{
		policy:      p,
		alwaysAllow: make(map[string]bool),
		alwaysDeny:  make(map[string]bool),
		idGen:       uuid.NewString,
	}
}

// SetPolicy replaces the active policy. Setting the same policy twice is a
// no-op with respect to observable behaviour (spec §8).
func (m *Manager) SetPolicy(name PolicyName) error {
	p, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("permission: unknown policy %q", name)
	}
	m.mu.Lock()
	m.policy = p
	m.mu.Unlock()
	return nil
}

// Policy returns the currently active policy.
func (m *Manager) Policy() Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

// Remember records a standing decision for toolName, consulted by Classify
// before the active policy. Used by Executor.SubmitPermission when the
// caller passes always=true.
func (m *Manager) Remember(toolName string, allow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if allow {
		m.alwaysAllow[toolName] = true
		delete(m.alwaysDeny, toolName)
	} else {
		m.alwaysDeny[toolName] = true
		delete(m.alwaysAllow, toolName)
	}
}

// Forget removes any standing decision for toolName.
func (m *Manager) Forget(toolName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alwaysAllow, toolName)
	delete(m.alwaysDeny, toolName)
}

// Classify implements the decision function of spec §4.3.
func (m *Manager) Classify(toolName string, input json.RawMessage) Decision {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.alwaysAllow[toolName] {
		return Decision{Kind: Allow, Always: true}
	}
	if m.alwaysDeny[toolName] {
		return Decision{Kind: Deny, Reason: "remembered deny"}
	}

	if matchesAny(m.policy.AutoApprove, toolName, input) {
		return Decision{Kind: Allow, Always: false}
	}

	if matchesAny(m.policy.HumanConfirm, toolName, input) || m.policy.Default == DefaultHuman {
		return Decision{
			Kind:       RequireHuman,
			RequestID:  m.idGen(),
			ToolName:   toolName,
			ToolInput:  input,
			ActionType: ClassifyAction(toolName),
		}
	}

	if m.policy.Default == DefaultDeny {
		return Decision{Kind: Deny, Reason: string(m.policy.Name)}
	}

	return Decision{Kind: Allow, Always: false}
}
