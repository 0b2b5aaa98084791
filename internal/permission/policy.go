// Package permission implements the policy-driven tool-call decision engine
// of spec §4.3: classify(tool_name, tool_input) -> Decision, pure over
// (policy, memoized-allow-set, memoized-deny-set).
package permission

// PolicyName names one of the four built-in policies.
type PolicyName string

const (
	ReadOnly   PolicyName = "read_only"
	Standard   PolicyName = "standard"
	Strict     PolicyName = "strict"
	Permissive PolicyName = "permissive"
)

// DefaultAction is applied when a tool matches neither the auto-approve nor
// the human-confirm list.
type DefaultAction string

const (
	DefaultDeny  DefaultAction = "deny"
	DefaultHuman DefaultAction = "human"
	DefaultAllow DefaultAction = "allow"
)

// Policy pairs an auto-approve set and a human-confirm set with a default
// action for the complement (spec §4.3).
type Policy struct {
	Name         PolicyName
	AutoApprove  []string
	HumanConfirm []string
	Default      DefaultAction
}

// wildcard is the special pattern meaning "every tool", used by Strict's
// human-confirm list and Permissive's auto-approve list.
const wildcard = "*"

var readOnlyTools = []string{
	"Read", "Grep", "Glob", "Bash(ls:*)", "Bash(cat:*)", "Bash(git status:*)",
}

var builtinPolicies = map[PolicyName]Policy{
	ReadOnly: {
		Name:        ReadOnly,
		AutoApprove: readOnlyTools,
		Default:     DefaultDeny,
	},
	Standard: {
		Name:        Standard,
		AutoApprove: readOnlyTools,
		HumanConfirm: []string{
			"Edit", "Write", "Bash(rm:*)", "Bash(mv:*)", "Bash(npm:*)", "Bash(git commit:*)",
		},
		Default: DefaultHuman,
	},
	Strict: {
		Name:         Strict,
		HumanConfirm: []string{wildcard},
		Default:      DefaultHuman,
	},
	Permissive: {
		Name:        Permissive,
		AutoApprove: []string{wildcard},
		Default:     DefaultAllow,
	},
}

// Lookup returns the built-in Policy for name, or false if name is not one
// of the four defined policies.
func Lookup(name PolicyName) (Policy, bool) {
	p, ok := builtinPolicies[name]
	return p, ok
}
