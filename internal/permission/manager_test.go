package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioCAutoApproveReadOnly(t *testing.T) {
	m := NewManager(ReadOnly)
	d := m.Classify("Read", json.RawMessage(`{"path":"/etc/hosts"}`))
	assert.Equal(t, Allow, d.Kind)
	assert.False(t, d.Always)
}

func TestScenarioBStandardRequiresHumanForWrite(t *testing.T) {
	m := NewManager(Standard)
	d := m.Classify("Write", json.RawMessage(`{"path":"/etc/hosts"}`))
	require.Equal(t, RequireHuman, d.Kind)
	assert.Equal(t, "Write", d.ToolName)
	assert.NotEmpty(t, d.RequestID)
}

func TestReadOnlyDeniesWrite(t *testing.T) {
	m := NewManager(ReadOnly)
	d := m.Classify("Write", nil)
	assert.Equal(t, Deny, d.Kind)
	assert.Equal(t, "read_only", d.Reason)
}

func TestStrictRequiresHumanForEverything(t *testing.T) {
	m := NewManager(Strict)
	for _, tool := range []string{"Read", "Bash", "Write"} {
		d := m.Classify(tool, nil)
		assert.Equal(t, RequireHuman, d.Kind, tool)
	}
}

func TestPermissiveAllowsEverything(t *testing.T) {
	m := NewManager(Permissive)
	d := m.Classify("Bash", json.RawMessage(`{"command":"rm -rf /"}`))
	assert.Equal(t, Allow, d.Kind)
}

func TestBashGlobMatchesArgsSuffix(t *testing.T) {
	m := NewManager(ReadOnly)
	d := m.Classify("Bash", json.RawMessage(`{"command":"ls -la /tmp"}`))
	assert.Equal(t, Allow, d.Kind, "Bash(ls:*) should auto-approve ls invocations")
}

func TestBashGlobRejectsNonMatchingSubcommand(t *testing.T) {
	m := NewManager(ReadOnly)
	d := m.Classify("Bash", json.RawMessage(`{"command":"rm -rf /tmp"}`))
	assert.Equal(t, Deny, d.Kind)
}

func TestMultiWordSubcommandPrefix(t *testing.T) {
	m := NewManager(ReadOnly)
	d := m.Classify("Bash", json.RawMessage(`{"command":"git status --short"}`))
	assert.Equal(t, Allow, d.Kind)
}

func TestRememberAlwaysAllowShortCircuitsPolicy(t *testing.T) {
	m := NewManager(Strict)
	m.Remember("Write", true)
	d := m.Classify("Write", nil)
	assert.Equal(t, Allow, d.Kind)
	assert.True(t, d.Always)
}

func TestForgetRemovesMemo(t *testing.T) {
	m := NewManager(Strict)
	m.Remember("Write", true)
	m.Forget("Write")
	d := m.Classify("Write", nil)
	assert.Equal(t, RequireHuman, d.Kind)
}

func TestClassifyIsDeterministic(t *testing.T) {
	m := NewManager(Standard)
	a := m.Classify("Edit", json.RawMessage(`{"path":"x"}`))
	b := m.Classify("Edit", json.RawMessage(`{"path":"x"}`))
	assert.Equal(t, a.Kind, b.Kind)
	assert.Equal(t, a.Always, b.Always)
}

func TestSetPolicyTwiceIsNoOp(t *testing.T) {
	m := NewManager(Standard)
	require.NoError(t, m.SetPolicy(Standard))
	require.NoError(t, m.SetPolicy(Standard))
	assert.Equal(t, Standard, m.Policy().Name)
}

func TestSetPolicyRejectsUnknownName(t *testing.T) {
	m := NewManager(Standard)
	err := m.SetPolicy(PolicyName("bogus"))
	assert.Error(t, err)
}
