package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/acp-runtime/internal/claude"
	"github.com/shaharia-lab/acp-runtime/internal/config"
	"github.com/shaharia-lab/acp-runtime/internal/permission"
	"github.com/shaharia-lab/acp-runtime/internal/statemachine"
)

// fakeSession replays a scripted sequence of raw NDJSON lines as
// claude.Events, and records every prompt/close/interrupt call made against
// it. This lets executor tests drive the literal end-to-end scenarios
// without spawning a real CLI subprocess.
type fakeSession struct {
	events chan claude.Event

	sent      []string
	closed    bool
	interrupt bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan claude.Event, 64)}
}

func (f *fakeSession) feed(line string) {
	f.events <- claude.Event{Raw: []byte(line)}
}

func (f *fakeSession) Events() <-chan claude.Event                       { return f.events }
func (f *fakeSession) Send(prompt string) error                         { f.sent = append(f.sent, prompt); return nil }
func (f *fakeSession) Close() error                                     { f.closed = true; close(f.events); return nil }
func (f *fakeSession) Interrupt() error                                 { f.interrupt = true; return nil }
func (f *fakeSession) SetModel(string) error                            { return nil }
func (f *fakeSession) SetPermissionMode(claude.PermissionMode) error    { return nil }
func (f *fakeSession) SetMaxThinkingTokens(int) error                   { return nil }

func testTimeouts() config.Timeouts {
	return config.Timeouts{
		Init:     2 * time.Second,
		Prompt:   2 * time.Second,
		Shutdown: time.Second,
		Stale:    time.Minute,
		Cancel:   time.Second,
	}
}

func startWithFake(t *testing.T, e *Executor) *fakeSession {
	t.Helper()
	fs := newFakeSession()
	e.newSession = func(ctx context.Context, workingDir string, allowedTools []string, sessionID string, hooks HookSet) (session, error) {
		return fs, nil
	}
	go func() {
		fs.feed(`{"type":"system","subtype":"init","session_id":"S1"}`)
	}()
	sid, err := e.Start(context.Background(), "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "S1", sid)
	return fs
}

// Scenario A — simple successful prompt (spec §8).
func TestScenarioASimpleSuccessfulPrompt(t *testing.T) {
	e := New(testTimeouts(), permission.NewManager(permission.Standard))
	fs := startWithFake(t, e)

	sub := e.Subscribe()
	var observed []statemachine.Kind
	done := make(chan struct{})
	go func() {
		defer close(done)
		for tr := range sub {
			observed = append(observed, tr.New.Kind)
			if tr.New.Kind == statemachine.Completed {
				return
			}
		}
	}()

	go func() {
		fs.feed(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}`)
		fs.feed(`{"type":"result","subtype":"success","result":"hi","is_error":false}`)
	}()

	out, err := e.Execute(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	<-done
	assert.Equal(t, statemachine.Completed, e.GetState().Kind)
	// Subscribed after Start resolved Idle, so the first observed transition
	// is the prompt entering Processing, then Completed.
	assert.Equal(t, []statemachine.Kind{statemachine.Processing, statemachine.Completed}, observed)
}

// Scenario B — permission escalation under the Standard policy.
func TestScenarioBPermissionEscalation(t *testing.T) {
	e := New(testTimeouts(), permission.NewManager(permission.Standard))
	fs := startWithFake(t, e)

	var requestID string
	escalated := make(chan struct{}, 1)
	e.onPermissionRequired = func(reqID, toolName string, _ []byte) {
		requestID = reqID
		assert.Equal(t, "Write", toolName)
		escalated <- struct{}{}
	}

	execDone := make(chan struct{})
	go func() {
		out, err := e.Execute(context.Background(), "edit a protected file")
		require.NoError(t, err)
		assert.Equal(t, "done", out)
		close(execDone)
	}()

	fs.feed(`{"type":"tool_use","id":"T1","name":"Write","input":{"path":"/etc/hosts"}}`)
	fs.feed(`{"type":"tool_result","tool_use_id":"T1","content":"requires approval","is_error":true}`)

	<-escalated
	require.NotEmpty(t, requestID)
	assert.Equal(t, statemachine.WaitingForPermission, e.GetState().Kind)

	require.NoError(t, e.SubmitPermission(requestID, false, false))
	assert.Eventually(t, func() bool {
		return e.GetState().Kind == statemachine.Processing
	}, time.Second, 5*time.Millisecond)

	fs.feed(`{"type":"result","subtype":"success","result":"done","is_error":false}`)
	<-execDone
}

// Scenario C — auto-approve under ReadOnly never escalates.
func TestScenarioCAutoApproveNoEscalation(t *testing.T) {
	e := New(testTimeouts(), permission.NewManager(permission.ReadOnly))
	fs := startWithFake(t, e)

	escalated := false
	e.onPermissionRequired = func(string, string, []byte) { escalated = true }

	execDone := make(chan struct{})
	go func() {
		out, err := e.Execute(context.Background(), "read a file")
		require.NoError(t, err)
		assert.Equal(t, "done", out)
		close(execDone)
	}()

	fs.feed(`{"type":"tool_use","id":"T1","name":"Read","input":{"path":"/etc/hosts"}}`)
	fs.feed(`{"type":"tool_result","tool_use_id":"T1","content":"requires approval","is_error":true}`)
	fs.feed(`{"type":"result","subtype":"success","result":"done","is_error":false}`)

	<-execDone
	assert.False(t, escalated)
}

func TestExecuteFailsNotReadyWhileInitializing(t *testing.T) {
	e := New(testTimeouts(), permission.NewManager(permission.Standard))
	fs := newFakeSession()
	e.newSession = func(ctx context.Context, workingDir string, allowedTools []string, sessionID string, hooks HookSet) (session, error) {
		return fs, nil
	}

	go e.Start(context.Background(), "", nil, "")
	require.Eventually(t, e.IsRunning, time.Second, time.Millisecond)
	_, err := e.Execute(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestExecuteFailsBusyOnConcurrentCall(t *testing.T) {
	e := New(testTimeouts(), permission.NewManager(permission.Standard))
	fs := startWithFake(t, e)

	go func() { _, _ = e.Execute(context.Background(), "first") }()
	time.Sleep(20 * time.Millisecond)

	_, err := e.Execute(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	fs.feed(`{"type":"result","subtype":"success","result":"ok","is_error":false}`)
}

func TestStartFailsInitializationTimeout(t *testing.T) {
	timeouts := testTimeouts()
	timeouts.Init = 30 * time.Millisecond
	e := New(timeouts, permission.NewManager(permission.Standard))

	fs := newFakeSession()
	e.newSession = func(ctx context.Context, workingDir string, allowedTools []string, sessionID string, hooks HookSet) (session, error) {
		return fs, nil
	}

	_, err := e.Start(context.Background(), "", nil, "")
	assert.ErrorIs(t, err, ErrInitializationTimeout)
}

func TestStopNotifiesTerminalError(t *testing.T) {
	e := New(testTimeouts(), permission.NewManager(permission.Standard))
	fs := startWithFake(t, e)

	require.NoError(t, e.Stop())
	assert.True(t, fs.closed)
	assert.Equal(t, statemachine.ErrorState, e.GetState().Kind)
	assert.False(t, e.IsRunning())
}

func TestSubmitPermissionUnknownRequestFails(t *testing.T) {
	e := New(testTimeouts(), permission.NewManager(permission.Standard))
	err := e.SubmitPermission("does-not-exist", true, false)
	assert.ErrorIs(t, err, ErrPermissionNotPending)
}

// TestStartAlwaysRegistersStopHook verifies the Stop hook is merged into
// whatever HookSet the caller passes, rather than replacing it.
func TestStartAlwaysRegistersStopHook(t *testing.T) {
	e := New(testTimeouts(), permission.NewManager(permission.Standard))

	called := false
	userHook := claude.HookFunc(func(claude.HookEvent, json.RawMessage, string) (*claude.HookOutput, error) {
		called = true
		return nil, nil
	})

	var gotHooks HookSet
	fs := newFakeSession()
	e.newSession = func(ctx context.Context, workingDir string, allowedTools []string, sessionID string, hooks HookSet) (session, error) {
		gotHooks = hooks
		return fs, nil
	}

	go fs.feed(`{"type":"system","subtype":"init","session_id":"S1"}`)
	_, err := e.Start(context.Background(), "", nil, "", WithHooks(HookSet{
		claude.HookEventNotification: {{Hooks: []claude.HookFunc{userHook}}},
	}))
	require.NoError(t, err)

	require.Contains(t, gotHooks, claude.HookEventNotification)
	require.Contains(t, gotHooks, claude.HookEventStop)
	gotHooks[claude.HookEventNotification][0].Hooks[0](claude.HookEventNotification, nil, "")
	assert.True(t, called)
}

// TestFlushPendingPermissionsUnblocksExecute simulates what the
// always-registered Stop hook does: a pending permission decision that
// never receives a submitPermission call is denied so Execute returns
// instead of hanging forever.
func TestFlushPendingPermissionsUnblocksExecute(t *testing.T) {
	e := New(testTimeouts(), permission.NewManager(permission.Standard))
	fs := startWithFake(t, e)

	execDone := make(chan struct{})
	go func() {
		_, _ = e.Execute(context.Background(), "edit a protected file")
		close(execDone)
	}()

	fs.feed(`{"type":"tool_use","id":"T1","name":"Write","input":{"path":"/etc/hosts"}}`)
	fs.feed(`{"type":"tool_result","tool_use_id":"T1","content":"requires approval","is_error":true}`)

	require.Eventually(t, func() bool {
		return e.GetState().Kind == statemachine.WaitingForPermission
	}, time.Second, 5*time.Millisecond)

	e.flushPendingPermissions()
	require.Eventually(t, func() bool {
		return e.GetState().Kind == statemachine.Processing
	}, time.Second, 5*time.Millisecond)

	fs.feed(`{"type":"result","subtype":"success","result":"done","is_error":false}`)

	select {
	case <-execDone:
	case <-time.After(time.Second):
		t.Fatal("Execute did not unblock after flushPendingPermissions")
	}
}
