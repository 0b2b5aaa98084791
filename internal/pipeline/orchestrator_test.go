package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainUntil(t *testing.T, ch <-chan Progress, status string, timeout time.Duration) []Progress {
	t.Helper()
	var got []Progress
	deadline := time.After(timeout)
	for {
		select {
		case p := <-ch:
			got = append(got, p)
			if p.Status == status {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q, saw %+v", status, got)
		}
	}
}

// Scenario D — two-stage native pipeline chaining outputs through a
// template reference (spec.md §8).
func TestScenarioDTwoStagePipeline(t *testing.T) {
	o := New()
	o.RegisterCallable("stage1fn", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"x":2}`), nil
	})
	o.RegisterCallable("stage2fn", func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in struct {
			X int `json:"x"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"y": in.X + 1})
	})

	def := Definition{
		ID: "two-stage",
		Stages: []Stage{
			{Name: "stage1", Kind: NativeCallable, Callable: "stage1fn"},
			{Name: "stage2", Kind: NativeCallable, Callable: "stage2fn", Input: InputTemplate{
				"x": {From: &Ref{Stage: "stage1", Path: "x"}},
			}},
		},
	}
	require.NoError(t, o.Define(def))

	sub := o.Subscribe()
	execID, err := o.Start("two-stage", json.RawMessage(`{}`))
	require.NoError(t, err)

	events := drainUntil(t, sub, "pipeline-completed", time.Second)
	statuses := make([]string, len(events))
	for i, e := range events {
		statuses[i] = e.Status
	}
	assert.Equal(t, []string{
		"pipeline-started",
		"stage-started", "stage-completed",
		"stage-started", "stage-completed",
		"pipeline-completed",
	}, statuses)

	exec, err := o.GetStatus(execID)
	require.NoError(t, err)
	assert.Equal(t, Completed, exec.Status)
	assert.Equal(t, 2, exec.CurrentStageIndex)
	require.Len(t, exec.Results, 2)
	assert.JSONEq(t, `{"x":2}`, string(exec.Results[0].Output))
	assert.JSONEq(t, `{"y":3}`, string(exec.Results[1].Output))
}

// Scenario F — cancelling a pipeline mid-sleep stops it within the
// cancellation window and no further stages start.
func TestScenarioFCancellation(t *testing.T) {
	o := New()
	secondStarted := make(chan struct{}, 1)
	o.RegisterCallable("sleepy", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		select {
		case <-time.After(5 * time.Second):
			return json.RawMessage(`null`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	o.RegisterCallable("quick", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		secondStarted <- struct{}{}
		return json.RawMessage(`null`), nil
	})

	def := Definition{
		ID: "cancel-me",
		Stages: []Stage{
			{Name: "stage1", Kind: NativeCallable, Callable: "sleepy"},
			{Name: "stage2", Kind: NativeCallable, Callable: "quick"},
		},
	}
	require.NoError(t, o.Define(def))

	sub := o.Subscribe()
	execID, err := o.Start("cancel-me", json.RawMessage(`{}`))
	require.NoError(t, err)

	// Wait for stage1 to actually start before cancelling.
	first := <-sub
	require.Equal(t, "pipeline-started", first.Status)
	started := <-sub
	require.Equal(t, "stage-started", started.Status)
	require.Equal(t, "stage1", started.StageName)

	require.NoError(t, o.Cancel(execID))

	events := drainUntil(t, sub, "cancelled", 2*time.Second)
	for _, e := range events {
		assert.NotEqual(t, "stage-started", e.Status, "no stage should start after cancellation")
	}

	select {
	case <-secondStarted:
		t.Fatal("stage2 must not run after cancellation")
	case <-time.After(50 * time.Millisecond):
	}

	exec, err := o.GetStatus(execID)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, exec.Status)
}

type fakeCliAgent struct {
	prompt string
	output string
}

func (f *fakeCliAgent) Execute(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.output, nil
}

func (f *fakeCliAgent) Interrupt() error { return nil }

func TestCliAgentStageUsesResolvedInputAsPromptAndWrapsOutput(t *testing.T) {
	o := New()
	agent := &fakeCliAgent{output: "done"}
	o.RegisterAgent("coder", agent)

	def := Definition{
		ID: "delegate",
		Stages: []Stage{
			{Name: "ask", Kind: CliAgent, AgentID: "coder"},
		},
	}
	require.NoError(t, o.Define(def))

	sub := o.Subscribe()
	execID, err := o.Start("delegate", json.RawMessage(`"please fix the bug"`))
	require.NoError(t, err)

	drainUntil(t, sub, "pipeline-completed", time.Second)
	assert.Equal(t, "please fix the bug", agent.prompt)

	exec, err := o.GetStatus(execID)
	require.NoError(t, err)
	require.Len(t, exec.Results, 1)
	assert.JSONEq(t, `"done"`, string(exec.Results[0].Output))
}

func TestDefineEmptyStagesFails(t *testing.T) {
	o := New()
	err := o.Define(Definition{ID: "empty"})
	assert.ErrorIs(t, err, ErrNoStages)
}

func TestStartUnknownPipelineFails(t *testing.T) {
	o := New()
	_, err := o.Start("nope", nil)
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestGetStatusAndCancelUnknownExecutionFail(t *testing.T) {
	o := New()
	_, err := o.GetStatus("nope")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
	assert.ErrorIs(t, o.Cancel("nope"), ErrExecutionNotFound)
}

func TestStageFailureStopsPipelineWithoutRunningLaterStages(t *testing.T) {
	o := New()
	ran := false
	o.RegisterCallable("boom", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, assertErr
	})
	o.RegisterCallable("never", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		ran = true
		return json.RawMessage(`null`), nil
	})

	def := Definition{ID: "fails", Stages: []Stage{
		{Name: "a", Kind: NativeCallable, Callable: "boom"},
		{Name: "b", Kind: NativeCallable, Callable: "never"},
	}}
	require.NoError(t, o.Define(def))

	sub := o.Subscribe()
	execID, err := o.Start("fails", json.RawMessage(`{}`))
	require.NoError(t, err)

	var sawFailed bool
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case p := <-sub:
			if p.Status == "stage-failed" {
				sawFailed = true
			}
			if p.ExecutionID == execID && (p.Status == "cancelled" || sawFailed) {
				break loop
			}
		case <-deadline:
			t.Fatal("timed out")
		}
	}
	assert.True(t, sawFailed)
	assert.False(t, ran)

	exec, err := o.GetStatus(execID)
	require.NoError(t, err)
	assert.Equal(t, Failed, exec.Status)
}

var assertErr = errTest{"boom"}

type errTest struct{ s string }

func (e errTest) Error() string { return e.s }
