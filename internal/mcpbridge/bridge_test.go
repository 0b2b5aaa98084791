package mcpbridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/acp-runtime/internal/permission"
)

func TestRequestHumanDecisionAutoAllowUnderPermissive(t *testing.T) {
	b := New(permission.NewManager(permission.Permissive), nil)
	res, _, err := b.requestHumanDecision(context.Background(), nil, &RequestHumanDecisionParams{
		ToolName: "Read", ToolInput: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, `"allow"`)
}

func TestRequestHumanDecisionEscalatesUnderStandard(t *testing.T) {
	var gotID, gotTool string
	b := New(permission.NewManager(permission.Standard), func(requestID, toolName string, _ json.RawMessage) {
		gotID, gotTool = requestID, toolName
	})

	done := make(chan struct{})
	var errOut error
	go func() {
		_, _, errOut = b.requestHumanDecision(context.Background(), nil, &RequestHumanDecisionParams{
			ToolName: "Write", ToolInput: json.RawMessage(`{"path":"/etc/hosts"}`),
		})
		close(done)
	}()

	deadline := time.After(time.Second)
	for gotID == "" {
		select {
		case <-deadline:
			t.Fatal("onRequire never fired")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	assert.Equal(t, "Write", gotTool)

	require.NoError(t, b.Resolve(gotID, true, false, ""))
	<-done
	require.NoError(t, errOut)
}

func TestResolveUnknownRequestFails(t *testing.T) {
	b := New(permission.NewManager(permission.Standard), nil)
	assert.ErrorIs(t, b.Resolve("nope", true, false, ""), ErrNotPending)
}
