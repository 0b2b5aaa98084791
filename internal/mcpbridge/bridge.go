// Package mcpbridge exposes the Permission Manager's RequireHuman decisions
// as a single-tool in-process MCP server, so a CLI child can be pointed at
// it via --permission-prompt-tool-name as an alternative to the escalation
// path in internal/executor, which watches stdout tool_result refusals.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shaharia-lab/acp-runtime/internal/permission"
)

// RequiredFunc is invoked whenever a call to request_human_decision needs
// an outside answer; its contract mirrors executor.PermissionRequiredFunc.
type RequiredFunc func(requestID, toolName string, toolInput json.RawMessage)

type answer struct {
	allow  bool
	always bool
	reason string
}

// Bridge holds the pending RequireHuman requests awaiting a Resolve call.
type Bridge struct {
	perm     *permission.Manager
	onRequire RequiredFunc

	mu      sync.Mutex
	pending map[string]chan answer
}

// New builds a Bridge over perm. onRequire may be nil.
func New(perm *permission.Manager, onRequire RequiredFunc) *Bridge {
	return &Bridge{
		perm:      perm,
		onRequire: onRequire,
		pending:   make(map[string]chan answer),
	}
}

// ErrNotPending is returned by Resolve for a request_id with no call
// currently blocked on it.
var ErrNotPending = fmt.Errorf("mcpbridge: no pending request with that id")

// Resolve answers a pending request_human_decision call. It is the MCP
// bridge's equivalent of executor.SubmitPermission.
func (b *Bridge) Resolve(requestID string, allow, always bool, reason string) error {
	b.mu.Lock()
	ch, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()
	if !ok {
		return ErrNotPending
	}
	ch <- answer{allow: allow, always: always, reason: reason}
	return nil
}

// Server builds the MCP server hosting request_human_decision, ready to be
// passed to claude.StartInProcessMCPServer or claude.ServeStdioMCP.
func (b *Bridge) Server(name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "request_human_decision",
		Description: "Ask the runtime's Permission Manager whether a tool call may proceed.",
	}, b.requestHumanDecision)
	return server
}

// RequestHumanDecisionParams is request_human_decision's input schema.
type RequestHumanDecisionParams struct {
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input"`
}

func (b *Bridge) requestHumanDecision(ctx context.Context, _ *mcp.CallToolRequest, params *RequestHumanDecisionParams) (*mcp.CallToolResult, any, error) {
	decision := b.perm.Classify(params.ToolName, params.ToolInput)

	switch decision.Kind {
	case permission.Allow:
		return textResult(`{"behavior":"allow"}`), nil, nil

	case permission.Deny:
		return textResult(denyJSON(decision.Reason)), nil, nil

	case permission.RequireHuman:
		ch := make(chan answer, 1)
		b.mu.Lock()
		b.pending[decision.RequestID] = ch
		b.mu.Unlock()

		if b.onRequire != nil {
			b.onRequire(decision.RequestID, params.ToolName, params.ToolInput)
		}

		select {
		case a := <-ch:
			if a.always {
				b.perm.Remember(params.ToolName, a.allow)
			}
			if a.allow {
				return textResult(`{"behavior":"allow"}`), nil, nil
			}
			return textResult(denyJSON(a.reason)), nil, nil
		case <-ctx.Done():
			b.mu.Lock()
			delete(b.pending, decision.RequestID)
			b.mu.Unlock()
			return nil, nil, ctx.Err()
		}

	default:
		return textResult(denyJSON("unclassified decision")), nil, nil
	}
}

func denyJSON(reason string) string {
	raw, _ := json.Marshal(map[string]string{"behavior": "deny", "message": reason})
	return string(raw)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
