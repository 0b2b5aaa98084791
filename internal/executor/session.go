package executor

import (
	"context"
	"fmt"

	"github.com/shaharia-lab/acp-runtime/internal/claude"
	"github.com/shaharia-lab/acp-runtime/internal/mcpbridge"
)

// session is the subset of *claude.Session the Executor depends on. Defining
// it as an interface (rather than taking *claude.Session directly) lets
// tests substitute a fake subprocess and replay literal NDJSON fixtures
// without actually spawning a CLI child.
type session interface {
	Events() <-chan claude.Event
	Send(prompt string) error
	Close() error
	Interrupt() error
	SetModel(model string) error
	SetPermissionMode(mode claude.PermissionMode) error
	SetMaxThinkingTokens(n int) error
}

// sessionFactory spawns a new session bound to workingDir, restricted to
// allowedTools, optionally resuming sessionID, with hooks wired into the
// CLI's initialize control request.
type sessionFactory func(ctx context.Context, workingDir string, allowedTools []string, sessionID string, hooks HookSet) (session, error)

// sessionSettings collects the per-deployment CLI invocation knobs an
// operator configures once (spec §5's config surface), as opposed to the
// per-call parameters sessionFactory itself takes.
type sessionSettings struct {
	claudeExecutable string
	model            string
	systemPrompt     string
	maxTurns         int
	effort           claude.EffortLevel
	thinking         claude.ThinkingMode
	fallbackModel    string
	maxBudgetUSD     float64

	// mcpBridge, when set, points the CLI at the Permission Manager's
	// request_human_decision MCP tool instead of running fully permissive
	// (spec's "MCP permission bridge" escalation path, an alternative to
	// the stdout tool_result refusal path the Executor watches by default).
	mcpBridge *mcpbridge.Bridge
}

const mcpBridgeServerName = "acp-runtime-permissions"

// defaultSessionFactory spawns a real claude CLI subprocess via the
// persistent Session type.
func defaultSessionFactory(settings sessionSettings) sessionFactory {
	return func(ctx context.Context, workingDir string, allowedTools []string, sessionID string, hooks HookSet) (session, error) {
		opts := []claude.Option{
			claude.WithClaudeExecutable(settings.claudeExecutable),
		}
		if settings.mcpBridge != nil {
			mcpCfg, err := claude.StartInProcessMCPServer(ctx, mcpBridgeServerName, settings.mcpBridge.Server(mcpBridgeServerName, "1.0"))
			if err != nil {
				return nil, fmt.Errorf("executor: start mcp permission bridge: %w", err)
			}
			opts = append(opts,
				claude.WithMcpServers(map[string]any{mcpBridgeServerName: mcpCfg}),
				claude.WithPermissionPromptToolName(fmt.Sprintf("mcp__%s__request_human_decision", mcpBridgeServerName)),
				claude.WithPermissionMode(claude.PermissionModeDefault),
			)
		} else {
			opts = append(opts, claude.WithBypassPermissions())
		}
		if workingDir != "" {
			opts = append(opts, claude.WithCWD(workingDir))
		}
		if len(allowedTools) > 0 {
			opts = append(opts, claude.WithAllowedTools(allowedTools...))
		}
		if sessionID != "" {
			opts = append(opts, claude.WithSessionID(sessionID))
		}
		if len(hooks) > 0 {
			opts = append(opts, claude.WithHooks(hooks))
		}
		if settings.model != "" {
			opts = append(opts, claude.WithModel(settings.model))
		}
		if settings.systemPrompt != "" {
			opts = append(opts, claude.WithSystemPrompt(settings.systemPrompt))
		}
		if settings.maxTurns > 0 {
			opts = append(opts, claude.WithMaxTurns(settings.maxTurns))
		}
		if settings.effort != "" {
			opts = append(opts, claude.WithEffort(settings.effort))
		}
		if settings.thinking != "" {
			opts = append(opts, claude.WithThinking(settings.thinking))
		}
		if settings.fallbackModel != "" {
			opts = append(opts, claude.WithFallbackModel(settings.fallbackModel))
		}
		if settings.maxBudgetUSD > 0 {
			opts = append(opts, claude.WithMaxBudgetUSD(settings.maxBudgetUSD))
		}
		return claude.NewSession(ctx, opts...)
	}
}
