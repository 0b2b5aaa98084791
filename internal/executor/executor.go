// Package executor drives one CLI coding-assistant subprocess for the
// lifetime of a session: it owns the subprocess, decodes its NDJSON stream
// into state-machine events, and mediates tool-use permission decisions
// through a permission.Manager.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaharia-lab/acp-runtime/internal/claude"
	"github.com/shaharia-lab/acp-runtime/internal/config"
	"github.com/shaharia-lab/acp-runtime/internal/logging"
	"github.com/shaharia-lab/acp-runtime/internal/mcpbridge"
	"github.com/shaharia-lab/acp-runtime/internal/permission"
	"github.com/shaharia-lab/acp-runtime/internal/statemachine"
	"github.com/shaharia-lab/acp-runtime/internal/streamevents"
)

// PermissionRequiredFunc is invoked whenever a tool call escalates to a
// human decision. It is the executor:permission_required event of the
// command surface; Executor itself has no opinion on transport.
type PermissionRequiredFunc func(requestID, toolName string, toolInput []byte)

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithClaudeExecutable overrides the CLI binary path (default "claude").
func WithClaudeExecutable(path string) Option {
	return func(e *Executor) { e.claudeExecutable = path }
}

// WithModel sets the model passed to every spawned CLI session.
func WithModel(model string) Option {
	return func(e *Executor) { e.model = model }
}

// WithSystemPrompt overrides the CLI's system prompt for every spawned session.
func WithSystemPrompt(prompt string) Option {
	return func(e *Executor) { e.systemPrompt = prompt }
}

// WithMaxTurns caps the number of agentic turns per session.
func WithMaxTurns(n int) Option {
	return func(e *Executor) { e.maxTurns = n }
}

// WithEffort sets the CLI's reasoning effort level for every spawned session.
func WithEffort(level claude.EffortLevel) Option {
	return func(e *Executor) { e.effort = level }
}

// WithThinking sets the CLI's extended thinking mode for every spawned session.
func WithThinking(mode claude.ThinkingMode) Option {
	return func(e *Executor) { e.thinking = mode }
}

// WithFallbackModel sets the model the CLI falls back to when the primary
// model is unavailable.
func WithFallbackModel(model string) Option {
	return func(e *Executor) { e.fallbackModel = model }
}

// WithMaxBudgetUSD caps the cost of a single session.
func WithMaxBudgetUSD(usd float64) Option {
	return func(e *Executor) { e.maxBudgetUSD = usd }
}

// WithMCPPermissionBridge points every spawned session's tool-permission
// decisions at bridge's request_human_decision MCP tool instead of running
// the CLI fully permissive. Mutually exclusive in effect with the default
// bypass-permissions session: once set, the Executor's own stdout
// tool_result escalation path (handleToolResult) still runs, but the CLI
// itself asks the bridge before attempting a tool call.
func WithMCPPermissionBridge(bridge *mcpbridge.Bridge) Option {
	return func(e *Executor) { e.mcpBridge = bridge }
}

// WithSessionFactory overrides how subprocess sessions are spawned. Tests
// use this to inject a fake session and replay literal fixtures.
func WithSessionFactory(f sessionFactory) Option {
	return func(e *Executor) { e.newSession = f }
}

// WithPermissionRefusalPattern overrides the matcher (by default a regex)
// used to recognise a tool_result's content as a permission-refusal signature.
func WithPermissionRefusalPattern(matches func(content string) bool) Option {
	return func(e *Executor) { e.isRefusal = matches }
}

// WithOnPermissionRequired registers the callback fired on escalation to a
// human decision.
func WithOnPermissionRequired(fn PermissionRequiredFunc) Option {
	return func(e *Executor) { e.onPermissionRequired = fn }
}

// HookSet configures the CLI's lifecycle hook callbacks for one Start call.
type HookSet map[claude.HookEvent][]claude.HookMatcher

// StartOption configures a single Start call.
type StartOption func(*startConfig)

type startConfig struct {
	hooks HookSet
}

// WithHooks forwards caller-supplied hook callbacks to the CLI's initialize
// control request, in addition to the always-registered Stop hook that
// flushes any permission decision still awaiting a human answer.
func WithHooks(hooks HookSet) StartOption {
	return func(c *startConfig) { c.hooks = hooks }
}

// Executor owns one CLI child process for the lifetime of a session (spec
// §4.4). Zero value is not usable; construct with New.
type Executor struct {
	claudeExecutable string
	model            string
	systemPrompt     string
	maxTurns         int
	effort           claude.EffortLevel
	thinking         claude.ThinkingMode
	fallbackModel    string
	maxBudgetUSD     float64
	mcpBridge        *mcpbridge.Bridge
	newSession       sessionFactory
	isRefusal        func(content string) bool
	onPermissionRequired PermissionRequiredFunc

	timeouts config.Timeouts
	perm     *permission.Manager
	log      *logging.Logger

	mu          sync.Mutex
	sess        session
	machine     *statemachine.Machine
	sessionID   string
	executing   bool
	cancelRead  context.CancelFunc
	readerDone  chan struct{}
	pendingTool map[string]toolRecord
	pendingPerm map[string]*pendingPermission
}

// New constructs an Executor bound to perm for tool-call classification.
func New(timeouts config.Timeouts, perm *permission.Manager, opts ...Option) *Executor {
	e := &Executor{
		claudeExecutable: "claude",
		timeouts:         timeouts,
		perm:             perm,
		log:              logging.Default().Component("executor"),
		isRefusal:        defaultPermissionRefusalPattern.MatchString,
		pendingTool:      make(map[string]toolRecord),
		pendingPerm:      make(map[string]*pendingPermission),
		machine:          statemachine.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newSession == nil {
		e.newSession = defaultSessionFactory(sessionSettings{
			claudeExecutable: e.claudeExecutable,
			model:            e.model,
			systemPrompt:     e.systemPrompt,
			maxTurns:         e.maxTurns,
			effort:           e.effort,
			thinking:         e.thinking,
			fallbackModel:    e.fallbackModel,
			maxBudgetUSD:     e.maxBudgetUSD,
			mcpBridge:        e.mcpBridge,
		})
	}
	return e
}

// Subscribe exposes the underlying state machine's transition broadcast for
// the command surface's executor:state_changed topic.
func (e *Executor) Subscribe() <-chan statemachine.Transition {
	return e.machine.Subscribe()
}

// GetState returns an atomic snapshot of the agent's current state.
func (e *Executor) GetState() statemachine.State {
	return e.machine.Snapshot()
}

// IsRunning reports whether a subprocess session is currently owned.
func (e *Executor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil
}

// Start spawns the CLI child, scrubbing nested-invocation environment
// variables (internal/claude's buildEnv), and waits for the first
// System{subtype:init} event before returning the resolved session_id.
func (e *Executor) Start(ctx context.Context, workingDir string, allowedTools []string, sessionID string, opts ...StartOption) (string, error) {
	e.mu.Lock()
	if e.sess != nil {
		e.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	e.mu.Unlock()

	cfg := &startConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	hooks := e.withStopHook(cfg.hooks)

	readCtx, cancel := context.WithCancel(context.Background())
	sess, err := e.newSession(readCtx, workingDir, allowedTools, sessionID, hooks)
	if err != nil {
		cancel()
		return "", fmt.Errorf("executor: start: %w", err)
	}

	ready := make(chan string, 1)
	readerDone := make(chan struct{})

	e.mu.Lock()
	e.sess = sess
	e.cancelRead = cancel
	e.readerDone = readerDone
	e.mu.Unlock()

	go e.readLoop(sess, ready, readerDone)

	select {
	case sid := <-ready:
		if sid == "" {
			sid = uuid.NewString()
		}
		e.mu.Lock()
		e.sessionID = sid
		e.mu.Unlock()
		return sid, nil
	case <-time.After(e.timeouts.Init):
		_ = sess.Close()
		e.mu.Lock()
		e.sess = nil
		e.mu.Unlock()
		return "", ErrInitializationTimeout
	case <-ctx.Done():
		_ = sess.Close()
		e.mu.Lock()
		e.sess = nil
		e.mu.Unlock()
		return "", ctx.Err()
	}
}

// withStopHook merges the caller's hooks with a Stop hook that flushes any
// permission decision still awaiting a human answer, so a CLI turn that
// stops without a submitPermission call never leaves Execute blocked.
func (e *Executor) withStopHook(hooks HookSet) HookSet {
	merged := make(HookSet, len(hooks)+1)
	for event, matchers := range hooks {
		merged[event] = matchers
	}
	stop := claude.HookFunc(func(_ claude.HookEvent, _ json.RawMessage, _ string) (*claude.HookOutput, error) {
		e.flushPendingPermissions()
		return nil, nil
	})
	merged[claude.HookEventStop] = append(merged[claude.HookEventStop], claude.HookMatcher{Hooks: []claude.HookFunc{stop}})
	return merged
}

// flushPendingPermissions denies every permission decision still awaiting a
// human answer, unblocking the Execute call waiting on it.
func (e *Executor) flushPendingPermissions() {
	e.mu.Lock()
	pending := e.pendingPerm
	e.pendingPerm = make(map[string]*pendingPermission)
	e.mu.Unlock()

	for _, p := range pending {
		p.answer <- permissionAnswer{allow: false}
	}
}

// Execute runs one prompt to completion. Only Idle or Completed states
// accept a new prompt; any other state fails NotReady, and a prompt already
// in flight fails Busy (spec §4.4 concurrency contract).
func (e *Executor) Execute(ctx context.Context, prompt string) (string, error) {
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return "", ErrNotRunning
	}
	if e.executing {
		e.mu.Unlock()
		return "", ErrBusy
	}
	snap := e.machine.Snapshot()
	if snap.Kind != statemachine.Idle && snap.Kind != statemachine.Completed {
		e.mu.Unlock()
		return "", ErrNotReady
	}
	e.executing = true
	sess := e.sess
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.executing = false
		e.mu.Unlock()
	}()

	sub := e.machine.Subscribe()
	e.machine.Apply(statemachine.Event{Kind: statemachine.TaskStarted, Prompt: prompt})

	if err := sess.Send(prompt); err != nil {
		e.machine.Apply(statemachine.Event{Kind: statemachine.ErrorOccurred, Message: err.Error(), Recoverable: false})
		return "", fmt.Errorf("executor: send prompt: %w", err)
	}

	timer := time.NewTimer(e.timeouts.Prompt)
	defer timer.Stop()

	for {
		select {
		case tr, ok := <-sub:
			if !ok {
				return "", ErrNotRunning
			}
			switch tr.New.Kind {
			case statemachine.Completed:
				return tr.New.LastOutput, nil
			case statemachine.ErrorState:
				return "", &TaskError{Message: tr.New.Message, Recoverable: tr.New.Recoverable}
			}
		case <-timer.C:
			_ = sess.Interrupt()
			e.machine.Apply(statemachine.Event{
				Kind: statemachine.ErrorOccurred, Message: "task timeout", Recoverable: true,
			})
			return "", ErrTaskTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// SubmitPermission resolves a pending RequireHuman decision raised while
// processing a ToolResult refusal.
func (e *Executor) SubmitPermission(requestID string, allow, always bool) error {
	e.mu.Lock()
	p, ok := e.pendingPerm[requestID]
	if ok {
		delete(e.pendingPerm, requestID)
	}
	e.mu.Unlock()
	if !ok {
		return ErrPermissionNotPending
	}
	p.answer <- permissionAnswer{allow: allow, always: always}
	return nil
}

// Stop tears down the subprocess session (stdin EOF, SIGTERM, then SIGKILL
// handled inside internal/claude's Close) and flips the state machine to a
// terminal, unrecoverable error so observers see a final transition, then
// closes every channel returned by Subscribe.
func (e *Executor) Stop() error {
	e.mu.Lock()
	sess := e.sess
	cancel := e.cancelRead
	done := e.readerDone
	e.sess = nil
	e.cancelRead = nil
	e.mu.Unlock()

	if sess == nil {
		return ErrNotRunning
	}
	err := sess.Close()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	e.machine.Apply(statemachine.Event{Kind: statemachine.ErrorOccurred, Message: "executor stopped", Recoverable: false})
	e.machine.Close()
	return err
}

// Interrupt calls the session's Interrupt, used by a pipeline to cancel a
// CliAgent stage in flight. For a claude.Session that is the same graceful
// shutdown as Close (stdin closed, SIGTERM, then SIGKILL), so the subprocess
// ends; unlike Stop, it leaves the Executor's session field set. It does
// not itself wait for or apply a resulting state transition; the prompt
// timeout / ErrorOccurred path in Execute observes the consequence.
func (e *Executor) Interrupt() error {
	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess == nil {
		return ErrNotRunning
	}
	return sess.Interrupt()
}

func (e *Executor) SetModel(model string) error {
	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess == nil {
		return ErrNotRunning
	}
	return sess.SetModel(model)
}

func (e *Executor) SetPermissionMode(mode claude.PermissionMode) error {
	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess == nil {
		return ErrNotRunning
	}
	return sess.SetPermissionMode(mode)
}

func (e *Executor) SetMaxThinkingTokens(n int) error {
	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess == nil {
		return ErrNotRunning
	}
	return sess.SetMaxThinkingTokens(n)
}

// readLoop decodes every stdout line the subprocess emits (via its raw JSON,
// streamevents.Decode) and applies the resulting state events. It runs for
// the lifetime of the session, stopping only when sess.Events() closes.
func (e *Executor) readLoop(sess session, ready chan<- string, done chan<- struct{}) {
	defer close(done)

	initialized := false

	for ev := range sess.Events() {
		for _, sev := range streamevents.Decode(ev.Raw) {
			switch sev.Kind {
			case streamevents.KindSystem:
				if sev.System != nil && sev.System.Subtype == "init" && !initialized {
					initialized = true
					e.machine.Apply(statemachine.Event{Kind: statemachine.Initialized})
					select {
					case ready <- sev.System.SessionID:
					default:
					}
				}

			case streamevents.KindToolUse:
				if sev.ToolUse == nil {
					continue
				}
				e.mu.Lock()
				e.pendingTool[sev.ToolUse.ID] = toolRecord{name: sev.ToolUse.Name, input: sev.ToolUse.Input}
				e.mu.Unlock()
				e.machine.Apply(statemachine.Event{Kind: statemachine.ToolUseStarted, ToolName: sev.ToolUse.Name})

			case streamevents.KindToolResult:
				if sev.ToolResult == nil {
					continue
				}
				e.handleToolResult(sess, *sev.ToolResult)

			case streamevents.KindResult:
				if sev.Result == nil {
					continue
				}
				if sev.Result.IsError {
					msg := sev.Result.Subtype
					if len(sev.Result.Errors) > 0 {
						msg = strings.Join(sev.Result.Errors, "; ")
					}
					e.machine.Apply(statemachine.Event{Kind: statemachine.ErrorOccurred, Message: msg, Recoverable: true})
				} else {
					e.machine.Apply(statemachine.Event{Kind: statemachine.TaskCompleted, Output: sev.Result.Output})
				}

			case streamevents.KindError:
				e.log.Warn("stream parse error", zap.String("detail", sev.Error.Detail))
			}
		}
	}

	if !initialized {
		select {
		case ready <- "":
		default:
		}
	}
}

func (e *Executor) handleToolResult(sess session, tr streamevents.ToolResult) {
	e.mu.Lock()
	rec, known := e.pendingTool[tr.ToolUseID]
	delete(e.pendingTool, tr.ToolUseID)
	e.mu.Unlock()

	if !tr.IsError || !known || !e.isRefusal(tr.Content) {
		name := rec.name
		e.machine.Apply(statemachine.Event{Kind: statemachine.ToolUseCompleted, ToolName: name, Success: !tr.IsError})
		return
	}

	decision := e.perm.Classify(rec.name, rec.input)
	switch decision.Kind {
	case permission.Allow:
		e.machine.Apply(statemachine.Event{Kind: statemachine.ToolUseCompleted, ToolName: rec.name, Success: true})
		_ = e.writePermissionToken(sess, "", true)

	case permission.Deny:
		e.machine.Apply(statemachine.Event{Kind: statemachine.ToolUseCompleted, ToolName: rec.name, Success: false})
		_ = e.writePermissionToken(sess, "", false)

	case permission.RequireHuman:
		e.machine.Apply(statemachine.Event{
			Kind: statemachine.PermissionRequired, ToolName: rec.name, ToolInput: rec.input, RequestID: decision.RequestID,
		})

		answerCh := make(chan permissionAnswer, 1)
		e.mu.Lock()
		e.pendingPerm[decision.RequestID] = &pendingPermission{toolName: rec.name, toolInput: rec.input, answer: answerCh}
		e.mu.Unlock()

		if e.onPermissionRequired != nil {
			e.onPermissionRequired(decision.RequestID, rec.name, rec.input)
		}

		answer := <-answerCh
		if answer.always {
			e.perm.Remember(rec.name, answer.allow)
		}
		if answer.allow {
			e.machine.Apply(statemachine.Event{Kind: statemachine.PermissionGranted, RequestID: decision.RequestID})
		} else {
			e.machine.Apply(statemachine.Event{Kind: statemachine.PermissionDenied, RequestID: decision.RequestID, Reason: "denied by operator"})
		}
		_ = e.writePermissionToken(sess, decision.RequestID, answer.allow)
	}
}

// writePermissionToken writes the grant/deny token for requestID to the
// subprocess's stdin. The reference CLI's wire form for this token is not
// specified (spec §6: "tokens whose exact form is defined by the CLI's own
// protocol"); this sends a compact, human-auditable line that a
// structurally-similar CLI can special-case, and is a safe no-op prompt for
// CLIs that have already moved past the refusal on their own.
func (e *Executor) writePermissionToken(sess session, requestID string, allow bool) error {
	verb := "deny"
	if allow {
		verb = "allow"
	}
	if requestID == "" {
		return sess.Send(fmt.Sprintf("/permission %s", verb))
	}
	return sess.Send(fmt.Sprintf("/permission %s %s", requestID, verb))
}
