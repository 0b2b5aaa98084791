// Package command implements the Public Command Surface (spec.md §6/§4.7):
// a gin HTTP API fronting every IPC command, and a gorilla/websocket hub
// pushing the three event topics to connected GUIs.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shaharia-lab/acp-runtime/internal/claude"
	"github.com/shaharia-lab/acp-runtime/internal/config"
	"github.com/shaharia-lab/acp-runtime/internal/executor"
	"github.com/shaharia-lab/acp-runtime/internal/logging"
	"github.com/shaharia-lab/acp-runtime/internal/permission"
	"github.com/shaharia-lab/acp-runtime/internal/pipeline"
	"github.com/shaharia-lab/acp-runtime/internal/registry"
)

// managedExecutor pairs an Executor with the session id it is (or will be)
// known by, so the forwarding goroutines started before Start resolves can
// still stamp outgoing events with the right session_id once it does.
type managedExecutor struct {
	exec   *executor.Executor
	policy permission.PolicyName

	mu        sync.RWMutex
	sessionID string
}

func (m *managedExecutor) setSessionID(id string) {
	m.mu.Lock()
	m.sessionID = id
	m.mu.Unlock()
}

func (m *managedExecutor) getSessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// Server wires the Registry, the Pipeline Orchestrator, and a map of
// session_id to Executor (spec.md §9's "Global state" note) behind the
// Command Surface.
type Server struct {
	cfg config.Config
	log *logging.Logger

	reg  *registry.Registry
	pipe *pipeline.Orchestrator

	mu        sync.RWMutex
	executors map[string]*managedExecutor

	hub     *hub
	metrics *metrics

	router *gin.Engine
}

// New builds a Server. reg and pipe are owned by the caller and may already
// be running background tasks (Registry.RunGC, pipeline Subscribe loops).
func New(cfg config.Config, log *logging.Logger, reg *registry.Registry, pipe *pipeline.Orchestrator) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log.Component("command"),
		reg:       reg,
		pipe:      pipe,
		executors: make(map[string]*managedExecutor),
		hub:       newHub(log),
		metrics:   newMetrics(),
	}
	s.router = s.buildRouter()
	return s
}

// Router exposes the underlying gin.Engine, e.g. for tests that want to
// drive it with httptest without a real listener.
func (s *Server) Router() *gin.Engine { return s.router }

// Run starts the websocket hub and the pipeline-progress forwarder, then
// serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.run(ctx)
	go s.forwardPipelineProgress(ctx)

	httpServer := &http.Server{Addr: s.cfg.Command.BindAddr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("command surface listening", zap.String("addr", s.cfg.Command.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeouts.Shutdown)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) forwardPipelineProgress(ctx context.Context) {
	sub := s.pipe.Subscribe()
	starts := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-sub:
			if !ok {
				return
			}
			s.hub.publish("pipeline:progress", p)

			key := fmt.Sprintf("%s/%d", p.ExecutionID, p.StageIndex)
			switch p.Status {
			case "stage-started":
				starts[key] = time.Now()
			case "stage-completed", "stage-failed":
				if started, ok := starts[key]; ok {
					pipelineID := p.ExecutionID
					if exec, err := s.pipe.GetStatus(p.ExecutionID); err == nil {
						pipelineID = exec.PipelineID
					}
					s.metrics.observeStage(pipelineID, p.StageName, p.Status, time.Since(started).Seconds())
					delete(starts, key)
				}
			}
			if p.Status == "pipeline-started" || p.Status == "pipeline-completed" ||
				p.Status == "stage-failed" || p.Status == "cancelled" {
				s.metrics.activePipelines.Set(float64(len(s.pipe.ListActive())))
			}
		}
	}
}

// newManagedExecutor builds a fresh Executor bound to a dedicated Permission
// Manager on the configured default policy, with its state transitions and
// permission-required callbacks wired to the hub under whatever session_id
// it ends up assigned.
func (s *Server) newManagedExecutor() *managedExecutor {
	policy := permission.PolicyName(s.cfg.DefaultPolicy)
	perm := permission.NewManager(policy)

	m := &managedExecutor{policy: policy}

	onPermissionRequired := func(requestID, toolName string, toolInput []byte) {
		s.hub.publish("executor:permission_required", gin.H{
			"session_id": m.getSessionID(),
			"request_id": requestID,
			"tool_name":  toolName,
			"tool_input": json.RawMessage(toolInput),
		})
	}

	execOpts := []executor.Option{
		executor.WithClaudeExecutable(s.cfg.ClaudeExecutable),
		executor.WithOnPermissionRequired(onPermissionRequired),
	}
	if s.cfg.ClaudeModel != "" {
		execOpts = append(execOpts, executor.WithModel(s.cfg.ClaudeModel))
	}
	if s.cfg.SystemPrompt != "" {
		execOpts = append(execOpts, executor.WithSystemPrompt(s.cfg.SystemPrompt))
	}
	if s.cfg.MaxTurns > 0 {
		execOpts = append(execOpts, executor.WithMaxTurns(s.cfg.MaxTurns))
	}
	if s.cfg.Effort != "" {
		execOpts = append(execOpts, executor.WithEffort(claude.EffortLevel(s.cfg.Effort)))
	}
	if s.cfg.Thinking != "" {
		execOpts = append(execOpts, executor.WithThinking(claude.ThinkingMode(s.cfg.Thinking)))
	}
	if s.cfg.FallbackModel != "" {
		execOpts = append(execOpts, executor.WithFallbackModel(s.cfg.FallbackModel))
	}
	if s.cfg.MaxBudgetUSD > 0 {
		execOpts = append(execOpts, executor.WithMaxBudgetUSD(s.cfg.MaxBudgetUSD))
	}

	exec := executor.New(s.cfg.Timeouts, perm, execOpts...)
	m.exec = exec

	go s.forwardStateChanges(m)

	return m
}

func (s *Server) forwardStateChanges(m *managedExecutor) {
	for t := range m.exec.Subscribe() {
		s.hub.publish("executor:state_changed", gin.H{
			"session_id": m.getSessionID(),
			"old_state":  t.Old.Kind,
			"new_state":  t.New.Kind,
		})
	}
}

func (s *Server) lookup(sessionID string) (*managedExecutor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.executors[sessionID]
	return m, ok
}

func (s *Server) register(sessionID string, m *managedExecutor) {
	s.mu.Lock()
	_, restarted := s.executors[sessionID]
	s.executors[sessionID] = m
	s.mu.Unlock()
	if restarted {
		s.metrics.recordRestart(sessionID)
	}
	s.metrics.activeExecutors.Set(float64(s.countExecutors()))
}

func (s *Server) countExecutors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.executors)
}
