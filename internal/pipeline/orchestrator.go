package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaharia-lab/acp-runtime/internal/logging"
)

type execState struct {
	mu              sync.Mutex
	exec            Execution
	cancel          context.CancelFunc
	cancelRequested bool
	currentAgent    cliAgent
}

func (s *execState) snapshot() Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.exec
	cp.Results = append([]StageResult(nil), s.exec.Results...)
	return cp
}

// Orchestrator drives Pipeline Definitions (spec.md §4.6): define once,
// start any number of concurrent Executions, track and cancel them.
type Orchestrator struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	callables   map[string]NativeFunc
	agents      map[string]cliAgent
	executions  map[string]*execState

	hub *Hub
	log *logging.Logger
}

// New builds an empty Orchestrator.
func New() *Orchestrator {
	return &Orchestrator{
		definitions: make(map[string]Definition),
		callables:   make(map[string]NativeFunc),
		agents:      make(map[string]cliAgent),
		executions:  make(map[string]*execState),
		hub:         NewHub(),
		log:         logging.Default().Component("pipeline"),
	}
}

// Subscribe returns a channel receiving every pipeline:progress event
// across every execution this Orchestrator drives.
func (o *Orchestrator) Subscribe() <-chan Progress { return o.hub.Subscribe() }

// Define registers a Pipeline Definition for later Start calls.
func (o *Orchestrator) Define(def Definition) error {
	if len(def.Stages) == 0 {
		return ErrNoStages
	}
	o.mu.Lock()
	o.definitions[def.ID] = def
	o.mu.Unlock()
	return nil
}

// Definitions returns every Pipeline Definition this Orchestrator has
// Define'd, for pipeline_list (spec.md §6).
func (o *Orchestrator) Definitions() []Definition {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Definition, 0, len(o.definitions))
	for _, d := range o.definitions {
		out = append(out, d)
	}
	return out
}

// RegisterCallable makes fn available to NativeCallable stages under name.
func (o *Orchestrator) RegisterCallable(name string, fn NativeFunc) {
	o.mu.Lock()
	o.callables[name] = fn
	o.mu.Unlock()
}

// RegisterAgent binds agentID to an Executor-shaped value for CliAgent
// stages. The caller owns agent's lifecycle (Start/Stop); the Orchestrator
// only calls Execute and Interrupt on it.
func (o *Orchestrator) RegisterAgent(agentID string, agent cliAgent) {
	o.mu.Lock()
	o.agents[agentID] = agent
	o.mu.Unlock()
}

// Start begins executing pipelineID's definition against initialInput,
// returning promptly with a fresh execution id; progress is delivered via
// Subscribe, per spec.md §4.7.
func (o *Orchestrator) Start(pipelineID string, initialInput json.RawMessage) (string, error) {
	o.mu.RLock()
	def, ok := o.definitions[pipelineID]
	o.mu.RUnlock()
	if !ok {
		return "", ErrPipelineNotFound
	}

	execID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	state := &execState{
		cancel: cancel,
		exec: Execution{
			ExecutionID: execID,
			PipelineID:  pipelineID,
			Status:      Running,
			Results:     make([]StageResult, 0, len(def.Stages)),
			StartTime:   time.Now(),
		},
	}

	o.mu.Lock()
	o.executions[execID] = state
	o.mu.Unlock()

	go o.run(ctx, state, def, initialInput)

	return execID, nil
}

// Cancel requests that execID stop between stages, and interrupts its
// currently running CliAgent stage (if any) immediately.
func (o *Orchestrator) Cancel(execID string) error {
	o.mu.RLock()
	state, ok := o.executions[execID]
	o.mu.RUnlock()
	if !ok {
		return ErrExecutionNotFound
	}

	state.mu.Lock()
	state.cancelRequested = true
	agent := state.currentAgent
	state.mu.Unlock()

	state.cancel()
	if agent != nil {
		_ = agent.Interrupt()
	}
	return nil
}

// GetStatus returns a snapshot of execID's Execution.
func (o *Orchestrator) GetStatus(execID string) (Execution, error) {
	o.mu.RLock()
	state, ok := o.executions[execID]
	o.mu.RUnlock()
	if !ok {
		return Execution{}, ErrExecutionNotFound
	}
	return state.snapshot(), nil
}

// List returns a snapshot of every execution this Orchestrator has ever
// started.
func (o *Orchestrator) List() []Execution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Execution, 0, len(o.executions))
	for _, s := range o.executions {
		out = append(out, s.snapshot())
	}
	return out
}

// ListActive returns only executions still Pending or Running.
func (o *Orchestrator) ListActive() []Execution {
	all := o.List()
	out := all[:0]
	for _, e := range all {
		if e.Status == Pending || e.Status == Running {
			out = append(out, e)
		}
	}
	return out
}

func (o *Orchestrator) emit(p Progress) { o.hub.Broadcast(p) }

func (o *Orchestrator) run(ctx context.Context, state *execState, def Definition, initialInput json.RawMessage) {
	n := len(def.Stages)
	execID := state.exec.ExecutionID

	order := make([]string, n)
	for i, s := range def.Stages {
		order[i] = s.Name
	}
	outputs := make(map[string]json.RawMessage, n)

	o.emit(Progress{ExecutionID: execID, Status: "pipeline-started"})

	setStatus := func(s Status) {
		state.mu.Lock()
		state.exec.Status = s
		state.mu.Unlock()
	}

	finalStatus := Completed
	for i, stage := range def.Stages {
		if ctx.Err() != nil {
			finalStatus = Cancelled
			setStatus(Cancelled)
			break
		}

		percent := float64(i) / float64(n) * 100
		o.emit(Progress{ExecutionID: execID, StageIndex: i, StageName: stage.Name, Status: "stage-started", ProgressPercent: percent})

		state.mu.Lock()
		state.exec.CurrentStageIndex = i
		state.mu.Unlock()

		started := time.Now()
		input, err := resolveInput(stage.Input, i, order, outputs, initialInput)
		if err == nil {
			var output json.RawMessage
			output, err = o.runStage(ctx, stage, input, state)
			if err == nil {
				outputs[stage.Name] = output
				o.appendResult(state, StageResult{StageName: stage.Name, Status: Completed, Output: output, StartedAt: started, EndedAt: time.Now()})
				o.emit(Progress{ExecutionID: execID, StageIndex: i, StageName: stage.Name, Status: "stage-completed", ProgressPercent: float64(i+1) / float64(n) * 100})
				continue
			}
		}

		if isCancellation(ctx, state) {
			o.appendResult(state, StageResult{StageName: stage.Name, Status: Cancelled, StartedAt: started, EndedAt: time.Now()})
			finalStatus = Cancelled
			setStatus(Cancelled)
			break
		}

		o.appendResult(state, StageResult{StageName: stage.Name, Status: Failed, Error: err.Error(), StartedAt: started, EndedAt: time.Now()})
		finalStatus = Failed
		setStatus(Failed)
		o.emit(Progress{ExecutionID: execID, StageIndex: i, StageName: stage.Name, Status: "stage-failed", Message: err.Error(), ProgressPercent: percent})
		break
	}

	state.mu.Lock()
	state.exec.EndTime = time.Now()
	if finalStatus == Completed {
		state.exec.Status = Completed
		state.exec.CurrentStageIndex = n
	}
	state.mu.Unlock()

	switch finalStatus {
	case Completed:
		o.emit(Progress{ExecutionID: execID, Status: "pipeline-completed", ProgressPercent: 100})
	case Cancelled:
		o.emit(Progress{ExecutionID: execID, Status: "cancelled"})
	}

	o.log.Info("pipeline execution finished", zap.String("execution_id", execID), zap.String("status", string(finalStatus)))
}

func (o *Orchestrator) appendResult(state *execState, r StageResult) {
	state.mu.Lock()
	state.exec.Results = append(state.exec.Results, r)
	state.mu.Unlock()
}

func isCancellation(ctx context.Context, state *execState) bool {
	if !errors.Is(ctx.Err(), context.Canceled) {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.cancelRequested
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, input json.RawMessage, state *execState) (json.RawMessage, error) {
	switch stage.Kind {
	case NativeCallable:
		o.mu.RLock()
		fn, ok := o.callables[stage.Callable]
		o.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCallable, stage.Callable)
		}
		return fn(ctx, input)

	case CliAgent:
		o.mu.RLock()
		agent, ok := o.agents[stage.AgentID]
		o.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, stage.AgentID)
		}

		state.mu.Lock()
		state.currentAgent = agent
		state.mu.Unlock()
		defer func() {
			state.mu.Lock()
			state.currentAgent = nil
			state.mu.Unlock()
		}()

		out, err := agent.Execute(ctx, promptFromInput(input))
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)

	default:
		return nil, fmt.Errorf("pipeline: unknown stage kind %q", stage.Kind)
	}
}

func promptFromInput(input json.RawMessage) string {
	var s string
	if err := json.Unmarshal(input, &s); err == nil {
		return s
	}
	return string(input)
}
