// Package engine drives workflow executions: dependency-ordered dispatch
// over a validated step graph, an explicit status state machine, and a
// cooperative pause/resume/cancel control plane. One goroutine drives one
// execution; the store is written after every step and transition.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stepflow-io/stepflow/internal/executors"
	"github.com/stepflow-io/stepflow/internal/expressions"
	"github.com/stepflow-io/stepflow/internal/store"
	"github.com/stepflow-io/stepflow/pkg/schema"
)

// Catalog resolves workflow definitions by ID. Implementations live in
// internal/catalog; the engine only needs lookup.
type Catalog interface {
	GetDefinition(ctx context.Context, workflowID string) (*schema.WorkflowDefinition, error)
}

// DefaultPoolSize is the default number of concurrently hosted executions.
const DefaultPoolSize = 10

// Config holds engine tuning knobs.
type Config struct {
	PoolSize int // max concurrent asynchronous executions
}

// ExecutionResult is the outcome of a completed (or terminated) run.
type ExecutionResult struct {
	ExecutionID string                       `json:"execution_id"`
	WorkflowID  string                       `json:"workflow_id"`
	Status      schema.ExecutionStatus       `json:"status"`
	Progress    int                          `json:"progress"`
	Results     map[string]schema.StepResult `json:"results"`
	Context     *schema.WorkflowContext      `json:"context,omitempty"`
	Error       *schema.EngineError          `json:"error,omitempty"`
	StartedAt   time.Time                    `json:"started_at"`
	CompletedAt *time.Time                   `json:"completed_at,omitempty"`
}

// Engine coordinates workflow executions.
type Engine struct {
	catalog  Catalog
	store    store.ExecutionStore
	registry *executors.Registry
	cel      *expressions.CELEngine
	pool     *WorkerPool
	logger   *slog.Logger
	config   Config

	// mu guards running.
	mu      sync.Mutex
	running map[string]*executionRun
}

// executionRun is the control gate for one in-flight execution. The driving
// goroutine polls it between steps; control-plane calls flip flags from
// other goroutines and wake a paused run.
type executionRun struct {
	executionID string

	mu        sync.Mutex
	pauseReq  bool
	cancelReq bool
	wake      chan struct{}
}

func newExecutionRun(executionID string) *executionRun {
	return &executionRun{
		executionID: executionID,
		wake:        make(chan struct{}, 1),
	}
}

func (r *executionRun) requestPause() {
	r.mu.Lock()
	r.pauseReq = true
	r.mu.Unlock()
}

func (r *executionRun) requestResume() {
	r.mu.Lock()
	r.pauseReq = false
	r.mu.Unlock()
	r.signal()
}

func (r *executionRun) requestCancel() {
	r.mu.Lock()
	r.cancelReq = true
	r.mu.Unlock()
	r.signal()
}

func (r *executionRun) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// poll returns the pending control request, cancel taking precedence.
func (r *executionRun) poll() (cancel, pause bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelReq, r.pauseReq
}

// NewEngine creates an Engine. catalog may be nil when only the
// definition-scoped surface (ExecuteWorkflow, ExecuteStep) is used.
func NewEngine(catalog Catalog, st store.ExecutionStore, registry *executors.Registry, cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"construct condition engine: %s", err.Error()).WithCause(err)
	}

	return &Engine{
		catalog:  catalog,
		store:    st,
		registry: registry,
		cel:      cel,
		pool:     NewWorkerPool(cfg.PoolSize),
		logger:   logger,
		config:   cfg,
		running:  make(map[string]*executionRun),
	}, nil
}

// Shutdown stops accepting new asynchronous executions and waits for
// in-flight runs to finish.
func (e *Engine) Shutdown() {
	e.pool.Shutdown()
}

// ExecuteWorkflow runs a definition synchronously against the given context
// and returns the terminal result. The definition does not need to be in
// the catalog, but it is structurally validated before any record exists.
func (e *Engine) ExecuteWorkflow(ctx context.Context, def *schema.WorkflowDefinition, wfCtx *schema.WorkflowContext) (*ExecutionResult, error) {
	g, err := BuildGraph(def)
	if err != nil {
		return nil, err
	}
	if wfCtx == nil {
		wfCtx = schema.NewWorkflowContext("", "", nil)
	}

	rec := newRecord(def.ID, wfCtx)
	if err := e.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	run := newExecutionRun(rec.ExecutionID)
	e.register(run)
	defer e.unregister(run)

	return e.drive(ctx, run, g, def, rec, wfCtx)
}

// CreateExecution looks up a workflow in the catalog, validates it, and
// persists a PENDING record without running anything.
func (e *Engine) CreateExecution(ctx context.Context, workflowID string, seed map[string]any) (*schema.ExecutionRecord, error) {
	def, err := e.catalog.GetDefinition(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if _, err := BuildGraph(def); err != nil {
		return nil, err
	}

	wfCtx := schema.NewWorkflowContext("", "", seed)
	rec := newRecord(def.ID, wfCtx)
	if err := e.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// StartExecution creates an execution and runs it asynchronously on the
// worker pool. Returns the execution ID immediately.
func (e *Engine) StartExecution(ctx context.Context, workflowID string, seed map[string]any) (string, error) {
	rec, err := e.CreateExecution(ctx, workflowID, seed)
	if err != nil {
		return "", err
	}

	if err := e.submitRun(ctx, rec.ExecutionID, workflowID); err != nil {
		return "", err
	}
	return rec.ExecutionID, nil
}

// submitRun hosts an execution run on the pool. The run outlives the
// caller's request context.
func (e *Engine) submitRun(ctx context.Context, executionID, workflowID string) error {
	runCtx := context.WithoutCancel(ctx)
	return e.pool.Submit(runCtx, func(ctx context.Context) error {
		_, err := e.runExecution(ctx, executionID, workflowID)
		if err != nil {
			e.logger.Error("execution run failed",
				"execution_id", executionID,
				"workflow_id", workflowID,
				"error", err)
		}
		return err
	})
}

// runExecution loads a persisted record and drives it to a terminal (or
// paused) state. It is the single writer for its execution ID.
func (e *Engine) runExecution(ctx context.Context, executionID, workflowID string) (*ExecutionResult, error) {
	rec, err := e.store.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	def, err := e.catalog.GetDefinition(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	g, err := BuildGraph(def)
	if err != nil {
		return nil, err
	}

	wfCtx := rec.Context
	if wfCtx == nil {
		wfCtx = schema.NewWorkflowContext("", "", nil)
		rec.Context = wfCtx
	}

	run := newExecutionRun(executionID)
	e.register(run)
	defer e.unregister(run)

	return e.drive(ctx, run, g, def, rec, wfCtx)
}

// drive is the execution loop: poll the control gate, pick the next ready
// step, dispatch, merge, persist. Exactly one goroutine runs drive per
// execution ID.
func (e *Engine) drive(ctx context.Context, run *executionRun, g *Graph, def *schema.WorkflowDefinition, rec *schema.ExecutionRecord, wfCtx *schema.WorkflowContext) (*ExecutionResult, error) {
	log := e.logger.With("execution_id", rec.ExecutionID, "workflow_id", rec.WorkflowID)

	if rec.Status == schema.ExecutionStatusPending {
		if err := e.transitionAndSave(ctx, rec, schema.ExecutionStatusRunning); err != nil {
			return nil, err
		}
	}
	log.Info("execution started", "steps", len(g.Order))

	// A re-hydrated record may already hold a failed result recorded by
	// a single-step run; nothing further should dispatch.
	if id, ok := failedStepID(rec.StepResults, g.Order); ok {
		engErr := schema.NewErrorf(schema.ErrCodeExecution,
			"step %s recorded a failed result", id).WithStep(id)
		return e.finalizeFailure(ctx, rec, log, engErr)
	}

	for {
		// Control gate checkpoint. Cancel wins over pause.
		cancelReq, pauseReq := run.poll()
		if cancelReq {
			return e.finalizeCancel(ctx, rec, log)
		}
		if pauseReq {
			res, done, err := e.holdPaused(ctx, run, rec, log)
			if done || err != nil {
				return res, err
			}
		}

		stepID, ok := g.NextReady(rec.StepResults)
		if !ok {
			break
		}
		step := g.Steps[stepID]
		rec.CurrentStep = stepID

		skip, reason, err := e.shouldSkip(ctx, step, rec, wfCtx)
		if err != nil {
			return e.finalizeFailure(ctx, rec, log, toEngineErr(err, stepID))
		}
		if skip {
			log.Info("step skipped", "step_id", stepID, "reason", reason)
			rec.StepResults[stepID] = schema.StepResult{
				Status:     schema.StepResultSkipped,
				Output:     map[string]any{"reason": reason},
				ExecutedAt: time.Now().UTC(),
			}
			if err := e.saveProgress(ctx, rec, len(g.Order)); err != nil {
				return nil, err
			}
			continue
		}

		result, execErr := e.dispatch(ctx, step, wfCtx, rec.StepResults)
		if execErr != nil {
			engErr := toEngineErr(execErr, stepID)
			log.Warn("step failed", "step_id", stepID, "code", engErr.Code, "error", engErr.Message)
			rec.StepResults[stepID] = schema.StepResult{
				Status:     schema.StepResultFailed,
				Error:      engErr.Error(),
				ExecutedAt: time.Now().UTC(),
			}
			rec.Progress = rec.ComputeProgress(len(g.Order))
			return e.finalizeFailure(ctx, rec, log, engErr)
		}

		// Executors report failure either as a Go error or as a result
		// with failed status; both terminate the run.
		if result.Status == schema.StepResultFailed {
			if result.ExecutedAt.IsZero() {
				result.ExecutedAt = time.Now().UTC()
			}
			msg := result.Error
			if msg == "" {
				msg = "executor reported failed status"
			}
			engErr := schema.NewError(schema.ErrCodeExecution, msg).WithStep(stepID)
			log.Warn("step failed", "step_id", stepID, "error", msg)
			rec.StepResults[stepID] = *result
			rec.Progress = rec.ComputeProgress(len(g.Order))
			return e.finalizeFailure(ctx, rec, log, engErr)
		}

		log.Info("step completed", "step_id", stepID, "status", result.Status)
		rec.StepResults[stepID] = *result
		if len(result.Output) > 0 {
			if err := wfCtx.Merge(result.Output); err != nil {
				return e.finalizeFailure(ctx, rec, log,
					schema.NewErrorf(schema.ErrCodeExecution, "merge step output: %s", err.Error()).WithStep(stepID))
			}
		}
		if err := e.saveProgress(ctx, rec, len(g.Order)); err != nil {
			return nil, err
		}
	}

	// No step is ready. All recorded and none failed means done; a
	// pre-recorded failed result (e.g. via RunStep before a resume) still
	// fails the run, and anything else is a dispatch invariant violation.
	if id, ok := failedStepID(rec.StepResults, g.Order); ok {
		rec.CurrentStep = ""
		engErr := schema.NewErrorf(schema.ErrCodeExecution,
			"step %s recorded a failed result", id).WithStep(id)
		return e.finalizeFailure(ctx, rec, log, engErr)
	}
	if len(rec.StepResults) == len(g.Order) {
		rec.CurrentStep = ""
		if err := e.transitionAndSave(ctx, rec, schema.ExecutionStatusCompleted); err != nil {
			return nil, err
		}
		log.Info("execution completed", "progress", rec.Progress)
		return resultFromRecord(rec, nil), nil
	}
	engErr := schema.NewError(schema.ErrCodeExecution, "no ready step but execution is incomplete")
	return e.finalizeFailure(ctx, rec, log, engErr)
}

// holdPaused persists the paused status and blocks until resumed or
// cancelled. Returns done=true when the caller should return res.
func (e *Engine) holdPaused(ctx context.Context, run *executionRun, rec *schema.ExecutionRecord, log *slog.Logger) (res *ExecutionResult, done bool, err error) {
	if err := e.transitionAndSave(ctx, rec, schema.ExecutionStatusPaused); err != nil {
		return nil, true, err
	}
	log.Info("execution paused", "current_step", rec.CurrentStep)

	for {
		select {
		case <-ctx.Done():
			return nil, true, ctx.Err()
		case <-run.wake:
		}

		cancelReq, pauseReq := run.poll()
		if cancelReq {
			res, err := e.finalizeCancel(ctx, rec, log)
			return res, true, err
		}
		if pauseReq {
			continue // spurious wake
		}

		if err := e.transitionAndSave(ctx, rec, schema.ExecutionStatusRunning); err != nil {
			return nil, true, err
		}
		log.Info("execution resumed", "current_step", rec.CurrentStep)
		return nil, false, nil
	}
}

// dispatch resolves the executor for a step type and runs it.
func (e *Engine) dispatch(ctx context.Context, step *schema.WorkflowStep, wfCtx *schema.WorkflowContext, prior map[string]schema.StepResult) (*schema.StepResult, error) {
	exec, err := e.registry.Get(step.Type)
	if err != nil {
		return nil, err
	}
	return exec.Execute(ctx, step, wfCtx, prior)
}

// shouldSkip evaluates a step's CEL condition guard and its
// applies_to_decision routing. A skipped step still satisfies its
// dependents' readiness.
func (e *Engine) shouldSkip(ctx context.Context, step *schema.WorkflowStep, rec *schema.ExecutionRecord, wfCtx *schema.WorkflowContext) (bool, string, error) {
	if step.Condition != "" && e.cel != nil {
		data := map[string]any{
			"data":  wfCtx.Data(),
			"steps": stepViews(rec.StepResults),
			"workflow": map[string]any{
				"workflow_id":  rec.WorkflowID,
				"execution_id": rec.ExecutionID,
			},
		}
		ok, err := e.cel.EvaluateBool(ctx, step.Condition, data)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return true, "condition not met", nil
		}
	}

	if want := step.ConfigString("applies_to_decision"); want != "" {
		decision, found := resolveDecision(step, rec.StepResults)
		if found && decision != want {
			return true, "decision mismatch: " + decision, nil
		}
	}

	return false, "", nil
}

// resolveDecision finds the decision governing a step: the most recent
// decision among its direct dependencies, falling back to the most recent
// decision recorded anywhere in the execution.
func resolveDecision(step *schema.WorkflowStep, results map[string]schema.StepResult) (string, bool) {
	pick := func(ids []string) (string, bool) {
		var decision string
		var at time.Time
		for _, id := range ids {
			sr, ok := results[id]
			if !ok || sr.Decision == "" {
				continue
			}
			if decision == "" || sr.ExecutedAt.After(at) {
				decision, at = sr.Decision, sr.ExecutedAt
			}
		}
		return decision, decision != ""
	}

	if d, ok := pick(step.Dependencies); ok {
		return d, true
	}
	all := make([]string, 0, len(results))
	for id := range results {
		all = append(all, id)
	}
	return pick(all)
}

// stepViews projects recorded results into the shape guard expressions see:
// the step's output map plus status and decision.
func stepViews(results map[string]schema.StepResult) map[string]any {
	out := make(map[string]any, len(results))
	for id, sr := range results {
		view := make(map[string]any, len(sr.Output)+2)
		for k, v := range sr.Output {
			view[k] = v
		}
		view["status"] = string(sr.Status)
		if sr.Decision != "" {
			view["decision"] = sr.Decision
		}
		out[id] = view
	}
	return out
}

// ExecuteStep runs a single step of a definition with no readiness check.
// A deliberate low-level escape hatch: callers own prior-result consistency.
func (e *Engine) ExecuteStep(ctx context.Context, def *schema.WorkflowDefinition, stepID string, wfCtx *schema.WorkflowContext, prior map[string]schema.StepResult) (*schema.StepResult, error) {
	step, ok := def.GetStep(stepID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"step %q not found in workflow %q", stepID, def.ID)
	}
	if wfCtx == nil {
		wfCtx = schema.NewWorkflowContext("", "", nil)
	}
	return e.dispatch(ctx, step, wfCtx, prior)
}

// RunStep executes a single step against a persisted execution record,
// using its stored context and results as input, and persists the appended
// result. Terminal executions are immutable.
func (e *Engine) RunStep(ctx context.Context, executionID, stepID string) (*schema.StepResult, error) {
	rec, err := e.store.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return nil, schema.NewErrorf(schema.ErrCodeIllegalTransition,
			"execution %q is %s", executionID, rec.Status)
	}

	def, err := e.catalog.GetDefinition(ctx, rec.WorkflowID)
	if err != nil {
		return nil, err
	}
	wfCtx := rec.Context
	if wfCtx == nil {
		wfCtx = schema.NewWorkflowContext("", "", nil)
		rec.Context = wfCtx
	}

	result, err := e.ExecuteStep(ctx, def, stepID, wfCtx, rec.StepResults)
	if err != nil {
		return nil, err
	}

	rec.StepResults[stepID] = *result
	if len(result.Output) > 0 {
		if mergeErr := wfCtx.Merge(result.Output); mergeErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"merge step output: %s", mergeErr.Error()).WithStep(stepID)
		}
	}
	rec.Progress = rec.ComputeProgress(len(def.Steps))
	rec.UpdatedAt = time.Now().UTC()
	if err := e.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return result, nil
}

// Pause requests a pause. Legal only from RUNNING; takes effect after the
// in-flight step finishes.
func (e *Engine) Pause(ctx context.Context, executionID string) error {
	rec, err := e.store.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if err := checkTransition(executionID, rec.Status, schema.ExecutionStatusPaused); err != nil {
		return err
	}

	if run, ok := e.lookup(executionID); ok {
		run.requestPause()
		return nil
	}

	// No live run (e.g. record from a previous process): persist directly.
	// The first read races with a run finishing and unregistering, so
	// re-read before writing; a run that completed in the gap is terminal
	// now and the transition check rejects it.
	rec, err = e.store.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if err := transition(rec, schema.ExecutionStatusPaused); err != nil {
		return err
	}
	return e.store.Update(ctx, rec)
}

// Resume continues a paused execution. If the driving goroutine is alive it
// is woken; otherwise the run is re-hydrated from the store and resumed on
// the pool.
func (e *Engine) Resume(ctx context.Context, executionID string) error {
	rec, err := e.store.Get(ctx, executionID)
	if err != nil {
		return err
	}
	// Resume is only meaningful from PAUSED; pending→running belongs to
	// StartExecution, so the table alone is not enough here.
	if err := checkResumable(executionID, rec.Status); err != nil {
		return err
	}

	if run, ok := e.lookup(executionID); ok {
		run.requestResume()
		return nil
	}

	// Same stale-read hazard as Pause: re-read before persisting.
	rec, err = e.store.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if err := checkResumable(executionID, rec.Status); err != nil {
		return err
	}
	if err := transition(rec, schema.ExecutionStatusRunning); err != nil {
		return err
	}
	if err := e.store.Update(ctx, rec); err != nil {
		return err
	}
	return e.submitRun(ctx, executionID, rec.WorkflowID)
}

// Cancel requests cooperative cancellation. Legal from RUNNING or PAUSED;
// completed step results are preserved and the final status is persisted by
// the driving goroutine (or directly when no run is alive).
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	rec, err := e.store.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if err := checkTransition(executionID, rec.Status, schema.ExecutionStatusCancelled); err != nil {
		return err
	}

	if run, ok := e.lookup(executionID); ok {
		run.requestCancel()
		return nil
	}

	// Same stale-read hazard as Pause: a run that finished between the
	// first read and the lookup already persisted a terminal status, and
	// cancelling its stale snapshot would overwrite it.
	rec, err = e.store.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if err := transition(rec, schema.ExecutionStatusCancelled); err != nil {
		return err
	}
	return e.store.Update(ctx, rec)
}

// Status returns the persisted record for an execution.
func (e *Engine) Status(ctx context.Context, executionID string) (*schema.ExecutionRecord, error) {
	return e.store.Get(ctx, executionID)
}

// PoolMetrics exposes worker pool counters.
func (e *Engine) PoolMetrics() PoolMetrics {
	return e.pool.Metrics()
}

// --- internals ---

func (e *Engine) register(run *executionRun) {
	e.mu.Lock()
	e.running[run.executionID] = run
	e.mu.Unlock()
}

func (e *Engine) unregister(run *executionRun) {
	e.mu.Lock()
	delete(e.running, run.executionID)
	e.mu.Unlock()
}

func (e *Engine) lookup(executionID string) (*executionRun, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.running[executionID]
	return run, ok
}

func (e *Engine) transitionAndSave(ctx context.Context, rec *schema.ExecutionRecord, to schema.ExecutionStatus) error {
	if err := transition(rec, to); err != nil {
		return err
	}
	return e.store.Update(ctx, rec)
}

func checkResumable(executionID string, status schema.ExecutionStatus) error {
	if status == schema.ExecutionStatusPaused {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeIllegalTransition,
		"cannot resume execution in status %s", status).
		WithDetails(map[string]any{"execution_id": executionID, "from": string(status)})
}

// failedStepID returns the first failed step in declaration order.
func failedStepID(results map[string]schema.StepResult, order []string) (string, bool) {
	for _, id := range order {
		if results[id].Status == schema.StepResultFailed {
			return id, true
		}
	}
	return "", false
}

func (e *Engine) saveProgress(ctx context.Context, rec *schema.ExecutionRecord, totalSteps int) error {
	rec.Progress = rec.ComputeProgress(totalSteps)
	rec.UpdatedAt = time.Now().UTC()
	return e.store.Update(ctx, rec)
}

func (e *Engine) finalizeCancel(ctx context.Context, rec *schema.ExecutionRecord, log *slog.Logger) (*ExecutionResult, error) {
	if err := e.transitionAndSave(ctx, rec, schema.ExecutionStatusCancelled); err != nil {
		return nil, err
	}
	log.Info("execution cancelled", "progress", rec.Progress)
	return resultFromRecord(rec, nil), nil
}

func (e *Engine) finalizeFailure(ctx context.Context, rec *schema.ExecutionRecord, log *slog.Logger, engErr *schema.EngineError) (*ExecutionResult, error) {
	rec.ErrorMessage = engErr.Error()
	if err := e.transitionAndSave(ctx, rec, schema.ExecutionStatusFailed); err != nil {
		return nil, err
	}
	log.Warn("execution failed", "code", engErr.Code, "error", engErr.Message)
	return resultFromRecord(rec, engErr), nil
}

func newRecord(workflowID string, wfCtx *schema.WorkflowContext) *schema.ExecutionRecord {
	now := time.Now().UTC()
	return &schema.ExecutionRecord{
		ExecutionID: uuid.NewString(),
		WorkflowID:  workflowID,
		Status:      schema.ExecutionStatusPending,
		StepResults: make(map[string]schema.StepResult),
		Context:     wfCtx,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func resultFromRecord(rec *schema.ExecutionRecord, engErr *schema.EngineError) *ExecutionResult {
	return &ExecutionResult{
		ExecutionID: rec.ExecutionID,
		WorkflowID:  rec.WorkflowID,
		Status:      rec.Status,
		Progress:    rec.Progress,
		Results:     rec.StepResults,
		Context:     rec.Context,
		Error:       engErr,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
}

// toEngineErr normalizes arbitrary executor errors into EngineErrors tagged
// with the failing step.
func toEngineErr(err error, stepID string) *schema.EngineError {
	var engErr *schema.EngineError
	if errors.As(err, &engErr) {
		if engErr.StepID == "" {
			engErr.StepID = stepID
		}
		return engErr
	}
	return schema.NewError(schema.ErrCodeExecution, err.Error()).WithStep(stepID).WithCause(err)
}
