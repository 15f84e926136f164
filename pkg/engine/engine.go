// Package engine executes workflow plans: it walks a topological order,
// decides via branch activation which nodes actually fire, invokes each
// node's executor through a typed registry, and reports the outcome through
// the persistence, event and tracing collaborators.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/wehubfusion/Daedalus/internal/tracing"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/events"
	"github.com/wehubfusion/Daedalus/pkg/execution"
	"github.com/wehubfusion/Daedalus/pkg/quota"
	"github.com/wehubfusion/Daedalus/pkg/storage"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// RunResult is the terminal outcome of one run. On success FinalResult
// holds the last materially-produced output; on error ErrorNode and
// ErrorMessage name the failure and NodeResults holds everything
// accumulated before it.
type RunResult struct {
	RunID        string
	Status       Status
	FinalResult  execution.Output
	NodeResults  map[string]execution.Output
	ErrorNode    string
	ErrorMessage string
}

// Options carries optional engine-level configuration.
type Options struct {
	// SentryDSN enables best-effort capture of node failures when non-empty.
	SentryDSN string

	// Environment tags captured failures (e.g. "production").
	Environment string

	// Tracing configures OTLP span export when non-nil. Setup failures are
	// logged and the engine continues without tracing; call Close to flush
	// and shut the exporter down.
	Tracing *TracingConfig
}

// RunOptions carries per-run configuration.
type RunOptions struct {
	// RunID identifies the run; generated when empty.
	RunID string

	// TenantID is the tenant charged for the run; defaults to "default".
	TenantID string

	// LiveProgress enables per-node progress events for this run.
	LiveProgress bool
}

// Engine runs workflows. Within one run, node execution is strictly
// sequential; concurrency exists only across runs, and the only state
// shared between runs is the admission gate's quota store.
type Engine struct {
	registry        *Registry
	gate            *quota.Gate
	store           storage.Store
	publisher       events.Publisher
	logger          *zap.Logger
	captureErrors   bool
	tracingShutdown func(context.Context) error
}

// New creates an engine. The registry, gate, store and logger are required;
// a nil publisher degrades to a no-op. opts is optional.
func New(registry *Registry, gate *quota.Gate, store storage.Store, publisher events.Publisher, logger *zap.Logger, opts *Options) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if gate == nil {
		return nil, errors.New("gate cannot be nil")
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	e := &Engine{
		registry:  registry,
		gate:      gate,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}

	if opts != nil && opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         opts.SentryDSN,
			Environment: opts.Environment,
		})
		if err != nil {
			logger.Warn("Failed to initialize error capture, continuing without it", zap.Error(err))
		} else {
			e.captureErrors = true
			logger.Info("Error capture enabled", zap.String("environment", opts.Environment))
		}
	}

	if opts != nil && opts.Tracing != nil {
		shutdown, err := tracing.SetupTracing(context.Background(), opts.Tracing.toInternalConfig(), logger)
		if err != nil {
			logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			e.tracingShutdown = shutdown
			logger.Info("Tracing setup complete",
				zap.String("service", opts.Tracing.ServiceName),
				zap.String("endpoint", opts.Tracing.OTLPEndpoint))
		}
	}

	return e, nil
}

// Close flushes and shuts down the tracing exporter when one was configured.
// Call it when the engine is no longer needed.
func (e *Engine) Close() error {
	if e.tracingShutdown == nil {
		return nil
	}
	if err := tracing.ShutdownTracing(e.tracingShutdown, e.logger); err != nil {
		return err
	}
	e.tracingShutdown = nil
	return nil
}

// Run admits, plans and executes a workflow end to end.
//
// Admission is charged as the workflow's total node count before the plan
// is built; a denied run executes nothing and returns a
// *errors.QuotaExceededError. An unplannable graph returns a
// *errors.CycleError. Every other failure is reported through the returned
// RunResult, never as a partially-updated context with no explanation.
func (e *Engine) Run(ctx context.Context, wf *workflow.Workflow, input []execution.Item, opts RunOptions) (*RunResult, error) {
	if wf == nil {
		return nil, errors.New("workflow cannot be nil")
	}

	tenantID := opts.TenantID
	if tenantID == "" {
		tenantID = "default"
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	units := int64(wf.NodeCount())
	approved, remaining, err := e.gate.CheckAndConsume(ctx, tenantID, units)
	if err != nil {
		return nil, fmt.Errorf("admission check failed: %w", err)
	}
	if !approved {
		denied := &sdkerrors.QuotaExceededError{TenantID: tenantID, Requested: units, Remaining: remaining}
		e.persistRecord(ctx, storage.RunRecord{
			RunID:        runID,
			TenantID:     tenantID,
			Workflow:     wf.Name,
			Status:       "denied",
			Finished:     true,
			ErrorMessage: denied.Error(),
			RecordedAt:   time.Now().UTC(),
		})
		return nil, denied
	}

	plan, err := workflow.BuildPlan(wf)
	if err != nil {
		return nil, err
	}

	ctx, runTrace := tracing.StartRun(ctx, runID, wf.Name)
	execCtx := execution.NewContext(runID, tenantID, input, runTrace)
	execCtx.EmitProgress = opts.LiveProgress

	e.logger.Info("Starting run",
		zap.String("runID", execCtx.RunID),
		zap.String("tenantID", tenantID),
		zap.String("workflow", wf.Name),
		zap.Int("nodes", plan.Len()),
		zap.Int64("quotaRemaining", remaining))

	result := e.ExecuteNodes(ctx, plan, execCtx)
	return result, nil
}

// ExecuteNodes walks the plan in order and executes every node the branch
// activation rules make eligible. It always returns a complete RunResult:
// either completed with the final output, or an error naming exactly which
// node failed plus whatever results had accumulated before the failure. It
// persists a terminal record and offers events on both paths.
func (e *Engine) ExecuteNodes(ctx context.Context, plan *workflow.Plan, execCtx *execution.Context) *RunResult {
	wf := plan.Workflow()

	// PENDING -> RUNNING
	e.logger.Debug("Run state transition",
		zap.String("runID", execCtx.RunID),
		zap.String("from", string(StatusPending)),
		zap.String("to", string(StatusRunning)))

	active := workflow.InitialActiveNodes(wf)
	var finalResult execution.Output
	nodesRun := 0

	for _, node := range plan.Nodes() {
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, wf, execCtx, node.Name, fmt.Errorf("run cancelled: %w", err))
		}

		if !active[node.Name] && !node.IsStart {
			e.logger.Debug("Skipping inactive node",
				zap.String("runID", execCtx.RunID),
				zap.String("node", node.Name))
			continue
		}

		executor, err := e.registry.Lookup(node.Type)
		if err != nil {
			return e.fail(ctx, wf, execCtx, node.Name, err)
		}

		input := assembleInput(wf, execCtx, node)

		nodeCtx, nodeTrace := execCtx.Trace.StartNode(ctx, node.Name, node.Type)
		start := time.Now()
		output, err := invoke(nodeCtx, executor, node, execCtx, input)
		elapsed := time.Since(start)

		if err != nil {
			e.endNodeTrace(nodeTrace, nil, err)
			e.logger.Error("Node execution failed",
				zap.String("runID", execCtx.RunID),
				zap.String("node", node.Name),
				zap.String("nodeType", node.Type),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
			return e.fail(ctx, wf, execCtx, node.Name, err)
		}

		execCtx.RecordResult(node.Name, output)
		nodesRun++
		sizes := execution.BranchSizes(output)
		e.endNodeTrace(nodeTrace, sizes, nil)

		// Only branches that produced items activate their connections;
		// nodes wired solely to an empty branch never run.
		for branchIdx, branch := range output {
			if len(branch) == 0 {
				continue
			}
			for _, conn := range wf.ConnectionsFrom(node.Name, workflow.CategoryMain, branchIdx) {
				active[conn.Target] = true
			}
		}

		// The canonical "nothing to pass on" shape keeps the previous
		// final result visible to the caller.
		if !execution.IsEmptyOutput(output) {
			finalResult = output
		}

		e.logger.Info("Node completed",
			zap.String("runID", execCtx.RunID),
			zap.String("node", node.Name),
			zap.String("nodeType", node.Type),
			zap.Ints("branchSizes", sizes),
			zap.Duration("elapsed", elapsed))

		if execCtx.EmitProgress {
			e.offerEvent(ctx, "node.completed", events.NodeCompleted{
				RunID:       execCtx.RunID,
				TenantID:    execCtx.TenantID,
				Workflow:    wf.Name,
				Node:        node.Name,
				NodeType:    node.Type,
				BranchSizes: sizes,
				CompletedAt: time.Now().UTC(),
			})
		}
	}

	e.logger.Info("Run completed",
		zap.String("runID", execCtx.RunID),
		zap.String("workflow", wf.Name),
		zap.Int("nodesRun", nodesRun))

	e.persistRecord(ctx, storage.RunRecord{
		RunID:       execCtx.RunID,
		TenantID:    execCtx.TenantID,
		Workflow:    wf.Name,
		Status:      string(StatusCompleted),
		Finished:    true,
		NodeResults: execCtx.NodeResults,
		RecordedAt:  time.Now().UTC(),
	})

	e.offerEvent(ctx, "run.completed", events.RunCompleted{
		RunID:      execCtx.RunID,
		TenantID:   execCtx.TenantID,
		Workflow:   wf.Name,
		NodesRun:   nodesRun,
		FinishedAt: time.Now().UTC(),
	})

	e.endRunTrace(execCtx.Trace, nil)

	return &RunResult{
		RunID:       execCtx.RunID,
		Status:      StatusCompleted,
		FinalResult: finalResult,
		NodeResults: execCtx.NodeResults,
	}
}

// fail converts a node failure into the run's terminal error result: it
// offers an error event unconditionally, captures the failure, persists a
// terminal record with the results accumulated so far, and stops the run.
func (e *Engine) fail(ctx context.Context, wf *workflow.Workflow, execCtx *execution.Context, nodeName string, cause error) *RunResult {
	now := time.Now().UTC()

	e.offerEvent(ctx, "run.failed", events.RunFailed{
		RunID:    execCtx.RunID,
		TenantID: execCtx.TenantID,
		Workflow: wf.Name,
		Node:     nodeName,
		Error:    cause.Error(),
		FailedAt: now,
	})

	e.captureFailure(execCtx.RunID, wf.Name, nodeName, cause)

	e.persistRecord(ctx, storage.RunRecord{
		RunID:        execCtx.RunID,
		TenantID:     execCtx.TenantID,
		Workflow:     wf.Name,
		Status:       string(StatusError),
		Finished:     true,
		NodeResults:  execCtx.NodeResults,
		ErrorNode:    nodeName,
		ErrorMessage: cause.Error(),
		RecordedAt:   now,
	})

	e.endRunTrace(execCtx.Trace, cause)

	return &RunResult{
		RunID:        execCtx.RunID,
		Status:       StatusError,
		NodeResults:  execCtx.NodeResults,
		ErrorNode:    nodeName,
		ErrorMessage: cause.Error(),
	}
}

// invoke calls a node executor, converting panics into node execution
// errors so a misbehaving executor cannot take down the whole process.
func invoke(ctx context.Context, executor NodeExecutor, node *workflow.Node, execCtx *execution.Context, input []execution.Item) (output execution.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("%w: node %q panicked: %v", sdkerrors.ErrNodeExecution, node.Name, r)
		}
	}()

	output, err = executor.Invoke(ctx, node, execCtx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: node %q: %w", sdkerrors.ErrNodeExecution, node.Name, err)
	}
	return output, nil
}

// assembleInput gathers a node's input items from its incoming main
// connections, concatenated in connection order. Fan-in merging beyond
// concatenation is the node's own concern. Entry points with no
// materialized upstream data receive the run's primary input.
func assembleInput(wf *workflow.Workflow, execCtx *execution.Context, node *workflow.Node) []execution.Item {
	incoming := wf.ConnectionsTo(node.Name, workflow.CategoryMain)

	var items []execution.Item
	for _, conn := range incoming {
		if !execCtx.Completed(conn.Source) {
			continue
		}
		upstream := execCtx.Result(conn.Source)
		if conn.SourceOutput >= len(upstream) {
			continue
		}
		items = append(items, upstream[conn.SourceOutput]...)
	}

	if len(items) == 0 && (node.IsStart || len(incoming) == 0) {
		return execCtx.PrimaryInput
	}
	return items
}

// offerEvent publishes best-effort: emission failures are logged and
// swallowed so a side channel can never fail a run.
func (e *Engine) offerEvent(ctx context.Context, topic string, event any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Event publisher panicked",
				zap.String("topic", topic),
				zap.Any("panic", r))
		}
	}()

	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		e.logger.Warn("Failed to publish event",
			zap.String("topic", topic),
			zap.Error(err))
	}
}

// persistRecord writes the terminal record best-effort. A persistence
// failure is logged; it does not change the run's outcome.
func (e *Engine) persistRecord(ctx context.Context, record storage.RunRecord) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Record store panicked",
				zap.String("runID", record.RunID),
				zap.Any("panic", r))
		}
	}()

	if err := e.store.RecordStatus(ctx, record); err != nil {
		e.logger.Error("Failed to persist run record",
			zap.String("runID", record.RunID),
			zap.String("status", record.Status),
			zap.Error(err))
	}
}

func (e *Engine) endNodeTrace(nodeTrace execution.NodeTrace, sizes []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Node trace handle panicked", zap.Any("panic", r))
		}
	}()

	if sizes != nil {
		nodeTrace.SetBranchSizes(sizes)
	}
	nodeTrace.End(err)
}

func (e *Engine) endRunTrace(runTrace execution.RunTrace, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Run trace handle panicked", zap.Any("panic", r))
		}
	}()

	runTrace.End(err)
}

// captureFailure reports a node failure to Sentry when capture is enabled,
// best-effort.
func (e *Engine) captureFailure(runID, workflowName, nodeName string, cause error) {
	if !e.captureErrors {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Error capture panicked", zap.Any("panic", r))
		}
	}()

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", runID)
		scope.SetTag("workflow", workflowName)
		scope.SetTag("node", nodeName)
		sentry.CaptureException(cause)
	})
}
