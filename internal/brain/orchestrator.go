package brain

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"verdict.app/engine/common/logger"
	"verdict.app/engine/internal/model"
)

// SynthesisTask folds the four reports into a verdict.
type SynthesisTask interface {
	Run(ctx context.Context, idea model.Idea, reports map[model.ReportKind]*model.AnalysisReport) (model.Verdict, error)
}

type OrchestratorConfig struct {
	// RunTimeout bounds the whole run. Zero waits on the barrier indefinitely.
	RunTimeout time.Duration
}

// Orchestrator fans an idea out to the analysis tasks, joins on all of them
// and seals the run with a verdict. It holds no per-run state.
type Orchestrator struct {
	cfg   OrchestratorConfig
	tasks []AnalysisTask
	synth SynthesisTask
}

func NewOrchestrator(cfg OrchestratorConfig, tasks []AnalysisTask, synth SynthesisTask) *Orchestrator {
	return &Orchestrator{cfg: cfg, tasks: tasks, synth: synth}
}

// Start launches a run and returns its state immediately. The run is detached
// from ctx cancellation and always ends DONE or ERRORED.
func (o *Orchestrator) Start(ctx context.Context, idea model.Idea) *RunState {
	state := NewRunState(idea)
	go o.run(context.WithoutCancel(ctx), state)
	return state
}

// Evaluate runs an idea to completion.
func (o *Orchestrator) Evaluate(ctx context.Context, idea model.Idea) *RunState {
	state := o.Start(ctx, idea)
	<-state.Done()
	return state
}

func (o *Orchestrator) run(ctx context.Context, state *RunState) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SubmissionID: logger.Ptr(state.Idea.SubmissionID),
		Component:    "verdict.brain.orchestrator",
	})

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	sc := logger.StartSpan(ctx, "brain.run")
	defer sc.End()
	ctx = sc.Context()
	sc.SetAttributes(attribute.Int64("submission_id", state.Idea.SubmissionID))

	if err := state.transition(StatusRunning); err != nil {
		o.abort(ctx, state, fmt.Errorf("starting run: %w", err))
		return
	}

	slog.InfoContext(ctx, "analysis fan-out started", "tasks", len(o.tasks))

	var g errgroup.Group
	for _, task := range o.tasks {
		g.Go(func() error {
			o.runTask(ctx, state, task)
			return nil
		})
	}
	_ = g.Wait()

	if err := state.transition(StatusAwaitingSynthesis); err != nil {
		o.abort(ctx, state, fmt.Errorf("closing barrier: %w", err))
		return
	}

	if missing := state.Missing(); len(missing) > 0 {
		v := missingReportsVerdict(missing)
		cause := fmt.Errorf("%w: %v", ErrMissingReports, missing)
		slog.WarnContext(ctx, "synthesis skipped, reports missing", "missing", missing)
		sc.RecordError(cause)
		o.seal(ctx, state, v, StatusDone, cause)
		return
	}

	verdict, err := o.synthesize(ctx, state)
	if err != nil {
		slog.ErrorContext(ctx, "decision synthesis failed", "error", err)
		sc.RecordError(err)
		o.seal(ctx, state, synthesisFailedVerdict(err), StatusErrored, err)
		return
	}

	o.seal(ctx, state, verdict, StatusDone, nil)
}

func (o *Orchestrator) seal(ctx context.Context, state *RunState, v model.Verdict, to RunStatus, cause error) {
	if err := state.seal(v, to, cause); err != nil {
		o.abort(ctx, state, fmt.Errorf("sealing run: %w", err))
		return
	}
	slog.InfoContext(ctx, "run sealed",
		"status", to,
		"decision", v.Decision,
		"duration_ms", state.Duration().Milliseconds())
}

// abort ends a run whose state machine refused a step, so Done is always
// closed.
func (o *Orchestrator) abort(ctx context.Context, state *RunState, err error) {
	slog.ErrorContext(ctx, "run aborted", "error", err, "status", state.Status())
	trace.SpanFromContext(ctx).RecordError(err)
	if !state.abort(runAbortedVerdict(err), err) {
		slog.WarnContext(ctx, "run already sealed, abort ignored")
	}
}

// runTask records the outcome of one task. Errors and panics both count as a
// failed task; neither escapes.
func (o *Orchestrator) runTask(ctx context.Context, state *RunState, task AnalysisTask) {
	kind := task.Kind()
	ctx = logger.WithLogFields(ctx, logger.LogFields{ReportKind: logger.Ptr(string(kind))})

	sc := logger.StartSpan(ctx, "brain.analysis_task")
	defer sc.End()
	ctx = sc.Context()
	sc.SetAttributes(attribute.String("report_kind", string(kind)))

	start := time.Now()
	report, err := safeRun(ctx, task, state)
	if err == nil && report == nil {
		err = fmt.Errorf("%s task returned no report", kind)
	}
	if err == nil && report.Kind != kind {
		err = fmt.Errorf("%s task returned a %s report", kind, report.Kind)
	}
	if err == nil {
		err = state.setReport(report)
	}

	exec := model.AgentExecution{
		Kind:     kind,
		Status:   model.ExecutionStatusSuccess,
		Duration: time.Since(start),
	}
	if err != nil {
		sc.RecordError(err)
		exec.Status = model.ExecutionStatusFailed
		exec.Error = logger.Ptr(err.Error())
		slog.ErrorContext(ctx, "analysis task failed", "error", err, "duration_ms", exec.Duration.Milliseconds())
	}
	state.recordExecution(exec)
}

func safeRun(ctx context.Context, task AnalysisTask, state *RunState) (report *model.AnalysisReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "analysis task panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			report = nil
			err = fmt.Errorf("%s task panicked: %v", task.Kind(), r)
		}
	}()
	return task.Run(ctx, state.Idea, state)
}

func (o *Orchestrator) synthesize(ctx context.Context, state *RunState) (verdict model.Verdict, err error) {
	sc := logger.StartSpan(ctx, "brain.synthesis")
	defer sc.End()
	ctx = sc.Context()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "synthesis panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("synthesis panicked: %v", r)
		}
	}()

	if o.synth == nil {
		return model.Verdict{}, fmt.Errorf("no synthesis task configured")
	}
	return o.synth.Run(ctx, state.Idea, state.Reports())
}

func missingReportsVerdict(missing []model.ReportKind) model.Verdict {
	names := make([]string, len(missing))
	for i, k := range missing {
		names[i] = string(k)
	}
	return model.Verdict{
		Decision:         model.DecisionError,
		Reasoning:        "Cannot decide: missing reports from: " + strings.Join(names, ", "),
		Confidence:       0,
		ActionItems:      []string{"Check agent logs", "Verify provider credentials", "Retry analysis"},
		PolicyViolations: []string{},
	}
}

func synthesisFailedVerdict(err error) model.Verdict {
	return model.Verdict{
		Decision:         model.DecisionError,
		Reasoning:        "Decision synthesis failed: " + err.Error(),
		Confidence:       0,
		ActionItems:      []string{"Check provider credentials", "Review logs", "Retry"},
		PolicyViolations: []string{},
	}
}

func runAbortedVerdict(err error) model.Verdict {
	return model.Verdict{
		Decision:         model.DecisionError,
		Reasoning:        "Evaluation aborted: " + err.Error(),
		Confidence:       0,
		ActionItems:      []string{"Review logs", "Retry"},
		PolicyViolations: []string{},
	}
}
