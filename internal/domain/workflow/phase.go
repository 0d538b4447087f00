// Package workflow records the phases of an orchestration run.
//
// Each phase ends in exactly one PhaseOutcome: ok, skipped (attempted but
// its failure was tolerated) or failed (the run stops). A phase that never
// ran has no outcome at all, which lets callers and tests tell "assign was
// attempted and skipped" apart from "assign was never attempted".
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockflow/internal/core/apperror"
	"stockflow/pkg/logger"
)

var tracer = otel.Tracer("stockflow/workflow")

// Status of a finished phase.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// PhaseOutcome is the tagged result of one phase.
// Reason is set for skipped phases, Error for failed ones.
type PhaseOutcome struct {
	Phase      string `json:"phase"`
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Run accumulates outcomes for one orchestration invocation.
// It is not safe for concurrent use; phases run strictly in sequence.
type Run struct {
	kind        string
	outcomes    []PhaseOutcome
	containerID int64
	onPhase     func(PhaseOutcome)

	pendingDuration time.Duration
}

// NewRun starts a run of the given kind ("transfer", "entry", ...).
func NewRun(kind string) *Run {
	return &Run{kind: kind}
}

// OnPhase registers a callback invoked after every phase.
func (r *Run) OnPhase(fn func(PhaseOutcome)) *Run {
	r.onPhase = fn
	return r
}

// SetContainer records the container id once it exists so that later
// failures can point the caller at the partial record.
func (r *Run) SetContainer(id int64) {
	r.containerID = id
}

// Container returns the recorded container id (0 before creation).
func (r *Run) Container() int64 { return r.containerID }

// Kind returns the run kind.
func (r *Run) Kind() string { return r.kind }

// Outcomes returns a copy of the recorded outcomes.
func (r *Run) Outcomes() []PhaseOutcome {
	return append([]PhaseOutcome(nil), r.outcomes...)
}

// Outcome returns the outcome recorded for phase, if any.
func (r *Run) Outcome(phase string) (PhaseOutcome, bool) {
	for _, o := range r.outcomes {
		if o.Phase == phase {
			return o, true
		}
	}
	return PhaseOutcome{}, false
}

// Step runs a mandatory phase. A failure is recorded and returned wrapped
// with the phase name and, once it exists, the container id.
func (r *Run) Step(ctx context.Context, phase string, fn func(ctx context.Context) error) error {
	err := r.exec(ctx, phase, fn)
	if err == nil {
		r.record(ctx, PhaseOutcome{Phase: phase, Status: StatusOK}, err)
		return nil
	}
	r.record(ctx, PhaseOutcome{Phase: phase, Status: StatusFailed, Error: err.Error()}, err)
	return r.annotate(phase, err)
}

// BestEffort runs a phase whose failure is tolerated. A failure is recorded
// as skipped with the error text as reason and is not returned.
func (r *Run) BestEffort(ctx context.Context, phase string, fn func(ctx context.Context) error) PhaseOutcome {
	err := r.exec(ctx, phase, fn)
	out := PhaseOutcome{Phase: phase, Status: StatusOK}
	if err != nil {
		out = PhaseOutcome{Phase: phase, Status: StatusSkipped, Reason: err.Error()}
	}
	return r.record(ctx, out, err)
}

// Skip records a phase that was deliberately not executed.
func (r *Run) Skip(ctx context.Context, phase, reason string) {
	r.record(ctx, PhaseOutcome{Phase: phase, Status: StatusSkipped, Reason: reason}, nil)
}

func (r *Run) exec(ctx context.Context, phase string, fn func(ctx context.Context) error) (err error) {
	ctx, span := tracer.Start(ctx, r.kind+"."+phase,
		trace.WithAttributes(attribute.String("workflow.kind", r.kind), attribute.String("workflow.phase", phase)))
	defer span.End()

	ctx = logger.WithFields(ctx, "kind", r.kind, "phase", phase)
	if r.containerID > 0 {
		ctx = logger.WithFields(ctx, "container_id", r.containerID)
	}

	began := time.Now()
	defer func() {
		r.pendingDuration = time.Since(began)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return fn(ctx)
}

func (r *Run) record(ctx context.Context, out PhaseOutcome, err error) PhaseOutcome {
	out.DurationMs = r.pendingDuration.Milliseconds()
	r.pendingDuration = 0
	r.outcomes = append(r.outcomes, out)

	kv := []any{"kind", r.kind, "phase", out.Phase, "status", out.Status, "duration_ms", out.DurationMs}
	if r.containerID > 0 {
		kv = append(kv, "container_id", r.containerID)
	}
	switch out.Status {
	case StatusOK:
		logger.Debug(ctx, "phase finished", kv...)
	case StatusSkipped:
		logger.Warn(ctx, "phase skipped", append(kv, "reason", out.Reason)...)
	case StatusFailed:
		logger.Error(ctx, "phase failed", append(kv, "error", err)...)
	}

	if r.onPhase != nil {
		r.onPhase(out)
	}
	return out
}

func (r *Run) annotate(phase string, err error) error {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		appErr = apperror.NewInternal(err)
	}
	appErr = appErr.WithDetail("phase", phase)
	if r.containerID > 0 {
		appErr = appErr.WithDetail("containerId", r.containerID)
	}
	return appErr
}

// Candidate is one way of performing a phase.
type Candidate struct {
	Name string
	Run  func(ctx context.Context) error
}

// FirstSuccess tries candidates in order and stops at the first that
// succeeds, returning its name. When all fail the errors are joined.
func FirstSuccess(ctx context.Context, candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", errors.New("no candidates")
	}
	var errs []error
	for _, c := range candidates {
		err := c.Run(ctx)
		if err == nil {
			return c.Name, nil
		}
		logger.Debug(ctx, "candidate failed", "candidate", c.Name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
	}
	return "", errors.Join(errs...)
}
