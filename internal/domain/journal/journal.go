// Package journal defines the orchestration journal: one entry per run with
// its phase outcomes, kept outside the ERP as an audit trail of what this
// service attempted.
package journal

import (
	"context"
	"time"

	appctx "stockflow/internal/core/context"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/workflow"
	"stockflow/pkg/logger"
)

// Entry kinds.
const (
	KindTransfer = "transfer"
	KindEntry    = "entry"
	KindOrder    = "order"
	KindScrap    = "scrap"
)

// Entry is one orchestration run.
type Entry struct {
	ID          id.ID                   `json:"id" db:"id"`
	Kind        string                  `json:"kind" db:"kind"`
	ContainerID int64                   `json:"containerId,omitempty" db:"container_id"`
	Reference   string                  `json:"reference,omitempty" db:"reference"`
	State       string                  `json:"state,omitempty" db:"state"`
	Warning     string                  `json:"warning,omitempty" db:"warning"`
	Error       string                  `json:"error,omitempty" db:"error"`
	Operator    string                  `json:"operator,omitempty" db:"operator"`
	Phases      []workflow.PhaseOutcome `json:"phases" db:"-"`
	Request     any                     `json:"request,omitempty" db:"-"`
	CreatedAt   time.Time               `json:"createdAt" db:"created_at"`
}

// Filter narrows List.
type Filter struct {
	Kind        string
	ContainerID int64
	From, To    time.Time
	Limit       int
	Offset      int
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store persists and lists entries.
type Store interface {
	Recorder
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// FromRun builds an entry from a finished run. runErr is the error the
// run ended with, if any.
func FromRun(ctx context.Context, run *workflow.Run, runErr error) Entry {
	e := Entry{
		ID:          id.New(),
		Kind:        run.Kind(),
		ContainerID: run.Container(),
		Operator:    appctx.GetOperatorName(ctx),
		Phases:      run.Outcomes(),
		CreatedAt:   time.Now().UTC(),
	}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	return e
}

// Write records e through r. A nil recorder is a no-op and failures are
// only logged: the ERP state is already committed either way.
func Write(ctx context.Context, r Recorder, e Entry) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, e); err != nil {
		logger.Warn(ctx, "journal write failed", "kind", e.Kind, "container_id", e.ContainerID, "error", err)
	}
}
