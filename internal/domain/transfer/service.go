// Package transfer moves stock between two internal locations through the
// ERP's picking protocol.
package transfer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/core/types"
	"stockflow/internal/domain"
	"stockflow/internal/domain/journal"
	"stockflow/internal/domain/picking"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/erp"
	"stockflow/pkg/logger"
)

// Phase names, in execution order.
const (
	PhaseResolveType     = "resolve_operation_type"
	PhaseCreateContainer = "create_container"
	PhaseReadProductMeta = "read_product_meta"
	PhaseCreateMoves     = "create_movement_lines"
	PhaseConfirm         = "confirm"
	PhaseAssign          = "assign"
	PhaseReconcile       = "reconcile_done_quantities"
	PhaseValidate        = "validate"
	PhaseReadFinalState  = "read_final_state"
)

// DefaultValidateMethods is the validate fallback order: strict first.
var DefaultValidateMethods = []string{"action_done", "button_validate"}

// Line is one product to move.
type Line struct {
	ProductID int64          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
}

// Request is one transfer intent.
type Request struct {
	OriginID      int64  `json:"originId"`
	DestinationID int64  `json:"destinationId"`
	Lines         []Line `json:"lines"`
	// Note is free text, typically who requested the transfer.
	Note string `json:"note,omitempty"`
}

// Validate checks the request before any remote call.
func (r Request) Validate() error {
	if r.OriginID <= 0 {
		return apperror.NewValidation("origin location is required").WithDetail("field", "originId")
	}
	if r.DestinationID <= 0 {
		return apperror.NewValidation("destination location is required").WithDetail("field", "destinationId")
	}
	if r.OriginID == r.DestinationID {
		return apperror.NewValidation("origin and destination must differ").
			WithDetail("field", "destinationId").
			WithDetail("locationId", r.OriginID)
	}
	if len(r.Lines) == 0 {
		return apperror.NewValidation("transfer must have at least one line").WithDetail("field", "lines")
	}
	for i, l := range r.Lines {
		if l.ProductID <= 0 {
			return apperror.NewValidation("product is required").WithDetail("lineNo", i+1)
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("lineNo", i+1).
				WithDetail("productId", l.ProductID)
		}
	}
	return nil
}

// Result is the outcome of a transfer that created a container. Warning is
// set whenever the container did not reach the done state.
type Result struct {
	ContainerID int64                   `json:"containerId"`
	DisplayName string                  `json:"displayName"`
	State       picking.State           `json:"state"`
	StateLabel  string                  `json:"stateLabel"`
	Warning     string                  `json:"warning,omitempty"`
	Origin      string                  `json:"origin"`
	Lines       []LineResult            `json:"lines"`
	Request     Request                 `json:"-"`
	Phases      []workflow.PhaseOutcome `json:"phases"`
}

// LineResult is a moved product with its label.
type LineResult struct {
	ProductID int64          `json:"productId"`
	Label     string         `json:"label"`
	Quantity  types.Quantity `json:"quantity"`
}

// LocationNamer labels locations for the container's origin text.
type LocationNamer interface {
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Locker serializes transfers touching the same locations. Unlock must be
// safe to call once.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// Config tunes protocol details that differ between ERP deployments.
type Config struct {
	// ValidateMethods are tried in order until one succeeds.
	ValidateMethods []string
	// DoneField is the move-line done quantity field name.
	DoneField string
}

// Service is the transfer orchestrator.
type Service struct {
	inv     erp.Invoker
	ops     *picking.Ops
	cfg     Config
	namer   LocationNamer
	locker  Locker
	journal journal.Recorder
	hooks   *domain.HookRegistry[*Result]
}

// Option customizes a Service.
type Option func(*Service)

// WithNamer sets the location namer.
func WithNamer(n LocationNamer) Option { return func(s *Service) { s.namer = n } }

// WithLocker enables per-location locking.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// WithJournal records every run.
func WithJournal(r journal.Recorder) Option { return func(s *Service) { s.journal = r } }

// NewService creates the orchestrator. inv must not retry on its own.
func NewService(inv erp.Invoker, cfg Config, opts ...Option) *Service {
	if len(cfg.ValidateMethods) == 0 {
		cfg.ValidateMethods = DefaultValidateMethods
	}
	s := &Service{
		inv:   inv,
		ops:   picking.NewOps(inv, cfg.DoneField),
		cfg:   cfg,
		hooks: domain.NewHookRegistry[*Result](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hooks returns the hook registry for external registration.
func (s *Service) Hooks() *domain.HookRegistry[*Result] {
	return s.hooks
}

type productMeta struct {
	ID   int64        `json:"id"`
	Name string       `json:"name"`
	Code erp.Text     `json:"default_code"`
	UoM  erp.Many2One `json:"uom_id"`
}

func (p productMeta) label() string {
	if p.Code != "" {
		return p.Code.String()
	}
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("#%d", p.ID)
}

// Create runs the transfer protocol. Phases run strictly in order and are
// never retried. Once the container exists it stays in the ERP whatever
// happens next; a fatal error carries its id in the details.
func (s *Service) Create(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, lockKeys(req.OriginID, req.DestinationID)...)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	run := workflow.NewRun(journal.KindTransfer)
	res, err := s.execute(ctx, run, req)

	entry := journal.FromRun(ctx, run, err)
	entry.Request = req
	if res != nil {
		entry.Reference = res.DisplayName
		entry.State = string(res.State)
		entry.Warning = res.Warning
	}
	journal.Write(ctx, s.journal, entry)

	if err != nil {
		return nil, err
	}
	s.hooks.RunAfterCreate(ctx, res)
	return res, nil
}

func (s *Service) execute(ctx context.Context, run *workflow.Run, req Request) (*Result, error) {
	if err := s.hooks.RunBeforeCreate(ctx, &Result{Request: req}); err != nil {
		return nil, err
	}

	var typeID int64
	err := run.Step(ctx, PhaseResolveType, func(ctx context.Context) error {
		var err error
		typeID, err = s.ops.ResolveType(ctx, "internal",
			erp.Domain{erp.Cond("code", "=", "internal"), erp.Cond("default_location_src_id", "=", req.OriginID)},
			erp.Domain{erp.Cond("code", "=", "internal")},
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	var pickingID int64
	origin := s.originText(ctx, req)
	err = run.Step(ctx, PhaseCreateContainer, func(ctx context.Context) error {
		var err error
		pickingID, err = s.ops.Create(ctx, picking.Header{
			TypeID:   typeID,
			SourceID: req.OriginID,
			DestID:   req.DestinationID,
			Origin:   origin,
			Note:     noteText(ctx, req.Note),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	run.SetContainer(pickingID)
	logger.Info(ctx, "transfer container created", "container_id", pickingID,
		"origin", req.OriginID, "destination", req.DestinationID, "lines", len(req.Lines))

	meta := make(map[int64]productMeta)
	err = run.Step(ctx, PhaseReadProductMeta, func(ctx context.Context) error {
		ids := make([]int64, 0, len(req.Lines))
		for _, l := range req.Lines {
			ids = append(ids, l.ProductID)
		}
		rows, err := erp.Read[productMeta](ctx, s.inv, "product.product", erp.Unique(ids),
			[]string{"uom_id", "default_code", "name"}, erp.Options{})
		if err != nil {
			return err
		}
		for _, r := range rows {
			meta[r.ID] = r
		}
		for _, l := range req.Lines {
			p, ok := meta[l.ProductID]
			if !ok {
				return apperror.NewNotFound("product", l.ProductID)
			}
			if !p.UoM.Valid() {
				return apperror.NewBusinessRule(apperror.CodeConfiguration,
					fmt.Sprintf("product %s has no unit of measure", p.label())).
					WithDetail("productId", l.ProductID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = run.Step(ctx, PhaseCreateMoves, func(ctx context.Context) error {
		for _, l := range req.Lines {
			p := meta[l.ProductID]
			if _, err := s.ops.CreateMove(ctx, picking.Move{
				Name:      "Transfer " + p.label(),
				ProductID: l.ProductID,
				UoMID:     p.UoM.ID,
				Quantity:  l.Quantity,
				PickingID: pickingID,
				SourceID:  req.OriginID,
				DestID:    req.DestinationID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Some deployments auto-confirm on move creation or have no reservation
	// for the location class; neither blocks validation.
	run.BestEffort(ctx, PhaseConfirm, func(ctx context.Context) error {
		return s.ops.Transition(ctx, pickingID, "action_confirm")
	})
	run.BestEffort(ctx, PhaseAssign, func(ctx context.Context) error {
		return s.ops.Transition(ctx, pickingID, "action_assign")
	})

	err = run.Step(ctx, PhaseReconcile, func(ctx context.Context) error {
		rec, err := s.ops.ReconcileDone(ctx, pickingID)
		if err == nil {
			logger.Debug(ctx, "done quantities reconciled", "container_id", pickingID,
				"created", rec.Created, "updated", rec.Updated)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var validateErr error
	outcome := run.BestEffort(ctx, PhaseValidate, func(ctx context.Context) error {
		candidates := make([]workflow.Candidate, 0, len(s.cfg.ValidateMethods))
		for _, m := range s.cfg.ValidateMethods {
			method := m
			candidates = append(candidates, workflow.Candidate{
				Name: method,
				Run:  func(ctx context.Context) error { return s.ops.Transition(ctx, pickingID, method) },
			})
		}
		_, validateErr = workflow.FirstSuccess(ctx, candidates)
		return validateErr
	})

	var snap picking.Snapshot
	err = run.Step(ctx, PhaseReadFinalState, func(ctx context.Context) error {
		var err error
		snap, err = s.ops.Read(ctx, pickingID)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		ContainerID: pickingID,
		DisplayName: snap.Name.String(),
		State:       snap.State,
		StateLabel:  snap.State.Label(),
		Origin:      origin,
		Lines:       make([]LineResult, 0, len(req.Lines)),
		Request:     req,
		Phases:      run.Outcomes(),
	}
	for _, l := range req.Lines {
		p := meta[l.ProductID]
		label := p.label()
		if p.Code != "" && p.Name != "" {
			label = fmt.Sprintf("[%s] %s", p.Code, p.Name)
		}
		res.Lines = append(res.Lines, LineResult{ProductID: l.ProductID, Label: label, Quantity: l.Quantity})
	}
	if snap.State != picking.StateDone {
		res.Warning = fmt.Sprintf("transfer created but left in state %s", snap.State.Label())
		if outcome.Status == workflow.StatusSkipped {
			res.Warning += ": " + remoteMessage(validateErr)
		}
	}
	return res, nil
}

func (s *Service) originText(ctx context.Context, req Request) string {
	origin := fmt.Sprintf("#%d", req.OriginID)
	dest := fmt.Sprintf("#%d", req.DestinationID)
	if s.namer != nil {
		names, err := s.namer.Names(ctx, []int64{req.OriginID, req.DestinationID})
		if err != nil {
			logger.Warn(ctx, "location names unavailable", "error", err)
		}
		if n := names[req.OriginID]; n != "" {
			origin = n
		}
		if n := names[req.DestinationID]; n != "" {
			dest = n
		}
	}
	return fmt.Sprintf("Transfer %s -> %s", origin, dest)
}

func noteText(ctx context.Context, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		note = appctx.GetOperatorName(ctx)
	}
	if note == "" {
		return ""
	}
	return "Created by: " + note
}

// remoteMessage flattens joined candidate errors into their ERP messages.
func remoteMessage(err error) string {
	if err == nil {
		return ""
	}
	type unwrapper interface{ Unwrap() []error }
	if joined, ok := err.(unwrapper); ok {
		var parts []string
		for _, e := range joined.Unwrap() {
			parts = append(parts, remoteMessage(e))
		}
		return strings.Join(parts, "; ")
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}

func lockKeys(ids ...int64) []string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	keys := make([]string, 0, len(sorted))
	for _, id := range sorted {
		keys = append(keys, fmt.Sprintf("location:%d", id))
	}
	return keys
}
