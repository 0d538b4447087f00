// Package entry receives goods from a supplier location into a warehouse's
// stock location, updating each product's weighted-average cost.
package entry

import (
	"context"
	"errors"
	"fmt"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain"
	"stockflow/internal/domain/costing"
	"stockflow/internal/domain/journal"
	"stockflow/internal/domain/picking"
	"stockflow/internal/domain/stock"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/erp"
	"stockflow/pkg/logger"
)

// Phase names, in execution order.
const (
	PhaseResolve         = "resolve_locations"
	PhaseCreateContainer = "create_container"
	PhaseCostAndMoves    = "update_cost_and_create_moves"
	PhaseConfirm         = "confirm"
	PhaseConfirmMoves    = "confirm_moves"
	PhaseConfirmRetry    = "confirm_retry"
	PhaseAssign          = "assign"
	PhaseEnsureLines     = "ensure_move_lines"
	PhaseValidate        = "validate"
)

// ValidateMethod is the only validate operation used for receipts.
const ValidateMethod = "button_validate"

// Line is one product received at a unit cost.
type Line struct {
	ProductID int64          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitCost  types.Money    `json:"unitCost"`
}

// Request is one receipt.
type Request struct {
	// WarehouseID selects the receiving warehouse; zero uses the configured default.
	WarehouseID int64  `json:"warehouseId"`
	Lines       []Line `json:"lines"`
}

// Validate checks the request before any remote call.
func (r Request) Validate() error {
	if r.WarehouseID <= 0 {
		return apperror.NewValidation("warehouse is required").WithDetail("field", "warehouseId")
	}
	if len(r.Lines) == 0 {
		return apperror.NewValidation("entry must have at least one line").WithDetail("field", "lines")
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
		if l.UnitCost.IsNegative() {
			return apperror.NewValidation("unit cost must not be negative").
				WithDetail("lineNo", i+1).
				WithDetail("productId", l.ProductID)
		}
	}
	return nil
}

// LineResult is the cost computed for one received line.
type LineResult struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	costing.CostBasis
}

// Result is the outcome of a receipt.
type Result struct {
	ContainerID int64                   `json:"containerId"`
	Warehouse   string                  `json:"warehouse,omitempty"`
	Lines       []LineResult            `json:"lines"`
	Phases      []workflow.PhaseOutcome `json:"phases"`
}

// Config holds deployment defaults.
type Config struct {
	DefaultWarehouseID int64
	DoneField          string
}

// Service is the entry orchestrator.
type Service struct {
	inv     erp.Invoker
	ops     *picking.Ops
	dir     *stock.Directory
	cfg     Config
	journal journal.Recorder
	hooks   *domain.HookRegistry[*Result]
}

// Option customizes a Service.
type Option func(*Service)

// WithJournal records every run.
func WithJournal(r journal.Recorder) Option { return func(s *Service) { s.journal = r } }

// NewService creates the orchestrator. inv must not retry on its own.
func NewService(inv erp.Invoker, cfg Config, opts ...Option) *Service {
	s := &Service{
		inv:   inv,
		ops:   picking.NewOps(inv, cfg.DoneField),
		dir:   stock.NewDirectory(inv),
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

type productCost struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Code      erp.Text       `json:"default_code"`
	UoM       erp.Many2One   `json:"uom_id"`
	Available types.Quantity `json:"qty_available"`
	Cost      types.Money    `json:"standard_price"`
}

var productCostFields = []string{"name", "default_code", "qty_available", "standard_price", "uom_id"}

func (s *Service) readProducts(ctx context.Context, ids []int64) (map[int64]productCost, error) {
	rows, err := erp.Read[productCost](ctx, s.inv, "product.product", erp.Unique(ids), productCostFields, erp.Options{})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]productCost, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

func (s *Service) withDefaults(req Request) Request {
	if req.WarehouseID == 0 {
		req.WarehouseID = s.cfg.DefaultWarehouseID
	}
	return req
}

// Preview computes the weighted-average cost of every line from the current
// ERP values without writing anything.
func (s *Service) Preview(ctx context.Context, req Request) ([]LineResult, error) {
	req = s.withDefaults(req)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(req.Lines))
	for _, l := range req.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.readProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]LineResult, 0, len(req.Lines))
	for _, l := range req.Lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, apperror.NewNotFound("product", l.ProductID)
		}
		out = append(out, LineResult{
			ProductID: l.ProductID,
			Name:      p.Name,
			Code:      p.Code.String(),
			CostBasis: costing.WeightedAverage(p.Available, p.Cost, l.Quantity, l.UnitCost),
		})
	}
	return out, nil
}

// Create runs the receipt protocol. The product cost is written before its
// move is created and is not rolled back if a later phase fails.
func (s *Service) Create(ctx context.Context, req Request) (*Result, error) {
	req = s.withDefaults(req)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := workflow.NewRun(journal.KindEntry)
	res, err := s.execute(ctx, run, req)

	entry := journal.FromRun(ctx, run, err)
	entry.Request = req
	if res != nil {
		entry.State = string(picking.StateDone)
		entry.Reference = res.Warehouse
	}
	journal.Write(ctx, s.journal, entry)

	if err != nil {
		return nil, err
	}
	s.hooks.RunAfterCreate(ctx, res)
	return res, nil
}

type receipt struct {
	typeID    int64
	warehouse stock.Warehouse
	supplier  int64
}

func (s *Service) resolve(ctx context.Context, warehouseID int64) (receipt, error) {
	var r receipt
	var err error
	r.typeID, err = s.ops.ResolveType(ctx, "incoming",
		erp.Domain{erp.Cond("warehouse_id", "=", warehouseID), erp.Cond("code", "=", "incoming")})
	if err != nil {
		return r, err
	}

	r.warehouse, err = s.dir.Warehouse(ctx, warehouseID)
	if err != nil {
		return r, err
	}
	if !r.warehouse.LotStock.Valid() {
		return r, apperror.NewConfiguration(fmt.Sprintf("warehouse %s has no stock location", r.warehouse.Name))
	}

	type row struct {
		ID int64 `json:"id"`
	}
	suppliers, err := erp.SearchRead[row](ctx, s.inv, "stock.location",
		erp.Domain{erp.Cond("usage", "=", stock.UsageSupplier)}, []string{"id"}, erp.Options{Limit: 1})
	if err != nil {
		return r, err
	}
	if len(suppliers) == 0 {
		return r, apperror.NewConfiguration("no supplier location configured")
	}
	r.supplier = suppliers[0].ID
	return r, nil
}

func (s *Service) execute(ctx context.Context, run *workflow.Run, req Request) (*Result, error) {
	if err := s.hooks.RunBeforeCreate(ctx, &Result{}); err != nil {
		return nil, err
	}

	var rc receipt
	err := run.Step(ctx, PhaseResolve, func(ctx context.Context) error {
		var err error
		rc, err = s.resolve(ctx, req.WarehouseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	dest := rc.warehouse.LotStock.ID

	var pickingID int64
	err = run.Step(ctx, PhaseCreateContainer, func(ctx context.Context) error {
		var err error
		pickingID, err = s.ops.Create(ctx, picking.Header{
			TypeID:   rc.typeID,
			SourceID: rc.supplier,
			DestID:   dest,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	run.SetContainer(pickingID)
	logger.Info(ctx, "entry container created", "container_id", pickingID,
		"warehouse_id", req.WarehouseID, "lines", len(req.Lines))

	lines := make([]LineResult, 0, len(req.Lines))
	var moveIDs []int64
	err = run.Step(ctx, PhaseCostAndMoves, func(ctx context.Context) error {
		for _, l := range req.Lines {
			// Read per line: an earlier line for the same product changes its cost.
			products, err := s.readProducts(ctx, []int64{l.ProductID})
			if err != nil {
				return err
			}
			p, ok := products[l.ProductID]
			if !ok {
				return apperror.NewNotFound("product", l.ProductID)
			}
			basis := costing.WeightedAverage(p.Available, p.Cost, l.Quantity, l.UnitCost)

			if err := erp.Write(ctx, s.inv, "product.product", []int64{l.ProductID},
				map[string]any{"standard_price": basis.NewCost.InexactFloat64()}); err != nil {
				return fmt.Errorf("update cost of product %d: %w", l.ProductID, err)
			}

			price := l.UnitCost
			moveID, err := s.ops.CreateMove(ctx, picking.Move{
				Name:      p.Name,
				ProductID: l.ProductID,
				UoMID:     p.UoM.ID,
				Quantity:  l.Quantity,
				PickingID: pickingID,
				SourceID:  rc.supplier,
				DestID:    dest,
				PriceUnit: &price,
			})
			if err != nil {
				return err
			}
			moveIDs = append(moveIDs, moveID)
			lines = append(lines, LineResult{
				ProductID: l.ProductID,
				Name:      p.Name,
				Code:      p.Code.String(),
				CostBasis: basis,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	confirm := func(ctx context.Context) error { return s.ops.Transition(ctx, pickingID, "action_confirm") }
	if out := run.BestEffort(ctx, PhaseConfirm, confirm); out.Status == workflow.StatusSkipped {
		run.BestEffort(ctx, PhaseConfirmMoves, func(ctx context.Context) error {
			return errors.Join(s.ops.ConfirmMoves(ctx, moveIDs)...)
		})
		if err := run.Step(ctx, PhaseConfirmRetry, confirm); err != nil {
			return nil, err
		}
	}

	if err := run.Step(ctx, PhaseAssign, func(ctx context.Context) error {
		return s.ops.Transition(ctx, pickingID, "action_assign")
	}); err != nil {
		return nil, err
	}

	if err := run.Step(ctx, PhaseEnsureLines, func(ctx context.Context) error {
		_, err := s.ops.EnsureMoveLines(ctx, moveIDs)
		return err
	}); err != nil {
		return nil, err
	}

	if err := run.Step(ctx, PhaseValidate, func(ctx context.Context) error {
		return s.ops.Transition(ctx, pickingID, ValidateMethod)
	}); err != nil {
		return nil, err
	}

	return &Result{
		ContainerID: pickingID,
		Warehouse:   rc.warehouse.Name,
		Lines:       lines,
		Phases:      run.Outcomes(),
	}, nil
}
