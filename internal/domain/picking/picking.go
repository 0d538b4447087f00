// Package picking wraps the ERP calls shared by the transfer and entry
// orchestrators: containers (pickings), their moves and move lines.
// Sequencing and failure policy belong to the orchestrators.
package picking

import (
	"context"
	"encoding/json"
	"fmt"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/erp"
	"stockflow/pkg/logger"
)

const (
	ModelPicking  = "stock.picking"
	ModelMove     = "stock.move"
	ModelMoveLine = "stock.move.line"
	ModelType     = "stock.picking.type"
)

// DefaultDoneField is the move-line done quantity field. Newer ERP versions
// call it "quantity"; it is configurable.
const DefaultDoneField = "qty_done"

// State is the container lifecycle state.
type State string

const (
	StateDraft     State = "draft"
	StateWaiting   State = "waiting"
	StateConfirmed State = "confirmed"
	StateAssigned  State = "assigned"
	StateDone      State = "done"
	StateCancel    State = "cancel"
)

var stateLabels = map[State]string{
	StateDraft:     "Draft",
	StateWaiting:   "Waiting another operation",
	StateConfirmed: "Waiting",
	StateAssigned:  "Ready",
	StateDone:      "Done",
	StateCancel:    "Cancelled",
}

// Label returns a human-readable state name.
func (s State) Label() string {
	if l, ok := stateLabels[s]; ok {
		return l
	}
	if s == "" {
		return "unknown"
	}
	return string(s)
}

// Header is what a new container is created with.
type Header struct {
	TypeID   int64
	SourceID int64
	DestID   int64
	Origin   string
	Note     string
}

// Move is one movement to create inside a container.
type Move struct {
	Name      string
	ProductID int64
	UoMID     int64
	Quantity  types.Quantity
	PickingID int64
	SourceID  int64
	DestID    int64
	// PriceUnit annotates receipts with the incoming unit cost.
	PriceUnit *types.Money
}

// Snapshot is the container as read back from the ERP.
type Snapshot struct {
	ID    int64    `json:"id"`
	Name  erp.Text `json:"name"`
	State State    `json:"state"`
}

// Ops issues container-related calls.
type Ops struct {
	inv       erp.Invoker
	doneField string
}

// NewOps creates Ops. An empty doneField selects DefaultDoneField.
func NewOps(inv erp.Invoker, doneField string) *Ops {
	if doneField == "" {
		doneField = DefaultDoneField
	}
	return &Ops{inv: inv, doneField: doneField}
}

// ResolveType returns the first operation type matching any of the domains,
// tried in order. It fails with a configuration error when none match.
func (o *Ops) ResolveType(ctx context.Context, what string, domains ...erp.Domain) (int64, error) {
	type row struct {
		ID int64 `json:"id"`
	}
	for _, d := range domains {
		rows, err := erp.SearchRead[row](ctx, o.inv, ModelType, d, []string{"id"}, erp.Options{Limit: 1})
		if err != nil {
			return 0, err
		}
		if len(rows) > 0 {
			return rows[0].ID, nil
		}
	}
	return 0, apperror.NewConfiguration(fmt.Sprintf("no %s operation type configured", what))
}

// Create creates an empty container.
func (o *Ops) Create(ctx context.Context, h Header) (int64, error) {
	values := map[string]any{
		"picking_type_id":  h.TypeID,
		"location_id":      h.SourceID,
		"location_dest_id": h.DestID,
	}
	if h.Origin != "" {
		values["origin"] = h.Origin
	}
	if h.Note != "" {
		values["note"] = h.Note
	}
	return erp.Create(ctx, o.inv, ModelPicking, values)
}

// CreateMove creates one movement.
func (o *Ops) CreateMove(ctx context.Context, m Move) (int64, error) {
	values := map[string]any{
		"name":             m.Name,
		"product_id":       m.ProductID,
		"product_uom":      m.UoMID,
		"product_uom_qty":  m.Quantity.Float64(),
		"picking_id":       m.PickingID,
		"location_id":      m.SourceID,
		"location_dest_id": m.DestID,
	}
	if m.PriceUnit != nil {
		values["price_unit"] = m.PriceUnit.InexactFloat64()
	}
	return erp.Create(ctx, o.inv, ModelMove, values)
}

// Transition calls a lifecycle method (action_confirm, action_assign,
// button_validate, ...) on the container.
func (o *Ops) Transition(ctx context.Context, pickingID int64, method string) error {
	return erp.Exec(ctx, o.inv, ModelPicking, method, []int64{pickingID})
}

// ConfirmMoves calls the low-level per-move confirm on each move. Failures
// are collected and returned; every move is attempted.
func (o *Ops) ConfirmMoves(ctx context.Context, moveIDs []int64) []error {
	var errs []error
	for _, id := range moveIDs {
		if err := erp.Exec(ctx, o.inv, ModelMove, "_action_confirm", []int64{id}); err != nil {
			errs = append(errs, fmt.Errorf("move %d: %w", id, err))
		}
	}
	return errs
}

// Read returns the container's display name and state.
func (o *Ops) Read(ctx context.Context, pickingID int64) (Snapshot, error) {
	rows, err := erp.Read[Snapshot](ctx, o.inv, ModelPicking, []int64{pickingID}, []string{"name", "state"}, erp.Options{})
	if err != nil {
		return Snapshot{}, err
	}
	if len(rows) == 0 {
		return Snapshot{}, apperror.NewNotFound(ModelPicking, pickingID)
	}
	return rows[0], nil
}

type pickingLinks struct {
	MoveLines []int64 `json:"move_line_ids"`
	Moves     []int64 `json:"move_ids_without_package"`
}

type moveRow struct {
	ID        int64          `json:"id"`
	Product   erp.Many2One   `json:"product_id"`
	UoM       erp.Many2One   `json:"product_uom"`
	Quantity  types.Quantity `json:"product_uom_qty"`
	Source    erp.Many2One   `json:"location_id"`
	Dest      erp.Many2One   `json:"location_dest_id"`
	Picking   erp.Many2One   `json:"picking_id"`
	MoveLines []int64        `json:"move_line_ids"`
}

var moveFields = []string{"product_id", "product_uom", "product_uom_qty", "location_id", "location_dest_id", "picking_id", "move_line_ids"}

type lineRow struct {
	ID   int64
	Move int64
	Done types.Quantity
}

// Reconciliation summarizes what a reconcile pass changed.
type Reconciliation struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// ReconcileDone makes every move line of the container carry a done
// quantity equal to its move's requested quantity. When the ERP generated
// no move lines, one is created per move.
func (o *Ops) ReconcileDone(ctx context.Context, pickingID int64) (Reconciliation, error) {
	var rec Reconciliation

	links, err := erp.Read[pickingLinks](ctx, o.inv, ModelPicking, []int64{pickingID},
		[]string{"move_line_ids", "move_ids_without_package"}, erp.Options{})
	if err != nil {
		return rec, err
	}
	if len(links) == 0 {
		return rec, apperror.NewNotFound(ModelPicking, pickingID)
	}
	lineIDs, moveIDs := links[0].MoveLines, links[0].Moves

	if len(lineIDs) == 0 {
		moves, err := erp.Read[moveRow](ctx, o.inv, ModelMove, moveIDs, moveFields, erp.Options{})
		if err != nil {
			return rec, err
		}
		for _, m := range moves {
			if _, err := o.createLine(ctx, m); err != nil {
				return rec, err
			}
			rec.Created++
		}
		return rec, nil
	}

	lines, err := o.readLines(ctx, lineIDs)
	if err != nil {
		return rec, err
	}
	var linkedMoves []int64
	for _, l := range lines {
		linkedMoves = append(linkedMoves, l.Move)
	}
	moves, err := erp.Read[moveRow](ctx, o.inv, ModelMove, erp.Unique(linkedMoves), []string{"product_uom_qty"}, erp.Options{})
	if err != nil {
		return rec, err
	}
	requested := make(map[int64]types.Quantity, len(moves))
	for _, m := range moves {
		requested[m.ID] = m.Quantity
	}

	for _, l := range lines {
		want, ok := requested[l.Move]
		if !ok || l.Done == want {
			continue
		}
		if err := o.setDone(ctx, []int64{l.ID}, want); err != nil {
			return rec, err
		}
		rec.Updated++
	}
	return rec, nil
}

// EnsureMoveLines handles each move individually: a move without lines
// gets one created, a move with lines has them all set to the requested
// quantity.
func (o *Ops) EnsureMoveLines(ctx context.Context, moveIDs []int64) (Reconciliation, error) {
	var rec Reconciliation
	moves, err := erp.Read[moveRow](ctx, o.inv, ModelMove, moveIDs, moveFields, erp.Options{})
	if err != nil {
		return rec, err
	}
	for _, m := range moves {
		if len(m.MoveLines) == 0 {
			if _, err := o.createLine(ctx, m); err != nil {
				return rec, err
			}
			rec.Created++
			continue
		}
		if err := o.setDone(ctx, m.MoveLines, m.Quantity); err != nil {
			return rec, err
		}
		rec.Updated += len(m.MoveLines)
	}
	return rec, nil
}

func (o *Ops) createLine(ctx context.Context, m moveRow) (int64, error) {
	return erp.Create(ctx, o.inv, ModelMoveLine, map[string]any{
		"move_id":          m.ID,
		"picking_id":       m.Picking.ID,
		"product_id":       m.Product.ID,
		"product_uom_id":   m.UoM.ID,
		"location_id":      m.Source.ID,
		"location_dest_id": m.Dest.ID,
		o.doneField:        m.Quantity.Float64(),
	})
}

func (o *Ops) setDone(ctx context.Context, lineIDs []int64, qty types.Quantity) error {
	return erp.Write(ctx, o.inv, ModelMoveLine, lineIDs, map[string]any{o.doneField: qty.Float64()})
}

// readLines decodes move lines; the done field name is configurable so rows
// are decoded generically.
func (o *Ops) readLines(ctx context.Context, ids []int64) ([]lineRow, error) {
	raw, err := erp.Read[map[string]json.RawMessage](ctx, o.inv, ModelMoveLine, ids, []string{"move_id", o.doneField}, erp.Options{})
	if err != nil {
		return nil, err
	}
	out := make([]lineRow, 0, len(raw))
	for _, r := range raw {
		var l lineRow
		var move erp.Many2One
		if err := json.Unmarshal(r["id"], &l.ID); err != nil {
			return nil, apperror.NewUnrecognizedResponseShape(ModelMoveLine+".read", r["id"])
		}
		if v, ok := r["move_id"]; ok {
			if err := json.Unmarshal(v, &move); err != nil {
				return nil, apperror.NewUnrecognizedResponseShape(ModelMoveLine+".read", v)
			}
		}
		if v, ok := r[o.doneField]; ok && string(v) != "false" {
			if err := json.Unmarshal(v, &l.Done); err != nil {
				logger.Debug(ctx, "done quantity unreadable, treating as zero",
					"line_id", l.ID, "field", o.doneField, "raw", string(v), "error", err)
			}
		}
		l.Move = move.ID
		out = append(out, l)
	}
	return out, nil
}
