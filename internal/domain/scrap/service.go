// Package scrap writes damaged stock off and lists what is left in the
// damaged-goods locations.
package scrap

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain"
	"stockflow/internal/domain/journal"
	"stockflow/internal/domain/stock"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/erp"
)

// Phase names, in execution order.
const (
	PhaseCheckStock    = "check_stock"
	PhaseResolveTarget = "resolve_scrap_location"
	PhaseCreate        = "create_scrap"
	PhaseValidate      = "validate"
)

// DefaultPatterns match the complete names of damaged-goods locations.
var DefaultPatterns = []string{"averi", "AVE/Stock"}

// Request writes Quantity of a product off at LocationID.
type Request struct {
	ProductID  int64          `json:"productId"`
	Quantity   types.Quantity `json:"quantity"`
	LocationID int64          `json:"locationId"`
}

// Validate checks the request before any remote call.
func (r Request) Validate() error {
	if r.ProductID <= 0 {
		return apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	if r.LocationID <= 0 {
		return apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	if !r.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").WithDetail("field", "quantity")
	}
	return nil
}

// Result is a validated scrap.
type Result struct {
	ScrapID    int64                   `json:"scrapId"`
	ProductID  int64                   `json:"productId"`
	Quantity   types.Quantity          `json:"quantity"`
	LocationID int64                   `json:"locationId"`
	Phases     []workflow.PhaseOutcome `json:"phases"`
}

// DamagedProduct is the stock of one product across damaged locations.
type DamagedProduct struct {
	ProductID int64          `json:"productId"`
	Name      string         `json:"name"`
	Code      string         `json:"code,omitempty"`
	Quantity  types.Quantity `json:"quantity"`
}

// DamagedStock is the damaged-goods listing. LocationID is the location
// holding the most damaged stock, used as the default scrap source.
type DamagedStock struct {
	LocationID int64            `json:"locationId,omitempty"`
	Products   []DamagedProduct `json:"products"`
}

// OnHandReader reads on-hand quantities.
type OnHandReader interface {
	OnHand(ctx context.Context, productIDs []int64, scope stock.Scope) (map[int64]types.Quantity, error)
}

// Service writes stock off.
type Service struct {
	inv     erp.Invoker
	reader  OnHandReader
	journal journal.Recorder
	hooks   *domain.HookRegistry[*Result]
}

// Option customizes a Service.
type Option func(*Service)

// WithJournal records every run.
func WithJournal(r journal.Recorder) Option { return func(s *Service) { s.journal = r } }

// NewService creates a Service.
func NewService(inv erp.Invoker, reader OnHandReader, opts ...Option) *Service {
	s := &Service{inv: inv, reader: reader, hooks: domain.NewHookRegistry[*Result]()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hooks returns the hook registry for external registration.
func (s *Service) Hooks() *domain.HookRegistry[*Result] {
	return s.hooks
}

// Create writes stock off. More than the on-hand quantity is refused.
func (s *Service) Create(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := workflow.NewRun(journal.KindScrap)
	res, err := s.execute(ctx, run, req)

	entry := journal.FromRun(ctx, run, err)
	entry.Request = req
	if res != nil {
		entry.State = "done"
	}
	journal.Write(ctx, s.journal, entry)

	if err != nil {
		return nil, err
	}
	s.hooks.RunAfterCreate(ctx, res)
	return res, nil
}

func (s *Service) execute(ctx context.Context, run *workflow.Run, req Request) (*Result, error) {
	err := run.Step(ctx, PhaseCheckStock, func(ctx context.Context) error {
		onHand, err := s.reader.OnHand(ctx, []int64{req.ProductID}, stock.Scope{LocationID: req.LocationID})
		if err != nil {
			return err
		}
		if available := onHand[req.ProductID]; req.Quantity > available {
			return apperror.NewInsufficientStock(req.ProductID, req.Quantity.Float64(), available.Float64())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var target int64
	run.BestEffort(ctx, PhaseResolveTarget, func(ctx context.Context) error {
		type row struct {
			ID int64 `json:"id"`
		}
		rows, err := erp.SearchRead[row](ctx, s.inv, "stock.location",
			erp.Domain{erp.Cond("scrap_location", "=", true)}, []string{"id"}, erp.Options{Limit: 1})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("no scrap location, using the ERP default")
		}
		target = rows[0].ID
		return nil
	})

	var scrapID int64
	err = run.Step(ctx, PhaseCreate, func(ctx context.Context) error {
		values := map[string]any{
			"product_id":  req.ProductID,
			"scrap_qty":   req.Quantity.Float64(),
			"location_id": req.LocationID,
		}
		if target > 0 {
			values["scrap_location_id"] = target
		}
		var err error
		scrapID, err = erp.Create(ctx, s.inv, "stock.scrap", values)
		return err
	})
	if err != nil {
		return nil, err
	}
	run.SetContainer(scrapID)

	err = run.Step(ctx, PhaseValidate, func(ctx context.Context) error {
		return erp.Exec(ctx, s.inv, "stock.scrap", "action_validate", []int64{scrapID})
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		ScrapID:    scrapID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		LocationID: req.LocationID,
		Phases:     run.Outcomes(),
	}, nil
}

type quantRow struct {
	Product  erp.Many2One   `json:"product_id"`
	Location erp.Many2One   `json:"location_id"`
	Quantity types.Quantity `json:"quantity"`
}

var codePrefix = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*`)

// Damaged lists positive stock in locations whose complete name contains
// any of patterns (DefaultPatterns when empty), aggregated per product and
// sorted by code.
func (s *Service) Damaged(ctx context.Context, patterns []string) (*DamagedStock, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	domainExpr := erp.Domain{erp.Cond("quantity", ">", 0)}
	for i := 0; i < len(patterns)-1; i++ {
		domainExpr = append(domainExpr, "|")
	}
	for _, p := range patterns {
		domainExpr = append(domainExpr, erp.Cond("location_id.complete_name", "ilike", p))
	}

	quants, err := erp.SearchRead[quantRow](ctx, s.inv, "stock.quant", domainExpr,
		[]string{"product_id", "quantity", "location_id"}, erp.Options{Limit: 20000})
	if err != nil {
		return nil, fmt.Errorf("read damaged quants: %w", err)
	}

	byProduct := make(map[int64]*DamagedProduct)
	byLocation := make(map[int64]types.Quantity)
	var order []int64
	for _, q := range quants {
		byLocation[q.Location.ID] += q.Quantity
		p, ok := byProduct[q.Product.ID]
		if !ok {
			name, code := splitDisplayName(q.Product.Name)
			p = &DamagedProduct{ProductID: q.Product.ID, Name: name, Code: code}
			byProduct[q.Product.ID] = p
			order = append(order, q.Product.ID)
		}
		p.Quantity += q.Quantity
	}

	out := &DamagedStock{Products: make([]DamagedProduct, 0, len(order))}
	var top types.Quantity = -1
	for loc, qty := range byLocation {
		if qty > top || (qty == top && loc < out.LocationID) {
			top, out.LocationID = qty, loc
		}
	}
	for _, pid := range order {
		if p := byProduct[pid]; p.Quantity.IsPositive() {
			out.Products = append(out.Products, *p)
		}
	}
	sort.SliceStable(out.Products, func(i, j int) bool {
		return lessByCode(out.Products[i], out.Products[j])
	})
	return out, nil
}

// splitDisplayName splits "[CODE] Name" into its parts.
func splitDisplayName(display string) (name, code string) {
	if m := codePrefix.FindStringSubmatch(display); m != nil {
		return strings.TrimSpace(display[len(m[0]):]), m[1]
	}
	return strings.TrimSpace(display), ""
}

var digits = regexp.MustCompile(`\d+`)

// lessByCode orders products with a code first, comparing the numeric
// segments of the code, then by name.
func lessByCode(a, b DamagedProduct) bool {
	ca, cb := strings.TrimSpace(a.Code), strings.TrimSpace(b.Code)
	switch {
	case ca == "" && cb == "":
		return a.Name < b.Name
	case ca == "":
		return false
	case cb == "":
		return true
	}
	sa, sb := digits.FindAllString(ca, -1), digits.FindAllString(cb, -1)
	for i := 0; i < len(sa) || i < len(sb); i++ {
		va, vb := segment(sa, i), segment(sb, i)
		if va != vb {
			return va < vb
		}
	}
	if ca != cb {
		return strings.ToLower(ca) < strings.ToLower(cb)
	}
	return a.Name < b.Name
}

func segment(segs []string, i int) int {
	if i >= len(segs) {
		return -1
	}
	n := 0
	for _, r := range segs[i] {
		n = n*10 + int(r-'0')
	}
	return n
}
