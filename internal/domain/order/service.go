// Package order books point-of-sale orders through the ERP's single atomic
// create_from_ui entry point.
package order

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain"
	"stockflow/internal/domain/costing"
	"stockflow/internal/domain/journal"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/erp"
	"stockflow/pkg/logger"
)

// Phase names, in execution order.
const (
	PhaseCheckProducts = "check_products"
	PhaseReadTaxes     = "read_product_taxes"
	PhaseCompute       = "compute_amounts"
	PhaseReference     = "next_reference"
	PhaseCreate        = "create_order"
	PhaseWriteNote     = "write_note"
)

const uiDateLayout = "2006-01-02 15:04:05"

// Line is one sold product. Price is null when the caller sent no usable number.
type Line struct {
	ProductID int64               `json:"productId"`
	Quantity  types.Quantity      `json:"quantity"`
	Price     decimal.NullDecimal `json:"price"`
}

// Payment is one payment entry; non-positive amounts are ignored.
type Payment struct {
	MethodID int64       `json:"methodId"`
	Amount   types.Money `json:"amount"`
}

// Request is one order.
type Request struct {
	Session    SessionContext `json:"session"`
	Lines      []Line         `json:"lines"`
	Payments   []Payment      `json:"payments"`
	ClientName string         `json:"clientName"`
	// Reference overrides the computed pos_reference.
	Reference string `json:"reference,omitempty"`
	UserID    int64  `json:"userId,omitempty"`
}

// ProductIDs returns the product of every line, in line order.
func (r Request) ProductIDs() []int64 {
	ids := make([]int64, 0, len(r.Lines))
	for _, l := range r.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// LineResult is an accepted line with its computed amounts.
type LineResult struct {
	ProductID int64          `json:"productId"`
	Name      string         `json:"name"`
	Quantity  types.Quantity `json:"quantity"`
	Price     types.Money    `json:"price"`
	costing.LineAmounts
}

// Result is the outcome of a booked order.
type Result struct {
	OrderID   int64        `json:"orderId"`
	Reference string       `json:"reference"`
	Client    string       `json:"client,omitempty"`
	Lines     []LineResult `json:"lines"`
	// Dropped lists the 1-based numbers of lines that were not accepted.
	Dropped []int `json:"dropped,omitempty"`
	costing.Totals
	costing.Settlement
	Phases []workflow.PhaseOutcome `json:"phases"`
}

// Service is the order orchestrator.
type Service struct {
	inv     erp.Invoker
	journal journal.Recorder
	hooks   *domain.HookRegistry[*Result]
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithJournal records every run.
func WithJournal(r journal.Recorder) Option { return func(s *Service) { s.journal = r } }

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates the orchestrator.
func NewService(inv erp.Invoker, opts ...Option) *Service {
	s := &Service{
		inv:   inv,
		hooks: domain.NewHookRegistry[*Result](),
		now:   time.Now,
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

func validate(req Request) error {
	if req.Session.ID <= 0 || req.Session.ConfigID <= 0 {
		return apperror.NewValidation("an open point-of-sale session is required").WithDetail("field", "session")
	}
	if len(req.Lines) == 0 {
		return apperror.NewValidation("order must have at least one line").WithDetail("field", "lines")
	}
	return nil
}

type productTaxes struct {
	ID          int64        `json:"id"`
	DisplayName string       `json:"display_name"`
	UoM         erp.Many2One `json:"uom_id"`
	Taxes       []int64      `json:"taxes_id"`
	ListPrice   types.Money  `json:"lst_price"`
}

type taxRow struct {
	ID            int64           `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	PriceIncluded bool            `json:"price_include"`
	Usage         erp.Text        `json:"type_tax_use"`
}

// Create books the order. Lines with an unknown product, a non-positive
// quantity or no price are dropped; an order left without lines fails.
func (s *Service) Create(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	run := workflow.NewRun(journal.KindOrder)
	res, err := s.execute(ctx, run, req)

	entry := journal.FromRun(ctx, run, err)
	entry.Request = req
	if res != nil {
		entry.ContainerID = res.OrderID
		entry.Reference = res.Reference
	}
	journal.Write(ctx, s.journal, entry)

	if err != nil {
		return nil, err
	}
	s.hooks.RunAfterCreate(ctx, res)
	return res, nil
}

func (s *Service) execute(ctx context.Context, run *workflow.Run, req Request) (*Result, error) {
	if err := s.hooks.RunBeforeCreate(ctx, &Result{}); err != nil {
		return nil, err
	}
	res := &Result{Client: strings.TrimSpace(req.ClientName)}

	var accepted []Line
	err := run.Step(ctx, PhaseCheckProducts, func(ctx context.Context) error {
		known, err := s.KnownProducts(ctx, req.ProductIDs())
		if err != nil {
			return err
		}
		for i, l := range req.Lines {
			if !known[l.ProductID] || !l.Quantity.IsPositive() || !l.Price.Valid {
				res.Dropped = append(res.Dropped, i+1)
				continue
			}
			accepted = append(accepted, l)
		}
		if len(accepted) == 0 {
			return apperror.NewValidation("order has no valid lines").WithDetail("dropped", res.Dropped)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(res.Dropped) > 0 {
		logger.Warn(ctx, "order lines dropped", "dropped", res.Dropped)
	}

	products := make(map[int64]productTaxes)
	taxes := make(map[int64]costing.Tax)
	err = run.Step(ctx, PhaseReadTaxes, func(ctx context.Context) error {
		ids := make([]int64, 0, len(accepted))
		for _, l := range accepted {
			ids = append(ids, l.ProductID)
		}
		rows, err := erp.Read[productTaxes](ctx, s.inv, "product.product", erp.Unique(ids),
			[]string{"taxes_id", "display_name", "uom_id", "lst_price"}, erp.Options{})
		if err != nil {
			return err
		}
		var taxIDs []int64
		for _, r := range rows {
			products[r.ID] = r
			taxIDs = append(taxIDs, r.Taxes...)
		}
		taxRows, err := erp.Read[taxRow](ctx, s.inv, "account.tax", erp.Unique(taxIDs),
			[]string{"amount", "price_include", "type_tax_use"}, erp.Options{})
		if err != nil {
			return err
		}
		for _, t := range taxRows {
			taxes[t.ID] = costing.Tax{ID: t.ID, Amount: t.Amount, PriceIncluded: t.PriceIncluded, Usage: t.Usage.String()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var uiLines []any
	err = run.Step(ctx, PhaseCompute, func(context.Context) error {
		amounts := make([]costing.LineAmounts, 0, len(accepted))
		payments := make([]types.Money, 0, len(req.Payments))
		for _, l := range accepted {
			p := products[l.ProductID]
			// product tax order is preserved; unknown tax ids are skipped
			lineTaxes := make([]costing.Tax, 0, len(p.Taxes))
			for _, tid := range p.Taxes {
				if t, ok := taxes[tid]; ok {
					lineTaxes = append(lineTaxes, t)
				}
			}
			a := costing.ApplyTaxes(l.Price.Decimal, l.Quantity, lineTaxes)
			amounts = append(amounts, a)
			res.Lines = append(res.Lines, LineResult{
				ProductID:   l.ProductID,
				Name:        p.DisplayName,
				Quantity:    l.Quantity,
				Price:       l.Price.Decimal,
				LineAmounts: a,
			})
			uiLines = append(uiLines, []any{0, 0, map[string]any{
				"product_id":                    l.ProductID,
				"qty":                           l.Quantity.Float64(),
				"price_unit":                    l.Price.Decimal.InexactFloat64(),
				"discount":                      0,
				"tax_ids_after_fiscal_position": p.Taxes,
				"price_subtotal":                a.Subtotal.InexactFloat64(),
				"price_subtotal_incl":           a.SubtotalIncl.InexactFloat64(),
				"product_uom_id":                p.UoM.ID,
				"full_product_name":             p.DisplayName,
				"pack_lot_ids":                  []any{},
			}})
		}
		for _, p := range req.Payments {
			payments = append(payments, p.Amount)
		}
		res.Totals = costing.OrderTotals(amounts)
		res.Settlement = costing.SettlePayments(res.AmountTotal, payments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Reference = strings.TrimSpace(req.Reference)
	if res.Reference == "" {
		out := run.BestEffort(ctx, PhaseReference, func(ctx context.Context) error {
			n, err := s.NextReference(ctx, req.Session.ConfigID)
			if err == nil {
				res.Reference = strconv.Itoa(n)
			}
			return err
		})
		if out.Status == workflow.StatusSkipped {
			res.Reference = "POS/" + id.Short()
		}
	}

	payload := s.uiOrder(req, res, uiLines)
	err = run.Step(ctx, PhaseCreate, func(ctx context.Context) error {
		raw, err := s.inv.Invoke(ctx, erp.Call{
			Model:  "pos.order",
			Method: "create_from_ui",
			Args:   []any{[]any{map[string]any{"data": payload}}},
			Kwargs: map[string]any{},
		})
		if err != nil {
			return err
		}
		res.OrderID, err = DecodeOrderID(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	run.SetContainer(res.OrderID)
	logger.Info(ctx, "order created", "order_id", res.OrderID, "reference", res.Reference,
		"amount_total", res.AmountTotal.StringFixed(2), "lines", len(res.Lines))

	run.BestEffort(ctx, PhaseWriteNote, func(ctx context.Context) error {
		return erp.Write(ctx, s.inv, "pos.order", []int64{res.OrderID}, map[string]any{"note": ClientNote(req.ClientName)})
	})

	res.Phases = run.Outcomes()
	return res, nil
}

func (s *Service) uiOrder(req Request, res *Result, lines []any) map[string]any {
	created := s.now().UTC().Format(uiDateLayout)
	statements := make([]any, 0, len(req.Payments))
	for _, p := range req.Payments {
		if p.MethodID <= 0 || !p.Amount.IsPositive() {
			continue
		}
		statements = append(statements, []any{0, 0, map[string]any{
			"amount":            p.Amount.InexactFloat64(),
			"payment_method_id": p.MethodID,
			"name":              created,
			"payment_date":      created,
		}})
	}
	return map[string]any{
		"uid":                 id.New().String(),
		"name":                res.Reference,
		"sequence_number":     s.sequenceNumber(res.Reference),
		"pos_session_id":      req.Session.ID,
		"config_id":           req.Session.ConfigID,
		"creation_date":       created,
		"fiscal_position_id":  false,
		"pricelist_id":        orFalse(req.Session.PricelistID),
		"partner_id":          false,
		"employee_id":         false,
		"user_id":             orFalse(req.UserID),
		"to_invoice":          false,
		"currency_id":         orFalse(req.Session.CurrencyID),
		"company_id":          orFalse(req.Session.CompanyID),
		"amount_paid":         costing.Round2(res.AmountPaid).InexactFloat64(),
		"amount_total":        res.AmountTotal.InexactFloat64(),
		"amount_tax":          res.AmountTax.InexactFloat64(),
		"amount_return":       costing.Round2(res.AmountReturn).InexactFloat64(),
		"is_tipped":           false,
		"tip_amount":          0,
		"lines":               lines,
		"statement_ids":       statements,
		"pos_reference":       res.Reference,
		"note":                ClientNote(req.ClientName),
	}
}

// ClientNote is the free-text note written on every order.
func ClientNote(clientName string) string {
	if n := strings.TrimSpace(clientName); n != "" {
		return "Client: " + n
	}
	return "Client: (no name)"
}

var numericRef = regexp.MustCompile(`^\d+$`)

// NextReference returns one more than the highest purely numeric
// pos_reference among the configuration's last ten orders, or 1.
func (s *Service) NextReference(ctx context.Context, configID int64) (int, error) {
	type row struct {
		ID        int64    `json:"id"`
		Reference erp.Text `json:"pos_reference"`
	}
	rows, err := erp.SearchRead[row](ctx, s.inv, "pos.order",
		erp.Domain{erp.Cond("config_id", "=", configID), erp.Cond("pos_reference", "!=", false)},
		[]string{"id", "pos_reference"}, erp.Options{Limit: 10, Order: "id desc"})
	if err != nil {
		return 0, fmt.Errorf("read recent orders: %w", err)
	}
	highest := 0
	for _, r := range rows {
		ref := strings.TrimSpace(r.Reference.String())
		if !numericRef.MatchString(ref) {
			continue
		}
		if n, err := strconv.Atoi(ref); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// KnownProducts reports which of ids exist as products.
func (s *Service) KnownProducts(ctx context.Context, ids []int64) (map[int64]bool, error) {
	ids = erp.Unique(ids)
	known := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return known, nil
	}
	existing, err := erp.Search(ctx, s.inv, "product.product", erp.Domain{erp.Cond("id", "in", ids)}, erp.Options{})
	if err != nil {
		return nil, err
	}
	for _, pid := range existing {
		known[pid] = true
	}
	return known, nil
}

func (s *Service) sequenceNumber(ref string) int {
	if n, err := strconv.Atoi(ref); err == nil {
		return n % 100000
	}
	return int(s.now().UnixMilli() % 100000)
}

func orFalse(v int64) any {
	if v > 0 {
		return v
	}
	return false
}
