// Package report builds the per-product movement report of a warehouse.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/stock"
	"stockflow/internal/erp"
)

// Class is the business meaning of a movement.
type Class string

const (
	ClassSale           Class = "sale"
	ClassPurchase       Class = "purchase"
	ClassInventory      Class = "inventory"
	ClassCustomerReturn Class = "customer_return"
	ClassInternal       Class = "internal"
	ClassOther          Class = "other"
)

// Direction relative to the warehouse stock location.
type Direction string

const (
	DirectionIn       Direction = "in"
	DirectionOut      Direction = "out"
	DirectionInternal Direction = "internal"
)

const (
	dateLayout = "2006-01-02"
	erpLayout  = "2006-01-02 15:04:05"
	lineLimit  = 5000
)

// Query selects one product's movements within a warehouse between two
// calendar days, both inclusive.
type Query struct {
	WarehouseID int64  `form:"warehouseId"`
	ProductID   int64  `form:"productId"`
	From        string `form:"from"`
	To          string `form:"to"`
}

func (q Query) window() (time.Time, time.Time, error) {
	if q.WarehouseID <= 0 {
		return time.Time{}, time.Time{}, apperror.NewValidation("warehouse is required").WithDetail("field", "warehouseId")
	}
	if q.ProductID <= 0 {
		return time.Time{}, time.Time{}, apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	from, err := time.Parse(dateLayout, q.From)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.NewValidation("from must be YYYY-MM-DD").WithDetail("field", "from")
	}
	to, err := time.Parse(dateLayout, q.To)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.NewValidation("to must be YYYY-MM-DD").WithDetail("field", "to")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, apperror.NewValidation("to must not be before from").WithDetail("field", "to")
	}
	return from, to.Add(24*time.Hour - time.Second), nil
}

// Movement is one classified move line.
type Movement struct {
	ID        int64          `json:"id"`
	Date      string         `json:"date"`
	Reference string         `json:"reference"`
	Quantity  types.Quantity `json:"quantity"`
	Direction Direction      `json:"direction"`
	Class     Class          `json:"class"`
}

// Summary totals the movements. Shipped excludes sales.
type Summary struct {
	Sold     types.Quantity `json:"sold"`
	Received types.Quantity `json:"received"`
	Shipped  types.Quantity `json:"shipped"`
}

// Report is the movement report of one product.
type Report struct {
	Warehouse string     `json:"warehouse"`
	ProductID int64      `json:"productId"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Summary   Summary    `json:"summary"`
	Movements []Movement `json:"movements"`
}

// Service builds reports.
type Service struct {
	inv erp.Invoker
	dir *stock.Directory
}

// NewService creates a Service. Every call it makes is a read.
func NewService(inv erp.Invoker) *Service {
	return &Service{inv: inv, dir: stock.NewDirectory(inv)}
}

type lineRow struct {
	ID        int64          `json:"id"`
	Date      erp.Text       `json:"date"`
	Reference erp.Text       `json:"reference"`
	Done      types.Quantity `json:"qty_done"`
	From      erp.Many2One   `json:"location_id"`
	To        erp.Many2One   `json:"location_dest_id"`
}

// Movements reads and classifies the move lines touching the warehouse's
// stock location.
func (s *Service) Movements(ctx context.Context, q Query) (*Report, error) {
	from, to, err := q.window()
	if err != nil {
		return nil, err
	}

	wh, err := s.dir.Warehouse(ctx, q.WarehouseID)
	if err != nil {
		return nil, err
	}
	stockID := wh.LotStock.ID

	domainExpr := erp.Domain{
		"&", erp.Cond("product_id", "=", q.ProductID),
		"&", erp.Cond("date", ">=", from.Format(erpLayout)), erp.Cond("date", "<=", to.Format(erpLayout)),
		"|", erp.Cond("location_id", "=", stockID), erp.Cond("location_dest_id", "=", stockID),
	}
	lines, err := erp.SearchRead[lineRow](ctx, s.inv, "stock.move.line", domainExpr,
		[]string{"id", "date", "reference", "qty_done", "location_id", "location_dest_id", "state"},
		erp.Options{Limit: lineLimit})
	if err != nil {
		return nil, fmt.Errorf("read move lines: %w", err)
	}

	var locIDs []int64
	for _, l := range lines {
		locIDs = append(locIDs, l.From.ID, l.To.ID)
	}
	usages := map[int64]string{}
	if len(locIDs) > 0 {
		usages, err = s.dir.Usages(ctx, locIDs)
		if err != nil {
			return nil, err
		}
	}

	c := Classifier{StockID: stockID, Usages: usages}
	rep := &Report{
		Warehouse: wh.Name,
		ProductID: q.ProductID,
		From:      q.From,
		To:        q.To,
		Movements: make([]Movement, 0, len(lines)),
	}
	var shippedRaw types.Quantity
	for _, l := range lines {
		class, dir := c.Classify(l.From.ID, l.To.ID)
		switch dir {
		case DirectionIn:
			rep.Summary.Received += l.Done
		case DirectionOut:
			shippedRaw += l.Done
		}
		if class == ClassSale {
			rep.Summary.Sold += l.Done
		}
		rep.Movements = append(rep.Movements, Movement{
			ID:        l.ID,
			Date:      l.Date.String(),
			Reference: l.Reference.String(),
			Quantity:  l.Done,
			Direction: dir,
			Class:     class,
		})
	}
	if shipped := shippedRaw - rep.Summary.Sold; shipped.IsPositive() {
		rep.Summary.Shipped = shipped
	}
	sort.SliceStable(rep.Movements, func(i, j int) bool { return rep.Movements[i].Date < rep.Movements[j].Date })
	return rep, nil
}

// Classifier assigns a class and direction to a movement between two
// locations, relative to the warehouse stock location StockID. Unknown
// usages count as internal.
type Classifier struct {
	StockID int64
	Usages  map[int64]string
}

func (c Classifier) usage(id int64) string {
	if u, ok := c.Usages[id]; ok && u != "" {
		return u
	}
	return stock.UsageInternal
}

// Classify returns the class and direction of a movement from -> to.
func (c Classifier) Classify(from, to int64) (Class, Direction) {
	dir := DirectionInternal
	switch {
	case to == c.StockID && from != c.StockID:
		dir = DirectionIn
	case from == c.StockID && to != c.StockID:
		dir = DirectionOut
	}

	fromUsage, toUsage := c.usage(from), c.usage(to)
	switch {
	case from == c.StockID && to == c.StockID:
		return ClassInternal, dir
	case from == c.StockID && toUsage == stock.UsageCustomer:
		return ClassSale, dir
	case to == c.StockID && fromUsage == stock.UsageSupplier:
		return ClassPurchase, dir
	case fromUsage == stock.UsageInventory || toUsage == stock.UsageInventory:
		return ClassInventory, dir
	case to == c.StockID && fromUsage == stock.UsageCustomer:
		return ClassCustomerReturn, dir
	case (fromUsage == stock.UsageInternal || from == c.StockID) && (toUsage == stock.UsageInternal || to == c.StockID):
		return ClassInternal, dir
	}
	return ClassOther, dir
}
