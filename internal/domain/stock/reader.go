// Package stock reads on-hand quantities from the ERP and projects the
// effect of a planned movement before it is committed.
package stock

import (
	"context"
	"fmt"

	"stockflow/internal/core/types"
	"stockflow/internal/erp"
)

// Scope selects which stock a read counts.
//
// LocationID reads one location including its children. Locations reads
// the union of the listed locations. The zero Scope is company-wide.
type Scope struct {
	LocationID int64   `json:"locationId,omitempty"`
	Locations  []int64 `json:"locations,omitempty"`
}

// IsZero reports whether the scope names no location at all.
func (s Scope) IsZero() bool {
	return s.LocationID == 0 && len(s.Locations) == 0
}

func (s Scope) String() string {
	switch {
	case len(s.Locations) > 0:
		return fmt.Sprintf("locations%v", s.Locations)
	case s.LocationID > 0:
		return fmt.Sprintf("location %d", s.LocationID)
	default:
		return "company"
	}
}

// Reader is the stock snapshot reader.
type Reader struct {
	inv erp.Invoker
}

// NewReader creates a Reader.
func NewReader(inv erp.Invoker) *Reader {
	return &Reader{inv: inv}
}

type productQty struct {
	ID           int64          `json:"id"`
	QtyAvailable types.Quantity `json:"qty_available"`
}

type quantQty struct {
	Product  erp.Many2One   `json:"product_id"`
	Quantity types.Quantity `json:"quantity"`
}

// OnHand returns the on-hand quantity per product within scope. Products the
// ERP does not report are present with quantity 0. One request is issued
// regardless of the number of products.
func (r *Reader) OnHand(ctx context.Context, productIDs []int64, scope Scope) (map[int64]types.Quantity, error) {
	ids := erp.Unique(productIDs)
	out := make(map[int64]types.Quantity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	for _, id := range ids {
		out[id] = 0
	}

	if len(scope.Locations) > 0 {
		quants, err := erp.SearchRead[quantQty](ctx, r.inv, "stock.quant",
			erp.Domain{
				erp.Cond("product_id", "in", ids),
				erp.Cond("location_id", "in", erp.Unique(scope.Locations)),
			},
			[]string{"product_id", "quantity"},
			erp.Options{})
		if err != nil {
			return nil, fmt.Errorf("read quants: %w", err)
		}
		for _, q := range quants {
			if _, ok := out[q.Product.ID]; ok {
				out[q.Product.ID] += q.Quantity
			}
		}
		return out, nil
	}

	opts := erp.Options{}
	if scope.LocationID > 0 {
		opts.Context = map[string]any{"location": scope.LocationID, "compute_child": true}
	}
	rows, err := erp.Read[productQty](ctx, r.inv, "product.product", ids, []string{"qty_available"}, opts)
	if err != nil {
		return nil, fmt.Errorf("read qty_available: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row.QtyAvailable
	}
	return out, nil
}
