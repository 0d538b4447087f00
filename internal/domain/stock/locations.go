package stock

import (
	"context"
	"fmt"
	"sort"

	"stockflow/internal/core/apperror"
	"stockflow/internal/erp"
)

// Location usage classifications.
const (
	UsageInternal  = "internal"
	UsageSupplier  = "supplier"
	UsageCustomer  = "customer"
	UsageInventory = "inventory"
	UsageView      = "view"
	UsageTransit   = "transit"
)

// maxParentHops bounds the parent walk in ResolveWarehouse.
const maxParentHops = 20

// Location is a node of the ERP location tree.
type Location struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	CompleteName  erp.Text     `json:"complete_name"`
	Parent        erp.Many2One `json:"location_id"`
	Usage         string       `json:"usage"`
	ScrapLocation bool         `json:"scrap_location"`

	// Warehouse is the enclosing warehouse name, filled by Directory.
	Warehouse string `json:"warehouse,omitempty"`
}

// Label returns the most descriptive name available.
func (l Location) Label() string {
	if l.CompleteName != "" {
		return l.CompleteName.String()
	}
	return l.Name
}

// Warehouse is a warehouse with its root locations.
type Warehouse struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Code         erp.Text     `json:"code"`
	LotStock     erp.Many2One `json:"lot_stock_id"`
	ViewLocation erp.Many2One `json:"view_location_id"`
}

var (
	locationFields  = []string{"name", "complete_name", "location_id", "usage", "scrap_location"}
	warehouseFields = []string{"name", "code", "lot_stock_id", "view_location_id"}
)

// Tree resolves the effective warehouse of a location.
type Tree struct {
	byID  map[int64]Location
	roots map[int64]Warehouse
}

// NewTree indexes locations and warehouse root locations.
func NewTree(locations []Location, warehouses []Warehouse) *Tree {
	t := &Tree{
		byID:  make(map[int64]Location, len(locations)),
		roots: make(map[int64]Warehouse, len(warehouses)*2),
	}
	for _, l := range locations {
		t.byID[l.ID] = l
	}
	for _, w := range warehouses {
		if w.LotStock.Valid() {
			t.roots[w.LotStock.ID] = w
		}
		if w.ViewLocation.Valid() {
			t.roots[w.ViewLocation.ID] = w
		}
	}
	return t
}

// ResolveWarehouse walks parent references from locationID until it reaches
// a warehouse root, giving up after a bounded number of hops or when a
// parent is unknown.
func (t *Tree) ResolveWarehouse(locationID int64) (Warehouse, bool) {
	cur := locationID
	for hop := 0; hop <= maxParentHops && cur > 0; hop++ {
		if w, ok := t.roots[cur]; ok {
			return w, true
		}
		loc, ok := t.byID[cur]
		if !ok {
			break
		}
		cur = loc.Parent.ID
	}
	return Warehouse{}, false
}

// Directory lists and names locations.
type Directory struct {
	inv erp.Invoker
}

// NewDirectory creates a Directory. inv may be a retrying invoker since
// every call is a read.
func NewDirectory(inv erp.Invoker) *Directory {
	return &Directory{inv: inv}
}

// Internal returns internal locations labelled with their warehouse, sorted
// by warehouse then name.
func (d *Directory) Internal(ctx context.Context) ([]Location, error) {
	all, err := erp.SearchRead[Location](ctx, d.inv, "stock.location",
		erp.Domain{erp.Cond("usage", "in", []string{UsageInternal, UsageView})},
		locationFields, erp.Options{Order: "complete_name"})
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	warehouses, err := erp.SearchRead[Warehouse](ctx, d.inv, "stock.warehouse", nil, warehouseFields, erp.Options{})
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}

	tree := NewTree(all, warehouses)
	out := make([]Location, 0, len(all))
	for _, l := range all {
		if l.Usage != UsageInternal {
			continue
		}
		if w, ok := tree.ResolveWarehouse(l.ID); ok {
			l.Warehouse = w.Name
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Warehouse != out[j].Warehouse {
			return out[i].Warehouse < out[j].Warehouse
		}
		return out[i].Label() < out[j].Label()
	})
	return out, nil
}

// Names returns a display label per location id. Unknown ids are absent.
func (d *Directory) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	rows, err := erp.Read[Location](ctx, d.inv, "stock.location", erp.Unique(ids), []string{"name", "complete_name"}, erp.Options{})
	if err != nil {
		return nil, fmt.Errorf("read location names: %w", err)
	}
	out := make(map[int64]string, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Label()
	}
	return out, nil
}

// Usages returns the usage classification per location id.
func (d *Directory) Usages(ctx context.Context, ids []int64) (map[int64]string, error) {
	rows, err := erp.Read[Location](ctx, d.inv, "stock.location", erp.Unique(ids), []string{"usage"}, erp.Options{})
	if err != nil {
		return nil, fmt.Errorf("read location usages: %w", err)
	}
	out := make(map[int64]string, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Usage
	}
	return out, nil
}

// Warehouse reads one warehouse.
func (d *Directory) Warehouse(ctx context.Context, id int64) (Warehouse, error) {
	rows, err := erp.Read[Warehouse](ctx, d.inv, "stock.warehouse", []int64{id}, warehouseFields, erp.Options{})
	if err != nil {
		return Warehouse{}, fmt.Errorf("read warehouse: %w", err)
	}
	if len(rows) == 0 {
		return Warehouse{}, apperror.NewNotFound("warehouse", id)
	}
	return rows[0], nil
}
