package dto

import (
	"stockflow/internal/core/types"
	"stockflow/internal/domain/catalog"
	"stockflow/internal/domain/stock"
)

// LocationResponse is one internal location.
type LocationResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Label     string `json:"label"`
	Warehouse string `json:"warehouse,omitempty"`
}

// FromLocation converts a domain location.
func FromLocation(l stock.Location) LocationResponse {
	return LocationResponse{ID: l.ID, Name: l.Name, Label: l.Label(), Warehouse: l.Warehouse}
}

// ProductQuery filters the catalog.
type ProductQuery struct {
	Q string `form:"q"`
}

// ProductResponse is one catalog record.
type ProductResponse struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Code      string         `json:"code,omitempty"`
	UoM       string         `json:"uom,omitempty"`
	Cost      types.Money    `json:"cost"`
	Available types.Quantity `json:"available"`
}

// FromProduct converts a catalog record.
func FromProduct(p catalog.Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID,
		Name:      p.Name,
		Code:      p.Code.String(),
		UoM:       p.UoM.Name,
		Cost:      p.Cost,
		Available: p.Available,
	}
}

// PreviewRequest asks for a before/after projection.
type PreviewRequest struct {
	Origin      stock.Scope  `json:"origin"`
	Destination stock.Scope  `json:"destination"`
	Lines       []stock.Line `json:"lines"`
}

// ToDomain converts the request.
func (r PreviewRequest) ToDomain() stock.PreviewRequest {
	return stock.PreviewRequest{Origin: r.Origin, Destination: r.Destination, Lines: r.Lines}
}
