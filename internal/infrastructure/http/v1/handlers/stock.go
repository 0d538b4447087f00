package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/catalog"
	"stockflow/internal/domain/stock"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// LocationLister lists internal locations.
type LocationLister interface {
	Internal(ctx context.Context) ([]stock.Location, error)
}

// ProductCatalog is the in-memory product catalog.
type ProductCatalog interface {
	EnsureLoaded(ctx context.Context) error
	Filter(term string) []catalog.Product
}

// Previewer projects stock before and after a planned movement.
type Previewer interface {
	Preview(ctx context.Context, req stock.PreviewRequest) (*stock.Preview, error)
}

// StockHandler serves locations, products and stock previews.
type StockHandler struct {
	*BaseHandler
	locations LocationLister
	catalog   ProductCatalog
	previewer Previewer
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, locations LocationLister, catalog ProductCatalog, previewer Previewer) *StockHandler {
	return &StockHandler{BaseHandler: base, locations: locations, catalog: catalog, previewer: previewer}
}

// Locations handles GET /locations
func (h *StockHandler) Locations(c *gin.Context) {
	locs, err := h.locations.Internal(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	out := make([]dto.LocationResponse, len(locs))
	for i, l := range locs {
		out[i] = dto.FromLocation(l)
	}
	h.OK(c, dto.NewListResponse(out, 0, 0))
}

// Products handles GET /products?q=
func (h *StockHandler) Products(c *gin.Context) {
	var q dto.ProductQuery
	if !h.BindQuery(c, &q) {
		return
	}
	if err := h.catalog.EnsureLoaded(c.Request.Context()); err != nil {
		h.Error(c, err)
		return
	}
	found := h.catalog.Filter(q.Q)
	out := make([]dto.ProductResponse, len(found))
	for i, p := range found {
		out[i] = dto.FromProduct(p)
	}
	h.OK(c, dto.NewListResponse(out, 0, 0))
}

// Preview handles POST /stock/preview
func (h *StockHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.previewer.Preview(c.Request.Context(), req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}
