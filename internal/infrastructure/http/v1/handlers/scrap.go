package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/scrap"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// ScrapService writes off stock and lists damaged stock.
type ScrapService interface {
	Create(ctx context.Context, req scrap.Request) (*scrap.Result, error)
	Damaged(ctx context.Context, patterns []string) (*scrap.DamagedStock, error)
}

// ScrapHandler serves scraps.
type ScrapHandler struct {
	*BaseHandler
	service ScrapService
}

// NewScrapHandler creates a new scrap handler.
func NewScrapHandler(base *BaseHandler, service ScrapService) *ScrapHandler {
	return &ScrapHandler{BaseHandler: base, service: service}
}

// Create handles POST /scraps
func (h *ScrapHandler) Create(c *gin.Context) {
	var req scrap.Request
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Damaged handles GET /scraps/damaged?pattern=
func (h *ScrapHandler) Damaged(c *gin.Context) {
	var q dto.DamagedQuery
	if !h.BindQuery(c, &q) {
		return
	}
	res, err := h.service.Damaged(c.Request.Context(), q.Patterns)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
