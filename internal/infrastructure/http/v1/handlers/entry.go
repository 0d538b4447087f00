package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/entry"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// EntryService previews and books supplier receipts.
type EntryService interface {
	Preview(ctx context.Context, req entry.Request) ([]entry.LineResult, error)
	Create(ctx context.Context, req entry.Request) (*entry.Result, error)
}

// EntryHandler serves stock entries.
type EntryHandler struct {
	*BaseHandler
	service EntryService
}

// NewEntryHandler creates a new entry handler.
func NewEntryHandler(base *BaseHandler, service EntryService) *EntryHandler {
	return &EntryHandler{BaseHandler: base, service: service}
}

// Preview handles POST /entries/preview
func (h *EntryHandler) Preview(c *gin.Context) {
	var req entry.Request
	if !h.BindJSON(c, &req) {
		return
	}
	lines, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.EntryPreviewResponse{Lines: lines})
}

// Create handles POST /entries
func (h *EntryHandler) Create(c *gin.Context) {
	var req entry.Request
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
