package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/journal"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// JournalLister lists recorded workflow runs.
type JournalLister interface {
	List(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

// JournalHandler serves the orchestration journal.
type JournalHandler struct {
	*BaseHandler
	store JournalLister
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(base *BaseHandler, store JournalLister) *JournalHandler {
	return &JournalHandler{BaseHandler: base, store: store}
}

// List handles GET /journal
func (h *JournalHandler) List(c *gin.Context) {
	var q dto.JournalQuery
	if !h.BindQuery(c, &q) {
		return
	}
	entries, err := h.store.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries, q.Limit, q.Offset))
}
