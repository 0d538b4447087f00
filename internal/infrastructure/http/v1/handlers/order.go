package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/journal"
	"stockflow/internal/domain/order"
	"stockflow/internal/domain/stock"
	"stockflow/internal/infrastructure/http/v1/dto"
	"stockflow/pkg/logger"
)

// OrderCreator runs the order workflow and resolves which products exist.
type OrderCreator interface {
	Create(ctx context.Context, req order.Request) (*order.Result, error)
	KnownProducts(ctx context.Context, ids []int64) (map[int64]bool, error)
}

// SessionResolver finds the point-of-sale session and its stock location.
type SessionResolver interface {
	Ensure(ctx context.Context, configName string) (order.SessionContext, error)
	StockLocation(ctx context.Context, configID int64) (int64, error)
}

// OrderConfig selects the point of sale orders are booked on.
type OrderConfig struct {
	ConfigName string
	// LocationID overrides the location stock is previewed at. Zero means
	// the configuration's own source location.
	LocationID int64
}

// OrderHandler submits point-of-sale orders.
type OrderHandler struct {
	*BaseHandler
	service   OrderCreator
	sessions  SessionResolver
	previewer Previewer
	policy    ShortagePolicy
	cfg       OrderConfig
}

// NewOrderHandler creates a new order handler. policy may be nil.
func NewOrderHandler(base *BaseHandler, service OrderCreator, sessions SessionResolver, previewer Previewer, policy ShortagePolicy, cfg OrderConfig) *OrderHandler {
	return &OrderHandler{BaseHandler: base, service: service, sessions: sessions, previewer: previewer, policy: policy, cfg: cfg}
}

// Create handles POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.OrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	session, err := h.sessions.Ensure(ctx, h.cfg.ConfigName)
	if err != nil {
		h.Error(c, err)
		return
	}

	preview, perr := h.preview(ctx, session, req)
	if err := checkShortage(ctx, h.policy, journal.KindOrder, preview, perr, req.Force); err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.service.Create(ctx, req.ToDomain(session))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.OrderResponse{Result: res, Session: session, Preview: preview})
}

// preview projects the lines the order will keep. It returns nil when there
// is nothing to preview or the location is unknown.
func (h *OrderHandler) preview(ctx context.Context, session order.SessionContext, req dto.OrderRequest) (*stock.Preview, error) {
	if len(req.PreviewLines(nil)) == 0 {
		return nil, nil
	}
	loc := h.sourceLocation(ctx, session)
	if loc <= 0 {
		return nil, nil
	}
	known, err := h.service.KnownProducts(ctx, req.ToDomain(session).ProductIDs())
	if err != nil {
		return nil, err
	}
	lines := req.PreviewLines(known)
	if len(lines) == 0 {
		return nil, nil
	}
	return h.previewer.Preview(ctx, stock.PreviewRequest{Origin: stock.Scope{LocationID: loc}, Lines: lines})
}

func (h *OrderHandler) sourceLocation(ctx context.Context, session order.SessionContext) int64 {
	if h.cfg.LocationID > 0 {
		return h.cfg.LocationID
	}
	loc, err := h.sessions.StockLocation(ctx, session.ConfigID)
	if err != nil {
		logger.Warn(ctx, "point-of-sale stock location unknown, skipping preview", "config_id", session.ConfigID, "error", err)
		return 0
	}
	return loc
}
