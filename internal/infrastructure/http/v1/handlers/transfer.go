package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/journal"
	"stockflow/internal/domain/stock"
	"stockflow/internal/domain/transfer"
	"stockflow/internal/infrastructure/http/v1/dto"
	"stockflow/pkg/logger"
)

// ShortagePolicy decides whether a previewed shortage blocks submission.
type ShortagePolicy interface {
	Check(kind string, p *stock.Preview) error
}

// TransferCreator runs the transfer workflow.
type TransferCreator interface {
	Create(ctx context.Context, req transfer.Request) (*transfer.Result, error)
}

// TransferHandler submits internal transfers.
type TransferHandler struct {
	*BaseHandler
	service   TransferCreator
	previewer Previewer
	policy    ShortagePolicy
}

// NewTransferHandler creates a new transfer handler. policy may be nil.
func NewTransferHandler(base *BaseHandler, service TransferCreator, previewer Previewer, policy ShortagePolicy) *TransferHandler {
	return &TransferHandler{BaseHandler: base, service: service, previewer: previewer, policy: policy}
}

// Create handles POST /transfers
func (h *TransferHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.Error(c, err)
		return
	}

	preview, perr := h.previewer.Preview(ctx, stock.PreviewRequest{
		Origin:      stock.Scope{LocationID: req.OriginID},
		Destination: stock.Scope{LocationID: req.DestinationID},
		Lines:       req.PreviewLines(),
	})
	if err := checkShortage(ctx, h.policy, journal.KindTransfer, preview, perr, req.Force); err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.service.Create(ctx, req.Request)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.TransferResponse{Result: res, Preview: preview})
}

// checkShortage applies the policy to a preview. A forced submission skips
// the policy and tolerates a failed preview.
func checkShortage(ctx context.Context, policy ShortagePolicy, kind string, p *stock.Preview, previewErr error, force bool) error {
	if previewErr != nil {
		if !force {
			return previewErr
		}
		logger.Warn(ctx, "preview failed, submitting anyway", "kind", kind, "error", previewErr)
		return nil
	}
	if force {
		if p != nil && p.HasShortage {
			logger.Info(ctx, "shortage policy bypassed", "kind", kind, "shortages", len(p.Shortages()))
		}
		return nil
	}
	if policy == nil || p == nil {
		return nil
	}
	return policy.Check(kind, p)
}
