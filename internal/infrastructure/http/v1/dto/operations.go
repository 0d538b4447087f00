package dto

import (
	"stockflow/internal/domain/entry"
	"stockflow/internal/domain/order"
	"stockflow/internal/domain/stock"
	"stockflow/internal/domain/transfer"
)

// TransferRequest submits a transfer. Force skips the shortage policy.
type TransferRequest struct {
	transfer.Request
	Force bool `json:"force"`
}

// PreviewLines returns the lines in preview form.
func (r TransferRequest) PreviewLines() []stock.Line {
	out := make([]stock.Line, len(r.Lines))
	for i, l := range r.Lines {
		out[i] = stock.Line{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}

// TransferResponse is the transfer outcome with the preview it was checked against.
type TransferResponse struct {
	*transfer.Result
	Preview *stock.Preview `json:"preview,omitempty"`
}

// EntryPreviewResponse is the cost basis per line of a planned receipt.
type EntryPreviewResponse struct {
	Lines []entry.LineResult `json:"lines"`
}

// OrderRequest submits a point-of-sale order. The session is resolved
// server-side. Force skips the shortage policy.
type OrderRequest struct {
	Lines      []order.Line    `json:"lines"`
	Payments   []order.Payment `json:"payments"`
	ClientName string          `json:"clientName"`
	Reference  string          `json:"reference,omitempty"`
	UserID     int64           `json:"userId,omitempty"`
	Force      bool            `json:"force"`
}

// ToDomain converts the request for session s.
func (r OrderRequest) ToDomain(s order.SessionContext) order.Request {
	return order.Request{
		Session:    s,
		Lines:      r.Lines,
		Payments:   r.Payments,
		ClientName: r.ClientName,
		Reference:  r.Reference,
		UserID:     r.UserID,
	}
}

// PreviewLines returns the lines that can be previewed. Lines without a
// product, a positive quantity or a price are dropped by the order and left
// out here. known, when non-nil, also filters out products that do not exist.
func (r OrderRequest) PreviewLines(known map[int64]bool) []stock.Line {
	var out []stock.Line
	for _, l := range r.Lines {
		if known != nil && !known[l.ProductID] {
			continue
		}
		if l.ProductID > 0 && l.Quantity.IsPositive() && l.Price.Valid {
			out = append(out, stock.Line{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	}
	return out
}

// OrderResponse is the order outcome.
type OrderResponse struct {
	*order.Result
	Session order.SessionContext `json:"session"`
	Preview *stock.Preview       `json:"preview,omitempty"`
}

// DamagedQuery selects the damage location patterns.
type DamagedQuery struct {
	Patterns []string `form:"pattern"`
}
