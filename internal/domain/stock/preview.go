package stock

import (
	"context"
	"maps"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
)

// Line is one (product, quantity) pair of a planned movement.
type Line struct {
	ProductID int64          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
}

// PreviewRequest describes a planned movement. Origin is the outbound side,
// Destination the inbound side; either may be the zero Scope when absent.
type PreviewRequest struct {
	Origin      Scope
	Destination Scope
	Lines       []Line
}

// Side is the projection for one location.
type Side struct {
	Before types.Quantity `json:"before"`
	After  types.Quantity `json:"after"`
}

// PreviewLine is the projection for one request line.
type PreviewLine struct {
	ProductID   int64          `json:"productId"`
	Quantity    types.Quantity `json:"quantity"`
	Origin      *Side          `json:"origin,omitempty"`
	Destination *Side          `json:"destination,omitempty"`
	Shortage    bool           `json:"shortage"`
}

// Preview is the advisory result. It has no side effects; whether a
// shortage blocks submission is up to the caller.
type Preview struct {
	Lines       []PreviewLine `json:"lines"`
	HasShortage bool          `json:"hasShortage"`
}

// Shortages returns the lines flagged short.
func (p *Preview) Shortages() []PreviewLine {
	var out []PreviewLine
	for _, l := range p.Lines {
		if l.Shortage {
			out = append(out, l)
		}
	}
	return out
}

// OnHandReader is what the previewer needs from the snapshot reader.
type OnHandReader interface {
	OnHand(ctx context.Context, productIDs []int64, scope Scope) (map[int64]types.Quantity, error)
}

// Previewer computes before/after projections.
type Previewer struct {
	reader OnHandReader
}

// NewPreviewer creates a Previewer.
func NewPreviewer(reader OnHandReader) *Previewer {
	return &Previewer{reader: reader}
}

// Preview reads current stock on each side and projects every line.
//
// Lines for the same product are applied cumulatively, so two lines of 3
// against a stock of 5 leave the second line at -1.
func (p *Previewer) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	if err := validatePreview(req); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(req.Lines))
	for _, l := range req.Lines {
		ids = append(ids, l.ProductID)
	}

	var origin, dest map[int64]types.Quantity
	var err error
	if !req.Origin.IsZero() {
		if origin, err = p.reader.OnHand(ctx, ids, req.Origin); err != nil {
			return nil, err
		}
		origin = maps.Clone(origin)
	}
	if !req.Destination.IsZero() {
		if dest, err = p.reader.OnHand(ctx, ids, req.Destination); err != nil {
			return nil, err
		}
		dest = maps.Clone(dest)
	}

	out := &Preview{Lines: make([]PreviewLine, 0, len(req.Lines))}
	for _, l := range req.Lines {
		pl := PreviewLine{ProductID: l.ProductID, Quantity: l.Quantity}
		if origin != nil {
			before := origin[l.ProductID]
			after := before.Sub(l.Quantity)
			origin[l.ProductID] = after
			pl.Origin = &Side{Before: before, After: after}
			pl.Shortage = after.IsNegative()
		}
		if dest != nil {
			before := dest[l.ProductID]
			after := before.Add(l.Quantity)
			dest[l.ProductID] = after
			pl.Destination = &Side{Before: before, After: after}
		}
		out.HasShortage = out.HasShortage || pl.Shortage
		out.Lines = append(out.Lines, pl)
	}
	return out, nil
}

func validatePreview(req PreviewRequest) error {
	if req.Origin.IsZero() && req.Destination.IsZero() {
		return apperror.NewValidation("at least one location is required")
	}
	if req.Origin.LocationID > 0 && req.Origin.LocationID == req.Destination.LocationID {
		return apperror.NewValidation("origin and destination must differ").
			WithDetail("locationId", req.Origin.LocationID)
	}
	if len(req.Lines) == 0 {
		return apperror.NewValidation("no lines to preview")
	}
	for i, l := range req.Lines {
		if l.ProductID <= 0 {
			return apperror.NewValidation("product is required").WithDetail("lineNo", i+1)
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("lineNo", i+1).
				WithDetail("productId", l.ProductID)
		}
	}
	return nil
}
