// Package policy decides whether a stock preview blocks a submission.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"stockflow/internal/core/apperror"
	"stockflow/internal/domain/stock"
)

// DefaultExpression blocks any submission that would leave stock negative.
const DefaultExpression = "hasShortage"

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Blocked   bool                `json:"blocked"`
	Shortages []stock.PreviewLine `json:"shortages,omitempty"`
}

// Shortage evaluates a boolean CEL expression over a preview. Available
// variables:
//
//	kind          string  workflow kind ("transfer", "order")
//	hasShortage   bool
//	lineCount     int
//	shortageCount int
//	shortages     list of {productId int, quantity double, before double, after double}
type Shortage struct {
	expr string
	prg  cel.Program
}

// NewShortage compiles expr. An empty expr uses DefaultExpression.
func NewShortage(expr string) (*Shortage, error) {
	if expr == "" {
		expr = DefaultExpression
	}
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("hasShortage", cel.BoolType),
		cel.Variable("lineCount", cel.IntType),
		cel.Variable("shortageCount", cel.IntType),
		cel.Variable("shortages", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewConfiguration("invalid shortage policy").
			WithDetail("expression", expr).
			WithCause(iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperror.NewConfiguration("shortage policy must evaluate to bool").
			WithDetail("expression", expr).
			WithDetail("type", ast.OutputType().String())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return &Shortage{expr: expr, prg: prg}, nil
}

// Expression returns the compiled source.
func (s *Shortage) Expression() string { return s.expr }

// Evaluate runs the policy over p.
func (s *Shortage) Evaluate(kind string, p *stock.Preview) (Decision, error) {
	short := p.Shortages()
	list := make([]any, 0, len(short))
	for _, l := range short {
		m := map[string]any{
			"productId": l.ProductID,
			"quantity":  l.Quantity.Float64(),
		}
		if l.Origin != nil {
			m["before"] = l.Origin.Before.Float64()
			m["after"] = l.Origin.After.Float64()
		}
		list = append(list, m)
	}

	out, _, err := s.prg.Eval(map[string]any{
		"kind":          kind,
		"hasShortage":   p.HasShortage,
		"lineCount":     len(p.Lines),
		"shortageCount": len(short),
		"shortages":     list,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate shortage policy: %w", err)
	}
	blocked, ok := out.Value().(bool)
	if !ok {
		return Decision{}, fmt.Errorf("shortage policy returned %T", out.Value())
	}
	return Decision{Blocked: blocked, Shortages: short}, nil
}

// Check returns an INSUFFICIENT_STOCK error when the policy blocks p.
func (s *Shortage) Check(kind string, p *stock.Preview) error {
	d, err := s.Evaluate(kind, p)
	if err != nil {
		return err
	}
	if !d.Blocked {
		return nil
	}
	if len(d.Shortages) == 0 {
		return apperror.NewBusinessRule("SUBMISSION_BLOCKED", "submission blocked by stock policy").
			WithDetail("expression", s.expr)
	}
	first := d.Shortages[0]
	available := 0.0
	if first.Origin != nil {
		available = first.Origin.Before.Float64()
	}
	return apperror.NewInsufficientStock(first.ProductID, first.Quantity.Float64(), available).
		WithDetail("shortages", len(d.Shortages))
}
