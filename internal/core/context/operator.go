package context

import (
	"context"
	"strings"
)

// Operator identifies the person a workflow runs on behalf of.
// It is free text supplied by the caller and ends up in container notes.
type Operator struct {
	Name string
}

type operatorContextKey struct{}

// WithOperator adds Operator to context.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// GetOperator returns Operator from context.
func GetOperator(ctx context.Context) *Operator {
	if v, ok := ctx.Value(operatorContextKey{}).(*Operator); ok {
		return v
	}
	return nil
}

// GetOperatorName returns the trimmed operator name or empty string.
func GetOperatorName(ctx context.Context) string {
	if op := GetOperator(ctx); op != nil {
		return strings.TrimSpace(op.Name)
	}
	return ""
}
