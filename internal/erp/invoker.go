// Package erp defines how the service talks to the ERP collaborator: a single
// generic remote-method contract plus typed helpers for the handful of ORM
// methods the orchestrators use.
//
// The transport lives in infrastructure/odoo; domain packages depend only on
// the Invoker interface so they can be driven by erptest.Fake in tests.
package erp

import (
	"context"
	"encoding/json"
)

// Call is one named remote operation on an ERP model.
type Call struct {
	Model  string
	Method string
	Args   []any
	Kwargs map[string]any
}

// String returns "model.method".
func (c Call) String() string {
	return c.Model + "." + c.Method
}

// Invoker issues a single remote operation and returns the raw result.
//
// Implementations apply a per-call timeout and report failures as
// apperror values with code ERP_REMOTE_ERROR or TIMEOUT_ERROR.
type Invoker interface {
	Invoke(ctx context.Context, call Call) (json.RawMessage, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, call Call) (json.RawMessage, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, call Call) (json.RawMessage, error) {
	return f(ctx, call)
}
