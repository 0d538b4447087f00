package erp

import (
	"context"
	"encoding/json"
	"fmt"

	"stockflow/internal/core/apperror"
)

// Domain is an ERP search domain: a list of [field, operator, value] triples
// (optionally mixed with prefix operators such as "|").
type Domain []any

// Cond builds one domain triple.
func Cond(field, op string, value any) []any {
	return []any{field, op, value}
}

// Options carries the keyword arguments shared by read-style methods.
type Options struct {
	Limit   int
	Order   string
	Context map[string]any
}

func (o Options) kwargs() map[string]any {
	kw := map[string]any{}
	if o.Limit > 0 {
		kw["limit"] = o.Limit
	}
	if o.Order != "" {
		kw["order"] = o.Order
	}
	if len(o.Context) > 0 {
		kw["context"] = o.Context
	}
	return kw
}

// SearchRead runs model.search_read(domain, fields) and decodes the records.
func SearchRead[T any](ctx context.Context, inv Invoker, model string, domain Domain, fields []string, opts Options) ([]T, error) {
	if domain == nil {
		domain = Domain{}
	}
	call := Call{Model: model, Method: "search_read", Args: []any{domain, fields}, Kwargs: opts.kwargs()}
	return invokeDecode[[]T](ctx, inv, call)
}

// Read runs model.read(ids, fields) and decodes the records.
func Read[T any](ctx context.Context, inv Invoker, model string, ids []int64, fields []string, opts Options) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	call := Call{Model: model, Method: "read", Args: []any{ids, fields}, Kwargs: opts.kwargs()}
	return invokeDecode[[]T](ctx, inv, call)
}

// Search runs model.search(domain) and returns matching ids.
func Search(ctx context.Context, inv Invoker, model string, domain Domain, opts Options) ([]int64, error) {
	if domain == nil {
		domain = Domain{}
	}
	call := Call{Model: model, Method: "search", Args: []any{domain}, Kwargs: opts.kwargs()}
	return invokeDecode[[]int64](ctx, inv, call)
}

// Create runs model.create(values). The ERP answers either a bare id or a
// one-element id list depending on version; both are accepted.
func Create(ctx context.Context, inv Invoker, model string, values map[string]any) (int64, error) {
	call := Call{Model: model, Method: "create", Args: []any{values}}
	raw, err := inv.Invoke(ctx, call)
	if err != nil {
		return 0, err
	}

	var single int64
	if err := json.Unmarshal(raw, &single); err == nil && single > 0 {
		return single, nil
	}
	var many []int64
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] > 0 {
		return many[0], nil
	}
	return 0, apperror.NewUnrecognizedResponseShape(call.String(), raw)
}

// Write runs model.write(ids, values).
func Write(ctx context.Context, inv Invoker, model string, ids []int64, values map[string]any) error {
	call := Call{Model: model, Method: "write", Args: []any{ids, values}}
	_, err := inv.Invoke(ctx, call)
	return err
}

// Exec calls a record method (action_confirm, button_validate, ...) on ids.
// The result is discarded; lifecycle methods return wizards or booleans that
// the orchestrators do not interpret.
func Exec(ctx context.Context, inv Invoker, model, method string, ids []int64) error {
	_, err := inv.Invoke(ctx, Call{Model: model, Method: method, Args: []any{ids}})
	return err
}

func invokeDecode[T any](ctx context.Context, inv Invoker, call Call) (T, error) {
	var out T
	raw, err := inv.Invoke(ctx, call)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, apperror.NewUnrecognizedResponseShape(call.String(), raw).
			WithCause(fmt.Errorf("decode: %w", err))
	}
	return out, nil
}
