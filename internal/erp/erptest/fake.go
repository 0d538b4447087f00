// Package erptest provides a scripted erp.Invoker for tests.
package erptest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"stockflow/internal/erp"
)

// Handler answers one call. The returned value is JSON-encoded.
type Handler func(call erp.Call) (any, error)

// Fake is an erp.Invoker driven by per model.method handler queues.
// Handlers registered for the same key are consumed in order; the last one
// keeps answering once the queue is exhausted.
type Fake struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	calls    []erp.Call
}

var _ erp.Invoker = (*Fake)(nil)

// New creates an empty Fake.
func New() *Fake {
	return &Fake{handlers: make(map[string][]Handler)}
}

func key(model, method string) string { return model + "." + method }

// On queues h for model.method.
func (f *Fake) On(model, method string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(model, method)
	f.handlers[k] = append(f.handlers[k], h)
	return f
}

// Returns queues a fixed result for model.method.
func (f *Fake) Returns(model, method string, v any) *Fake {
	return f.On(model, method, func(erp.Call) (any, error) { return v, nil })
}

// Fails queues a failure for model.method.
func (f *Fake) Fails(model, method string, err error) *Fake {
	return f.On(model, method, func(erp.Call) (any, error) { return nil, err })
}

// Invoke implements erp.Invoker.
func (f *Fake) Invoke(_ context.Context, call erp.Call) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	k := key(call.Model, call.Method)
	queue := f.handlers[k]
	var h Handler
	switch len(queue) {
	case 0:
	case 1:
		h = queue[0]
	default:
		h = queue[0]
		f.handlers[k] = queue[1:]
	}
	f.mu.Unlock()

	if h == nil {
		return nil, fmt.Errorf("erptest: unexpected call %s", k)
	}
	v, err := h(call)
	if err != nil {
		return nil, err
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// Calls returns every call received, in order.
func (f *Fake) Calls() []erp.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]erp.Call(nil), f.calls...)
}

// CallsTo returns the calls received for model.method.
func (f *Fake) CallsTo(model, method string) []erp.Call {
	var out []erp.Call
	for _, c := range f.Calls() {
		if c.Model == model && c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Sequence returns "model.method" for every call received, in order.
func (f *Fake) Sequence() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}
