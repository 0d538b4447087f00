// Package tx defines the transaction boundary used by storage code.
package tx

import (
	"context"
)

// Manager runs fn inside a transaction. An error from fn rolls it back;
// nested calls reuse the transaction already in ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
