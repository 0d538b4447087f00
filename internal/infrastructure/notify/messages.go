package notify

import (
	"context"
	"fmt"
	"strings"

	"stockflow/internal/domain/entry"
	"stockflow/internal/domain/order"
	"stockflow/internal/domain/transfer"
)

func bold(s string) string { return "*" + s + "*" }

func bullets(lines []string) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = "• " + l
	}
	return strings.Join(out, "\n")
}

func compose(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// TransferMessage formats a completed transfer.
func TransferMessage(r *transfer.Result) string {
	items := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		items = append(items, fmt.Sprintf("%s x %s", l.Quantity.Decimal(), l.Label))
	}
	ref := ""
	if r.DisplayName != "" {
		ref = "Ref: " + r.DisplayName
	}
	return compose(bold("New transfer"), ref, r.Origin, r.Warning, bullets(items))
}

// OrderMessage formats a booked order.
func OrderMessage(r *order.Result) string {
	items := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		items = append(items, fmt.Sprintf("%s x %s", l.Quantity.Decimal(), l.Name))
	}
	client := r.Client
	if client == "" {
		client = "(no name)"
	}
	return compose(bold("New order"), "Ref: "+r.Reference, "Client: "+client, bullets(items))
}

// EntryMessage formats a stock receipt.
func EntryMessage(r *entry.Result) string {
	items := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		items = append(items, fmt.Sprintf("%s x %s @ %s", l.IncomingQty.Decimal(), l.Name, l.IncomingCost.StringFixed(2)))
	}
	return compose(bold("New receipt"), fmt.Sprintf("Ref: #%d", r.ContainerID), r.Warehouse, bullets(items))
}

// Sender is what the hooks need from a Webhook.
type Sender interface {
	Send(ctx context.Context, chat, message string) error
}

// TransferHook returns an after-create hook for transfers.
func TransferHook(s Sender) func(context.Context, *transfer.Result) error {
	return func(ctx context.Context, r *transfer.Result) error {
		return s.Send(ctx, ChatTransfers, TransferMessage(r))
	}
}

// OrderHook returns an after-create hook for orders.
func OrderHook(s Sender) func(context.Context, *order.Result) error {
	return func(ctx context.Context, r *order.Result) error {
		return s.Send(ctx, ChatOrders, OrderMessage(r))
	}
}

// EntryHook returns an after-create hook for receipts.
func EntryHook(s Sender) func(context.Context, *entry.Result) error {
	return func(ctx context.Context, r *entry.Result) error {
		return s.Send(ctx, ChatTransfers, EntryMessage(r))
	}
}
