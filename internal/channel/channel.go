// Package channel defines the contract with the external messaging
// bridge: the service that holds the live channel sessions and actually
// delivers messages. The engine treats delivery as a black box; it never
// retries a send on its own and imposes no timeout beyond the HTTP
// client's (the bridge owns its own timeout policy).
package channel

import "context"

// Result is the outcome of one delivery attempt as reported by the
// bridge. A Result with Success=false is routine flow control for the
// dispatcher, not an error; transport-level failures reaching the bridge
// itself are returned as errors instead.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// ChannelWarning is set when the channel surfaced an anti-abuse
	// signal alongside the delivery (rate warnings, spam hints). The
	// dispatcher feeds these back into the health ledger.
	ChannelWarning bool `json:"channel_warning,omitempty"`
}

// Adapter delivers a single message through a sender account's session.
// Implementations must be safe to call at most once per dispatcher step.
type Adapter interface {
	Send(ctx context.Context, accountID, recipient, body string) (Result, error)
}

// Registry lists the accounts with a live, connected channel session.
// The activation scheduler uses it to pick eligible pairs.
type Registry interface {
	ListConnected(ctx context.Context) ([]string, error)
}
