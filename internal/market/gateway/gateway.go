// Package gateway defines the session surface the engine consumes. Wire
// transport, logon, heartbeats and sequence numbering live outside the core;
// the engine only resolves accounts and hands templated messages to a session.

package gateway

import (
	"github.com/Aidin1998/venuesim/internal/market/directory"
	"github.com/Aidin1998/venuesim/internal/market/model"
)

// Behavior is the admin-adjustable session behavior patch (sequence-number
// overrides). It is passed through to the transport untouched.
type Behavior struct {
	OutgoingSeqNum *int `json:"outgoingSeqNum,omitempty"`
}

// Session is one gateway endpoint. Send is fire-and-forget: delivery failures
// are the transport's responsibility and the engine never blocks on them.
type Session interface {
	// Send dispatches a templated message to the named account. Transports
	// may complete the send asynchronously; per-account ordering of
	// successive Send calls must be preserved.
	Send(account string, msg *model.Outbound)

	// Accounts lists every account provisioned on this gateway.
	Accounts() []directory.AccountRecord

	// IsConnected reports whether the account currently has a live session.
	IsConnected(account string) bool

	// ModifyBehavior applies an admin behavior patch to an account's session.
	ModifyBehavior(account string, b Behavior) error
}

// Gateways bundles the three venue-side endpoints of one market.
type Gateways struct {
	OrderEntry Session
	DropCopy   Session
	PostTrade  Session
}

// BrokerFor resolves an order-entry account to its broker. Returns false when
// the account is unknown; callers skip the operation in that case.
func (g Gateways) BrokerFor(account string) (string, bool) {
	if g.OrderEntry == nil {
		return "", false
	}
	for _, a := range g.OrderEntry.Accounts() {
		if a.Username == account {
			return a.BrokerID, true
		}
	}
	return "", false
}
