// Package idgen generates the exchange-style identifiers stamped on orders,
// trades and negotiated trade reports: a single-letter prefix followed by a
// short random suffix, matching what broker test tools expect to see.
package idgen

import "math/rand"

const (
	alphanum = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digits   = "0123456789"
)

func random(seed string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed[rand.Intn(len(seed))]
	}
	return string(b)
}

// OrderID is assigned on first acceptance of an order.
func OrderID() string { return "O" + random(alphanum, 7) }

// TradeID identifies one on-book execution.
func TradeID() string { return "T" + random(alphanum, 8) }

// TradeReportID identifies one trade report leg.
func TradeReportID() string { return "L" + random(alphanum, 8) }

// TradeLinkID links the two legs of a match.
func TradeLinkID() string { return "Z" + random(alphanum, 8) }

// ExecutionID identifies one execution report.
func ExecutionID() string { return "E" + random(alphanum, 9) }

// NegotiatedTradeID is assigned when a trade-capture report is acknowledged.
func NegotiatedTradeID() string { return "M" + random(digits, 8) }

// NegotiatedLinkID links the negotiation messages of one off-book trade.
func NegotiatedLinkID() string { return "Z" + random(digits, 8) }

// CancelReportID is assigned to a trade-cancel confirmation.
func CancelReportID() string { return "L" + random(digits, 9) }
