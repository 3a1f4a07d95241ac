// =============================
// Venuesim Market Data Model
// =============================
// Core entities shared by the matching engine, the sweep scheduler and the
// trade-capture workflow: working orders, on-book trades and the negotiated
// (off-book) trade records. All prices and quantities are decimals; wire-level
// enumerations keep the numeric values the downstream protocol uses.

package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the wire value for order side.
type Side int

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

// Opposite returns the matching side for a taker.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType carries the wire value of the order type.
type OrderType int

const (
	OrderTypeMarket        OrderType = 1
	OrderTypeLimit         OrderType = 2
	OrderTypeStop          OrderType = 3
	OrderTypeStopLimit     OrderType = 4
	OrderTypeMarketToLimit OrderType = 5
	OrderTypeMarketIfTouch OrderType = 6
	OrderTypePegged        OrderType = 50
	OrderTypePeggedLimit   OrderType = 51
)

// PegBenchmark selects the reference price of a pegged order.
type PegBenchmark int

const (
	PegToMid   PegBenchmark = 50
	PegToBid   PegBenchmark = 51
	PegToOffer PegBenchmark = 52
)

// TimeInForce wire values.
type TimeInForce int

const (
	TIFDay TimeInForce = 0
	TIFIOC TimeInForce = 3
	TIFFOK TimeInForce = 4
	TIFOPG TimeInForce = 5
	TIFGTT TimeInForce = 6
	TIFGTD TimeInForce = 8
	TIFGFA TimeInForce = 9
	TIFGFX TimeInForce = 10
	TIFCPX TimeInForce = 12
	TIFATC TimeInForce = 51
)

// Container identifies book membership.
type Container int

const (
	ContainerMain        Container = 1
	ContainerStopPending Container = 6
	ContainerPegged      Container = 20
	ContainerHidden      Container = 21
)

// Order lifecycle statuses. CREATE/AMEND/CANCEL are pending-action markers
// consumed by the sweep scheduler; CLOSED is terminal.
const (
	StatusCreate    = "CREATE"
	StatusCreated   = "CREATED"
	StatusAmend     = "AMEND"
	StatusAmended   = "AMENDED"
	StatusCancel    = "CANCEL"
	StatusClosed    = "CLOSED"
	StatusTriggered = "TRIGGERED"
	StatusRestate   = "RESTATE"
	StatusTraded    = "TRADED"
)

// ExpireTimeLayout is the wire format of GTT/GTD expiry timestamps.
const ExpireTimeLayout = "20060102-15:04:05"

// Sentinel errors shared across the market packages.
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrTradeNotFound   = errors.New("trade not found")
	ErrUnknownBroker   = errors.New("broker not resolvable for account")
	ErrUnknownSecurity = errors.New("unknown security")
)

// Order is a single working order. It is owned by the order book for the whole
// market uptime and is never deleted, only status-flagged.
type Order struct {
	// Identity
	ID            uuid.UUID // internal handle
	OrderID       string    // generated on first acceptance ("O" + 7)
	ClientOrderID string
	CrossID       string
	SecurityID    string

	// Routing
	Account string // order-entry session username
	Broker  string // derived from account via the party directory

	// Attributes
	Side                 Side
	Type                 OrderType
	SubType              PegBenchmark
	TimeInForce          TimeInForce
	Container            Container
	Quantity             decimal.Decimal
	MinimumQuantity      decimal.Decimal
	DisplayQuantity      decimal.Decimal
	LimitPrice           decimal.Decimal
	StopPrice            decimal.Decimal
	TrailingOffset       decimal.Decimal
	ExpireTime           string // ExpireTimeLayout, UTC
	ExecutionInstruction *int   // sticky: first write wins
	Capacity             string
	TraderMnemonic       string
	ClearingAccount      string

	// Derived / mutable
	Status           string
	LeavesQuantity   decimal.Decimal
	CumQuantity      decimal.Decimal
	ExecutedPrice    decimal.Decimal
	ExecutedQuantity decimal.Decimal
	PeggedPrice      *decimal.Decimal // recomputed; nil until both sides of the book exist
	LastMarketPrice  *decimal.Decimal // trailing-stop watermark
	RejectCode       string

	// Last fill linkage
	TradeID       string
	TradeReportID string
	TradeLinkID   string
	ExecutionID   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsResting reports whether the order can be selected as a matching candidate:
// acknowledged (or re-acknowledged after amend/trigger/restate) with open quantity.
func (o *Order) IsResting() bool {
	switch o.Status {
	case StatusCreated, StatusAmended, StatusTriggered, StatusRestate, StatusTraded:
		return o.LeavesQuantity.IsPositive()
	}
	return false
}

// IsOpen reports whether the order still occupies the book for mass actions.
func (o *Order) IsOpen() bool {
	return o.Status != StatusClosed
}

// ApplyFill records one execution leg on the order. Leaves quantity is kept
// equal to Quantity - CumQuantity and never goes negative.
func (o *Order) ApplyFill(price, qty decimal.Decimal, tradeID, reportID, linkID string) {
	o.ExecutedPrice = price
	o.ExecutedQuantity = qty
	o.CumQuantity = o.CumQuantity.Add(qty)
	o.LeavesQuantity = o.Quantity.Sub(o.CumQuantity)
	if o.LeavesQuantity.IsNegative() {
		o.LeavesQuantity = decimal.Zero
	}
	o.TradeID = tradeID
	o.TradeReportID = reportID
	o.TradeLinkID = linkID
	o.UpdatedAt = time.Now().UTC()
}

// EffectivePrice is the price a resting order trades at: the computed pegged
// price for pegged containers, the stated limit price otherwise.
func (o *Order) EffectivePrice() decimal.Decimal {
	if o.Container == ContainerPegged && o.PeggedPrice != nil {
		return *o.PeggedPrice
	}
	return o.LimitPrice
}

// IsHiddenResting reports whether the order rests without displayed quantity.
func (o *Order) IsHiddenResting() bool {
	return !o.DisplayQuantity.IsPositive()
}

// ExpiresAt parses the wire expiry timestamp. Minute granularity is applied by
// the timing sweep, not here.
func (o *Order) ExpiresAt() (time.Time, error) {
	return time.ParseInLocation(ExpireTimeLayout, o.ExpireTime, time.UTC)
}
