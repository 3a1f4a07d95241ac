package model

import "github.com/shopspring/decimal"

// MessageType enumerates the decoded inbound message kinds the engine consumes.
type MessageType string

const (
	MsgNewOrder            MessageType = "new-order"
	MsgAmendOrder          MessageType = "amend-order"
	MsgCancelOrder         MessageType = "cancel-order"
	MsgMassCancel          MessageType = "mass-cancel-request"
	MsgCrossOrder          MessageType = "cross-order"
	MsgTradeCaptureReport  MessageType = "trade-capture-report"
	MsgTradeCaptureRequest MessageType = "trade-capture-report-request"
	MsgOrderMassStatus     MessageType = "order-mass-status-request"
	MsgMissedMessage       MessageType = "missed-message-request"
	MsgQuote               MessageType = "quote"
	MsgQuoteRequest        MessageType = "quote-request"
)

// Envelope is the normalized inbound message handed to the ruler by the
// transport layer, already decoded and attributed to a session account.
type Envelope struct {
	Account string
	Type    MessageType

	NewOrder     *NewOrderMessage
	Amend        *AmendOrderMessage
	Cancel       *CancelOrderMessage
	MassCancel   *MassCancelMessage
	Cross        *CrossOrderMessage
	TradeCapture *TradeCaptureReport
	TradeRequest *TradeCaptureRequest
	MassStatus   *OrderMassStatusRequest
	Missed       *MissedMessageRequest
}

// NewOrderMessage carries the fields of an inbound new-order request.
type NewOrderMessage struct {
	ClientOrderID        string
	SecurityID           string
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
	ExpireTime           string
	ExecutionInstruction *int
	Capacity             string
	TraderMnemonic       string
	ClearingAccount      string
}

// AmendOrderMessage targets a working order by its generated order ID.
// Unset (nil) fields are left untouched by the merge.
type AmendOrderMessage struct {
	OrderID              string
	ClientOrderID        *string
	Quantity             *decimal.Decimal
	LimitPrice           *decimal.Decimal
	StopPrice            *decimal.Decimal
	ExpireTime           *string
	TimeInForce          *TimeInForce
	ExecutionInstruction *int
}

// CancelOrderMessage requests cancellation of a working order.
type CancelOrderMessage struct {
	OrderID       string
	ClientOrderID string
}

// MassCancelRequestType selects the scope of a mass cancel.
type MassCancelRequestType int

const (
	MassCancelFirmInstrument   MassCancelRequestType = 3
	MassCancelFirmSegment      MassCancelRequestType = 4
	MassCancelClient           MassCancelRequestType = 7
	MassCancelFirm             MassCancelRequestType = 8
	MassCancelClientInstrument MassCancelRequestType = 9
	MassCancelClientUnderlying MassCancelRequestType = 14
	MassCancelClientSegment    MassCancelRequestType = 15
	MassCancelFirmUnderlying   MassCancelRequestType = 22
)

// MassCancelMessage asks for cancellation of a whole slice of the book.
type MassCancelMessage struct {
	ClientOrderID string
	RequestType   MassCancelRequestType
	OrderBook     int // 1 = regular book
	SecurityID    string
	Segment       string
}

// CrossOrderMessage is a single-session self-match: both legs trade at the
// stated price immediately.
type CrossOrderMessage struct {
	CrossID             string
	CrossType           int
	SecurityID          string
	Type                OrderType
	TimeInForce         TimeInForce
	LimitPrice          decimal.Decimal
	Quantity            decimal.Decimal
	BuyClientOrderID    string
	SellClientOrderID   string
	BuyCapacity         string
	SellCapacity        string
	BuyTraderMnemonic   string
	SellTraderMnemonic  string
	BuyClearingAccount  string
	SellClearingAccount string
}

// Party roles used in trade-capture party blocks. The executing-party roles
// invert to the counter-party roles when a message changes direction.
const (
	RoleExecutingTrader = 1
	RoleCounterTrader   = 17
	RoleExecutingGroup  = 53
	RoleCounterGroup    = 37
	RoleExecutingFirm   = 76
	RoleCounterFirm     = 100
)

// Party is one entry of a party block.
type Party struct {
	PartyID string
	Source  string // "D" = proprietary code
	Role    int
}

// PartySide is one side of a trade-capture report.
type PartySide struct {
	Side             Side
	Parties          []Party
	OrderID          string
	ClientOrderID    string
	Account          string
	TradeExecutionID string
}

// FindRole returns the first party on the side carrying the given role.
func (ps PartySide) FindRole(role int) (Party, bool) {
	for _, p := range ps.Parties {
		if p.Role == role {
			return p, true
		}
	}
	return Party{}, false
}

// TradeReportKind distinguishes single-party from dual-party reports; zero
// means on-book (no negotiation).
type TradeReportKind int

const (
	TradeReportOnBook      TradeReportKind = 0
	TradeReportSingleParty TradeReportKind = 1
	TradeReportDualParty   TradeReportKind = 2
)

// Trade report type / trans type wire values driving the TCR workflow.
const (
	TradeReportSubmit  = 0
	TradeReportAccept  = 2
	TradeReportDecline = 3
	TradeReportCancel  = 6

	TradeTransNew     = 0
	TradeTransCancel  = 1
	TradeTransReplace = 2
)

// TradeCaptureReport is an inbound off-book (or on-book cancel) trade report.
type TradeCaptureReport struct {
	Kind           TradeReportKind
	ReportType     int
	TransType      int
	TradeID        string
	TradeReportID  string
	RefReportID    string
	SecurityID     string
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	SettlementDate string
	Sides          []PartySide
	Submitter      string // session username the report arrived on
}

// FindSideByRole locates the side carrying a party with the given role.
func (t *TradeCaptureReport) FindSideByRole(role int) (PartySide, bool) {
	for _, s := range t.Sides {
		if _, ok := s.FindRole(role); ok {
			return s, true
		}
	}
	return PartySide{}, false
}

// TradeCaptureRequest asks for a replay of previously sent trade reports.
type TradeCaptureRequest struct {
	RequestID string
	Username  string
}

// OrderMassStatusRequest asks for the status of every open order of a broker.
type OrderMassStatusRequest struct {
	RequestID string
	Broker    string
}

// MissedMessageRequest asks for retransmission on a recovery partition.
type MissedMessageRequest struct {
	SequenceNumber int
	PartitionID    int
}

// News is an operator broadcast, filtered by pipe-delimited firm/user lists.
type News struct {
	Urgency     int
	Headline    string
	Text        string
	Instruments string
	Underlyings string
	FirmList    string
	UserList    string
}
