package model

import "github.com/shopspring/decimal"

// Scenario keys the response template the transport renders to wire format.
// The engine never touches wire encoding; it only names the scenario and
// supplies the typed payload.
type Scenario string

const (
	// Order-entry acknowledgments
	ScenarioNewOrderAck      Scenario = "new-order-ack"
	ScenarioAmendAck         Scenario = "amend-ack"
	ScenarioCancelAck        Scenario = "cancel-ack"
	ScenarioReject           Scenario = "reject"
	ScenarioAdminReject      Scenario = "admin-reject"
	ScenarioExpire           Scenario = "expire"
	ScenarioRestate          Scenario = "restate"
	ScenarioTrigger          Scenario = "trigger"
	ScenarioFullFill         Scenario = "full-fill"
	ScenarioPartialFill      Scenario = "partial-fill"
	ScenarioCrossAck         Scenario = "cross-ack"
	ScenarioTradeCancelAck   Scenario = "trade-cancel-ack"
	ScenarioMassCancelReport Scenario = "mass-cancel-report"
	ScenarioMissedMsgAck     Scenario = "missed-message-ack"
	ScenarioTransmitDone     Scenario = "transmission-complete"
	ScenarioNews             Scenario = "news"

	// Drop-copy notices
	ScenarioDCNewOrder    Scenario = "dc-new-order"
	ScenarioDCAmendOrder  Scenario = "dc-amend-order"
	ScenarioDCCancelOrder Scenario = "dc-cancel-order"
	ScenarioDCExpireOrder Scenario = "dc-expire-order"
	ScenarioDCRestate     Scenario = "dc-restate-order"
	ScenarioDCTrigger     Scenario = "dc-trigger-order"
	ScenarioDCTrade       Scenario = "dc-onbook-trade"
	ScenarioDCTradeCancel Scenario = "dc-trade-cancel"
	ScenarioDCOrderStatus Scenario = "dc-order-status"

	// Post-trade / TCR traffic
	ScenarioPTTrade                 Scenario = "pt-onbook-trade"
	ScenarioPTAckCancelTrade        Scenario = "pt-onbook-ack-cancel-trade"
	ScenarioPTConfirmCancelTrade    Scenario = "pt-onbook-confirm-cancel-trade"
	ScenarioTCRAckNew               Scenario = "tcr-ack-new"
	ScenarioTCRAckResponse          Scenario = "tcr-ack-response"
	ScenarioTCRAckCancel            Scenario = "tcr-ack-cancel"
	ScenarioTCRAckWithdraw          Scenario = "tcr-ack-withdraw"
	ScenarioTCRAckReject            Scenario = "tcr-ack-reject"
	ScenarioTCRNotifyCreate         Scenario = "tcr-notify-create"
	ScenarioTCRNotifyCancel         Scenario = "tcr-notify-cancel"
	ScenarioTCRNotifyRejectCancel   Scenario = "tcr-notify-reject-cancel"
	ScenarioTCRNotifyWithdraw       Scenario = "tcr-notify-withdraw"
	ScenarioTCRNotifyWithdrawCancel Scenario = "tcr-notify-withdraw-cancel"
	ScenarioTCRConfirmTrade         Scenario = "tcr-confirm-trade"
	ScenarioTCRConfirmCancel        Scenario = "tcr-confirm-cancel"
	ScenarioTCRConfirmDecline       Scenario = "tcr-confirm-decline"
	ScenarioTCRRequestAck           Scenario = "tcr-request-ack"
	ScenarioTCRReplay               Scenario = "tcr-replay"
)

// Outbound is one templated response. Exactly one payload field is set,
// matching the scenario.
type Outbound struct {
	Scenario Scenario

	Order       *OrderReport
	TradeReport *TradeReportOut
	AdminReject *AdminReject
	MassCancel  *MassCancelReport
	Recovery    *RecoveryStatus
	News        *News
}

// OrderReport is the order-scoped payload of order-entry and drop-copy
// scenarios: a snapshot of the order plus the party block of its broker.
type OrderReport struct {
	Order       Order
	Parties     []Party
	RequestID   string // mass status request echo
	LastMessage bool
	GrossAmount decimal.Decimal // trade cancel confirmations
	RefReportID string          // cancelled trade report being referenced
}

// TradeReportOut carries a TCR-scoped payload with the direction-correct
// party sides.
type TradeReportOut struct {
	Report       TradeCaptureReport
	Sides        []PartySide
	TransType    int
	RejectReason string
	RejectText   string
	RequestID    string
	TotalReports int
	LastMessage  bool
}

// AdminReject is a protocol-level rejection outside an order's lifecycle.
type AdminReject struct {
	RejectCode    string
	RejectReason  string
	MessageType   string
	ClientOrderID string
}

// MassCancelReport acknowledges a mass-cancel request.
type MassCancelReport struct {
	ClientOrderID string
	OrderBook     int
	Status        int
	RejectCode    string
}

// RecoveryStatus acknowledges a missed-message request.
type RecoveryStatus struct {
	Status int // 0 = replay follows, 2 = rejected partition
}
