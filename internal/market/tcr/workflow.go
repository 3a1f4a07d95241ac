// =============================
// Trade Capture Workflow
// =============================
// Off-book negotiation over trade-capture reports. A submission is acked back
// to the reporting session; dual-party reports are then relayed to the
// counter-broker, who accepts, declines or lets the submitter withdraw.
// Cancellation of a traded report runs the same notify/accept/decline loop.
// Every delivered message is retained on the trade record for replay.

package tcr

import (
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market/directory"
	"github.com/Aidin1998/venuesim/internal/market/feed"
	"github.com/Aidin1998/venuesim/internal/market/model"
	"github.com/Aidin1998/venuesim/internal/market/router"
	"github.com/Aidin1998/venuesim/pkg/idgen"
	"github.com/Aidin1998/venuesim/pkg/metrics"
)

// Negotiation reject reasons.
const (
	RejectCancelTerminated = "7050"
	RejectAlreadyResolved  = "7060"

	rejectCancelTerminatedText = "Cancellation process terminated"
	rejectAlreadyResolvedText  = "Request already accepted/declined"
)

// Workflow drives the negotiation state machine over the trade record store.
type Workflow struct {
	store *Store
	rt    *router.Router
	dir   *directory.Directory
	hub   *feed.Hub
	log   *zap.SugaredLogger
}

// NewWorkflow wires the workflow over its collaborators. hub may be nil.
func NewWorkflow(store *Store, rt *router.Router, dir *directory.Directory, hub *feed.Hub, log *zap.SugaredLogger) *Workflow {
	return &Workflow{store: store, rt: rt, dir: dir, hub: hub, log: log}
}

// Store exposes the underlying trade record store.
func (w *Workflow) Store() *Store { return w.store }

// Process dispatches one inbound trade-capture report by its report type and
// transaction type pair. Reports referencing unknown trade IDs are dropped,
// matching venue behavior.
func (w *Workflow) Process(rep *model.TradeCaptureReport) {
	switch {
	case rep.ReportType == model.TradeReportSubmit && rep.TransType == model.TradeTransNew:
		w.submit(rep)
	case rep.ReportType == model.TradeReportCancel && rep.TransType == model.TradeTransNew:
		w.cancel(rep)
	case rep.ReportType == model.TradeReportAccept && rep.TransType == model.TradeTransReplace:
		w.accept(rep)
	case rep.ReportType == model.TradeReportDecline && rep.TransType == model.TradeTransReplace:
		w.decline(rep)
	case rep.ReportType == model.TradeReportSubmit && rep.TransType == model.TradeTransCancel:
		w.withdraw(rep)
	case rep.ReportType == model.TradeReportCancel && rep.TransType == model.TradeTransCancel:
		w.withdrawCancel(rep)
	default:
		w.log.Debugw("unhandled trade capture report",
			"report_type", rep.ReportType, "trans_type", rep.TransType)
	}
}

func (w *Workflow) submit(rep *model.TradeCaptureReport) {
	rep.TradeID = idgen.NegotiatedTradeID()
	linkID := idgen.NegotiatedLinkID()

	rec := &Record{
		TradeID: rep.TradeID,
		LinkID:  linkID,
		Kind:    rep.Kind,
		Report:  *rep,
		Account: rep.Submitter,
	}
	if _, _, execBroker, _, ok := w.resolveSides(rep); ok {
		rec.Broker = execBroker
	}
	w.store.Put(rec)
	w.ack(rec, model.ScenarioTCRAckNew, StatusAckCreate, "", "")

	if rep.Kind == model.TradeReportSingleParty {
		w.confirm(rec, model.ScenarioTCRConfirmTrade, StatusTraded)
		return
	}
	w.notify(rec, model.ScenarioTCRNotifyCreate, StatusNotifiedCreate)
}

func (w *Workflow) cancel(rep *model.TradeCaptureReport) {
	rec, ok := w.store.Get(rep.TradeID)
	if !ok {
		w.log.Debugw("cancel for unknown trade", "trade_id", rep.TradeID)
		return
	}
	// The request chains off the previous report.
	rec.Report.RefReportID = rec.Report.TradeReportID
	mergeReport(&rec.Report, rep)

	if rec.Kind == model.TradeReportSingleParty {
		w.ack(rec, model.ScenarioTCRAckCancel, StatusAckCancel, "", "")
		w.confirm(rec, model.ScenarioTCRConfirmCancel, StatusCanceled)
		return
	}
	if rec.Status == StatusAckWithdraw {
		w.reject(rec, RejectCancelTerminated, rejectCancelTerminatedText)
		return
	}
	w.ack(rec, model.ScenarioTCRAckCancel, StatusAckCancel, "", "")
	w.notify(rec, model.ScenarioTCRNotifyCancel, StatusNotifiedCancel)
}

func (w *Workflow) accept(rep *model.TradeCaptureReport) {
	rec, ok := w.store.Get(rep.TradeID)
	if !ok {
		w.log.Debugw("accept for unknown trade", "trade_id", rep.TradeID)
		return
	}
	mergeReport(&rec.Report, rep)

	switch rec.Status {
	case StatusNotifiedCreate:
		w.ack(rec, model.ScenarioTCRAckResponse, StatusAckAccept, "", "")
		w.confirm(rec, model.ScenarioTCRConfirmTrade, StatusTraded)
	case StatusNotifiedCancel:
		w.ack(rec, model.ScenarioTCRAckCancel, StatusAckCancelAccepted, "", "")
		w.confirm(rec, model.ScenarioTCRConfirmCancel, StatusCanceled)
	case StatusNotifiedCancelWithdraw:
		w.reject(rec, RejectCancelTerminated, rejectCancelTerminatedText)
	case StatusNotifiedWithdraw:
		w.reject(rec, RejectAlreadyResolved, rejectAlreadyResolvedText)
	default:
		w.log.Debugw("accept in unexpected state", "trade_id", rec.TradeID, "status", rec.Status)
	}
}

func (w *Workflow) decline(rep *model.TradeCaptureReport) {
	rec, ok := w.store.Get(rep.TradeID)
	if !ok {
		w.log.Debugw("decline for unknown trade", "trade_id", rep.TradeID)
		return
	}
	mergeReport(&rec.Report, rep)

	if rec.Status == StatusNotifiedCancel {
		w.ack(rec, model.ScenarioTCRAckCancel, StatusAckCancelRejected, "", "")
		w.notify(rec, model.ScenarioTCRNotifyRejectCancel, StatusNotifiedRejectCancel)
		return
	}
	w.ack(rec, model.ScenarioTCRAckResponse, StatusAckDecline, "", "")
	w.confirm(rec, model.ScenarioTCRConfirmDecline, StatusDeclined)
}

func (w *Workflow) withdraw(rep *model.TradeCaptureReport) {
	rec, ok := w.store.Get(rep.TradeID)
	if !ok {
		w.log.Debugw("withdraw for unknown trade", "trade_id", rep.TradeID)
		return
	}
	mergeReport(&rec.Report, rep)

	if rec.Status == StatusTraded || rec.Status == StatusDeclined {
		w.reject(rec, RejectAlreadyResolved, rejectAlreadyResolvedText)
		return
	}
	w.ack(rec, model.ScenarioTCRAckWithdraw, StatusAckWithdraw, "", "")
	w.notify(rec, model.ScenarioTCRNotifyWithdraw, StatusNotifiedWithdraw)
}

func (w *Workflow) withdrawCancel(rep *model.TradeCaptureReport) {
	rec, ok := w.store.Get(rep.TradeID)
	if !ok {
		w.log.Debugw("withdraw-cancel for unknown trade", "trade_id", rep.TradeID)
		return
	}
	mergeReport(&rec.Report, rep)

	if rec.Status == StatusNotifiedRejectCancel {
		w.reject(rec, RejectAlreadyResolved, rejectAlreadyResolvedText)
		return
	}
	w.ack(rec, model.ScenarioTCRAckWithdraw, StatusAckWithdrawCancel, "", "")
	w.notify(rec, model.ScenarioTCRNotifyWithdrawCancel, StatusNotifiedCancelWithdraw)
}

// ack sends an acknowledgment back to the session the report arrived on and
// moves the record to the given status.
func (w *Workflow) ack(rec *Record, scenario model.Scenario, status, reason, text string) {
	sides := w.partySides(&rec.Report, false)
	out := &model.Outbound{
		Scenario: scenario,
		TradeReport: &model.TradeReportOut{
			Report:       rec.Report,
			Sides:        sides,
			TransType:    rec.Report.TransType,
			RejectReason: reason,
			RejectText:   text,
		},
	}
	w.rt.SendPostTradeTo(rec.Report.Submitter, out)
	w.store.Append(rec.TradeID, rec.Report.Submitter, out)
	w.store.SetStatus(rec.TradeID, status)
	w.publish(rec, status)
}

// confirm delivers the final report to every post-trade session of both
// brokers, each seeing itself as the executing side.
func (w *Workflow) confirm(rec *Record, scenario model.Scenario, status string) {
	execSide, counterSide, execBroker, counterBroker, ok := w.resolveSides(&rec.Report)
	if !ok {
		w.log.Warnw("confirm with unresolvable parties", "trade_id", rec.TradeID)
		return
	}

	execOut := &model.Outbound{
		Scenario: scenario,
		TradeReport: &model.TradeReportOut{
			Report:    rec.Report,
			Sides:     w.buildSides(rec.Kind, execSide, execBroker, counterSide, counterBroker, false),
			TransType: model.TradeTransReplace,
		},
	}
	for _, ref := range w.rt.PostTradeSessions(execBroker) {
		ref.Session.Send(ref.Account, execOut)
		w.store.Append(rec.TradeID, ref.Account, execOut)
	}

	// The counter-broker receives the mirrored perspective. Single-party
	// confirmations carry transaction type 1 on the mirror copy.
	counterTrans := model.TradeTransReplace
	if rec.Kind == model.TradeReportSingleParty {
		counterTrans = model.TradeTransCancel
	}
	counterOut := &model.Outbound{
		Scenario: scenario,
		TradeReport: &model.TradeReportOut{
			Report:    rec.Report,
			Sides:     w.buildSides(rec.Kind, counterSide, counterBroker, execSide, execBroker, false),
			TransType: counterTrans,
		},
	}
	for _, ref := range w.rt.PostTradeSessions(counterBroker) {
		ref.Session.Send(ref.Account, counterOut)
		w.store.Append(rec.TradeID, ref.Account, counterOut)
	}

	w.store.SetStatus(rec.TradeID, status)
	metrics.NegotiatedTrades.WithLabelValues(status).Inc()
	w.publish(rec, status)
}

// notify relays the pending action to the counter-broker's sessions with the
// party perspective swapped.
func (w *Workflow) notify(rec *Record, scenario model.Scenario, status string) {
	execSide, counterSide, execBroker, counterBroker, ok := w.resolveSides(&rec.Report)
	if !ok {
		w.log.Warnw("notify with unresolvable parties", "trade_id", rec.TradeID)
		return
	}
	out := &model.Outbound{
		Scenario: scenario,
		TradeReport: &model.TradeReportOut{
			Report:    rec.Report,
			Sides:     w.buildSides(rec.Kind, execSide, execBroker, counterSide, counterBroker, true),
			TransType: rec.Report.TransType,
		},
	}
	for _, ref := range w.rt.PostTradeSessions(counterBroker) {
		ref.Session.Send(ref.Account, out)
		w.store.Append(rec.TradeID, ref.Account, out)
	}
	w.store.SetStatus(rec.TradeID, status)
	w.publish(rec, status)
}

func (w *Workflow) reject(rec *Record, reason, text string) {
	w.ack(rec, model.ScenarioTCRAckReject, StatusRejected, reason, text)
}

func (w *Workflow) publish(rec *Record, status string) {
	w.hub.Publish(feed.Event{
		Type:       feed.EventTCR,
		SecurityID: rec.Report.SecurityID,
		TradeID:    rec.TradeID,
		Price:      rec.Report.Price,
		Quantity:   rec.Report.Quantity,
		Status:     status,
	})
}

// resolveSides splits the report's party block into the executing and counter
// sides and extracts their broker mnemonics.
func (w *Workflow) resolveSides(rep *model.TradeCaptureReport) (execSide, counterSide model.PartySide, execBroker, counterBroker string, ok bool) {
	execSide, execOK := rep.FindSideByRole(model.RoleExecutingTrader)
	counterSide, counterOK := rep.FindSideByRole(model.RoleCounterTrader)
	if !execOK || !counterOK {
		return model.PartySide{}, model.PartySide{}, "", "", false
	}
	execParty, _ := execSide.FindRole(model.RoleExecutingTrader)
	counterParty, _ := counterSide.FindRole(model.RoleCounterTrader)
	return execSide, counterSide, execParty.PartyID, counterParty.PartyID, true
}

// partySides rebuilds the outbound party block in the submitter's perspective.
func (w *Workflow) partySides(rep *model.TradeCaptureReport, notifyLayout bool) []model.PartySide {
	execSide, counterSide, execBroker, counterBroker, ok := w.resolveSides(rep)
	if !ok {
		return rep.Sides
	}
	return w.buildSides(rep.Kind, execSide, execBroker, counterSide, counterBroker, notifyLayout)
}

// buildSides constructs the outbound party block. Single-party reports carry
// the full executing and counter role sets on their respective sides. Dual
// party reports carry the full executing set plus a bare counter-trader entry;
// the notify layout swaps the perspective and reorders the sides so the
// recipient sees itself as the executing trader.
func (w *Workflow) buildSides(kind model.TradeReportKind, execSide model.PartySide, execBroker string, counterSide model.PartySide, counterBroker string, notifyLayout bool) []model.PartySide {
	execRec, execOK := w.dir.Party(execBroker)
	counterRec, counterOK := w.dir.Party(counterBroker)
	if !execOK || !counterOK {
		return nil
	}

	fullExec := func(p directory.PartyRecord) []model.Party {
		return []model.Party{
			{PartyID: p.Trader, Source: "D", Role: model.RoleExecutingTrader},
			{PartyID: p.TraderGroup, Source: "D", Role: model.RoleExecutingGroup},
			{PartyID: p.Firm, Source: "D", Role: model.RoleExecutingFirm},
		}
	}
	fullCounter := func(p directory.PartyRecord) []model.Party {
		return []model.Party{
			{PartyID: p.Trader, Source: "D", Role: model.RoleCounterTrader},
			{PartyID: p.TraderGroup, Source: "D", Role: model.RoleCounterGroup},
			{PartyID: p.Firm, Source: "D", Role: model.RoleCounterFirm},
		}
	}

	if kind == model.TradeReportSingleParty {
		return []model.PartySide{
			{Side: execSide.Side, Parties: fullExec(execRec)},
			{Side: counterSide.Side, Parties: fullCounter(counterRec)},
		}
	}

	if notifyLayout {
		return []model.PartySide{
			{Side: counterSide.Side, Parties: []model.Party{
				{PartyID: counterRec.Trader, Source: "D", Role: model.RoleExecutingTrader},
			}},
			{Side: execSide.Side, Parties: []model.Party{
				{PartyID: execRec.Trader, Source: "D", Role: model.RoleCounterTrader},
			}},
		}
	}

	return []model.PartySide{
		{Side: execSide.Side, Parties: fullExec(execRec)},
		{Side: counterSide.Side, Parties: []model.Party{
			{PartyID: counterRec.Trader, Source: "D", Role: model.RoleCounterTrader},
		}},
	}
}

// mergeReport folds the set fields of an inbound report into the stored one.
// Identity fields assigned by the venue are never overwritten.
func mergeReport(dst, src *model.TradeCaptureReport) {
	dst.ReportType = src.ReportType
	dst.TransType = src.TransType
	if src.TradeReportID != "" {
		dst.TradeReportID = src.TradeReportID
	}
	if src.RefReportID != "" {
		dst.RefReportID = src.RefReportID
	}
	if src.SecurityID != "" {
		dst.SecurityID = src.SecurityID
	}
	if src.Price.IsPositive() {
		dst.Price = src.Price
	}
	if src.Quantity.IsPositive() {
		dst.Quantity = src.Quantity
	}
	if src.SettlementDate != "" {
		dst.SettlementDate = src.SettlementDate
	}
	if len(src.Sides) > 0 {
		dst.Sides = src.Sides
	}
	if src.Submitter != "" {
		dst.Submitter = src.Submitter
	}
}
