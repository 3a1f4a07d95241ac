// =============================
// Message Ruler
// =============================
// The ruler is the single entry point for inbound gateway traffic. Every
// decoded message and every scheduler tick is serialized onto one goroutine
// per market, so order state never needs locking on the hot path. Inbound
// handlers only flag pending actions; the lifecycle sweeps do the work.

package ruler

import (
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market/engine"
	"github.com/Aidin1998/venuesim/internal/market/instruments"
	"github.com/Aidin1998/venuesim/internal/market/model"
	"github.com/Aidin1998/venuesim/internal/market/orderbook"
	"github.com/Aidin1998/venuesim/internal/market/router"
	"github.com/Aidin1998/venuesim/internal/market/tcr"
)

// massCancelDone is the mass-cancel report status for a completed request.
const massCancelDone = 7

// recoverablePartition is the only partition missed-message recovery serves.
const recoverablePartition = 1

const commandBuffer = 256

// Ruler dispatches inbound messages for one market.
type Ruler struct {
	book *orderbook.Book
	eng  *engine.Engine
	wf   *tcr.Workflow
	rt   *router.Router
	ins  *instruments.Table
	log  *zap.SugaredLogger

	cmds chan func()
	stop chan struct{}
	done chan struct{}
}

// New wires a ruler over the market's book, engine, workflow and router.
func New(book *orderbook.Book, eng *engine.Engine, wf *tcr.Workflow, rt *router.Router, ins *instruments.Table, log *zap.SugaredLogger) *Ruler {
	return &Ruler{
		book: book,
		eng:  eng,
		wf:   wf,
		rt:   rt,
		ins:  ins,
		log:  log,
		cmds: make(chan func(), commandBuffer),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the market goroutine.
func (r *Ruler) Start() {
	go func() {
		defer close(r.done)
		for {
			select {
			case <-r.stop:
				return
			case fn := <-r.cmds:
				fn()
			}
		}
	}()
}

// Stop halts the market goroutine after the current command.
func (r *Ruler) Stop() {
	close(r.stop)
	<-r.done
}

// Submit runs fn on the market goroutine, preserving submission order.
func (r *Ruler) Submit(fn func()) {
	select {
	case r.cmds <- fn:
	case <-r.stop:
	}
}

// Process enqueues one inbound message.
func (r *Ruler) Process(env *model.Envelope) {
	r.Submit(func() { r.handle(env) })
}

func (r *Ruler) handle(env *model.Envelope) {
	switch env.Type {
	case model.MsgNewOrder:
		r.handleNewOrder(env)
	case model.MsgAmendOrder:
		r.handleAmend(env)
	case model.MsgCancelOrder:
		r.handleCancel(env)
	case model.MsgMassCancel:
		r.handleMassCancel(env)
	case model.MsgCrossOrder:
		r.eng.ProcessCrossOrder(env.Account, env.Cross)
	case model.MsgTradeCaptureReport:
		r.handleTradeCapture(env)
	case model.MsgTradeCaptureRequest:
		r.handleTradeRequest(env)
	case model.MsgOrderMassStatus:
		r.handleMassStatus(env)
	case model.MsgMissedMessage:
		r.handleMissedMessage(env)
	case model.MsgQuote, model.MsgQuoteRequest:
		// Quoting is not simulated.
	default:
		r.log.Debugw("unhandled message type", "type", env.Type, "account", env.Account)
	}
}

// handleNewOrder reprices resting pegs against the book as it stood at
// arrival, then parks the order for the create sweep.
func (r *Ruler) handleNewOrder(env *model.Envelope) {
	r.eng.RecomputePegs()
	broker, ok := r.rt.BrokerFor(env.Account)
	if !ok {
		r.log.Warnw("new order from unknown account", "account", env.Account)
		return
	}
	o := model.FromNewOrder(env.Account, broker, env.NewOrder)
	r.book.Add(o)
}

func (r *Ruler) handleAmend(env *model.Envelope) {
	m := env.Amend
	o, ok := r.book.ByOrderID(m.OrderID)
	if !ok {
		r.log.Debugw("amend for unknown order", "order_id", m.OrderID)
		return
	}

	origExpire := o.ExpireTime
	upd := model.OrderUpdate{
		ClientOrderID:        m.ClientOrderID,
		Quantity:             m.Quantity,
		LimitPrice:           m.LimitPrice,
		StopPrice:            m.StopPrice,
		ExpireTime:           m.ExpireTime,
		TimeInForce:          m.TimeInForce,
		ExecutionInstruction: m.ExecutionInstruction,
	}
	upd.Apply(o)

	// Orders excluding hidden liquidity cannot move their expiry.
	if r.eng.Profile().HiddenLimitExclusion &&
		o.ExecutionInstruction != nil && *o.ExecutionInstruction == 1 &&
		o.ExpireTime != origExpire {
		o.RejectCode = "134023"
		r.eng.RejectOrder(o)
		return
	}
	o.Status = model.StatusAmend
}

func (r *Ruler) handleCancel(env *model.Envelope) {
	m := env.Cancel
	o, ok := r.book.ByOrderID(m.OrderID)
	if !ok {
		r.log.Debugw("cancel for unknown order", "order_id", m.OrderID)
		return
	}
	if m.ClientOrderID != "" {
		o.ClientOrderID = m.ClientOrderID
	}
	if o.Status == model.StatusClosed {
		o.RejectCode = "002000"
		r.eng.RejectOrder(o)
		return
	}
	o.Status = model.StatusCancel
}

// handleMassCancel resolves the request scope, acknowledges it and flags the
// matching open orders for the cancel sweep.
func (r *Ruler) handleMassCancel(env *model.Envelope) {
	m := env.MassCancel
	broker, _ := r.rt.BrokerFor(env.Account)
	orders := r.scopeMassCancel(env.Account, broker, m)

	r.rt.SendOrderEntry(env.Account, &model.Outbound{
		Scenario: model.ScenarioMassCancelReport,
		MassCancel: &model.MassCancelReport{
			ClientOrderID: m.ClientOrderID,
			OrderBook:     m.OrderBook,
			Status:        massCancelDone,
		},
	})
	for _, o := range orders {
		o.Status = model.StatusCancel
	}
}

func (r *Ruler) scopeMassCancel(account, broker string, m *model.MassCancelMessage) []*model.Order {
	if m.OrderBook != 1 {
		return nil
	}
	open := func(o *model.Order) bool { return o.IsOpen() }

	switch m.RequestType {
	case model.MassCancelFirmInstrument:
		return r.book.Filter(func(o *model.Order) bool {
			return open(o) && o.Broker == broker && o.SecurityID == m.SecurityID
		})
	case model.MassCancelFirmSegment:
		codes := r.segment(m.Segment)
		return r.book.Filter(func(o *model.Order) bool {
			return open(o) && o.Broker == broker && codes[o.SecurityID]
		})
	case model.MassCancelClient:
		return r.book.Filter(func(o *model.Order) bool {
			return open(o) && o.Account == account
		})
	case model.MassCancelFirm:
		return r.book.Filter(func(o *model.Order) bool {
			return open(o) && o.Broker == broker
		})
	case model.MassCancelClientInstrument:
		return r.book.Filter(func(o *model.Order) bool {
			return open(o) && o.Account == account && o.SecurityID == m.SecurityID
		})
	case model.MassCancelClientUnderlying:
		codes := r.underlying(m.SecurityID)
		return r.book.Filter(func(o *model.Order) bool {
			return open(o) && o.Account == account && codes[o.SecurityID]
		})
	case model.MassCancelClientSegment:
		codes := r.segment(m.Segment)
		return r.book.Filter(func(o *model.Order) bool {
			return open(o) && o.Account == account && codes[o.SecurityID]
		})
	case model.MassCancelFirmUnderlying:
		codes := r.underlying(m.SecurityID)
		return r.book.Filter(func(o *model.Order) bool {
			return open(o) && o.Broker == broker && codes[o.SecurityID]
		})
	}
	return nil
}

func (r *Ruler) segment(segment string) map[string]bool {
	codes := make(map[string]bool)
	if r.ins == nil {
		return codes
	}
	for _, c := range r.ins.SegmentCodes(segment) {
		codes[c] = true
	}
	return codes
}

func (r *Ruler) underlying(securityID string) map[string]bool {
	codes := make(map[string]bool)
	if r.ins == nil {
		return codes
	}
	for _, c := range r.ins.UnderlyingCodes(securityID) {
		codes[c] = true
	}
	return codes
}

// handleTradeCapture splits on-book trade cancels from off-book negotiation.
func (r *Ruler) handleTradeCapture(env *model.Envelope) {
	rep := env.TradeCapture
	rep.Submitter = env.Account
	if rep.Kind == model.TradeReportOnBook {
		if rep.ReportType == model.TradeReportCancel && rep.TransType == model.TradeTransNew {
			r.eng.CancelOnBookTrade(rep)
		}
		return
	}
	r.wf.Process(rep)
}

// handleTradeRequest replays the stored post-trade history of the requesting
// session, bracketed by a count acknowledgment and a last-message marker.
func (r *Ruler) handleTradeRequest(env *model.Envelope) {
	m := env.TradeRequest
	username := m.Username
	if username == "" {
		username = env.Account
	}

	var replay []*model.Outbound
	for _, rec := range r.wf.Store().All() {
		for _, sm := range rec.Messages {
			if sm.Account == username {
				replay = append(replay, sm.Out)
			}
		}
	}

	r.rt.SendPostTradeTo(env.Account, &model.Outbound{
		Scenario: model.ScenarioTCRRequestAck,
		TradeReport: &model.TradeReportOut{
			RequestID:    m.RequestID,
			TotalReports: len(replay),
		},
	})

	for i, stored := range replay {
		out := *stored
		out.Scenario = model.ScenarioTCRReplay
		last := i == len(replay)-1
		if stored.TradeReport != nil {
			tr := *stored.TradeReport
			tr.RequestID = m.RequestID
			tr.LastMessage = last
			out.TradeReport = &tr
		} else if stored.Order != nil {
			or := *stored.Order
			or.RequestID = m.RequestID
			or.LastMessage = last
			out.Order = &or
		}
		r.rt.SendPostTradeTo(env.Account, &out)
	}
}

// handleMassStatus streams every open order of the broker back on the
// requesting drop-copy session, the last one flagged.
func (r *Ruler) handleMassStatus(env *model.Envelope) {
	m := env.MassStatus
	orders := r.book.Filter(func(o *model.Order) bool {
		return o.IsOpen() && o.Broker == m.Broker
	})
	parties, _ := r.rt.Parties(m.Broker)

	for i, o := range orders {
		r.rt.SendDropCopyTo(env.Account, &model.Outbound{
			Scenario: model.ScenarioDCOrderStatus,
			Order: &model.OrderReport{
				Order:       *o,
				Parties:     parties,
				RequestID:   m.RequestID,
				LastMessage: i == len(orders)-1,
			},
		})
	}
}

// handleMissedMessage acknowledges a recovery request. Only one partition is
// recoverable; everything else is rejected with status 2. Replay of the
// transport's outgoing buffer is the transport's concern, so the ruler sends
// the completion marker straight after the acknowledgment.
func (r *Ruler) handleMissedMessage(env *model.Envelope) {
	m := env.Missed
	if m.PartitionID != recoverablePartition {
		r.rt.SendOrderEntry(env.Account, &model.Outbound{
			Scenario: model.ScenarioMissedMsgAck,
			Recovery: &model.RecoveryStatus{Status: 2},
		})
		return
	}
	r.rt.SendOrderEntry(env.Account, &model.Outbound{
		Scenario: model.ScenarioMissedMsgAck,
		Recovery: &model.RecoveryStatus{Status: 0},
	})
	r.rt.SendOrderEntry(env.Account, &model.Outbound{Scenario: model.ScenarioTransmitDone})
}

// PublishNews broadcasts an operator news message.
func (r *Ruler) PublishNews(news *model.News) {
	r.Submit(func() { r.rt.PublishNews(news) })
}

// OnSessionClose flags every open order of the disconnected account for
// cancellation; the cancel sweep confirms them.
func (r *Ruler) OnSessionClose(account string) {
	r.Submit(func() {
		for _, o := range r.book.Filter(func(o *model.Order) bool {
			return o.IsOpen() && o.Account == account && o.IsResting()
		}) {
			o.Status = model.StatusCancel
		}
	})
}
