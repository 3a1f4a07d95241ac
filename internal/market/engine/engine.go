// =============================
// Matching Engine
// =============================
// Continuous matching over the order book plus the order-scoped send paths
// (acknowledge, reject, expire, trigger, restate). Candidates are selected
// fresh for every taker: opposite side, same security, resting, and priced
// through for limit takers. Ties at one price level keep arrival order.
//
// All engine entry points run on the owning market's single goroutine; the
// engine itself holds no locks.

package engine

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market/directory"
	"github.com/Aidin1998/venuesim/internal/market/feed"
	"github.com/Aidin1998/venuesim/internal/market/model"
	"github.com/Aidin1998/venuesim/internal/market/orderbook"
	"github.com/Aidin1998/venuesim/internal/market/router"
	"github.com/Aidin1998/venuesim/internal/market/tcr"
	"github.com/Aidin1998/venuesim/pkg/idgen"
	"github.com/Aidin1998/venuesim/pkg/metrics"
)

// pegOffset is the half-tick applied to bid and offer pegs.
var pegOffset = decimal.NewFromFloat(0.5)

// Engine matches orders and emits the resulting notifications.
type Engine struct {
	book    *orderbook.Book
	dir     *directory.Directory
	rt      *router.Router
	trades  *tcr.Store
	profile Profile
	hub     *feed.Hub
	log     *zap.SugaredLogger
}

// New wires an engine over its market's book, directory, router and trade
// store. hub may be nil.
func New(book *orderbook.Book, dir *directory.Directory, rt *router.Router, trades *tcr.Store, profile Profile, hub *feed.Hub, log *zap.SugaredLogger) *Engine {
	return &Engine{book: book, dir: dir, rt: rt, trades: trades, profile: profile, hub: hub, log: log}
}

// Profile returns the capability profile the engine runs under.
func (e *Engine) Profile() Profile { return e.profile }

// Book returns the engine's order book.
func (e *Engine) Book() *orderbook.Book { return e.book }

// ------------------------------------------------------------------
// Order-scoped send paths
// ------------------------------------------------------------------

// AcknowledgeCreate accepts a pending order: assigns its order ID, reports it
// back to the owning session and drop-copies the acceptance.
func (e *Engine) AcknowledgeCreate(o *model.Order) {
	if o.OrderID == "" {
		o.OrderID = idgen.OrderID()
		e.book.Register(o)
	}
	e.rt.SendOrderEntry(o.Account, orderOut(model.ScenarioNewOrderAck, o))
	o.Status = model.StatusCreated
	e.rt.DropCopy(model.ScenarioDCNewOrder, o)
	metrics.OrdersAccepted.WithLabelValues(sideLabel(o.Side)).Inc()
	e.publishOrder(feed.EventOrderAccepted, o)
}

// AcknowledgeAmend confirms an amend and refreshes the price index.
func (e *Engine) AcknowledgeAmend(o *model.Order) {
	e.rt.SendOrderEntry(o.Account, orderOut(model.ScenarioAmendAck, o))
	o.Status = model.StatusAmended
	e.book.Reindex(o)
	e.rt.DropCopy(model.ScenarioDCAmendOrder, o)
}

// AcknowledgeCancel confirms a cancel and closes the order. The drop-copy
// notice goes out before the session acknowledgment.
func (e *Engine) AcknowledgeCancel(o *model.Order) {
	e.rt.DropCopy(model.ScenarioDCCancelOrder, o)
	e.rt.SendOrderEntry(o.Account, orderOut(model.ScenarioCancelAck, o))
	o.Status = model.StatusClosed
	e.publishOrder(feed.EventOrderClosed, o)
}

// RejectOrder closes the order with its reject code.
func (e *Engine) RejectOrder(o *model.Order) {
	e.rt.SendOrderEntry(o.Account, orderOut(model.ScenarioReject, o))
	o.Status = model.StatusClosed
	metrics.OrdersRejected.WithLabelValues(o.RejectCode).Inc()
	e.publishOrder(feed.EventOrderRejected, o)
}

// RejectAdmin sends a protocol-level rejection outside any order lifecycle.
func (e *Engine) RejectAdmin(account, code, reason, msgType, clOrdID string) {
	e.rt.SendOrderEntry(account, &model.Outbound{
		Scenario: model.ScenarioAdminReject,
		AdminReject: &model.AdminReject{
			RejectCode:    code,
			RejectReason:  reason,
			MessageType:   msgType,
			ClientOrderID: clOrdID,
		},
	})
	metrics.OrdersRejected.WithLabelValues(code).Inc()
}

// ExpireOrder closes the order as expired.
func (e *Engine) ExpireOrder(o *model.Order) {
	e.rt.SendOrderEntry(o.Account, orderOut(model.ScenarioExpire, o))
	o.Status = model.StatusClosed
	e.rt.DropCopy(model.ScenarioDCExpireOrder, o)
	e.publishOrder(feed.EventOrderExpired, o)
}

// TriggerOrder reports a stop trigger; the caller then routes the order to
// market or limit processing by its type.
func (e *Engine) TriggerOrder(o *model.Order) {
	e.rt.SendOrderEntry(o.Account, orderOut(model.ScenarioTrigger, o))
	o.Status = model.StatusTriggered
	e.rt.DropCopy(model.ScenarioDCTrigger, o)
}

// RestateOrder converts a market-to-limit remainder into a resting limit
// order priced at its execution price, or the last traded price when nothing
// has executed yet.
func (e *Engine) RestateOrder(o *model.Order) {
	o.Type = model.OrderTypeLimit
	if o.ExecutedPrice.IsPositive() {
		o.LimitPrice = o.ExecutedPrice
	} else if last, ok := e.book.LastPrice(o.SecurityID); ok {
		o.LimitPrice = last
	}
	e.rt.SendOrderEntry(o.Account, orderOut(model.ScenarioRestate, o))
	o.Status = model.StatusRestate
	e.book.Reindex(o)
	e.rt.DropCopy(model.ScenarioDCRestate, o)
}

// ------------------------------------------------------------------
// Matching
// ------------------------------------------------------------------

// ProcessMarketOrder matches a market, triggered-stop or market-to-limit
// taker against the displayed and hidden book. Any remainder expires, except
// a market-to-limit remainder which restates as a limit order.
func (e *Engine) ProcessMarketOrder(o *model.Order) {
	cands := e.candidates(o, false)
	if len(cands) == 0 {
		if o.OrderID == "" {
			o.OrderID = idgen.OrderID()
			e.book.Register(o)
		}
		if e.profile.MarketToLimit && o.Type == model.OrderTypeMarketToLimit &&
			o.TimeInForce != model.TIFIOC && o.TimeInForce != model.TIFFOK {
			o.LeavesQuantity = o.Quantity
			e.RestateOrder(o)
			return
		}
		e.ExpireOrder(o)
		return
	}
	leaves := e.trade(o, cands)
	if !leaves.IsPositive() {
		return
	}
	if e.profile.MarketToLimit && o.Type == model.OrderTypeMarketToLimit {
		e.RestateOrder(o)
		return
	}
	e.ExpireOrder(o)
}

// ProcessLimitOrder matches a limit taker against price-compatible resting
// orders. IOC and FOK remainders expire; anything else rests.
func (e *Engine) ProcessLimitOrder(o *model.Order) {
	cands := e.candidates(o, true)
	if len(cands) == 0 {
		if o.TimeInForce == model.TIFIOC || o.TimeInForce == model.TIFFOK {
			e.ExpireOrder(o)
		}
		return
	}
	leaves := e.trade(o, cands)
	if leaves.IsPositive() && (o.TimeInForce == model.TIFIOC || o.TimeInForce == model.TIFFOK) {
		e.ExpireOrder(o)
	}
}

// candidates selects and price-orders the resting orders a taker can hit.
func (e *Engine) candidates(taker *model.Order, limitTaker bool) []*model.Order {
	matchSide := taker.Side.Opposite()
	cands := e.book.Filter(func(o *model.Order) bool {
		if o.Side != matchSide || o.SecurityID != taker.SecurityID {
			return false
		}
		if o.ClientOrderID == taker.ClientOrderID {
			return false
		}
		if !o.IsResting() {
			return false
		}
		switch o.Container {
		case model.ContainerMain, model.ContainerHidden:
		case model.ContainerPegged:
			if !limitTaker || !e.profile.PeggedOrders || o.PeggedPrice == nil {
				return false
			}
		default:
			return false
		}
		if limitTaker {
			price := o.EffectivePrice()
			if taker.Side == model.SideBuy {
				return price.LessThanOrEqual(taker.LimitPrice)
			}
			return price.GreaterThanOrEqual(taker.LimitPrice)
		}
		return true
	})

	// Best price first, arrival order on ties.
	stableSortByPrice(cands, matchSide)

	if limitTaker && taker.TimeInForce == model.TIFFOK {
		cands = filterOrders(cands, func(o *model.Order) bool {
			return o.LeavesQuantity.GreaterThanOrEqual(taker.Quantity)
		})
	}
	if e.profile.HiddenLimitExclusion && taker.ExecutionInstruction != nil && *taker.ExecutionInstruction == 1 {
		cands = filterOrders(cands, func(o *model.Order) bool {
			return o.DisplayQuantity.IsPositive()
		})
	}
	return cands
}

// trade walks the candidate list consuming the taker's open quantity. Each
// fill executes at the candidate's effective price, stamps fresh trade IDs on
// both legs and moves the last traded price. Returns the unfilled remainder.
func (e *Engine) trade(taker *model.Order, cands []*model.Order) decimal.Decimal {
	leaves := taker.LeavesQuantity
	for _, cand := range cands {
		if !leaves.IsPositive() {
			break
		}
		// A resting fill-or-kill only trades when it matches the taker's
		// remainder exactly.
		if cand.TimeInForce == model.TIFFOK && !cand.LeavesQuantity.Equal(leaves) {
			continue
		}

		price := cand.EffectivePrice()
		candLeaves := cand.LeavesQuantity
		tradeID := idgen.TradeID()
		reportID := idgen.TradeReportID()
		linkID := idgen.TradeLinkID()

		switch {
		case candLeaves.Equal(leaves):
			taker.ApplyFill(price, leaves, tradeID, reportID, linkID)
			cand.ApplyFill(price, candLeaves, tradeID, reportID, linkID)
			leaves = decimal.Zero
			e.book.SetLastPrice(taker.SecurityID, price)
			e.notifyFill(taker, true)
			e.notifyFill(cand, true)
		case candLeaves.GreaterThan(leaves):
			taker.ApplyFill(price, leaves, tradeID, reportID, linkID)
			cand.ApplyFill(price, leaves, tradeID, reportID, linkID)
			leaves = decimal.Zero
			e.book.SetLastPrice(taker.SecurityID, price)
			e.notifyFill(taker, true)
			e.notifyFill(cand, false)
		default:
			taker.ApplyFill(price, candLeaves, tradeID, reportID, linkID)
			cand.ApplyFill(price, candLeaves, tradeID, reportID, linkID)
			leaves = leaves.Sub(candLeaves)
			e.book.SetLastPrice(taker.SecurityID, price)
			e.notifyFill(taker, false)
			e.notifyFill(cand, true)
		}
	}
	return leaves
}

// notifyFill reports one execution leg: the fill acknowledgment to the order's
// session, the post-trade report to the broker's sessions and the drop-copy.
func (e *Engine) notifyFill(o *model.Order, full bool) {
	if o.OrderID == "" {
		o.OrderID = idgen.OrderID()
		e.book.Register(o)
	}
	o.ExecutionID = idgen.ExecutionID()

	scenario := model.ScenarioPartialFill
	if full {
		scenario = model.ScenarioFullFill
	}
	e.rt.SendOrderEntry(o.Account, orderOut(scenario, o))
	o.Status = model.StatusTraded

	e.recordOnBookTrade(o)
	e.rt.DropCopy(model.ScenarioDCTrade, o)

	metrics.TradesExecuted.Inc()
	e.hub.Publish(feed.Event{
		Type:       feed.EventTrade,
		SecurityID: o.SecurityID,
		OrderID:    o.OrderID,
		TradeID:    o.TradeID,
		Price:      o.ExecutedPrice,
		Quantity:   o.ExecutedQuantity,
		Status:     o.Status,
	})
}

// recordOnBookTrade fans the post-trade report out to the broker's sessions
// and upserts the trade record for later replay or cancellation.
func (e *Engine) recordOnBookTrade(o *model.Order) {
	refs := e.rt.PostTradeSessions(o.Broker)
	parties, _ := e.dir.OnBookParties(o.Broker)
	out := &model.Outbound{
		Scenario: model.ScenarioPTTrade,
		Order:    &model.OrderReport{Order: *o, Parties: parties},
	}

	if _, ok := e.trades.Get(o.TradeID); !ok {
		rec := &tcr.Record{
			TradeID: o.TradeID,
			LinkID:  o.TradeLinkID,
			Kind:    model.TradeReportOnBook,
			Status:  tcr.StatusTraded,
			Broker:  o.Broker,
			Order:   o,
			Report: model.TradeCaptureReport{
				Kind:          model.TradeReportOnBook,
				TradeID:       o.TradeID,
				TradeReportID: o.TradeReportID,
				SecurityID:    o.SecurityID,
				Price:         o.ExecutedPrice,
				Quantity:      o.ExecutedQuantity,
			},
		}
		if len(refs) > 0 {
			rec.Account = refs[0].Account
		}
		e.trades.Put(rec)
	} else {
		e.trades.Update(o.TradeID, func(r *tcr.Record) {
			r.Status = tcr.StatusTraded
			r.Order = o
			r.Report.TradeReportID = o.TradeReportID
			r.Report.Price = o.ExecutedPrice
			r.Report.Quantity = o.ExecutedQuantity
		})
	}

	for _, ref := range refs {
		ref.Session.Send(ref.Account, out)
		e.trades.Append(o.TradeID, ref.Account, out)
	}
}

// ------------------------------------------------------------------
// Cross orders
// ------------------------------------------------------------------

// ProcessCrossOrder executes both legs of a cross at the stated price. Legs
// whose clearing account does not resolve against the broker's parties are
// admin-rejected as an unknown user.
func (e *Engine) ProcessCrossOrder(account string, msg *model.CrossOrderMessage) {
	broker, ok := e.rt.BrokerFor(account)
	if !ok {
		e.log.Warnw("cross order from unknown account", "account", account)
		return
	}

	buy := crossLeg(account, broker, msg, model.SideBuy)
	sell := crossLeg(account, broker, msg, model.SideSell)

	if _, ok := e.dir.PartyForAccount(broker, buy.ClearingAccount); !ok {
		e.RejectAdmin(account, "134200", "Unknown User", "C", msg.CrossID)
		return
	}
	if _, ok := e.dir.PartyForAccount(broker, sell.ClearingAccount); !ok {
		e.RejectAdmin(account, "134200", "Unknown User", "C", msg.CrossID)
		return
	}

	tradeID := idgen.TradeID()
	reportID := idgen.TradeReportID()
	linkID := idgen.TradeLinkID()
	for _, leg := range []*model.Order{buy, sell} {
		leg.OrderID = idgen.OrderID()
		leg.ApplyFill(msg.LimitPrice, msg.Quantity, tradeID, reportID, linkID)
		e.rt.SendOrderEntry(account, orderOut(model.ScenarioCrossAck, leg))
		leg.Status = model.StatusTraded
		leg.ExecutionID = idgen.ExecutionID()
		e.rt.DropCopy(model.ScenarioDCTrade, leg)
		e.recordOnBookTrade(leg)
	}
	e.book.SetLastPrice(msg.SecurityID, msg.LimitPrice)
	metrics.TradesExecuted.Inc()
}

func crossLeg(account, broker string, msg *model.CrossOrderMessage, side model.Side) *model.Order {
	o := &model.Order{
		CrossID:        msg.CrossID,
		SecurityID:     msg.SecurityID,
		Account:        account,
		Broker:         broker,
		Side:           side,
		Type:           msg.Type,
		TimeInForce:    msg.TimeInForce,
		LimitPrice:     msg.LimitPrice,
		Quantity:       msg.Quantity,
		LeavesQuantity: msg.Quantity,
	}
	if side == model.SideBuy {
		o.ClientOrderID = msg.BuyClientOrderID
		o.Capacity = msg.BuyCapacity
		o.TraderMnemonic = msg.BuyTraderMnemonic
		o.ClearingAccount = msg.BuyClearingAccount
	} else {
		o.ClientOrderID = msg.SellClientOrderID
		o.Capacity = msg.SellCapacity
		o.TraderMnemonic = msg.SellTraderMnemonic
		o.ClearingAccount = msg.SellClearingAccount
	}
	return o
}

// ------------------------------------------------------------------
// On-book trade cancellation
// ------------------------------------------------------------------

// CancelOnBookTrade runs the three-step cancellation of an executed on-book
// trade: acknowledge on the reporting post-trade session, cancel on the
// order's session, then confirm to every post-trade session of the broker.
func (e *Engine) CancelOnBookTrade(rep *model.TradeCaptureReport) {
	rec, ok := e.trades.Get(rep.TradeID)
	if !ok {
		e.log.Debugw("trade cancel for unknown trade", "trade_id", rep.TradeID)
		return
	}

	var side model.Side
	if len(rep.Sides) > 0 {
		side = rep.Sides[0].Side
	}
	matches := e.book.Filter(func(o *model.Order) bool {
		return o.TradeID == rep.TradeID && (side == 0 || o.Side == side)
	})
	if len(matches) == 0 {
		e.log.Debugw("trade cancel without matching order", "trade_id", rep.TradeID)
		return
	}
	o := matches[0]
	parties, _ := e.dir.OnBookParties(o.Broker)

	// Step 1: acknowledge on the session the trade was reported to.
	ack := &model.Outbound{
		Scenario: model.ScenarioPTAckCancelTrade,
		Order:    &model.OrderReport{Order: *o, Parties: parties},
	}
	e.rt.SendPostTradeTo(rec.Account, ack)
	e.trades.Append(rep.TradeID, rec.Account, ack)

	// Step 2: cancel acknowledgment to the order's own session.
	e.rt.SendOrderEntry(o.Account, orderOut(model.ScenarioTradeCancelAck, o))
	e.trades.SetStatus(rep.TradeID, tcr.StatusCanceled)

	// Step 3: confirmation broadcast with the gross consideration.
	snapshot := *o
	snapshot.TradeReportID = idgen.CancelReportID()
	confirm := &model.Outbound{
		Scenario: model.ScenarioPTConfirmCancelTrade,
		Order: &model.OrderReport{
			Order:       snapshot,
			Parties:     parties,
			RefReportID: o.TradeReportID,
			GrossAmount: o.ExecutedQuantity.Mul(o.ExecutedPrice),
		},
	}
	for _, ref := range e.rt.PostTradeSessions(o.Broker) {
		ref.Session.Send(ref.Account, confirm)
		e.trades.Append(rep.TradeID, ref.Account, confirm)
	}
	e.rt.DropCopy(model.ScenarioDCTradeCancel, o)

	if o.LeavesQuantity.IsZero() {
		o.Status = model.StatusCancel
	}
}

// ------------------------------------------------------------------
// Pegged order repricing
// ------------------------------------------------------------------

// RecomputePegs reprices every resting pegged order from the current best bid
// and offer of its security. Both sides of the book must exist for a peg to
// price; pegged-limit orders additionally hold their boundary.
func (e *Engine) RecomputePegs() {
	if !e.profile.PeggedOrders {
		return
	}
	pegs := e.book.Filter(func(o *model.Order) bool {
		return o.Container == model.ContainerPegged && o.IsResting()
	})
	for _, o := range pegs {
		bid, bidOK := e.book.BestBid(o.SecurityID)
		offer, offerOK := e.book.BestOffer(o.SecurityID)
		if !bidOK || !offerOK || !bid.IsPositive() || !offer.IsPositive() {
			continue
		}
		mid := bid.Add(offer).Div(decimal.NewFromInt(2))

		if o.Type == model.OrderTypePegged {
			switch o.SubType {
			case model.PegToMid:
				setPeg(o, mid)
			case model.PegToBid:
				setPeg(o, bid.Add(pegOffset))
			case model.PegToOffer:
				setPeg(o, offer.Sub(pegOffset))
			}
			continue
		}

		// Pegged-limit: the peg only moves while its boundary holds.
		switch o.SubType {
		case model.PegToMid:
			if o.Side == model.SideBuy && mid.GreaterThanOrEqual(o.StopPrice) {
				setPeg(o, mid)
			} else if o.Side == model.SideSell && mid.LessThanOrEqual(o.StopPrice) {
				setPeg(o, mid)
			}
		case model.PegToBid:
			if bid.GreaterThanOrEqual(o.LimitPrice) {
				setPeg(o, bid.Add(pegOffset))
			}
		case model.PegToOffer:
			if offer.LessThanOrEqual(o.LimitPrice) {
				setPeg(o, offer.Sub(pegOffset))
			}
		}
	}
}

func setPeg(o *model.Order, price decimal.Decimal) {
	p := price
	o.PeggedPrice = &p
}

// ------------------------------------------------------------------
// Helpers
// ------------------------------------------------------------------

func orderOut(scenario model.Scenario, o *model.Order) *model.Outbound {
	return &model.Outbound{Scenario: scenario, Order: &model.OrderReport{Order: *o}}
}

func (e *Engine) publishOrder(t feed.EventType, o *model.Order) {
	e.hub.Publish(feed.Event{
		Type:       t,
		SecurityID: o.SecurityID,
		OrderID:    o.OrderID,
		Status:     o.Status,
	})
}

func sideLabel(s model.Side) string {
	if s == model.SideBuy {
		return "buy"
	}
	return "sell"
}

func stableSortByPrice(orders []*model.Order, side model.Side) {
	sort.SliceStable(orders, func(i, j int) bool {
		pi, pj := orders[i].EffectivePrice(), orders[j].EffectivePrice()
		if side == model.SideBuy {
			return pi.GreaterThan(pj)
		}
		return pi.LessThan(pj)
	})
}

func filterOrders(orders []*model.Order, keep func(*model.Order) bool) []*model.Order {
	out := orders[:0]
	for _, o := range orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}
