package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market/directory"
	"github.com/Aidin1998/venuesim/internal/market/gateway"
	"github.com/Aidin1998/venuesim/internal/market/model"
	"github.com/Aidin1998/venuesim/internal/market/orderbook"
	"github.com/Aidin1998/venuesim/internal/market/router"
	"github.com/Aidin1998/venuesim/internal/market/tcr"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

type fixture struct {
	eng   *Engine
	book  *orderbook.Book
	oe    *gateway.MemorySession
	dc    *gateway.MemorySession
	pt    *gateway.MemorySession
	store *tcr.Store
}

func newFixture(profile Profile) *fixture {
	book := orderbook.New()
	dir := directory.New([]directory.PartyRecord{
		{Trader: "BRKA", TraderGroup: "GA", Firm: "FA", Account: "ACCTA"},
		{Trader: "BRKB", TraderGroup: "GB", Firm: "FB", Account: "ACCTB"},
	})
	oe := gateway.NewMemorySession([]directory.AccountRecord{
		{Username: "usera", BrokerID: "BRKA"},
		{Username: "userb", BrokerID: "BRKB"},
	})
	dc := gateway.NewMemorySession([]directory.AccountRecord{
		{Username: "dca", TargetID: "DCA", BrokerID: "BRKA"},
	})
	pt := gateway.NewMemorySession([]directory.AccountRecord{
		{Username: "pta", TargetID: "PTA", BrokerID: "BRKA"},
		{Username: "ptb", TargetID: "PTB", BrokerID: "BRKB"},
	})
	log := zap.NewNop().Sugar()
	rt := router.New(gateway.Gateways{OrderEntry: oe, DropCopy: dc, PostTrade: pt}, dir, log)
	store := tcr.NewStore()
	return &fixture{
		eng:   New(book, dir, rt, store, profile, nil, log),
		book:  book,
		oe:    oe,
		dc:    dc,
		pt:    pt,
		store: store,
	}
}

func limit(id, account, broker, clOrdID, sec string, side model.Side, price, qty float64) *model.Order {
	return &model.Order{
		OrderID:        id,
		ClientOrderID:  clOrdID,
		SecurityID:     sec,
		Account:        account,
		Broker:         broker,
		Side:           side,
		Type:           model.OrderTypeLimit,
		Container:      model.ContainerMain,
		Status:         model.StatusCreated,
		Quantity:       d(qty),
		LeavesQuantity: d(qty),
		LimitPrice:     d(price),
	}
}

func scenarios(msgs []*model.Outbound) []model.Scenario {
	out := make([]model.Scenario, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Scenario)
	}
	return out
}

func TestLimitOrdersTradeAtRestingPrice(t *testing.T) {
	f := newFixture(EquityProfile())
	maker := limit("O1", "userb", "BRKB", "C1", "SEC1", model.SideSell, 100.5, 50)
	f.book.Add(maker)

	taker := limit("", "usera", "BRKA", "C2", "SEC1", model.SideBuy, 101, 50)
	f.book.Add(taker)
	f.eng.ProcessLimitOrder(taker)

	assert.True(t, taker.CumQuantity.Equal(d(50)))
	assert.True(t, taker.LeavesQuantity.IsZero())
	assert.True(t, taker.ExecutedPrice.Equal(d(100.5)))
	assert.Equal(t, model.StatusTraded, taker.Status)
	assert.Equal(t, model.StatusTraded, maker.Status)
	assert.Equal(t, taker.TradeID, maker.TradeID)
	assert.NotEmpty(t, taker.OrderID)

	last, ok := f.book.LastPrice("SEC1")
	require.True(t, ok)
	assert.True(t, last.Equal(d(100.5)))

	require.Equal(t, []model.Scenario{model.ScenarioFullFill}, scenarios(f.oe.Outbox("usera")))
	require.Equal(t, []model.Scenario{model.ScenarioFullFill}, scenarios(f.oe.Outbox("userb")))
}

func TestTakerNotifiedBeforeMaker(t *testing.T) {
	f := newFixture(EquityProfile())
	maker := limit("O1", "usera", "BRKA", "C1", "SEC1", model.SideSell, 100, 50)
	f.book.Add(maker)

	taker := limit("", "usera", "BRKA", "C2", "SEC1", model.SideBuy, 100, 50)
	f.book.Add(taker)
	f.eng.ProcessLimitOrder(taker)

	out := f.oe.Outbox("usera")
	require.Len(t, out, 2)
	assert.Equal(t, "C2", out[0].Order.Order.ClientOrderID)
	assert.Equal(t, "C1", out[1].Order.Order.ClientOrderID)
}

func TestIOCExpiresWithoutCross(t *testing.T) {
	f := newFixture(EquityProfile())
	f.book.Add(limit("O1", "userb", "BRKB", "C1", "SEC1", model.SideSell, 100, 50))

	taker := limit("", "usera", "BRKA", "C2", "SEC1", model.SideBuy, 99, 50)
	taker.TimeInForce = model.TIFIOC
	f.book.Add(taker)
	f.eng.ProcessLimitOrder(taker)

	assert.Equal(t, model.StatusClosed, taker.Status)
	assert.True(t, taker.CumQuantity.IsZero())
	require.Equal(t, []model.Scenario{model.ScenarioExpire}, scenarios(f.oe.Outbox("usera")))
}

func TestFOKTakerSkipsSmallCandidates(t *testing.T) {
	f := newFixture(EquityProfile())
	maker := limit("O1", "userb", "BRKB", "C1", "SEC1", model.SideSell, 100, 60)
	f.book.Add(maker)

	taker := limit("", "usera", "BRKA", "C2", "SEC1", model.SideBuy, 100, 100)
	taker.TimeInForce = model.TIFFOK
	f.book.Add(taker)
	f.eng.ProcessLimitOrder(taker)

	assert.Equal(t, model.StatusClosed, taker.Status)
	assert.True(t, taker.CumQuantity.IsZero())
	assert.True(t, maker.LeavesQuantity.Equal(d(60)))
}

func TestRestingFOKRequiresExactRemainder(t *testing.T) {
	f := newFixture(EquityProfile())
	maker := limit("O1", "userb", "BRKB", "C1", "SEC1", model.SideSell, 100, 60)
	maker.TimeInForce = model.TIFFOK
	f.book.Add(maker)

	taker := limit("", "usera", "BRKA", "C2", "SEC1", model.SideBuy, 100, 100)
	f.book.Add(taker)
	f.eng.ProcessLimitOrder(taker)

	// Size mismatch: the resting fill-or-kill is passed over.
	assert.True(t, taker.CumQuantity.IsZero())
	assert.True(t, maker.LeavesQuantity.Equal(d(60)))
}

func TestPartialFillDistribution(t *testing.T) {
	f := newFixture(EquityProfile())
	cand1 := limit("O1", "userb", "BRKB", "C1", "SEC1", model.SideSell, 10, 40)
	cand2 := limit("O2", "userb", "BRKB", "C2", "SEC1", model.SideSell, 11, 80)
	f.book.Add(cand2) // worse price arrives first
	f.book.Add(cand1)

	taker := limit("", "usera", "BRKA", "C3", "SEC1", model.SideBuy, 11, 100)
	f.book.Add(taker)
	f.eng.ProcessLimitOrder(taker)

	// Best price first: 40 at 10, then 60 at 11.
	assert.True(t, taker.CumQuantity.Equal(d(100)))
	assert.True(t, taker.LeavesQuantity.IsZero())
	assert.True(t, cand1.LeavesQuantity.IsZero())
	assert.True(t, cand2.LeavesQuantity.Equal(d(20)))
	assert.True(t, cand2.ExecutedPrice.Equal(d(11)))
	assert.True(t, cand2.IsResting())

	last, _ := f.book.LastPrice("SEC1")
	assert.True(t, last.Equal(d(11)))

	require.Equal(t,
		[]model.Scenario{model.ScenarioPartialFill, model.ScenarioFullFill},
		scenarios(f.oe.Outbox("usera")))
}

func TestMarketOrderRemainderExpires(t *testing.T) {
	f := newFixture(EquityProfile())
	f.book.Add(limit("O1", "userb", "BRKB", "C1", "SEC1", model.SideSell, 10, 40))

	taker := limit("", "usera", "BRKA", "C2", "SEC1", model.SideBuy, 0, 100)
	taker.Type = model.OrderTypeMarket
	f.book.Add(taker)
	f.eng.ProcessMarketOrder(taker)

	assert.True(t, taker.CumQuantity.Equal(d(40)))
	assert.Equal(t, model.StatusClosed, taker.Status)
	require.Equal(t,
		[]model.Scenario{model.ScenarioPartialFill, model.ScenarioExpire},
		scenarios(f.oe.Outbox("usera")))
}

func TestMarketToLimitRestatesRemainder(t *testing.T) {
	f := newFixture(DerivativesProfile())
	f.book.Add(limit("O1", "userb", "BRKB", "C1", "SEC1", model.SideSell, 10, 40))

	taker := limit("", "usera", "BRKA", "C2", "SEC1", model.SideBuy, 0, 100)
	taker.Type = model.OrderTypeMarketToLimit
	f.book.Add(taker)
	f.eng.ProcessMarketOrder(taker)

	assert.Equal(t, model.StatusRestate, taker.Status)
	assert.Equal(t, model.OrderTypeLimit, taker.Type)
	assert.True(t, taker.LimitPrice.Equal(d(10)))
	assert.True(t, taker.LeavesQuantity.Equal(d(60)))
	assert.True(t, taker.IsResting())
}

func TestMarketToLimitWithEmptyBookRestatesAtLastPrice(t *testing.T) {
	f := newFixture(DerivativesProfile())
	f.book.SetLastPrice("SEC1", d(42))

	taker := limit("", "usera", "BRKA", "C1", "SEC1", model.SideBuy, 0, 100)
	taker.Type = model.OrderTypeMarketToLimit
	f.book.Add(taker)
	f.eng.ProcessMarketOrder(taker)

	assert.Equal(t, model.StatusRestate, taker.Status)
	assert.Equal(t, model.OrderTypeLimit, taker.Type)
	assert.True(t, taker.LimitPrice.Equal(d(42)))
	assert.True(t, taker.LeavesQuantity.Equal(d(100)))
	assert.NotEmpty(t, taker.OrderID)
}

func TestMarketToLimitIOCExpiresOnEmptyBook(t *testing.T) {
	f := newFixture(DerivativesProfile())
	taker := limit("", "usera", "BRKA", "C1", "SEC1", model.SideBuy, 0, 100)
	taker.Type = model.OrderTypeMarketToLimit
	taker.TimeInForce = model.TIFIOC
	f.book.Add(taker)
	f.eng.ProcessMarketOrder(taker)

	assert.Equal(t, model.StatusClosed, taker.Status)
}

func TestHiddenLiquidityExcludedForInstructedTaker(t *testing.T) {
	f := newFixture(EquityProfile())
	hidden := limit("O1", "userb", "BRKB", "C1", "SEC1", model.SideSell, 100, 50)
	hidden.Container = model.ContainerHidden
	f.book.Add(hidden)

	one := 1
	taker := limit("", "usera", "BRKA", "C2", "SEC1", model.SideBuy, 100, 50)
	taker.ExecutionInstruction = &one
	f.book.Add(taker)
	f.eng.ProcessLimitOrder(taker)

	assert.True(t, taker.CumQuantity.IsZero())
	assert.True(t, hidden.LeavesQuantity.Equal(d(50)))
}

func TestRecomputePegs(t *testing.T) {
	f := newFixture(EquityProfile())
	f.book.Add(limit("O1", "userb", "BRKB", "B1", "SEC1", model.SideBuy, 100, 10))
	f.book.Add(limit("O2", "userb", "BRKB", "S1", "SEC1", model.SideSell, 102, 10))

	mk := func(clOrdID string, sub model.PegBenchmark) *model.Order {
		o := limit("", "usera", "BRKA", clOrdID, "SEC1", model.SideBuy, 0, 10)
		o.Type = model.OrderTypePegged
		o.SubType = sub
		o.Container = model.ContainerPegged
		f.book.Add(o)
		return o
	}
	mid := mk("P1", model.PegToMid)
	bid := mk("P2", model.PegToBid)
	offer := mk("P3", model.PegToOffer)

	f.eng.RecomputePegs()

	require.NotNil(t, mid.PeggedPrice)
	assert.True(t, mid.PeggedPrice.Equal(d(101)))
	require.NotNil(t, bid.PeggedPrice)
	assert.True(t, bid.PeggedPrice.Equal(d(100.5)))
	require.NotNil(t, offer.PeggedPrice)
	assert.True(t, offer.PeggedPrice.Equal(d(101.5)))
}

func TestPegsNeedBothSidesOfBook(t *testing.T) {
	f := newFixture(EquityProfile())
	f.book.Add(limit("O1", "userb", "BRKB", "B1", "SEC1", model.SideBuy, 100, 10))

	peg := limit("", "usera", "BRKA", "P1", "SEC1", model.SideBuy, 0, 10)
	peg.Type = model.OrderTypePegged
	peg.SubType = model.PegToMid
	peg.Container = model.ContainerPegged
	f.book.Add(peg)

	f.eng.RecomputePegs()
	assert.Nil(t, peg.PeggedPrice)
}

func TestPeggedLimitHoldsBoundary(t *testing.T) {
	f := newFixture(EquityProfile())
	f.book.Add(limit("O1", "userb", "BRKB", "B1", "SEC1", model.SideBuy, 100, 10))
	f.book.Add(limit("O2", "userb", "BRKB", "S1", "SEC1", model.SideSell, 102, 10))

	// Buy pegged-limit to mid only prices while mid >= stop.
	o := limit("", "usera", "BRKA", "P1", "SEC1", model.SideBuy, 0, 10)
	o.Type = model.OrderTypePeggedLimit
	o.SubType = model.PegToMid
	o.Container = model.ContainerPegged
	o.StopPrice = d(105)
	f.book.Add(o)

	f.eng.RecomputePegs()
	assert.Nil(t, o.PeggedPrice)

	o.StopPrice = d(100)
	f.eng.RecomputePegs()
	require.NotNil(t, o.PeggedPrice)
	assert.True(t, o.PeggedPrice.Equal(d(101)))
}

func TestCrossOrderExecutesBothLegs(t *testing.T) {
	f := newFixture(DerivativesProfile())
	msg := &model.CrossOrderMessage{
		CrossID:             "X1",
		SecurityID:          "SEC1",
		Type:                model.OrderTypeLimit,
		LimitPrice:          d(55),
		Quantity:            d(30),
		BuyClientOrderID:    "CB",
		SellClientOrderID:   "CS",
		BuyClearingAccount:  "ACCTA",
		SellClearingAccount: "ACCTA",
	}
	f.eng.ProcessCrossOrder("usera", msg)

	out := f.oe.Outbox("usera")
	require.Len(t, out, 2)
	assert.Equal(t, model.ScenarioCrossAck, out[0].Scenario)
	assert.Equal(t, model.ScenarioCrossAck, out[1].Scenario)
	assert.Equal(t, model.SideBuy, out[0].Order.Order.Side)
	assert.Equal(t, model.SideSell, out[1].Order.Order.Side)
	assert.True(t, out[0].Order.Order.ExecutedPrice.Equal(d(55)))

	last, ok := f.book.LastPrice("SEC1")
	require.True(t, ok)
	assert.True(t, last.Equal(d(55)))
}

func TestCrossOrderUnknownClearingAccountRejected(t *testing.T) {
	f := newFixture(DerivativesProfile())
	msg := &model.CrossOrderMessage{
		CrossID:             "X1",
		SecurityID:          "SEC1",
		LimitPrice:          d(55),
		Quantity:            d(30),
		BuyClearingAccount:  "NOSUCH",
		SellClearingAccount: "ACCTA",
	}
	f.eng.ProcessCrossOrder("usera", msg)

	out := f.oe.Outbox("usera")
	require.Len(t, out, 1)
	assert.Equal(t, model.ScenarioAdminReject, out[0].Scenario)
	assert.Equal(t, "134200", out[0].AdminReject.RejectCode)
	assert.Equal(t, "Unknown User", out[0].AdminReject.RejectReason)
}

func TestCancelOnBookTrade(t *testing.T) {
	f := newFixture(EquityProfile())
	maker := limit("O1", "userb", "BRKB", "C1", "SEC1", model.SideSell, 100, 50)
	f.book.Add(maker)
	taker := limit("", "usera", "BRKA", "C2", "SEC1", model.SideBuy, 100, 50)
	f.book.Add(taker)
	f.eng.ProcessLimitOrder(taker)

	rec, ok := f.store.Get(taker.TradeID)
	require.True(t, ok)
	assert.Equal(t, tcr.StatusTraded, rec.Status)
	originalReportID := taker.TradeReportID

	f.eng.CancelOnBookTrade(&model.TradeCaptureReport{
		TradeID: taker.TradeID,
		Sides:   []model.PartySide{{Side: model.SideBuy}},
	})

	rec, _ = f.store.Get(taker.TradeID)
	assert.Equal(t, tcr.StatusCanceled, rec.Status)
	assert.Equal(t, model.StatusCancel, taker.Status)

	// Cancel acknowledgment on the order's own session.
	out := f.oe.Outbox("usera")
	require.NotEmpty(t, out)
	assert.Equal(t, model.ScenarioTradeCancelAck, out[len(out)-1].Scenario)

	// Confirmation broadcast carries the reference and the gross amount.
	var confirm *model.Outbound
	for _, m := range f.pt.Outbox("PTA") {
		if m.Scenario == model.ScenarioPTConfirmCancelTrade {
			confirm = m
		}
	}
	require.NotNil(t, confirm)
	assert.Equal(t, originalReportID, confirm.Order.RefReportID)
	assert.True(t, confirm.Order.GrossAmount.Equal(d(5000)))
	assert.NotEqual(t, originalReportID, confirm.Order.Order.TradeReportID)
}

func TestRejectOrderClosesWithCode(t *testing.T) {
	f := newFixture(DerivativesProfile())
	o := limit("O1", "usera", "BRKA", "C1", "SEC1", model.SideBuy, 10, 10)
	o.RejectCode = "009901"
	f.book.Add(o)
	f.eng.RejectOrder(o)

	assert.Equal(t, model.StatusClosed, o.Status)
	out := f.oe.Outbox("usera")
	require.Len(t, out, 1)
	assert.Equal(t, model.ScenarioReject, out[0].Scenario)
	assert.Equal(t, "009901", out[0].Order.Order.RejectCode)
}

func TestCancelAckDropCopiesFirst(t *testing.T) {
	f := newFixture(EquityProfile())
	o := limit("O1", "usera", "BRKA", "C1", "SEC1", model.SideBuy, 10, 10)
	f.book.Add(o)
	f.eng.AcknowledgeCancel(o)

	assert.Equal(t, model.StatusClosed, o.Status)
	dcOut := f.dc.Outbox("DCA")
	require.Len(t, dcOut, 1)
	assert.Equal(t, model.ScenarioDCCancelOrder, dcOut[0].Scenario)
	// The drop-copy snapshot predates the close.
	assert.NotEqual(t, model.StatusClosed, dcOut[0].Order.Order.Status)
}
