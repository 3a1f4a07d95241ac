package scheduler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market/directory"
	"github.com/Aidin1998/venuesim/internal/market/engine"
	"github.com/Aidin1998/venuesim/internal/market/gateway"
	"github.com/Aidin1998/venuesim/internal/market/model"
	"github.com/Aidin1998/venuesim/internal/market/orderbook"
	"github.com/Aidin1998/venuesim/internal/market/router"
	"github.com/Aidin1998/venuesim/internal/market/tcr"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

type fixture struct {
	sched *Scheduler
	book  *orderbook.Book
	oe    *gateway.MemorySession
}

func newFixture(profile engine.Profile) *fixture {
	book := orderbook.New()
	dir := directory.New([]directory.PartyRecord{
		{Trader: "BRKA", TraderGroup: "GA", Firm: "FA", Account: "ACCTA"},
	})
	oe := gateway.NewMemorySession([]directory.AccountRecord{
		{Username: "usera", BrokerID: "BRKA"},
	})
	log := zap.NewNop().Sugar()
	rt := router.New(gateway.Gateways{OrderEntry: oe}, dir, log)
	eng := engine.New(book, dir, rt, tcr.NewStore(), profile, nil, log)
	return &fixture{
		sched: New(book, eng, 0, nil, log),
		book:  book,
		oe:    oe,
	}
}

func pending(clOrdID, sec string, side model.Side, typ model.OrderType, price, qty float64) *model.Order {
	container := model.ContainerMain
	switch typ {
	case model.OrderTypeStop, model.OrderTypeStopLimit, model.OrderTypeMarketIfTouch:
		container = model.ContainerStopPending
	case model.OrderTypePegged, model.OrderTypePeggedLimit:
		container = model.ContainerPegged
	}
	return &model.Order{
		ClientOrderID:  clOrdID,
		SecurityID:     sec,
		Account:        "usera",
		Broker:         "BRKA",
		Side:           side,
		Type:           typ,
		Container:      container,
		Status:         model.StatusCreate,
		Quantity:       d(qty),
		LeavesQuantity: d(qty),
		LimitPrice:     d(price),
	}
}

func lastScenario(t *testing.T, oe *gateway.MemorySession, account string) *model.Outbound {
	t.Helper()
	out := oe.Outbox(account)
	require.NotEmpty(t, out)
	return out[len(out)-1]
}

func TestCreateSweepAcceptsLimitOrder(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeLimit, 100, 10)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusCreated, o.Status)
	assert.NotEmpty(t, o.OrderID)
	assert.Equal(t, model.ScenarioNewOrderAck, lastScenario(t, f.oe, "usera").Scenario)
}

func TestCreateSweepRejectsOversizedOrder(t *testing.T) {
	f := newFixture(engine.DerivativesProfile())
	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeLimit, 100, 1_000_000_000)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusClosed, o.Status)
	out := lastScenario(t, f.oe, "usera")
	assert.Equal(t, model.ScenarioReject, out.Scenario)
	assert.Equal(t, "009901", out.Order.Order.RejectCode)
}

func TestCreateSweepRejectsSubMinimumLimitPrice(t *testing.T) {
	f := newFixture(engine.DerivativesProfile())
	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeLimit, 0.05, 10)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusClosed, o.Status)
	assert.Equal(t, "009901", o.RejectCode)
}

func TestCreateSweepRejectsHaltedSecurity(t *testing.T) {
	f := newFixture(engine.DerivativesProfile())
	o := pending("C1", "1003104", model.SideBuy, model.OrderTypeLimit, 100, 10)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusClosed, o.Status)
	out := lastScenario(t, f.oe, "usera")
	assert.Equal(t, model.ScenarioAdminReject, out.Scenario)
	assert.Equal(t, "009001", out.AdminReject.RejectCode)
	assert.Equal(t, "Unknown order book", out.AdminReject.RejectReason)
}

func TestCreateSweepRejectsSessionTIFOnStops(t *testing.T) {
	f := newFixture(engine.DerivativesProfile())
	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeStop, 100, 10)
	o.StopPrice = d(105)
	o.TimeInForce = model.TIFOPG
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusClosed, o.Status)
	assert.Equal(t, "001500", o.RejectCode)
}

func TestCreateSweepRejectsPeggedWithoutMinimumQuantity(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypePegged, 0, 10)
	o.SubType = model.PegToMid
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusClosed, o.Status)
	assert.Equal(t, "001109", o.RejectCode)
}

func TestCreateSweepAcceptsPeggedWithMinimumQuantity(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypePegged, 0, 10)
	o.SubType = model.PegToMid
	o.MinimumQuantity = d(1)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusCreated, o.Status)
}

func TestAmendSweepSuspendedPrice(t *testing.T) {
	f := newFixture(engine.DerivativesProfile())
	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeLimit, 0.9999, 10)
	o.Status = model.StatusAmend
	o.OrderID = "O1"
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusClosed, o.Status)
	out := lastScenario(t, f.oe, "usera")
	assert.Equal(t, model.ScenarioAdminReject, out.Scenario)
	assert.Equal(t, "009999", out.AdminReject.RejectCode)
	assert.Equal(t, "System suspended", out.AdminReject.RejectReason)
}

func TestAmendSweepConfirmsAndRematches(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	resting := pending("C1", "SEC1", model.SideSell, model.OrderTypeLimit, 100, 10)
	resting.Status = model.StatusCreated
	resting.OrderID = "O1"
	f.book.Add(resting)

	amended := pending("C2", "SEC1", model.SideBuy, model.OrderTypeLimit, 100, 10)
	amended.Status = model.StatusAmend
	amended.OrderID = "O2"
	f.book.Add(amended)

	f.sched.Step(time.Now().UTC())

	// The amend confirmation is followed by the re-match fill.
	assert.Equal(t, model.StatusTraded, amended.Status)
	assert.True(t, amended.LeavesQuantity.IsZero())
}

func TestCancelSweepConfirms(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeLimit, 100, 10)
	o.Status = model.StatusCancel
	o.OrderID = "O1"
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusClosed, o.Status)
	assert.Equal(t, model.ScenarioCancelAck, lastScenario(t, f.oe, "usera").Scenario)
}

func TestCancelSweepScriptedReject(t *testing.T) {
	f := newFixture(engine.DerivativesProfile())
	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeLimit, 9.014, 10)
	o.Status = model.StatusCancel
	o.OrderID = "O1"
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusClosed, o.Status)
	assert.Equal(t, "009014", o.RejectCode)
	assert.Equal(t, model.ScenarioReject, lastScenario(t, f.oe, "usera").Scenario)
}

func TestTimingSweepExpiresInExpiryMinute(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	now := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)

	due := pending("C1", "SEC1", model.SideBuy, model.OrderTypeLimit, 100, 10)
	due.Status = model.StatusCreated
	due.OrderID = "O1"
	due.TimeInForce = model.TIFGTT
	due.ExpireTime = now.Add(30 * time.Second).Format(model.ExpireTimeLayout)
	f.book.Add(due)

	later := pending("C2", "SEC1", model.SideBuy, model.OrderTypeLimit, 100, 10)
	later.Status = model.StatusCreated
	later.OrderID = "O2"
	later.TimeInForce = model.TIFGTD
	later.ExpireTime = now.Add(10 * time.Minute).Format(model.ExpireTimeLayout)
	f.book.Add(later)

	f.sched.Step(now)

	assert.Equal(t, model.StatusClosed, due.Status)
	assert.Equal(t, model.StatusCreated, later.Status)
}

func TestBuyStopTriggersWhenMarketReachesStop(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	f.book.SetLastPrice("SEC1", d(105))

	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeStop, 0, 10)
	o.Status = model.StatusCreated
	o.OrderID = "O1"
	o.StopPrice = d(104)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	// Triggered, then matched as a market order against an empty book.
	assert.Equal(t, model.StatusClosed, o.Status)
	out := f.oe.Outbox("usera")
	require.Len(t, out, 2)
	assert.Equal(t, model.ScenarioTrigger, out[0].Scenario)
	assert.Equal(t, model.ScenarioExpire, out[1].Scenario)
}

func TestBuyStopHoldsBelowStopPrice(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	f.book.SetLastPrice("SEC1", d(100))

	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeStop, 0, 10)
	o.Status = model.StatusCreated
	o.OrderID = "O1"
	o.StopPrice = d(104)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())
	assert.Equal(t, model.StatusCreated, o.Status)
}

func TestMarketIfTouchedTriggersOnFall(t *testing.T) {
	f := newFixture(engine.DerivativesProfile())
	f.book.SetLastPrice("SEC1", d(95))

	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeMarketIfTouch, 0, 10)
	o.Status = model.StatusCreated
	o.OrderID = "O1"
	o.StopPrice = d(96)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusClosed, o.Status)
	assert.Equal(t, model.ScenarioTrigger, f.oe.Outbox("usera")[0].Scenario)
}

func TestStopLimitRoutesToLimitMatching(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	f.book.SetLastPrice("SEC1", d(105))

	resting := pending("C0", "SEC1", model.SideSell, model.OrderTypeLimit, 104, 10)
	resting.Status = model.StatusCreated
	resting.OrderID = "O0"
	f.book.Add(resting)

	o := pending("C1", "SEC1", model.SideBuy, model.OrderTypeStopLimit, 104, 10)
	o.Status = model.StatusCreated
	o.OrderID = "O1"
	o.StopPrice = d(104)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())

	assert.Equal(t, model.StatusTraded, o.Status)
	assert.True(t, o.LeavesQuantity.IsZero())
}

func TestTrailingStopRatchet(t *testing.T) {
	f := newFixture(engine.DerivativesProfile())
	f.book.SetLastPrice("SEC1", d(100))

	o := pending("C1", "SEC1", model.SideSell, model.OrderTypeStop, 0, 10)
	o.Status = model.StatusCreated
	o.OrderID = "O1"
	o.TrailingOffset = d(2)
	f.book.Add(o)

	// First pass seeds the stop from the current market.
	f.sched.Step(time.Now().UTC())
	assert.True(t, o.StopPrice.Equal(d(98)))
	assert.Equal(t, model.StatusCreated, o.Status)

	// Market rises: the stop trails up.
	f.book.SetLastPrice("SEC1", d(105))
	f.sched.Step(time.Now().UTC())
	assert.True(t, o.StopPrice.Equal(d(103)))
	assert.Equal(t, model.StatusCreated, o.Status)

	// Market falls through the trailed stop: triggered.
	f.book.SetLastPrice("SEC1", d(102))
	f.sched.Step(time.Now().UTC())
	assert.True(t, o.StopPrice.Equal(d(103)))
	assert.Equal(t, model.StatusClosed, o.Status)
	assert.Equal(t, model.ScenarioTrigger, f.oe.Outbox("usera")[0].Scenario)
}

func TestTrailingDisabledWithoutProfileSupport(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	f.book.SetLastPrice("SEC1", d(100))

	o := pending("C1", "SEC1", model.SideSell, model.OrderTypeStop, 0, 10)
	o.Status = model.StatusCreated
	o.OrderID = "O1"
	o.TrailingOffset = d(2)
	f.book.Add(o)

	f.sched.Step(time.Now().UTC())
	assert.True(t, o.StopPrice.IsZero())
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(engine.EquityProfile())
	s := New(f.book, f.sched.eng, 10*time.Millisecond, nil, zap.NewNop().Sugar())
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop() // idempotent
}
