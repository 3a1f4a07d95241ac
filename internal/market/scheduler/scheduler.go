// =============================
// Lifecycle Sweep Scheduler
// =============================
// Pending order actions are not executed on message arrival: they are flagged
// on the order and picked up by periodic sweeps, one second apart, in a fixed
// order (create, amend, cancel, timing, stop, trailing). Step runs one full
// pass synchronously so tests can drive the lifecycle deterministically.

package scheduler

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market/engine"
	"github.com/Aidin1998/venuesim/internal/market/model"
	"github.com/Aidin1998/venuesim/internal/market/orderbook"
	"github.com/Aidin1998/venuesim/pkg/metrics"
)

// DefaultInterval is the sweep period.
const DefaultInterval = time.Second

// Scheduler drives the lifecycle sweeps of one market.
type Scheduler struct {
	book     *orderbook.Book
	eng      *engine.Engine
	interval time.Duration

	// submit executes a sweep on the market's goroutine; when nil the sweep
	// runs on the scheduler's own ticker goroutine.
	submit func(func())

	log  *zap.SugaredLogger
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New builds a scheduler. interval <= 0 selects the default one-second period.
func New(book *orderbook.Book, eng *engine.Engine, interval time.Duration, submit func(func()), log *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		book:     book,
		eng:      eng,
		interval: interval,
		submit:   submit,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start launches the sweep ticker.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if s.submit != nil {
					s.submit(func() { s.Step(time.Now().UTC()) })
				} else {
					s.Step(time.Now().UTC())
				}
			}
		}
	}()
}

// Stop halts the ticker and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Step runs one full sweep pass at the given wall clock time.
func (s *Scheduler) Step(now time.Time) {
	start := time.Now()
	s.sweepCreate()
	s.sweepAmend()
	s.sweepCancel()
	s.sweepTiming(now)
	s.sweepStops()
	s.sweepTrailing()
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	metrics.OpenOrders.Set(float64(s.book.CountOpen()))
}

// sweepCreate validates and accepts pending new orders. Market-style orders
// go straight to matching without a create acknowledgment.
func (s *Scheduler) sweepCreate() {
	profile := s.eng.Profile()
	for _, o := range s.book.WithStatus(model.StatusCreate) {
		if profile.ValidateBounds {
			if o.Quantity.GreaterThan(profile.MaxOrderQuantity) {
				o.RejectCode = "009901"
				s.eng.RejectOrder(o)
				continue
			}
			if o.Type == model.OrderTypeLimit && o.LimitPrice.LessThan(profile.MinLimitPrice) {
				o.RejectCode = "009901"
				s.eng.RejectOrder(o)
				continue
			}
			if o.SecurityID == profile.HaltedSecurityID {
				s.eng.RejectAdmin(o.Account, "009001", "Unknown order book", "D", o.ClientOrderID)
				o.Status = model.StatusClosed
				continue
			}
		}

		if invalidTIF(o, profile) {
			o.RejectCode = "001500"
			s.eng.RejectOrder(o)
			continue
		}
		if profile.PeggedOrders &&
			(o.Type == model.OrderTypePegged || o.Type == model.OrderTypePeggedLimit) &&
			!o.MinimumQuantity.IsPositive() {
			o.RejectCode = "001109"
			s.eng.RejectOrder(o)
			continue
		}

		switch {
		case o.Type == model.OrderTypeMarket,
			profile.MarketToLimit && o.Type == model.OrderTypeMarketToLimit:
			s.eng.ProcessMarketOrder(o)
		default:
			s.eng.AcknowledgeCreate(o)
			if o.Type == model.OrderTypeLimit {
				s.eng.ProcessLimitOrder(o)
			}
		}
	}
}

// invalidTIF reports a session-bound time in force on an order type that
// cannot carry one.
func invalidTIF(o *model.Order, profile engine.Profile) bool {
	switch o.Type {
	case model.OrderTypeStop, model.OrderTypeStopLimit:
	case model.OrderTypeMarketToLimit, model.OrderTypeMarketIfTouch:
		if !profile.MarketToLimit {
			return false
		}
	default:
		return false
	}
	switch o.TimeInForce {
	case model.TIFOPG, model.TIFGFA, model.TIFGFX, model.TIFATC, model.TIFCPX:
		return true
	}
	return false
}

// sweepAmend confirms pending amends and re-matches amended limit orders.
func (s *Scheduler) sweepAmend() {
	profile := s.eng.Profile()
	for _, o := range s.book.WithStatus(model.StatusAmend) {
		if profile.ValidateBounds {
			if o.Quantity.GreaterThan(profile.MaxOrderQuantity) {
				o.RejectCode = "009901"
				s.eng.RejectOrder(o)
				continue
			}
			if o.LimitPrice.Equal(profile.SuspendedAmendPrice) {
				s.eng.RejectAdmin(o.Account, "009999", "System suspended", "G", o.ClientOrderID)
				o.Status = model.StatusClosed
				continue
			}
			if o.Type == model.OrderTypeLimit && o.LimitPrice.LessThan(profile.MinLimitPrice) {
				o.RejectCode = "009901"
				s.eng.RejectOrder(o)
				continue
			}
		}

		s.eng.AcknowledgeAmend(o)
		if o.Type == model.OrderTypeLimit ||
			(o.Type == model.OrderTypeStopLimit && o.Container == model.ContainerMain) {
			s.eng.ProcessLimitOrder(o)
		}
	}
}

// sweepCancel confirms pending cancels.
func (s *Scheduler) sweepCancel() {
	profile := s.eng.Profile()
	for _, o := range s.book.WithStatus(model.StatusCancel) {
		if profile.ValidateBounds && o.LimitPrice.Equal(profile.CancelRejectPrice) {
			o.RejectCode = "009014"
			s.eng.RejectOrder(o)
			continue
		}
		s.eng.AcknowledgeCancel(o)
	}
}

// sweepTiming expires GTT and GTD orders whose expiry falls in the current
// minute. The comparison is minute-granular on purpose: seconds within the
// expiry minute are ignored.
func (s *Scheduler) sweepTiming(now time.Time) {
	timed := s.book.Filter(func(o *model.Order) bool {
		if o.TimeInForce != model.TIFGTT && o.TimeInForce != model.TIFGTD {
			return false
		}
		return o.IsResting()
	})
	for _, o := range timed {
		expiry, err := o.ExpiresAt()
		if err != nil {
			s.log.Debugw("unparseable expire time", "order_id", o.OrderID, "expire_time", o.ExpireTime)
			continue
		}
		if int(expiry.Sub(now).Minutes()) == 0 {
			s.eng.ExpireOrder(o)
		}
	}
}

// sweepStops triggers plain stop, stop-limit and market-if-touched orders
// against the last traded price.
func (s *Scheduler) sweepStops() {
	for _, o := range s.pendingStops(false) {
		market, ok := s.book.LastPrice(o.SecurityID)
		if !ok || !market.IsPositive() {
			continue
		}
		if !stopTriggered(o, market) {
			continue
		}
		s.routeTriggered(o)
	}
}

// stopTriggered applies the side- and type-dependent trigger comparison: a
// buy stop fires when the market rises to the stop price, a buy
// market-if-touched when it falls to it; sells mirror.
func stopTriggered(o *model.Order, market decimal.Decimal) bool {
	mit := o.Type == model.OrderTypeMarketIfTouch
	if o.Side == model.SideBuy {
		if mit {
			return o.StopPrice.GreaterThanOrEqual(market)
		}
		return o.StopPrice.LessThanOrEqual(market)
	}
	if mit {
		return o.StopPrice.LessThanOrEqual(market)
	}
	return o.StopPrice.GreaterThanOrEqual(market)
}

// sweepTrailing ratchets trailing stops along the favorable market direction
// and triggers them when the market crosses the trailed stop price.
func (s *Scheduler) sweepTrailing() {
	if !s.eng.Profile().TrailingStops {
		return
	}
	for _, o := range s.pendingStops(true) {
		market, ok := s.book.LastPrice(o.SecurityID)
		if !ok || !market.IsPositive() {
			continue
		}

		if o.Side == model.SideBuy {
			if o.LastMarketPrice == nil || market.LessThan(*o.LastMarketPrice) {
				o.StopPrice = market.Add(o.TrailingOffset)
			}
			o.LastMarketPrice = priceRef(market)
			if o.StopPrice.LessThanOrEqual(market) {
				s.routeTriggered(o)
			}
			continue
		}

		if o.LastMarketPrice == nil || market.GreaterThan(*o.LastMarketPrice) {
			o.StopPrice = market.Sub(o.TrailingOffset)
		}
		o.LastMarketPrice = priceRef(market)
		if o.StopPrice.GreaterThanOrEqual(market) {
			s.routeTriggered(o)
		}
	}
}

// pendingStops lists untriggered stop-container orders, split by whether they
// trail the market.
func (s *Scheduler) pendingStops(trailing bool) []*model.Order {
	return s.book.Filter(func(o *model.Order) bool {
		if o.Container != model.ContainerStopPending {
			return false
		}
		if o.Status != model.StatusCreated && o.Status != model.StatusAmended {
			return false
		}
		if trailing {
			return o.TrailingOffset.IsPositive()
		}
		return !o.TrailingOffset.IsPositive()
	})
}

// routeTriggered reports the trigger and hands the order to matching by type.
func (s *Scheduler) routeTriggered(o *model.Order) {
	s.eng.TriggerOrder(o)
	switch o.Type {
	case model.OrderTypeStop, model.OrderTypeMarketIfTouch:
		s.eng.ProcessMarketOrder(o)
	case model.OrderTypeStopLimit:
		s.eng.ProcessLimitOrder(o)
	}
}

func priceRef(p decimal.Decimal) *decimal.Decimal {
	v := p
	return &v
}
