// =============================
// Venuesim Order Book
// =============================
// The book owns every order ever created during market uptime. Orders are
// never deleted, only status-flagged, so mass-status and mass-cancel queries
// can always see the full history. Insertion order doubles as the natural
// matching priority for same-priced candidates.
//
// A B-tree index over resting limit prices serves best-bid/best-offer
// derivation for pegged-order repricing; the index is advisory and entries
// are re-validated against live order state when read.

package orderbook

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/Aidin1998/venuesim/internal/market/model"
)

type priceEntry struct {
	security string
	side     model.Side
	price    decimal.Decimal
	seq      uint64
	order    *model.Order
}

func lessEntry(a, b priceEntry) bool {
	if a.security != b.security {
		return a.security < b.security
	}
	if a.side != b.side {
		return a.side < b.side
	}
	if !a.price.Equal(b.price) {
		return a.price.LessThan(b.price)
	}
	return a.seq < b.seq
}

// Book is the order registry plus the last-traded-price table for one market.
// All mutation happens on the market's single engine timeline; the mutex only
// guards read access from the control surface.
type Book struct {
	mu        sync.RWMutex
	orders    []*model.Order
	byOrderID map[string]*model.Order
	lastPrice map[string]decimal.Decimal
	prices    *btree.BTreeG[priceEntry]
	seq       uint64
	entrySeq  map[*model.Order]priceEntry
}

// New creates an empty book.
func New() *Book {
	return &Book{
		byOrderID: make(map[string]*model.Order),
		lastPrice: make(map[string]decimal.Decimal),
		prices:    btree.NewBTreeG(lessEntry),
		entrySeq:  make(map[*model.Order]priceEntry),
	}
}

// Add appends a new order in arrival position and indexes its limit price.
func (b *Book) Add(o *model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.orders = append(b.orders, o)
	if o.OrderID != "" {
		b.byOrderID[o.OrderID] = o
	}
	if o.LimitPrice.IsPositive() {
		e := priceEntry{security: o.SecurityID, side: o.Side, price: o.LimitPrice, seq: b.seq, order: o}
		b.prices.Set(e)
		b.entrySeq[o] = e
	}
}

// Register records a generated order ID once the order is first accepted.
func (b *Book) Register(o *model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o.OrderID != "" {
		b.byOrderID[o.OrderID] = o
	}
}

// Reindex refreshes the price index entry after an amend changed the limit price.
func (b *Book) Reindex(o *model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entrySeq[o]; ok {
		b.prices.Delete(e)
		delete(b.entrySeq, o)
	}
	if o.LimitPrice.IsPositive() {
		b.seq++
		e := priceEntry{security: o.SecurityID, side: o.Side, price: o.LimitPrice, seq: b.seq, order: o}
		b.prices.Set(e)
		b.entrySeq[o] = e
	}
}

// ByOrderID resolves an order by its generated ID.
func (b *Book) ByOrderID(id string) (*model.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byOrderID[id]
	return o, ok
}

// Filter returns all orders satisfying the predicate, in book (arrival) order.
func (b *Book) Filter(pred func(*model.Order) bool) []*model.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*model.Order
	for _, o := range b.orders {
		if pred(o) {
			out = append(out, o)
		}
	}
	return out
}

// WithStatus returns all orders currently flagged with the given status.
func (b *Book) WithStatus(status string) []*model.Order {
	return b.Filter(func(o *model.Order) bool { return o.Status == status })
}

// CountOpen returns the number of non-closed orders.
func (b *Book) CountOpen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, o := range b.orders {
		if o.IsOpen() {
			n++
		}
	}
	return n
}

// LastPrice returns the last traded price of a security.
func (b *Book) LastPrice(security string) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.lastPrice[security]
	return p, ok
}

// SetLastPrice records a fill price; it is the single point of truth for
// stop, trailing and peg computation.
func (b *Book) SetLastPrice(security string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPrice[security] = price
}

// bestQualifies mirrors the candidate rules of peg derivation: a displayed or
// hidden resting order with a positive stated limit price.
func bestQualifies(o *model.Order) bool {
	if o.Container != model.ContainerMain && o.Container != model.ContainerHidden {
		return false
	}
	return o.LimitPrice.IsPositive() && o.IsResting()
}

// BestBid returns the highest qualifying resting buy price for a security.
func (b *Book) BestBid(security string) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var best decimal.Decimal
	found := false
	// Buy entries sort before sell entries, so descending from the sell
	// boundary walks bids from the highest price down.
	pivot := priceEntry{security: security, side: model.SideSell}
	b.prices.Descend(pivot, func(e priceEntry) bool {
		if e.security != security || e.side != model.SideBuy {
			return false
		}
		if !e.order.LimitPrice.Equal(e.price) || !bestQualifies(e.order) {
			return true // stale or non-qualifying entry, keep walking
		}
		best = e.price
		found = true
		return false
	})
	return best, found
}

// BestOffer returns the lowest qualifying resting sell price for a security.
func (b *Book) BestOffer(security string) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var best decimal.Decimal
	found := false
	pivot := priceEntry{security: security, side: model.SideSell}
	b.prices.Ascend(pivot, func(e priceEntry) bool {
		if e.security != security || e.side != model.SideSell {
			return false
		}
		if !e.order.LimitPrice.Equal(e.price) || !bestQualifies(e.order) {
			return true
		}
		best = e.price
		found = true
		return false
	})
	return best, found
}
