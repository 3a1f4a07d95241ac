// =============================
// Market Manager
// =============================
// Assembles and owns the running markets. Each market gets its own book,
// engine, workflow, ruler goroutine and sweep scheduler; the manager starts
// and stops them as a unit. Shutdown stops the sweeps first so no new
// lifecycle work is produced while in-flight commands drain.

package market

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market/directory"
	"github.com/Aidin1998/venuesim/internal/market/engine"
	"github.com/Aidin1998/venuesim/internal/market/feed"
	"github.com/Aidin1998/venuesim/internal/market/gateway"
	"github.com/Aidin1998/venuesim/internal/market/instruments"
	"github.com/Aidin1998/venuesim/internal/market/orderbook"
	"github.com/Aidin1998/venuesim/internal/market/router"
	"github.com/Aidin1998/venuesim/internal/market/ruler"
	"github.com/Aidin1998/venuesim/internal/market/scheduler"
	"github.com/Aidin1998/venuesim/internal/market/tcr"
)

// shutdownGrace is how long a stopping market waits for in-flight commands.
const shutdownGrace = time.Second

// Options declares one market to assemble.
type Options struct {
	Name          string
	Type          string
	SweepInterval time.Duration
	Parties       []directory.PartyRecord
	Gateways      gateway.Gateways
	Instruments   *instruments.Table
	Logger        *zap.SugaredLogger
}

// Market is one running simulated venue.
type Market struct {
	Name    string
	Type    string
	started time.Time

	gw    gateway.Gateways
	ins   *instruments.Table
	book  *orderbook.Book
	dir   *directory.Directory
	rt    *router.Router
	store *tcr.Store
	eng   *engine.Engine
	wf    *tcr.Workflow
	rul   *ruler.Ruler
	sched *scheduler.Scheduler
	hub   *feed.Hub
	log   *zap.SugaredLogger
}

// NewMarket assembles a market from its options without starting it.
func NewMarket(opts Options) *Market {
	log := opts.Logger.With("market", opts.Name)
	book := orderbook.New()
	dir := directory.New(opts.Parties)
	rt := router.New(opts.Gateways, dir, log)
	store := tcr.NewStore()
	hub := feed.NewHub()
	profile := engine.ProfileFor(opts.Type)
	eng := engine.New(book, dir, rt, store, profile, hub, log)
	wf := tcr.NewWorkflow(store, rt, dir, hub, log)
	rul := ruler.New(book, eng, wf, rt, opts.Instruments, log)
	sched := scheduler.New(book, eng, opts.SweepInterval, rul.Submit, log)

	return &Market{
		Name:  opts.Name,
		Type:  profile.Name,
		gw:    opts.Gateways,
		ins:   opts.Instruments,
		book:  book,
		dir:   dir,
		rt:    rt,
		store: store,
		eng:   eng,
		wf:    wf,
		rul:   rul,
		sched: sched,
		hub:   hub,
		log:   log,
	}
}

// Start launches the market goroutine and the sweep ticker.
func (m *Market) Start() {
	m.rul.Start()
	m.sched.Start()
	m.started = time.Now().UTC()
	m.log.Infow("market started", "type", m.Type)
}

// Stop halts the sweeps, lets in-flight commands drain, then stops the
// market goroutine.
func (m *Market) Stop() {
	m.sched.Stop()
	time.Sleep(shutdownGrace)
	m.rul.Stop()
	m.log.Infow("market stopped")
}

// Ruler exposes the market's message dispatcher.
func (m *Market) Ruler() *ruler.Ruler { return m.rul }

// Book exposes the market's order book for the control surface.
func (m *Market) Book() *orderbook.Book { return m.book }

// Hub exposes the market's event feed.
func (m *Market) Hub() *feed.Hub { return m.hub }

// Trades exposes the market's trade record store.
func (m *Market) Trades() *tcr.Store { return m.store }

// StartedAt reports when the market was started.
func (m *Market) StartedAt() time.Time { return m.started }

// Instruments exposes the market's instrument reference table; nil when the
// market was started without one.
func (m *Market) Instruments() *instruments.Table { return m.ins }

// Gateway resolves one of the market's gateway endpoints by name.
func (m *Market) Gateway(name string) (gateway.Session, bool) {
	switch name {
	case "order-entry":
		return m.gw.OrderEntry, m.gw.OrderEntry != nil
	case "drop-copy":
		return m.gw.DropCopy, m.gw.DropCopy != nil
	case "post-trade":
		return m.gw.PostTrade, m.gw.PostTrade != nil
	}
	return nil, false
}

// Manager owns the set of running markets.
type Manager struct {
	mu      sync.RWMutex
	markets map[string]*Market
	log     *zap.SugaredLogger
}

// NewManager creates an empty manager.
func NewManager(log *zap.SugaredLogger) *Manager {
	return &Manager{markets: make(map[string]*Market), log: log}
}

// StartMarket assembles and starts a market; the name must be unused.
func (mgr *Manager) StartMarket(opts Options) (*Market, error) {
	if opts.Logger == nil {
		opts.Logger = mgr.log
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if _, exists := mgr.markets[opts.Name]; exists {
		return nil, fmt.Errorf("market %q already running", opts.Name)
	}
	m := NewMarket(opts)
	m.Start()
	mgr.markets[opts.Name] = m
	return m, nil
}

// StopMarket stops and removes a running market.
func (mgr *Manager) StopMarket(name string) error {
	mgr.mu.Lock()
	m, ok := mgr.markets[name]
	if ok {
		delete(mgr.markets, name)
	}
	mgr.mu.Unlock()
	if !ok {
		return fmt.Errorf("market %q not running", name)
	}
	m.Stop()
	return nil
}

// Get resolves a running market by name.
func (mgr *Manager) Get(name string) (*Market, bool) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	m, ok := mgr.markets[name]
	return m, ok
}

// List returns the running markets in no particular order.
func (mgr *Manager) List() []*Market {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	out := make([]*Market, 0, len(mgr.markets))
	for _, m := range mgr.markets {
		out = append(out, m)
	}
	return out
}

// StopAll stops every running market.
func (mgr *Manager) StopAll() {
	for _, m := range mgr.List() {
		mgr.log.Infow("stopping market", "name", m.Name)
		if err := mgr.StopMarket(m.Name); err != nil {
			mgr.log.Warnw("stop market", "name", m.Name, "err", err)
		}
	}
}
