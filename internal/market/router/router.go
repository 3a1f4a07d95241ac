// =============================
// Notification Router
// =============================
// Resolves which drop-copy and post-trade sessions receive a copy of an event
// and dispatches through the abstract session send. Pure fan-out: a missing
// broker mapping produces no output, and delivery failures stay inside the
// transport — nothing here retries or blocks.

package router

import (
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market/directory"
	"github.com/Aidin1998/venuesim/internal/market/gateway"
	"github.com/Aidin1998/venuesim/internal/market/model"
)

// SessionRef is one resolved (session, account) delivery target.
type SessionRef struct {
	Session gateway.Session
	Account string
}

// Router fans events out to subscribed gateway sessions.
type Router struct {
	gw  gateway.Gateways
	dir *directory.Directory
	log *zap.SugaredLogger
}

// New creates a router over the market's gateways and party directory.
func New(gw gateway.Gateways, dir *directory.Directory, log *zap.SugaredLogger) *Router {
	return &Router{gw: gw, dir: dir, log: log}
}

// SendOrderEntry dispatches an acknowledgment to the order's own session.
func (r *Router) SendOrderEntry(account string, out *model.Outbound) {
	if r.gw.OrderEntry == nil {
		return
	}
	r.gw.OrderEntry.Send(account, out)
}

// DropCopy sends an order notice to every connected drop-copy account of the
// order's broker, carrying the broker's party block. An unresolvable broker
// is logged and skipped.
func (r *Router) DropCopy(scenario model.Scenario, o *model.Order) {
	if r.gw.DropCopy == nil {
		return
	}
	parties, ok := r.dir.OnBookParties(o.Broker)
	if !ok {
		r.log.Debugw("drop-copy skipped, unknown broker", "broker", o.Broker, "order_id", o.OrderID)
		return
	}
	out := &model.Outbound{
		Scenario: scenario,
		Order:    &model.OrderReport{Order: *o, Parties: parties},
	}
	for _, acct := range r.gw.DropCopy.Accounts() {
		if acct.BrokerID != o.Broker {
			continue
		}
		if !r.gw.DropCopy.IsConnected(acct.TargetID) {
			continue
		}
		r.gw.DropCopy.Send(acct.TargetID, out)
	}
}

// SendDropCopyTo dispatches one message to a named drop-copy account, used
// when replying on the session a request arrived on.
func (r *Router) SendDropCopyTo(account string, out *model.Outbound) {
	if r.gw.DropCopy == nil {
		return
	}
	r.gw.DropCopy.Send(account, out)
}

// Parties returns the executing party block of a broker.
func (r *Router) Parties(broker string) ([]model.Party, bool) {
	return r.dir.OnBookParties(broker)
}

// PostTradeSessions resolves every connected post-trade session of a broker.
func (r *Router) PostTradeSessions(broker string) []SessionRef {
	if r.gw.PostTrade == nil {
		return nil
	}
	var refs []SessionRef
	for _, acct := range r.gw.PostTrade.Accounts() {
		if acct.BrokerID != broker {
			continue
		}
		if !r.gw.PostTrade.IsConnected(acct.TargetID) {
			continue
		}
		refs = append(refs, SessionRef{Session: r.gw.PostTrade, Account: acct.TargetID})
	}
	return refs
}

// SendPostTrade dispatches one message to each resolved target in order.
func (r *Router) SendPostTrade(refs []SessionRef, out *model.Outbound) {
	for _, ref := range refs {
		ref.Session.Send(ref.Account, out)
	}
}

// SendPostTradeTo dispatches one message to a named post-trade account, most
// often the session a trade-capture report arrived on.
func (r *Router) SendPostTradeTo(account string, out *model.Outbound) {
	if r.gw.PostTrade == nil {
		return
	}
	r.gw.PostTrade.Send(account, out)
}

// BrokerFor resolves an order-entry account to its broker.
func (r *Router) BrokerFor(account string) (string, bool) {
	return r.gw.BrokerFor(account)
}

// PublishNews broadcasts a news message over the order-entry gateway,
// restricted by the pipe-delimited firm and user lists when present.
func (r *Router) PublishNews(news *model.News) {
	if r.gw.OrderEntry == nil {
		return
	}
	firms := splitList(news.FirmList)
	users := splitList(news.UserList)

	out := &model.Outbound{Scenario: model.ScenarioNews, News: news}
	for _, acct := range r.gw.OrderEntry.Accounts() {
		if len(firms) > 0 {
			if !contains(firms, acct.BrokerID) {
				continue
			}
			if len(users) > 0 && !contains(users, acct.Username) {
				continue
			}
		}
		r.gw.OrderEntry.Send(acct.Username, out)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '|' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
