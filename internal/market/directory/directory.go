// =============================
// Party / Account Directory
// =============================
// Static lookup tables mapping brokers to trading-party identity and gateway
// accounts to brokers. Every order and trade is attributed to a broker through
// this directory so the notification router can resolve fan-out targets.

package directory

import (
	"github.com/Aidin1998/venuesim/internal/market/model"
)

// PartyRecord is the trading-party identity of one broker.
type PartyRecord struct {
	Trader      string `json:"trader" mapstructure:"trader" validate:"required"`
	TraderGroup string `json:"tradergroup" mapstructure:"tradergroup"`
	Firm        string `json:"firm" mapstructure:"firm"`
	Account     string `json:"account" mapstructure:"account"`
}

// AccountRecord binds one gateway account to a broker. Username is the
// order-entry login; TargetID is the drop-copy/post-trade comp id.
type AccountRecord struct {
	Username string `json:"username" mapstructure:"username" validate:"required"`
	TargetID string `json:"targetID" mapstructure:"targetID"`
	BrokerID string `json:"brokerid" mapstructure:"brokerid" validate:"required"`
}

// Directory is the immutable party/account lookup for one market instance.
type Directory struct {
	parties  []PartyRecord
	byBroker map[string][]PartyRecord
}

// New builds a directory from the configured party list.
func New(parties []PartyRecord) *Directory {
	d := &Directory{
		parties:  parties,
		byBroker: make(map[string][]PartyRecord, len(parties)),
	}
	for _, p := range parties {
		d.byBroker[p.Trader] = append(d.byBroker[p.Trader], p)
	}
	return d
}

// Party returns the first party record registered for a broker.
func (d *Directory) Party(broker string) (PartyRecord, bool) {
	ps := d.byBroker[broker]
	if len(ps) == 0 {
		return PartyRecord{}, false
	}
	return ps[0], true
}

// PartyForAccount resolves a (broker, clearing account) pair; used to validate
// cross-order legs.
func (d *Directory) PartyForAccount(broker, account string) (PartyRecord, bool) {
	for _, p := range d.byBroker[broker] {
		if p.Account == account {
			return p, true
		}
	}
	return PartyRecord{}, false
}

// OnBookParties builds the standard executing-side party block for a broker:
// trader, trader group and firm under the executing roles.
func (d *Directory) OnBookParties(broker string) ([]model.Party, bool) {
	p, ok := d.Party(broker)
	if !ok {
		return nil, false
	}
	return []model.Party{
		{PartyID: p.Trader, Source: "D", Role: model.RoleExecutingTrader},
		{PartyID: p.TraderGroup, Source: "D", Role: model.RoleExecutingGroup},
		{PartyID: p.Firm, Source: "D", Role: model.RoleExecutingFirm},
	}, true
}
