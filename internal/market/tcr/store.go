// =============================
// Trade Record Store
// =============================
// Every trade the venue ever reported, on-book and negotiated, lives here for
// the whole market uptime keyed by trade ID. Each record keeps the full list
// of post-trade messages already delivered for it so trade-capture replay
// requests can retransmit history verbatim.

package tcr

import (
	"sync"

	"github.com/Aidin1998/venuesim/internal/market/model"
)

// Negotiation and trade-record statuses.
const (
	StatusAckCreate              = "ACK_CREATE"
	StatusNotifiedCreate         = "NOTIFIED_CREATE"
	StatusAckAccept              = "ACK_ACCEPT"
	StatusTraded                 = "TRADED"
	StatusAckDecline             = "ACK_DECLINE"
	StatusDeclined               = "DECLINED"
	StatusAckCancel              = "ACK_CANCEL"
	StatusNotifiedCancel         = "NOTIFIED_CANCEL"
	StatusAckCancelAccepted      = "ACK_CANCEL_ACCEPTED"
	StatusCanceled               = "CANCELED"
	StatusAckCancelRejected      = "ACK_CANCEL_REJECTED"
	StatusNotifiedRejectCancel   = "NOTIFIED_REJECT_CANCEL"
	StatusAckWithdraw            = "ACK_WITHDRAW"
	StatusNotifiedWithdraw       = "NOTIFIED_WITHDRAW"
	StatusAckWithdrawCancel      = "ACK_WITHDRAW_CANCEL"
	StatusNotifiedCancelWithdraw = "NOTIFIED_CANCEL_WITHDRAW"
	StatusRejected               = "REJECTED"
)

// StoredMessage is one delivered post-trade message retained for replay.
type StoredMessage struct {
	Account string
	Out     *model.Outbound
}

// Record is the lifetime state of one trade.
type Record struct {
	TradeID string
	LinkID  string
	Kind    model.TradeReportKind
	Status  string

	// Post-trade session the record was first reported on, and its broker.
	Account string
	Broker  string

	// Last known report content. For on-book trades this is synthesized from
	// the execution; for negotiations it tracks the inbound report chain.
	Report model.TradeCaptureReport

	// Owning order for on-book trades, nil for negotiated trades.
	Order *model.Order

	Messages []StoredMessage
}

// Store holds all trade records of one market.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*Record
	records []*Record
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Record)}
}

// Put registers a new record. An existing record with the same trade ID is
// replaced in place, keeping its position in the replay ordering.
func (s *Store) Put(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[r.TradeID]; ok {
		*old = *r
		return
	}
	s.byID[r.TradeID] = r
	s.records = append(s.records, r)
}

// Get resolves a record by trade ID.
func (s *Store) Get(tradeID string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[tradeID]
	return r, ok
}

// Append retains one delivered message on the trade's replay history.
func (s *Store) Append(tradeID, account string, out *model.Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[tradeID]
	if !ok {
		return
	}
	r.Messages = append(r.Messages, StoredMessage{Account: account, Out: out})
}

// Update applies a mutation to a record under the store lock.
func (s *Store) Update(tradeID string, fn func(*Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[tradeID]
	if !ok {
		return false
	}
	fn(r)
	return true
}

// SetStatus updates a record's lifecycle status.
func (s *Store) SetStatus(tradeID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.byID[tradeID]; ok {
		r.Status = status
	}
}

// All returns every record in creation order.
func (s *Store) All() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}

// MessageCount is the total number of retained messages across all records.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		n += len(r.Messages)
	}
	return n
}
