package gateway

import (
	"sync"

	"github.com/Aidin1998/venuesim/internal/market/directory"
	"github.com/Aidin1998/venuesim/internal/market/model"
)

// MemorySession is an in-process Session. Sent messages are retained per
// account so tests and the control surface can inspect outbound traffic.
type MemorySession struct {
	mu        sync.Mutex
	accounts  []directory.AccountRecord
	connected map[string]bool
	outbox    map[string][]*model.Outbound
	behaviors map[string]Behavior
}

// NewMemorySession creates a session over the provisioned accounts. All
// accounts start connected; tests flip individual ones with Disconnect.
func NewMemorySession(accounts []directory.AccountRecord) *MemorySession {
	s := &MemorySession{
		accounts:  accounts,
		connected: make(map[string]bool, len(accounts)),
		outbox:    make(map[string][]*model.Outbound),
		behaviors: make(map[string]Behavior),
	}
	for _, a := range accounts {
		s.connected[a.Username] = true
		if a.TargetID != "" {
			s.connected[a.TargetID] = true
		}
	}
	return s
}

// Send retains the message on the account's outbox.
func (s *MemorySession) Send(account string, msg *model.Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox[account] = append(s.outbox[account], msg)
}

// Accounts lists the provisioned accounts.
func (s *MemorySession) Accounts() []directory.AccountRecord {
	return s.accounts
}

// IsConnected reports the account's connection flag.
func (s *MemorySession) IsConnected(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected[account]
}

// ModifyBehavior records the behavior patch.
func (s *MemorySession) ModifyBehavior(account string, b Behavior) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviors[account] = b
	return nil
}

// Connect marks an account connected.
func (s *MemorySession) Connect(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected[account] = true
}

// Disconnect marks an account disconnected.
func (s *MemorySession) Disconnect(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected[account] = false
}

// Outbox returns a copy of the messages sent to an account.
func (s *MemorySession) Outbox(account string) []*model.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Outbound, len(s.outbox[account]))
	copy(out, s.outbox[account])
	return out
}

// Drain returns and clears an account's outbox.
func (s *MemorySession) Drain(account string) []*model.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox[account]
	delete(s.outbox, account)
	return out
}
