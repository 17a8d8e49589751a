package orchestrator

import (
	"sync"

	"github.com/dgnsrekt/pnl_agent/internal/extract"
	"github.com/dgnsrekt/pnl_agent/internal/ledger"
)

// TransferSet is the receive and send history gathered once per session.
type TransferSet struct {
	Receive extract.TransferResult `json:"receive"`
	Send    extract.TransferResult `json:"send"`
}

// Events is receives followed by sends.
func (t TransferSet) Events() []ledger.Event {
	out := make([]ledger.Event, 0, len(t.Receive.Events)+len(t.Send.Events))
	out = append(out, t.Receive.Events...)
	return append(out, t.Send.Events...)
}

// TransferMemo holds the transfer history for the lifetime of a session.
// Transfers are read on the first successful cycle only; Reset forces a
// fresh read on the next one.
type TransferMemo struct {
	mu  sync.Mutex
	set *TransferSet
}

func (m *TransferMemo) Seed(set TransferSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = &set
}

func (m *TransferMemo) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set != nil
}

func (m *TransferMemo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = nil
}

func (m *TransferMemo) Get() (TransferSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set == nil {
		return TransferSet{}, false
	}
	return *m.set, true
}
