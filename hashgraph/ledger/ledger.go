// Package ledger folds the hashgraph's total order into account balances
// and published names. Dispatch is table-driven, one Handler per
// tx.Kind, registered at package init — the same self-registration idiom
// the teacher node's vm/registry.go used for its asset/economy/market/
// session transaction modules, so adding a transaction kind never touches
// the fold loop in Apply.
package ledger

import (
	"fmt"
	"sync"

	"github.com/tolchain/hashgraph/tx"
)

// Handler applies one transaction of its registered kind against l.
type Handler func(l *Ledger, author string, t tx.Transaction) error

var (
	registryMu sync.RWMutex
	registry   = make(map[tx.Kind]Handler)
)

// Register associates kind with h. Panics on duplicate registration,
// matching vm.Register's contract in the teacher node.
func Register(kind tx.Kind, h Handler) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("ledger: handler already registered for kind %q", kind))
	}
	registry[kind] = h
}

// Ledger is the deterministic per-member balance/name projection described
// in spec §4.2.4. It holds no stake table — stakes live in member.Registry
// and never change, so the ledger only needs to track what consensus
// actually mutates.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]uint64
	names    map[string]string
}

// New creates an empty Ledger. All balances start at zero; there is no
// implicit minting (spec Testable Property 5).
func New() *Ledger {
	return &Ledger{
		balances: make(map[string]uint64),
		names:    make(map[string]string),
	}
}

// Balance returns the current balance of addr (0 if never credited).
func (l *Ledger) Balance(addr string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

// Name returns the current published name of addr, or "" if none.
func (l *Ledger) Name(addr string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.names[addr]
}

// TotalBalance sums every account's balance; used by the conservation
// property test (spec Testable Property 5).
func (l *Ledger) TotalBalance() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total uint64
	for _, b := range l.balances {
		total += b
	}
	return total
}

// Credit adds amount to addr's balance; used only by genesis
// construction, never by transaction handlers (which must go through
// Apply so every balance change is consensus-ordered).
func (l *Ledger) Credit(addr string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] += amount
}

// Apply dispatches t (authored by author, the event's signer) to its
// registered Handler. An unknown kind is a programming error (payload
// validation at event.Create already rejects unknown kinds) and returns
// an error rather than panicking so a single bad historical event cannot
// crash the fold.
func (l *Ledger) Apply(author string, t tx.Transaction) error {
	registryMu.RLock()
	h, ok := registry[t.Kind]
	registryMu.RUnlock()
	if !ok {
		return fmt.Errorf("ledger: no handler registered for kind %q", t.Kind)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return h(l, author, t)
}

// transferBalance is the shared debit/credit primitive used by transfer.go.
// Insufficient balance or a non-positive amount is not an error: the spec
// mandates the transaction be silently dropped so consensus stays
// deterministic without a rejection channel (spec §7).
func (l *Ledger) transferBalance(sender, receiver string, amount uint64) {
	if amount == 0 || l.balances[sender] < amount {
		return
	}
	l.balances[sender] -= amount
	l.balances[receiver] += amount
}

// setName is the shared primitive used by publish_name.go.
func (l *Ledger) setName(member, name string) {
	l.names[member] = name
}
