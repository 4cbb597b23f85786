// Package hashgraph implements the gossip-about-gossip DAG, its virtual-voting
// fame decision, and the round-received/consensus-time total order described
// in spec §4.2. It generalizes the teacher node's core.Blockchain — a linear
// chain with height/prevHash linkage checks under a single-writer RWMutex —
// from a chain to a DAG with per-author fork detection, keeping the same
// validate-then-commit discipline and sentinel-error style.
package hashgraph

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/events"
	"github.com/tolchain/hashgraph/hashgraph/ledger"
	"github.com/tolchain/hashgraph/member"
	"github.com/tolchain/hashgraph/tx"
)

var (
	ErrForkDetected  = errors.New("hashgraph: fork detected")
	ErrHeightMismatch = errors.New("hashgraph: height mismatch")
	ErrUnknownAuthor = errors.New("hashgraph: unknown author")
	ErrUnknownEvent  = errors.New("hashgraph: unknown event")
)

// Config carries the tunables the engine needs from config.Config, kept as
// a small struct here so this package never imports the top-level config
// package (which in turn wires storage, RPC, and gossip settings this
// package has no business knowing about).
type Config struct {
	CoinRoundModulus uint64 // rounds between coin-round fallbacks in fame decision; spec default 10
}

// Hashgraph is the single-writer consensus engine: one member's local view
// of the shared DAG, its derived round/fame/order state, and the ledger
// projection folded from the agreed order. All mutating and most reading
// entry points take mu, mirroring core.Blockchain's single RWMutex.
type Hashgraph struct {
	mu sync.RWMutex

	registry *member.Registry
	emitter  *events.Emitter
	ledgr    *ledger.Ledger

	coinRoundModulus uint64
	genesisAlloc     map[string]uint64

	events         map[string]*event.Core
	states         map[string]*event.State
	insertionOrder []string

	authorEventsByHeight map[string]map[uint64]string // author -> height -> event id, for fork detection
	witnesses            map[uint64]map[string]string // round -> author -> witness event id
	decidedRounds         map[uint64]bool
	maxRound              uint64

	unordered []string // event ids awaiting round_received
	ordered   []string // event ids with round_received assigned, kept sorted

	ancestorCache map[string]map[string]bool
}

// New creates an empty Hashgraph for the given member registry. emitter may
// be nil, in which case state-change notifications are simply dropped.
func New(registry *member.Registry, emitter *events.Emitter, cfg Config) *Hashgraph {
	if cfg.CoinRoundModulus == 0 {
		cfg.CoinRoundModulus = 10
	}
	return &Hashgraph{
		registry:             registry,
		emitter:              emitter,
		ledgr:                ledger.New(),
		coinRoundModulus:     cfg.CoinRoundModulus,
		genesisAlloc:         make(map[string]uint64),
		events:               make(map[string]*event.Core),
		states:               make(map[string]*event.State),
		authorEventsByHeight: make(map[string]map[uint64]string),
		witnesses:            make(map[uint64]map[string]string),
		decidedRounds:        make(map[uint64]bool),
		ancestorCache:        make(map[string]map[string]bool),
	}
}

// Event implements event.Lookup so event.Create can validate parents
// against what this engine already knows.
func (g *Hashgraph) Event(id string) (*event.Core, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.events[id]
	return e, ok
}

// CreditGenesis seeds addr's opening balance outside of normal consensus
// ordering, mirroring config/genesis.go's role in the teacher node. It must
// only be called before any events are inserted.
func (g *Hashgraph) CreditGenesis(addr string, amount uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.genesisAlloc[addr] += amount
	g.ledgr.Credit(addr, amount)
}

// Ledger returns the current ledger projection. Callers must not mutate it
// directly; all writes flow through consensus order.
func (g *Hashgraph) Ledger() *ledger.Ledger {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ledgr
}

// NewEvent builds and signs a new event authored by the local identity,
// using its current recorded head as self-parent and otherParentID as
// other-parent (empty for a unilateral event with no sync partner). It does
// not insert the event; callers pass the result to Insert themselves so
// locally- and remotely-produced events go through one code path.
func (g *Hashgraph) NewEvent(payload []tx.Transaction, otherParentID string) (*event.Core, error) {
	local, err := g.registry.Local()
	if err != nil {
		return nil, err
	}
	return event.Create(local.Head, otherParentID, payload, time.Now(), local.SignKey, g)
}

// parentsKnown reports whether e's parents (if any) are already committed.
func (g *Hashgraph) parentsKnown(e *event.Core) bool {
	if e.IsGenesis() {
		return true
	}
	if _, ok := g.events[e.SelfParent]; !ok {
		return false
	}
	if e.OtherParent != "" {
		if _, ok := g.events[e.OtherParent]; !ok {
			return false
		}
	}
	return true
}

// Insert validates and commits batch, a set of events usually received
// together from one gossip push. Events are committed in dependency order
// (parents before children) within the batch; any still-unresolved after a
// full fixed-point pass are dropped as orphans (spec §7) rather than
// failing the whole call. A validation failure on a resolvable event aborts
// and rolls back every commit made during this call, so a bad batch never
// leaves partial state (spec §7: "reject the whole batch").
func (g *Hashgraph) Insert(batch []*event.Core) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Validation never fails after divide-rounds/fame/order have run on a
	// committed event (those stages only read, never reject), so rollback
	// only ever needs to undo validateAndCommit's own bookkeeping: the
	// events/states/authorEventsByHeight entries it wrote and the registry
	// heads it advanced (restored from prevHeads, taken before any commit).
	// insertionOrder and unordered keep trailing entries for ids that get
	// deleted here, which later passes simply skip via the g.events lookup
	// guard.
	committed := make([]string, 0, len(batch))
	prevHeads := g.registry.Heads()
	rollback := func() {
		for _, id := range committed {
			e := g.events[id]
			delete(g.events, id)
			delete(g.states, id)
			delete(g.ancestorCache, id)
			if e != nil {
				if byH, ok := g.authorEventsByHeight[e.Author]; ok {
					delete(byH, e.Height)
				}
				_ = g.registry.SetHead(e.Author, prevHeads[e.Author])
			}
		}
	}

	pending := make(map[string]*event.Core, len(batch))
	order := make([]string, 0, len(batch))
	for _, e := range batch {
		if _, exists := g.events[e.ID]; exists {
			continue
		}
		if _, dup := pending[e.ID]; dup {
			continue
		}
		pending[e.ID] = e
		order = append(order, e.ID)
	}

	progress := true
	for progress {
		progress = false
		for _, id := range order {
			e, ok := pending[id]
			if !ok {
				continue
			}
			if !g.parentsKnown(e) {
				continue
			}
			if err := g.validateAndCommit(e); err != nil {
				rollback()
				return fmt.Errorf("hashgraph: insert batch: %w", err)
			}
			committed = append(committed, id)
			delete(pending, id)
			progress = true
		}
	}

	for id := range pending {
		log.Printf("[hashgraph] dropping orphan event %.8s: parents unresolved in this batch", id)
	}

	if len(committed) > 0 {
		g.divideRoundsLocked()
		g.decideFameLocked()
		g.findOrderLocked()
		if err := g.processOrderedEventsLocked(); err != nil {
			log.Printf("[hashgraph] ledger fold error: %v", err)
		}
	}
	return nil
}

// validateAndCommit checks invariants 1-6 of spec §3 for e (whose parents
// are already known to be committed) and, if they hold, commits it.
func (g *Hashgraph) validateAndCommit(e *event.Core) error {
	if err := event.Verify(e); err != nil {
		return err
	}
	if _, err := g.registry.Get(e.Author); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownAuthor, e.Author)
	}

	if !e.IsGenesis() {
		sp := g.events[e.SelfParent]
		if sp.Author != e.Author {
			return fmt.Errorf("%w: self-parent authored by %s, event authored by %s", event.ErrInvalidParent, sp.Author, e.Author)
		}
		if e.Height != sp.Height+1 {
			return fmt.Errorf("%w: event height %d, self-parent height %d", ErrHeightMismatch, e.Height, sp.Height)
		}
		if e.OtherParent != "" {
			op := g.events[e.OtherParent]
			if op.Author == e.Author {
				return fmt.Errorf("%w: other-parent authored by self", event.ErrInvalidParent)
			}
		}
	} else if e.Height != 0 {
		return fmt.Errorf("%w: genesis event height %d, want 0", ErrHeightMismatch, e.Height)
	}

	byH, ok := g.authorEventsByHeight[e.Author]
	if !ok {
		byH = make(map[uint64]string)
		g.authorEventsByHeight[e.Author] = byH
	}
	if existing, ok := byH[e.Height]; ok && existing != e.ID {
		return fmt.Errorf("%w: author %s already has %s at height %d, rejecting %s", ErrForkDetected, e.Author, existing, e.Height, e.ID)
	}

	g.events[e.ID] = e
	g.states[e.ID] = &event.State{}
	byH[e.Height] = e.ID
	g.insertionOrder = append(g.insertionOrder, e.ID)
	g.unordered = append(g.unordered, e.ID)

	if head, err := g.headHeight(e.Author); err != nil || e.Height >= head {
		_ = g.registry.SetHead(e.Author, e.ID)
	}

	g.emit(events.EventInserted, e.ID, 0, nil)
	return nil
}

// headHeight returns the height of author's currently recorded head event,
// or an error if the author has no recorded head yet.
func (g *Hashgraph) headHeight(author string) (uint64, error) {
	m, err := g.registry.Get(author)
	if err != nil {
		return 0, err
	}
	if m.Head == "" {
		return 0, fmt.Errorf("%w: no head yet", ErrUnknownEvent)
	}
	head, ok := g.events[m.Head]
	if !ok {
		return 0, fmt.Errorf("%w: recorded head %s not present", ErrUnknownEvent, m.Head)
	}
	return head.Height, nil
}

func (g *Hashgraph) emit(typ events.EventType, eventID string, round uint64, data map[string]any) {
	if g.emitter == nil {
		return
	}
	g.emitter.Emit(events.Event{Type: typ, EventID: eventID, Round: round, Data: data})
}

// HeadEntry is one author's current head as advertised in a HEADS frame:
// the (id, height) pair of spec §4.3 step 4, rather than height alone, so a
// peer receiving it can name a concrete event id in a later REQUEST frame.
type HeadEntry struct {
	ID     string `json:"id"`
	Height uint64 `json:"height"`
}

// KnownEventsSubtraction returns the ids of events this engine has that are
// absent from otherHeads, the last-known head per author the remote peer
// reported in its HEADS frame. It walks each local author's self-parent
// chain down from its own head until it reaches (or passes) the height the
// peer already has, collecting everything above that point — the set the
// push protocol must still send (spec §4.3).
func (g *Hashgraph) KnownEventsSubtraction(otherHeads map[string]HeadEntry) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var missing []string
	for _, author := range g.registry.IDs() {
		m, err := g.registry.Get(author)
		if err != nil || m.Head == "" {
			continue
		}
		their, known := otherHeads[author]
		id := m.Head
		for id != "" {
			e := g.events[id]
			if e == nil {
				break
			}
			if known && e.Height <= their.Height {
				break
			}
			missing = append(missing, id)
			id = e.SelfParent
		}
	}
	return missing
}

// HeadHeights returns every known author's current head id and height, the
// shape a HEADS gossip frame advertises to a peer.
func (g *Hashgraph) HeadHeights() map[string]HeadEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]HeadEntry)
	for _, id := range g.registry.IDs() {
		m, err := g.registry.Get(id)
		if err != nil || m.Head == "" {
			continue
		}
		if e, ok := g.events[m.Head]; ok {
			out[id] = HeadEntry{ID: e.ID, Height: e.Height}
		}
	}
	return out
}

// Lookup returns the core for id, for callers outside this package (gossip
// sending already-known events, api read handlers).
func (g *Hashgraph) Lookup(id string) (*event.Core, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.events[id]
	return e, ok
}

// OrderedEventIDs returns a snapshot of the current total order (oldest
// first). Used by api.getOrderedEvents.
func (g *Hashgraph) OrderedEventIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.ordered))
	copy(out, g.ordered)
	return out
}

// AllEvents returns a snapshot of every event this engine has committed,
// in insertion order, for the persistence layer to write out wholesale and
// for gossip to send a batch parents-first.
func (g *Hashgraph) AllEvents() []*event.Core {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*event.Core, 0, len(g.insertionOrder))
	for _, id := range g.insertionOrder {
		if e, ok := g.events[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// GenesisAlloc returns a copy of the genesis balance allocation credited via
// CreditGenesis, for the persistence layer to restore on load.
func (g *Hashgraph) GenesisAlloc() map[string]uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]uint64, len(g.genesisAlloc))
	for k, v := range g.genesisAlloc {
		out[k] = v
	}
	return out
}

// State returns a copy of id's derived state, for read-only inspection.
func (g *Hashgraph) State(id string) (event.State, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.states[id]
	if !ok {
		return event.State{}, false
	}
	return *st, true
}
