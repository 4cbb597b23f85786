package hashgraph

import (
	"testing"
	"time"

	"github.com/tolchain/hashgraph/crypto"
	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/events"
	"github.com/tolchain/hashgraph/member"
	"github.com/tolchain/hashgraph/tx"
)

// testNetwork wires a fixed set of members (equal stake) into a single
// Hashgraph instance and lets the test author events on any member's
// behalf directly, simulating full-mesh gossip without a real transport.
type testNetwork struct {
	t        *testing.T
	hg       *Hashgraph
	registry *member.Registry
	keys     map[string]crypto.PrivateKey
	ids      []string
	heads    map[string]string
}

func newTestNetwork(t *testing.T, n int) *testNetwork {
	t.Helper()
	registry := member.NewRegistry()
	keys := make(map[string]crypto.PrivateKey, n)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		registry.Add(&member.Member{VerifyKey: pub, Stake: 1})
		id := pub.Hex()
		keys[id] = priv
		ids = append(ids, id)
	}
	hg := New(registry, events.NewEmitter(), Config{CoinRoundModulus: 10})
	return &testNetwork{t: t, hg: hg, registry: registry, keys: keys, ids: ids, heads: make(map[string]string)}
}

// createEvent builds and inserts an event authored by member ids[author],
// self-parented to that member's own last event (or genesis if none yet)
// and other-parented to the last known event of ids[otherAuthor] (or none).
func (n *testNetwork) createEvent(author int, otherAuthor int, payload []tx.Transaction) *event.Core {
	n.t.Helper()
	authorID := n.ids[author]
	selfParent := n.heads[authorID]
	otherParent := ""
	if otherAuthor >= 0 {
		otherParent = n.heads[n.ids[otherAuthor]]
	}
	e, err := event.Create(selfParent, otherParent, payload, time.Now(), n.keys[authorID], n.hg)
	if err != nil {
		n.t.Fatalf("create event (author=%d): %v", author, err)
	}
	if err := n.hg.Insert([]*event.Core{e}); err != nil {
		n.t.Fatalf("insert event (author=%d): %v", author, err)
	}
	n.heads[authorID] = e.ID
	return e
}

// syncRound has every member create one event gossiping with its neighbor,
// a simple deterministic pattern that reliably produces new rounds and
// witnesses after enough repetitions.
func (n *testNetwork) syncRound() {
	for i := range n.ids {
		neighbor := (i + 1) % len(n.ids)
		n.createEvent(i, neighbor, nil)
	}
}

func TestGenesisEventsAreRound1Witnesses(t *testing.T) {
	net := newTestNetwork(t, 4)
	for i := range net.ids {
		net.createEvent(i, -1, nil)
	}
	for _, id := range net.ids {
		st, ok := net.hg.State(net.heads[id])
		if !ok {
			t.Fatalf("missing state for genesis event of %s", id)
		}
		if !st.HasRound || st.Round != 1 || !st.IsWitness {
			t.Errorf("member %s genesis: round=%d hasRound=%v witness=%v, want round=1 witness=true", id, st.Round, st.HasRound, st.IsWitness)
		}
	}
}

func TestForkIsRejected(t *testing.T) {
	net := newTestNetwork(t, 2)
	net.createEvent(0, -1, nil)
	net.createEvent(1, -1, nil)

	authorID := net.ids[0]
	genesisID := net.heads[authorID]

	// Two distinct children of the same self-parent from the same author
	// is a fork (spec §3 invariant 5); insert the first, then hand-craft
	// a conflicting second in a separate batch.
	child1, err := event.Create(genesisID, "", nil, time.Now(), net.keys[authorID], net.hg)
	if err != nil {
		t.Fatal(err)
	}
	if err := net.hg.Insert([]*event.Core{child1}); err != nil {
		t.Fatal(err)
	}

	child2, err := event.Create(genesisID, "", []tx.Transaction{tx.NewPublishName(authorID, "fork")}, time.Now(), net.keys[authorID], net.hg)
	if err != nil {
		t.Fatal(err)
	}
	if err := net.hg.Insert([]*event.Core{child2}); err == nil {
		t.Error("expected fork to be rejected by Insert")
	}
	// The first child must still be present; the rejected batch changed nothing else.
	if _, ok := net.hg.Lookup(child1.ID); !ok {
		t.Error("earlier committed event was lost after a rejected fork batch")
	}
}

func TestOrphanEventIsDroppedNotFatal(t *testing.T) {
	net := newTestNetwork(t, 1)
	authorID := net.ids[0]
	priv := net.keys[authorID]

	genesis, err := event.Create("", "", nil, time.Now(), priv, net.hg)
	if err != nil {
		t.Fatal(err)
	}
	// Skip inserting genesis; build its child directly against a throwaway
	// lookup so Create succeeds, then try to insert only the child.
	fake := fakeLookupHG{genesis.ID: genesis}
	child, err := event.Create(genesis.ID, "", nil, time.Now(), priv, fake)
	if err != nil {
		t.Fatal(err)
	}

	if err := net.hg.Insert([]*event.Core{child}); err != nil {
		t.Fatalf("Insert with unresolved parent should not error, got: %v", err)
	}
	if _, ok := net.hg.Lookup(child.ID); ok {
		t.Error("orphan event should have been dropped, not committed")
	}
}

type fakeLookupHG map[string]*event.Core

func (f fakeLookupHG) Event(id string) (*event.Core, bool) {
	e, ok := f[id]
	return e, ok
}

// TestConsensusConverges drives a 4-member network through enough gossip
// rounds that at least one round's fame is fully decided and some events
// reach a total order, exercising divideRounds -> decideFame -> findOrder
// -> ledger fold end to end (spec §4.2).
func TestConsensusConverges(t *testing.T) {
	net := newTestNetwork(t, 4)
	for i := range net.ids {
		net.createEvent(i, -1, nil)
	}
	for _, id := range net.ids {
		net.hg.CreditGenesis(id, 1000)
	}

	sender := net.ids[0]
	receiver := net.ids[1]
	transferred := false

	for round := 0; round < 20; round++ {
		net.syncRound()
		if !transferred {
			net.createEvent(0, 2, []tx.Transaction{tx.NewTransfer(sender, receiver, 100, "")})
			transferred = true
		}
		if len(net.hg.OrderedEventIDs()) > 0 {
			break
		}
	}

	ordered := net.hg.OrderedEventIDs()
	if len(ordered) == 0 {
		t.Fatal("no events reached a total order after 20 gossip rounds")
	}

	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		if seen[id] {
			t.Errorf("event %s appears twice in the total order", id)
		}
		seen[id] = true
	}

	ledger := net.hg.Ledger()
	total := ledger.TotalBalance()
	if total != uint64(1000*len(net.ids)) {
		t.Errorf("total ledger balance = %d, want %d (conservation violated)", total, 1000*len(net.ids))
	}
}

func TestKnownEventsSubtractionReturnsOnlyMissing(t *testing.T) {
	net := newTestNetwork(t, 2)
	net.createEvent(0, -1, nil)
	net.createEvent(1, -1, nil)
	net.createEvent(0, 1, nil)
	net.createEvent(0, -1, nil)

	// Peer claims to already have author 0's chain up to height 1 and
	// nothing from author 1.
	otherHeads := map[string]HeadEntry{net.ids[0]: {Height: 1}}
	missing := net.hg.KnownEventsSubtraction(otherHeads)
	if len(missing) == 0 {
		t.Fatal("expected at least one missing event")
	}
	for _, id := range missing {
		e, ok := net.hg.Lookup(id)
		if !ok {
			t.Fatalf("subtraction returned unknown event %s", id)
		}
		if e.Author == net.ids[0] && e.Height <= 1 {
			t.Errorf("subtraction included event the peer already claimed to know: %s height=%d", id, e.Height)
		}
	}
}
