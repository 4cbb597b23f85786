package persistence

import (
	"testing"
	"time"

	"github.com/tolchain/hashgraph/crypto"
	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/events"
	"github.com/tolchain/hashgraph/hashgraph"
	"github.com/tolchain/hashgraph/internal/testutil"
	"github.com/tolchain/hashgraph/member"
)

func TestSaveAllAndLoadRestoresEvents(t *testing.T) {
	registry := member.NewRegistry()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	registry.Add(&member.Member{VerifyKey: pub, Stake: 1, SignKey: priv})

	hg := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})
	hg.CreditGenesis(pub.Hex(), 500)

	genesis, err := event.Create("", "", nil, time.Now(), priv, hg)
	if err != nil {
		t.Fatal(err)
	}
	if err := hg.Insert([]*event.Core{genesis}); err != nil {
		t.Fatal(err)
	}

	db := testutil.NewMemDB()
	if err := SaveAll(db, hg); err != nil {
		t.Fatal(err)
	}

	registry2 := member.NewRegistry()
	registry2.Add(&member.Member{VerifyKey: pub, Stake: 1, SignKey: priv})
	hg2 := hashgraph.New(registry2, events.NewEmitter(), hashgraph.Config{})

	n, err := Load(db, hg2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("restored %d events, want 1", n)
	}
	if _, ok := hg2.Lookup(genesis.ID); !ok {
		t.Error("restored hashgraph is missing the saved genesis event")
	}
	if got := hg2.Ledger().Balance(pub.Hex()); got != 500 {
		t.Errorf("restored balance = %d, want 500", got)
	}
}

func TestLoadEmptyDBReturnsZero(t *testing.T) {
	registry := member.NewRegistry()
	hg := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})
	db := testutil.NewMemDB()
	n, err := Load(db, hg)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("restored %d events from empty db, want 0", n)
	}
}
