package gossip

import (
	"testing"
	"time"

	"github.com/tolchain/hashgraph/crypto"
	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/events"
	"github.com/tolchain/hashgraph/hashgraph"
	"github.com/tolchain/hashgraph/member"
)

func TestNodeDialRunsFullPushRoundOverTCP(t *testing.T) {
	registry := member.NewRegistry()
	servePriv, servePub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	dialPriv, dialPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	registry.Add(&member.Member{VerifyKey: servePub, Stake: 1})
	registry.Add(&member.Member{VerifyKey: dialPub, Stake: 1})

	serverHG := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})

	dialerHG := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})
	genesis, err := event.Create("", "", nil, time.Now(), dialPriv, dialerHG)
	if err != nil {
		t.Fatal(err)
	}
	if err := dialerHG.Insert([]*event.Core{genesis}); err != nil {
		t.Fatal(err)
	}

	server := NewNode(servePub.Hex(), servePriv, "127.0.0.1:0", nil, serverHG, registry)
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	addr := server.Addr()

	dialer := NewNode(dialPub.Hex(), dialPriv, "127.0.0.1:0", nil, dialerHG, registry)
	if err := dialer.Start(); err != nil {
		t.Fatal(err)
	}
	defer dialer.Stop()

	if err := dialer.Dial(addr); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// The server inserts the pushed batch on its own goroutine, which may
	// finish just after Dial returns.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := serverHG.Lookup(genesis.ID); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("server did not receive the dialer's event after one push round")
}

func TestNodeDialRecordsRemoteAddress(t *testing.T) {
	registry := member.NewRegistry()
	servePriv, servePub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	dialPriv, dialPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	registry.Add(&member.Member{VerifyKey: servePub, Stake: 1})
	registry.Add(&member.Member{VerifyKey: dialPub, Stake: 1})

	serverHG := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})
	dialerHG := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})

	server := NewNode(servePub.Hex(), servePriv, "127.0.0.1:0", nil, serverHG, registry)
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	dialer := NewNode(dialPub.Hex(), dialPriv, "127.0.0.1:0", nil, dialerHG, registry)
	if err := dialer.Start(); err != nil {
		t.Fatal(err)
	}
	defer dialer.Stop()

	if err := dialer.Dial(server.Addr()); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	m, err := registry.Get(servePub.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if m.Host == "" || m.Port == 0 {
		t.Errorf("expected registry to record the server's address after dial, got host=%q port=%d", m.Host, m.Port)
	}
}
