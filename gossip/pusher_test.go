package gossip

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/tolchain/hashgraph/crypto"
	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/events"
	"github.com/tolchain/hashgraph/hashgraph"
	"github.com/tolchain/hashgraph/member"
)

func TestPusherRunPushesToAddressablePeerOnBootstrap(t *testing.T) {
	registry := member.NewRegistry()
	servePriv, servePub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	localPriv, localPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	registry.Add(&member.Member{VerifyKey: servePub, Stake: 1})
	registry.Add(&member.Member{VerifyKey: localPub, Stake: 1, SignKey: localPriv})

	serverHG := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})

	server := NewNode(servePub.Hex(), servePriv, "127.0.0.1:0", nil, serverHG, registry)
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	host, portStr, err := net.SplitHostPort(server.Addr())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.SetAddress(servePub.Hex(), host, port); err != nil {
		t.Fatal(err)
	}

	localHG := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})
	genesis, err := event.Create("", "", nil, time.Now(), localPriv, localHG)
	if err != nil {
		t.Fatal(err)
	}
	if err := localHG.Insert([]*event.Core{genesis}); err != nil {
		t.Fatal(err)
	}
	local := NewNode(localPub.Hex(), localPriv, "127.0.0.1:0", nil, localHG, registry)
	if err := local.Start(); err != nil {
		t.Fatal(err)
	}
	defer local.Stop()

	pusher := NewPusher(local, registry, time.Hour)
	done := make(chan struct{})
	go pusher.Run(done)
	defer close(done)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := serverHG.Lookup(genesis.ID); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("pusher's bootstrap push never delivered the local event to the server")
}

func TestPusherSkipsWhenNoAddressablePeers(t *testing.T) {
	registry := member.NewRegistry()
	localPriv, localPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	registry.Add(&member.Member{VerifyKey: localPub, Stake: 1, SignKey: localPriv})

	localHG := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})
	local := NewNode(localPub.Hex(), localPriv, "127.0.0.1:0", nil, localHG, registry)
	if err := local.Start(); err != nil {
		t.Fatal(err)
	}
	defer local.Stop()

	pusher := NewPusher(local, registry, time.Hour)
	done := make(chan struct{})
	// pushToRandomPeer must return immediately without blocking when there
	// is no addressable candidate; Run's bootstrap push happening inline
	// lets us just check it doesn't hang or panic.
	finished := make(chan struct{})
	go func() {
		pusher.Run(done)
		close(finished)
	}()
	close(done)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return promptly after done was closed")
	}
}
