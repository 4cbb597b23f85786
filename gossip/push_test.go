package gossip

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/tolchain/hashgraph/crypto"
	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/events"
	"github.com/tolchain/hashgraph/hashgraph"
	"github.com/tolchain/hashgraph/member"
)

// pairedConns links two in-memory Conns over a net.Pipe with distinct
// per-direction AEAD keys, standing in for a handshake already having
// happened (see handshake.go's two-key derivation).
func pairedConns(t *testing.T) (a *Conn, b *Conn) {
	t.Helper()
	aToB, err := crypto.DeriveSessionKey([]byte("push-test-secret"), []byte("salt"), "test|a->b")
	if err != nil {
		t.Fatal(err)
	}
	bToA, err := crypto.DeriveSessionKey([]byte("push-test-secret"), []byte("salt"), "test|b->a")
	if err != nil {
		t.Fatal(err)
	}
	connA, connB := net.Pipe()
	a = &Conn{RemoteID: "b", conn: connA, sess: &session{sendKey: aToB, recvKey: bToA}}
	b = &Conn{RemoteID: "a", conn: connB, sess: &session{sendKey: bToA, recvKey: aToB}}
	return a, b
}

func TestInitiatePushSendsMissingEventsToResponder(t *testing.T) {
	registry := member.NewRegistry()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	registry.Add(&member.Member{VerifyKey: pub, Stake: 1})

	hgInitiator := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})
	genesis, err := event.Create("", "", nil, time.Now(), priv, hgInitiator)
	if err != nil {
		t.Fatal(err)
	}
	if err := hgInitiator.Insert([]*event.Core{genesis}); err != nil {
		t.Fatal(err)
	}

	hgResponder := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})

	initiatorConn, responderConn := pairedConns(t)

	var wg sync.WaitGroup
	wg.Add(2)
	var initErr, respErr error
	go func() {
		defer wg.Done()
		initErr = initiatePush(initiatorConn, hgInitiator)
	}()
	go func() {
		defer wg.Done()
		respErr = respondPush(responderConn, hgResponder)
	}()
	wg.Wait()

	if initErr != nil {
		t.Fatalf("initiatePush: %v", initErr)
	}
	if respErr != nil {
		t.Fatalf("respondPush: %v", respErr)
	}
	if _, ok := hgResponder.Lookup(genesis.ID); !ok {
		t.Error("responder did not receive the initiator's missing event")
	}
}

func TestRespondPushSendsNothingBackInSameRound(t *testing.T) {
	registry := member.NewRegistry()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	registry.Add(&member.Member{VerifyKey: pub, Stake: 1})

	hgInitiator := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})

	hgResponder := hashgraph.New(registry, events.NewEmitter(), hashgraph.Config{})
	genesis, err := event.Create("", "", nil, time.Now(), priv, hgResponder)
	if err != nil {
		t.Fatal(err)
	}
	if err := hgResponder.Insert([]*event.Core{genesis}); err != nil {
		t.Fatal(err)
	}

	initiatorConn, responderConn := pairedConns(t)

	var wg sync.WaitGroup
	wg.Add(2)
	var initErr, respErr error
	go func() {
		defer wg.Done()
		initErr = initiatePush(initiatorConn, hgInitiator)
	}()
	go func() {
		defer wg.Done()
		respErr = respondPush(responderConn, hgResponder)
	}()
	wg.Wait()

	if initErr != nil {
		t.Fatalf("initiatePush: %v", initErr)
	}
	if respErr != nil {
		t.Fatalf("respondPush: %v", respErr)
	}
	// The responder is not missing anything from the initiator's side, and
	// the push-only protocol never has the responder push back in the same
	// round, so the initiator must still be missing the responder's event.
	if _, ok := hgInitiator.Lookup(genesis.ID); ok {
		t.Error("initiator unexpectedly received an event the responder should not have pushed")
	}
}
