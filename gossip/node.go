package gossip

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/tolchain/hashgraph/crypto"
	"github.com/tolchain/hashgraph/hashgraph"
	"github.com/tolchain/hashgraph/member"
)

// DefaultMaxInbound caps simultaneous inbound handshakes in flight, the
// same role network.DefaultMaxPeers played for the teacher's persistent
// peer table — this protocol has no persistent peer connections, only
// short-lived push rounds, so the cap is on concurrency, not table size.
const DefaultMaxInbound = 50

// Node listens for inbound gossip connections and dials outbound ones,
// generalizing network.Node from a persistent peer table with registered
// message handlers to this protocol's one-shot connect/handshake/push/close
// rounds (spec §4.3). TLS remains optional exactly as in the teacher node —
// the X25519/ChaCha20-Poly1305 session established per round is this
// protocol's own confidentiality layer, so tlsConfig just adds a transport
// underlay for deployments that also want certificate-based peer auth.
type Node struct {
	localID    string
	signKey    crypto.PrivateKey
	listenAddr string
	tlsConfig  *tls.Config
	hg         *hashgraph.Hashgraph
	registry   *member.Registry

	sem sync.Mutex
	n   int

	listener net.Listener
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewNode creates a Node bound to listenAddr. If tlsCfg is non-nil the
// listener and outgoing dials run over TLS.
func NewNode(localID string, signKey crypto.PrivateKey, listenAddr string, tlsCfg *tls.Config, hg *hashgraph.Hashgraph, registry *member.Registry) *Node {
	return &Node{
		localID:    localID,
		signKey:    signKey,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		hg:         hg,
		registry:   registry,
		stopCh:     make(chan struct{}),
	}
}

// Start begins accepting inbound connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("gossip: listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	n.wg.Add(1)
	go n.acceptLoop()
	return nil
}

// Addr returns the listener's bound address. Only valid after Start.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// Stop closes the listener and waits for in-flight connections to finish.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.wg.Wait()
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[gossip] accept error: %v", err)
				continue
			}
		}
		n.sem.Lock()
		if n.n >= DefaultMaxInbound {
			n.sem.Unlock()
			log.Printf("[gossip] max inbound (%d) reached, rejecting %s", DefaultMaxInbound, conn.RemoteAddr())
			conn.Close()
			continue
		}
		n.n++
		n.sem.Unlock()

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			defer func() {
				n.sem.Lock()
				n.n--
				n.sem.Unlock()
			}()
			n.serve(conn)
		}()
	}
}

// serve handles one inbound connection: handshake as the responder, then
// run the responder side of the push exchange.
func (n *Node) serve(conn net.Conn) {
	defer conn.Close()
	sess, remoteID, err := handshake(conn, n.localID, n.signKey)
	if err != nil {
		log.Printf("[gossip] handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	c := &Conn{RemoteID: remoteID, conn: conn, sess: sess}
	if err := respondPush(c, n.hg); err != nil {
		log.Printf("[gossip] push exchange with %s failed: %v", remoteID, err)
	}
}

// Dial connects to addr, handshakes as the initiator, and runs one push
// round — pushing whatever the remote turns out to be missing (spec
// §4.3, §4.4). The remote's advertised id is recorded against addr so
// future pushes to that member can reuse it without a directory lookup.
func (n *Node) Dial(addr string) error {
	var conn net.Conn
	var err error
	if n.tlsConfig != nil {
		conn, err = tls.Dial("tcp", addr, n.tlsConfig)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("gossip: dial %s: %w", addr, err)
	}
	defer conn.Close()

	sess, remoteID, err := handshake(conn, n.localID, n.signKey)
	if err != nil {
		return fmt.Errorf("gossip: handshake with %s: %w", addr, err)
	}
	c := &Conn{RemoteID: remoteID, conn: conn, sess: sess}
	if err := initiatePush(c, n.hg); err != nil {
		return fmt.Errorf("gossip: push to %s: %w", addr, err)
	}

	host, port, err := splitHostPort(addr)
	if err == nil {
		if err := n.registry.SetAddress(remoteID, host, port); err != nil {
			log.Printf("[gossip] record address for %s: %v", remoteID, err)
		}
	}
	return nil
}
