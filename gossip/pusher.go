package gossip

import (
	"log"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tolchain/hashgraph/member"
)

// Pusher periodically selects a random known, addressable peer and runs
// one gossip round against it. It is grounded on consensus.PoA.Run's
// ticker-plus-done-channel shape, generalized from one node producing
// blocks on its turn to every node independently gossiping on its own
// schedule — there is no round-robin proposer here, every member pushes on
// every tick (spec §4.4).
type Pusher struct {
	node     *Node
	registry *member.Registry
	interval time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewPusher creates a Pusher that gossips at the given interval.
func NewPusher(node *Node, registry *member.Registry, interval time.Duration) *Pusher {
	return &Pusher{
		node:     node,
		registry: registry,
		interval: interval,
		inFlight: make(map[string]bool),
	}
}

// Run starts the push loop; it blocks until done is closed. A bootstrap
// push fires immediately rather than waiting for the first tick, so a
// freshly started node doesn't sit idle for a full interval before
// catching up with the rest of the graph.
func (p *Pusher) Run(done <-chan struct{}) {
	p.pushToRandomPeer()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.pushToRandomPeer()
		}
	}
}

func (p *Pusher) pushToRandomPeer() {
	local, err := p.registry.Local()
	if err != nil {
		return
	}
	candidates := p.registry.Addressable(local.ID())
	if len(candidates) == 0 {
		return
	}
	target := candidates[rand.Intn(len(candidates))]

	p.mu.Lock()
	if p.inFlight[target.ID()] {
		p.mu.Unlock()
		return
	}
	p.inFlight[target.ID()] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inFlight, target.ID())
		p.mu.Unlock()
	}()

	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	if err := p.node.Dial(addr); err != nil {
		log.Printf("[gossip] push to %s (%s) failed: %v", target.ID(), addr, err)
	}
}
