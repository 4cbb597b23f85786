// Package member holds the local view of hashgraph participants: their
// verifying keys, stakes, known heads, and transport addresses.
package member

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tolchain/hashgraph/crypto"
)

// ErrUnknownMember is returned when an operation references a verifying key
// that has not been registered.
var ErrUnknownMember = errors.New("member: unknown member")

// Member describes one participant in the fixed-membership set.
type Member struct {
	VerifyKey crypto.PublicKey  // canonical id, hex-encoded via ID()
	SignKey   crypto.PrivateKey // only set for the local identity
	Head      string            // event id of the member's latest known event
	Stake     uint64            // non-negative; fixed at genesis
	Name      string            // optional display name
	Host      string            // last known transport address
	Port      int
}

// ID returns the member's canonical hex-encoded verifying key.
func (m *Member) ID() string {
	return m.VerifyKey.Hex()
}

// Registry is the local, thread-safe address book of all known members.
// Stake is immutable after genesis (spec §3); Head and Host/Port are the
// only fields a Registry mutates after construction.
type Registry struct {
	mu      sync.RWMutex
	members map[string]*Member
	local   string // ID of the local identity, if any
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{members: make(map[string]*Member)}
}

// Add registers m, keyed by its verifying key. Re-adding the same id
// overwrites the stored record (used during genesis construction and load).
func (r *Registry) Add(m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ID()] = m
	if len(m.SignKey) > 0 {
		r.local = m.ID()
	}
}

// Get returns the member with the given id.
func (r *Registry) Get(id string) (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, id)
	}
	return m, nil
}

// Local returns the local identity's member record, or an error if this
// registry was never given a signing key.
func (r *Registry) Local() (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.local == "" {
		return nil, errors.New("member: no local identity registered")
	}
	return r.members[r.local], nil
}

// SetHead updates the recorded head event id for a member.
func (r *Registry) SetHead(id, headID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, id)
	}
	m.Head = headID
	return nil
}

// SetAddress records the last known transport address for a member,
// learned from the node's configured seed peers or a successful outbound
// dial.
func (r *Registry) SetAddress(id, host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, id)
	}
	m.Host, m.Port = host, port
	return nil
}

// Stake returns the stake of the given member, or 0 if unknown.
func (r *Registry) Stake(id string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.members[id]; ok {
		return m.Stake
	}
	return 0
}

// TotalStake returns the sum of stake across all registered members.
func (r *Registry) TotalStake() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total uint64
	for _, m := range r.members {
		total += m.Stake
	}
	return total
}

// IDs returns the canonical ids of every registered member, in no
// particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// Heads returns a snapshot of every member's recorded head id and height is
// left to the caller (the hashgraph tracks height, not the registry).
func (r *Registry) Heads() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	heads := make(map[string]string, len(r.members))
	for id, m := range r.members {
		heads[id] = m.Head
	}
	return heads
}

// Addressable returns a snapshot of every member other than localID that
// has a known transport address, the candidate set the gossip pusher
// picks a random target from.
func (r *Registry) Addressable(localID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.members))
	for id, m := range r.members {
		if id == localID || m.Host == "" {
			continue
		}
		out = append(out, *m)
	}
	return out
}

// Len returns the number of registered members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
