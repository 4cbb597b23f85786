package hashgraph

// MemberSnapshot is a point-in-time read of one member's public status, the
// shape api.getMemberStatus returns, assembled here so the api package need
// not combine member.Registry and ledger.Ledger reads itself.
type MemberSnapshot struct {
	ID      string
	Name    string
	Stake   uint64
	Head    string
	Balance uint64
}

// MemberStatus returns a snapshot of id's current public status.
func (g *Hashgraph) MemberStatus(id string) (MemberSnapshot, error) {
	m, err := g.registry.Get(id)
	if err != nil {
		return MemberSnapshot{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return MemberSnapshot{
		ID:      id,
		Name:    g.ledgr.Name(id),
		Stake:   m.Stake,
		Head:    m.Head,
		Balance: g.ledgr.Balance(id),
	}, nil
}

// Members returns a snapshot of every known member's current status.
func (g *Hashgraph) Members() []MemberSnapshot {
	ids := g.registry.IDs()
	out := make([]MemberSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := g.MemberStatus(id); err == nil {
			out = append(out, snap)
		}
	}
	return out
}
