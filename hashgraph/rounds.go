package hashgraph

import "github.com/tolchain/hashgraph/events"

// ancestors returns the set of event ids reachable from start by following
// either parent, including start itself. Results are memoized per id since
// the DAG is append-only: once computed, an event's ancestor set never
// changes.
func (g *Hashgraph) ancestors(start string) map[string]bool {
	if cached, ok := g.ancestorCache[start]; ok {
		return cached
	}
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		e := g.events[id]
		if e == nil {
			continue
		}
		if e.SelfParent != "" {
			stack = append(stack, e.SelfParent)
		}
		if e.OtherParent != "" {
			stack = append(stack, e.OtherParent)
		}
	}
	g.ancestorCache[start] = seen
	return seen
}

// sees reports whether f is an ancestor of e. Invariant 5 rejects forks at
// insertion, so every author contributes at most one self-parent chain and
// "sees" reduces to plain ancestry (spec §4.2.1).
func (g *Hashgraph) sees(eID, fID string) bool {
	return g.ancestors(eID)[fID]
}

// stronglySees reports whether e strongly sees f: a set of round-f.Round
// witnesses exists, each an ancestor of e and each with f as an ancestor,
// whose authors together hold more than two-thirds of total stake.
func (g *Hashgraph) stronglySees(eID, fID string) bool {
	fState := g.states[fID]
	if fState == nil || !fState.HasRound {
		return false
	}
	witnesses := g.witnesses[fState.Round]
	eAncestors := g.ancestors(eID)

	var stake uint64
	for author, wID := range witnesses {
		if !eAncestors[wID] {
			continue
		}
		if !g.ancestors(wID)[fID] {
			continue
		}
		stake += g.registry.Stake(author)
	}
	return stake*3 > g.registry.TotalStake()*2
}

// stronglySeesSupermajority reports whether e strongly sees enough of round
// r's witnesses (by author stake) to cross the round r+1 threshold.
func (g *Hashgraph) stronglySeesSupermajority(eID string, round uint64) bool {
	var stake uint64
	for author, wID := range g.witnesses[round] {
		if g.stronglySees(eID, wID) {
			stake += g.registry.Stake(author)
		}
	}
	return stake*3 > g.registry.TotalStake()*2
}

// hasSelfAncestorInRound reports whether any proper self-ancestor of id
// already carries round r — the negation is exactly the is_witness test
// (spec §4.2.1).
func (g *Hashgraph) hasSelfAncestorInRound(id string, r uint64) bool {
	e := g.events[id]
	if e == nil {
		return false
	}
	parent := e.SelfParent
	for parent != "" {
		ps := g.states[parent]
		pe := g.events[parent]
		if ps == nil || pe == nil {
			return false
		}
		if ps.HasRound && ps.Round == r {
			return true
		}
		parent = pe.SelfParent
	}
	return false
}

func (g *Hashgraph) recordWitness(author string, round uint64, id string) {
	w, ok := g.witnesses[round]
	if !ok {
		w = make(map[string]string)
		g.witnesses[round] = w
	}
	w[author] = id
	if round > g.maxRound {
		g.maxRound = round
	}
}

// divideRoundsLocked assigns round and witness status to every event that
// doesn't have one yet, in insertion order. Because a push batch always
// delivers an author's events self-parent-first and Insert only commits an
// event once both parents are already committed, insertion order is also a
// valid topological order: a parent's round is always decided before its
// child's is attempted, so a single pass suffices per call (called again
// on the next Insert if anything was left pending, which in this
// single-writer engine never actually happens).
func (g *Hashgraph) divideRoundsLocked() {
	for _, id := range g.insertionOrder {
		st := g.states[id]
		if st == nil || st.HasRound {
			continue
		}
		e := g.events[id]
		if e == nil {
			continue
		}

		if e.IsGenesis() {
			st.Round = 1
			st.HasRound = true
			st.IsWitness = true
			g.recordWitness(e.Author, 1, id)
			continue
		}

		spState := g.states[e.SelfParent]
		if spState == nil || !spState.HasRound {
			continue
		}
		p := spState.Round
		if e.OtherParent != "" {
			opState := g.states[e.OtherParent]
			if opState == nil || !opState.HasRound {
				continue
			}
			if opState.Round > p {
				p = opState.Round
			}
		}

		round := p
		if g.stronglySeesSupermajority(id, p) {
			round = p + 1
		}
		st.Round = round
		st.HasRound = true
		st.IsWitness = !g.hasSelfAncestorInRound(id, round)
		if st.IsWitness {
			g.recordWitness(e.Author, round, id)
			g.emit(events.EventRoundDecided, id, round, nil)
		}
	}
}
