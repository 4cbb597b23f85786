package hashgraph

import (
	"strconv"

	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/events"
)

// decideFameLocked advances fame for witnesses in the oldest rounds whose
// fame isn't fully decided yet, stopping at the first round that can't be
// fully decided with what's currently known (it is retried automatically
// on the next Insert, once more of the graph has arrived).
func (g *Hashgraph) decideFameLocked() {
	for _, r := range g.sortedKnownRounds() {
		if g.decidedRounds[r] {
			continue
		}
		allDecided := true
		for _, yID := range g.witnesses[r] {
			yState := g.states[yID]
			if yState.Fame != event.FameUndecided {
				continue
			}
			if !g.decideWitnessFame(yID, r) {
				allDecided = false
			}
		}
		if !allDecided {
			break
		}
		g.decidedRounds[r] = true
		for _, yID := range g.witnesses[r] {
			g.emit(events.EventFameDecided, yID, r, nil)
		}
	}
}

func (g *Hashgraph) sortedKnownRounds() []uint64 {
	rounds := make([]uint64, 0, len(g.witnesses))
	for r := range g.witnesses {
		rounds = append(rounds, r)
	}
	for i := 1; i < len(rounds); i++ {
		for j := i; j > 0 && rounds[j-1] > rounds[j]; j-- {
			rounds[j-1], rounds[j] = rounds[j], rounds[j-1]
		}
	}
	return rounds
}

// decideWitnessFame runs virtual voting for the single witness yID (round
// ry) against every later round currently known, per spec §4.2.2. It
// returns true and sets the event's Fame field the moment a decisive
// supermajority is reached; otherwise it leaves state untouched and
// returns false so the caller retries later with more of the graph known.
func (g *Hashgraph) decideWitnessFame(yID string, ry uint64) bool {
	votes := make(map[string]bool) // witness id (at round rx-1) -> its vote about y

	for rx := ry + 1; rx <= g.maxRound; rx++ {
		witnessesRx := g.witnesses[rx]
		if len(witnessesRx) == 0 {
			break
		}
		d := rx - ry
		next := make(map[string]bool, len(witnessesRx))

		for _, xID := range witnessesRx {
			if d == 1 {
				next[xID] = g.sees(xID, yID)
				continue
			}

			prevWitnesses := g.witnesses[rx-1]
			var trueStake, falseStake, totalStake uint64
			for author, wID := range prevWitnesses {
				if !g.stronglySees(xID, wID) {
					continue
				}
				stake := g.registry.Stake(author)
				totalStake += stake
				if votes[wID] {
					trueStake += stake
				} else {
					falseStake += stake
				}
			}
			majority := trueStake >= falseStake
			supermajority := totalStake*3 > g.registry.TotalStake()*2

			if d%g.coinRoundModulus != 0 {
				if supermajority {
					g.states[yID].Fame = fameFromBool(majority)
					return true
				}
				next[xID] = majority
			} else if supermajority {
				next[xID] = majority
			} else {
				next[xID] = middleBit(g.events[xID].Signature)
			}
		}
		votes = next
	}
	return false
}

func fameFromBool(v bool) event.Fame {
	if v {
		return event.FameTrue
	}
	return event.FameFalse
}

// middleBit extracts a deterministic, signature-derived coin flip used by
// the coin-round fallback (spec §4.2.2, scenario S5): every honest member
// computing this over the same signature gets the same bit, with no
// further coordination needed.
func middleBit(sigHex string) bool {
	if len(sigHex) == 0 {
		return false
	}
	mid := len(sigHex) / 2
	v, err := strconv.ParseUint(string(sigHex[mid]), 16, 8)
	if err != nil {
		return false
	}
	return v&1 == 1
}
