package config

import (
	"fmt"

	"github.com/tolchain/hashgraph/crypto"
	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/hashgraph"
	"github.com/tolchain/hashgraph/member"
)

// RegisterMembers populates registry from cfg.Members, attaching localSignKey
// to whichever entry matches cfg.NodeID so registry.Local() resolves. It
// replaces the teacher's single genesis-block construction with fixed
// membership registration: there is no block to sign here, only the set of
// verifying keys and stakes every node must agree on before gossip starts.
func RegisterMembers(cfg *Config, registry *member.Registry, localSignKey crypto.PrivateKey) error {
	for _, mc := range cfg.Members {
		pub, err := crypto.PubKeyFromHex(mc.ID)
		if err != nil {
			return fmt.Errorf("config: member %s: %w", mc.ID, err)
		}
		stake := mc.Stake
		if stake == 0 {
			stake = cfg.StakeDefault
		}
		m := &member.Member{
			VerifyKey: pub,
			Stake:     stake,
			Name:      mc.Name,
			Host:      mc.Host,
			Port:      mc.Port,
		}
		if mc.ID == cfg.NodeID {
			if localSignKey == nil {
				return fmt.Errorf("config: node_id %s has no local signing key", cfg.NodeID)
			}
			if localSignKey.Public().Hex() != mc.ID {
				return fmt.Errorf("config: local key does not match node_id %s", cfg.NodeID)
			}
			m.SignKey = localSignKey
		}
		registry.Add(m)
	}
	return nil
}

// CreditAlloc applies the genesis balance allocation to hg's ledger. It must
// be called once, before any event carrying a transfer is inserted, since
// CreditGenesis bypasses consensus ordering entirely (spec §3's opening
// balances are a precondition, not a transaction).
func CreditAlloc(cfg *Config, hg *hashgraph.Hashgraph) {
	for addr, amount := range cfg.Genesis.Alloc {
		hg.CreditGenesis(addr, amount)
	}
}

// CreateLocalGenesisEvent creates and inserts the local member's first event:
// a parentless, payload-less event establishing its presence in the DAG. A
// member that already has a recorded head (resuming from persisted state)
// must not call this again, since a second parentless event from the same
// author is indistinguishable from a fork (spec §3, invariant 5).
func CreateLocalGenesisEvent(hg *hashgraph.Hashgraph) (string, error) {
	e, err := hg.NewEvent(nil, "")
	if err != nil {
		return "", fmt.Errorf("config: create genesis event: %w", err)
	}
	if err := hg.Insert([]*event.Core{e}); err != nil {
		return "", fmt.Errorf("config: insert genesis event: %w", err)
	}
	return e.ID, nil
}
