package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS on the gossip
// transport. When nil or all paths empty, gossip falls back to plain TCP
// underneath its own X25519/ChaCha20-Poly1305 session (spec §4.3).
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// SeedPeer identifies a remote member to dial on startup, before the local
// hashgraph has learned anyone else's address from a handshake.
type SeedPeer struct {
	ID   string `json:"id"` // hex verifying key
	Addr string `json:"addr"`
}

// MemberConfig describes one fixed-membership participant at genesis.
type MemberConfig struct {
	ID    string `json:"id"` // hex Ed25519 verifying key
	Name  string `json:"name,omitempty"`
	Stake uint64 `json:"stake"` // 0 → StakeDefault
	Host  string `json:"host,omitempty"`
	Port  int    `json:"port,omitempty"`
}

// GenesisConfig describes the ledger's initial state.
type GenesisConfig struct {
	NetworkID string            `json:"network_id"`
	Alloc     map[string]uint64 `json:"alloc"` // member id hex → initial balance
}

// Config holds all node configuration.
type Config struct {
	NodeID  string `json:"node_id"` // local member id, hex verifying key
	DataDir string `json:"data_dir"`

	RPCPort      int    `json:"rpc_port"`
	RPCAuthToken string `json:"rpc_auth_token,omitempty"`

	ListenHost string `json:"listen_host"`
	ListenPort int    `json:"listen_port"`

	Members   []MemberConfig `json:"members"` // fixed membership set
	Genesis   GenesisConfig  `json:"genesis"`
	SeedPeers []SeedPeer     `json:"seed_peers,omitempty"`

	TLS *TLSConfig `json:"tls,omitempty"`

	// PushIntervalMS is the gossip pusher's tick interval; 0 → 500ms.
	PushIntervalMS int `json:"push_interval_ms"`
	// CoinRoundModulus is the number of rounds between coin-round fallbacks
	// in fame decision; 0 → 10 (spec §4.2.2).
	CoinRoundModulus uint64 `json:"coin_round_modulus"`
	// StakeDefault is the stake assigned to a genesis member whose
	// MemberConfig.Stake is 0.
	StakeDefault uint64 `json:"stake_default"`
	// Dirty forces the node to replay every persisted event through
	// divide-rounds/fame/order from scratch at startup instead of trusting
	// persisted derived state (spec §6's "re-derive vs trust" choice).
	Dirty bool `json:"dirty"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:           "node0",
		DataDir:          "./data",
		RPCPort:          8545,
		ListenHost:       "0.0.0.0",
		ListenPort:       30303,
		PushIntervalMS:   500,
		CoinRoundModulus: 10,
		StakeDefault:     1,
		Genesis: GenesisConfig{
			NetworkID: "tolchain-dev",
			Alloc:     map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.NetworkID == "" {
		return fmt.Errorf("genesis.network_id must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be 1-65535, got %d", c.ListenPort)
	}
	if c.RPCPort == c.ListenPort {
		return fmt.Errorf("rpc_port and listen_port must not be the same (%d)", c.RPCPort)
	}
	if len(c.Members) == 0 {
		return fmt.Errorf("members list must not be empty")
	}
	seen := make(map[string]bool, len(c.Members))
	for i, m := range c.Members {
		b, err := hex.DecodeString(m.ID)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("members[%d]: id must be 64-char hex (32 bytes ed25519 pubkey), got %q", i, m.ID)
		}
		if seen[m.ID] {
			return fmt.Errorf("members[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
	}
	if !seen[c.NodeID] {
		return fmt.Errorf("node_id %q must appear in members", c.NodeID)
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
