package wallet

import (
	"github.com/tolchain/hashgraph/crypto"
	"github.com/tolchain/hashgraph/tx"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key, this wallet's member id.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// Transfer builds a transfer transaction from this wallet to receiver.
// Unlike the teacher's account-model wallet there is no nonce or fee:
// ordering and replay protection come from the hashgraph's event chain,
// not from a per-account sequence number (spec §3).
func (w *Wallet) Transfer(receiver string, amount uint64, comment string) tx.Transaction {
	return tx.NewTransfer(w.pub.Hex(), receiver, amount, comment)
}

// PublishName builds a publish_name transaction naming this wallet's member.
func (w *Wallet) PublishName(name string) tx.Transaction {
	return tx.NewPublishName(w.pub.Hex(), name)
}
