package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// EphemeralPrivateKey is an X25519 scalar used once per gossip handshake.
type EphemeralPrivateKey [32]byte

// EphemeralPublicKey is the corresponding X25519 point.
type EphemeralPublicKey [32]byte

// GenerateEphemeralKeyPair creates a fresh X25519 key pair for a single
// handshake. It must never be reused across connections.
func GenerateEphemeralKeyPair() (EphemeralPrivateKey, EphemeralPublicKey, error) {
	var priv EphemeralPrivateKey
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return EphemeralPrivateKey{}, EphemeralPublicKey{}, fmt.Errorf("generate ephemeral key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return EphemeralPrivateKey{}, EphemeralPublicKey{}, fmt.Errorf("derive ephemeral public key: %w", err)
	}
	var pubArr EphemeralPublicKey
	copy(pubArr[:], pub)
	return priv, pubArr, nil
}

// SharedSecret computes the X25519 shared secret between a local private key
// and a peer's public key.
func (priv EphemeralPrivateKey) SharedSecret(peerPub EphemeralPublicKey) ([]byte, error) {
	secret, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return nil, fmt.Errorf("compute shared secret: %w", err)
	}
	return secret, nil
}
