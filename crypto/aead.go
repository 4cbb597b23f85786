package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

func newSHA256() hash.Hash { return sha256.New() }

// SessionKey is a ChaCha20-Poly1305 key derived from a gossip handshake's
// X25519 shared secret via HKDF-SHA256.
type SessionKey [chacha20poly1305.KeySize]byte

// DeriveSessionKey runs HKDF-SHA256 over the shared secret with the given
// salt (the gossip handshake passes both node ids in sorted order, so both
// sides compute the same input), labeled with info so the two per-direction
// keys never collide even when derived from the same secret.
func DeriveSessionKey(sharedSecret []byte, salt []byte, info string) (SessionKey, error) {
	var key SessionKey
	reader := hkdf.New(newSHA256, sharedSecret, salt, []byte(info))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return SessionKey{}, fmt.Errorf("derive session key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under key using the given monotonic nonce counter.
// Callers must never reuse a counter value for the same key.
func Seal(key SessionKey, counter uint64, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	nonce := nonceFromCounter(counter, aead.NonceSize())
	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// Open decrypts a frame sealed by Seal with the matching counter.
func Open(key SessionKey, counter uint64, ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	nonce := nonceFromCounter(counter, aead.NonceSize())
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decrypt frame: %w", err)
	}
	return plaintext, nil
}

// nonceFromCounter encodes counter as the low bytes of a NonceSize-byte
// little-endian nonce, the remaining high bytes left zero.
func nonceFromCounter(counter uint64, size int) []byte {
	nonce := make([]byte, size)
	binary.LittleEndian.PutUint64(nonce, counter)
	return nonce
}
