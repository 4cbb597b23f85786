package gossip

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tolchain/hashgraph/crypto"
)

// helloPayload carries the plaintext ephemeral key exchange, step one of
// the seven-step handshake in spec §4.3. NodeID is the member's permanent
// Ed25519 verifying key, hex-encoded, so each side can attribute the
// session to a known member before anything else is trusted.
type helloPayload struct {
	NodeID       string `json:"node_id"`
	EphemeralKey string `json:"ephemeral_key"`
}

// session holds one connection's two derived AEAD keys — one per direction
// — plus per-direction nonce counters. A single shared key for both
// directions would let the initiator's and responder's first frames reuse
// nonce 0 under the same key, a ChaCha20-Poly1305 two-time pad that also
// forges the Poly1305 tag; keying each direction separately (see handshake,
// below) avoids that regardless of counter state. Counters start at zero
// and increase by one per frame.
type session struct {
	sendKey crypto.SessionKey
	recvKey crypto.SessionKey
	sendCtr uint64
	recvCtr uint64
}

func (s *session) seal(plaintext []byte) ([]byte, error) {
	ct, err := crypto.Seal(s.sendKey, s.sendCtr, plaintext, nil)
	if err != nil {
		return nil, err
	}
	s.sendCtr++
	return ct, nil
}

func (s *session) open(ciphertext []byte) ([]byte, error) {
	pt, err := crypto.Open(s.recvKey, s.recvCtr, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	s.recvCtr++
	return pt, nil
}

// handshake performs the X25519 ephemeral exchange over rw and derives the
// two per-direction session keys via HKDF-SHA256 (spec §4.3 steps 1-3).
// Both sides run identical logic regardless of who dialed: each sends its
// hello from a separate goroutine while reading the peer's, so two sides
// that both write first cannot block each other, even on an unbuffered
// connection such as net.Pipe.
func handshake(rw io.ReadWriter, localID string, _ crypto.PrivateKey) (*session, string, error) {
	ephPriv, ephPub, err := crypto.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, "", fmt.Errorf("gossip: generate ephemeral keypair: %w", err)
	}

	hello := helloPayload{NodeID: localID, EphemeralKey: hex.EncodeToString(ephPub[:])}
	helloData, err := json.Marshal(hello)
	if err != nil {
		return nil, "", fmt.Errorf("gossip: marshal hello: %w", err)
	}
	frameData, err := json.Marshal(Frame{Type: MsgHello, Payload: helloData})
	if err != nil {
		return nil, "", err
	}
	writeErr := make(chan error, 1)
	go func() { writeErr <- writeFrame(rw, frameData) }()

	raw, err := readFrame(rw)
	if err != nil {
		return nil, "", fmt.Errorf("gossip: receive hello: %w", err)
	}
	if err := <-writeErr; err != nil {
		return nil, "", fmt.Errorf("gossip: send hello: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, "", fmt.Errorf("gossip: decode hello frame: %w", err)
	}
	if frame.Type != MsgHello {
		return nil, "", fmt.Errorf("gossip: expected hello frame, got %q", frame.Type)
	}
	var remoteHello helloPayload
	if err := json.Unmarshal(frame.Payload, &remoteHello); err != nil {
		return nil, "", fmt.Errorf("gossip: decode hello payload: %w", err)
	}

	remotePubBytes, err := hex.DecodeString(remoteHello.EphemeralKey)
	if err != nil || len(remotePubBytes) != 32 {
		return nil, "", fmt.Errorf("gossip: bad ephemeral key from %s", remoteHello.NodeID)
	}
	var remotePub crypto.EphemeralPublicKey
	copy(remotePub[:], remotePubBytes)

	shared, err := ephPriv.SharedSecret(remotePub)
	if err != nil {
		return nil, "", fmt.Errorf("gossip: derive shared secret: %w", err)
	}

	// Salt is the two node ids in sorted order so both sides compute the
	// identical HKDF input regardless of who dialed. Two keys are derived
	// off distinct info labels — one per direction — so the lower-id
	// side's outbound frames and the higher-id side's outbound frames
	// never share a key, let alone a (key, nonce) pair, even though both
	// sides' nonce counters independently start at zero.
	salt := sortedConcat(localID, remoteHello.NodeID)
	lowToHighKey, err := crypto.DeriveSessionKey(shared, salt, "tolchain-gossip-v1|low->high")
	if err != nil {
		return nil, "", fmt.Errorf("gossip: derive session key: %w", err)
	}
	highToLowKey, err := crypto.DeriveSessionKey(shared, salt, "tolchain-gossip-v1|high->low")
	if err != nil {
		return nil, "", fmt.Errorf("gossip: derive session key: %w", err)
	}

	sess := &session{}
	if localID < remoteHello.NodeID {
		sess.sendKey, sess.recvKey = lowToHighKey, highToLowKey
	} else {
		sess.sendKey, sess.recvKey = highToLowKey, lowToHighKey
	}

	return sess, remoteHello.NodeID, nil
}

func sortedConcat(a, b string) []byte {
	if a < b {
		return []byte(a + b)
	}
	return []byte(b + a)
}
