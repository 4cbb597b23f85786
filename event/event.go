// Package event implements the immutable, signed hashgraph event core and
// the mutable derived-state record the engine assigns after insertion.
//
// The split mirrors the teacher node's core.Transaction, which hashes a
// signingBody distinct from the full wire struct: here the signed core
// (Core) is never touched again after creation, while everything the
// engine computes about it (round, witness, fame, ...) lives in a separate
// State record keyed by event id, so no signed field can ever be mutated by
// accident.
package event

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolchain/hashgraph/crypto"
	"github.com/tolchain/hashgraph/tx"
)

// Fame is the decided/undecided state of a witness event.
type Fame int

const (
	FameUndecided Fame = iota
	FameTrue
	FameFalse
)

func (f Fame) String() string {
	switch f {
	case FameTrue:
		return "true"
	case FameFalse:
		return "false"
	default:
		return "undecided"
	}
}

var (
	ErrInvalidParent = errors.New("event: invalid parent")
	ErrBadSignature  = errors.New("event: bad signature")
	ErrIDMismatch    = errors.New("event: id mismatch")
)

// Lookup resolves a parent id to its already-known core, the same role the
// engine's event map plays during insertion and the one Create needs to
// validate parents before signing a new event.
type Lookup interface {
	Event(id string) (*Core, bool)
}

// Core is the immutable, signed part of an event. Every field here is
// covered by Signature; nothing in Core is ever mutated after Create or
// Verify succeeds.
type Core struct {
	SelfParent  string          `json:"self_parent,omitempty"`
	OtherParent string          `json:"other_parent,omitempty"`
	Height      uint64          `json:"height"`
	Author      string          `json:"author"` // hex verifying key
	Payload     []tx.Transaction `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	Signature   string          `json:"signature"` // hex Ed25519 signature
	ID          string          `json:"id"`         // hash(CanonicalBytes ∥ signature)
}

// IsGenesis reports whether e has no parents.
func (e *Core) IsGenesis() bool {
	return e.SelfParent == "" && e.OtherParent == ""
}

// State holds the fields the hashgraph engine assigns after an event is
// inserted. It is addressed separately from Core so that assigning round,
// fame, and ordering never needs to touch (or re-hash, or re-sign) the
// signed event.
type State struct {
	Round            uint64
	HasRound         bool
	IsWitness        bool
	Fame             Fame
	RoundReceived    uint64 // 0 means unset
	HasRoundReceived bool
	ConsensusTime    time.Time
	ConfirmationTime time.Time
}

// CanonicalBytes returns the exact byte sequence that is hashed to produce
// an event id and signed to produce its signature. Field order and length
// prefixes are fixed: parents, payload, timestamp, author, height.
func CanonicalBytes(selfParent, otherParent string, payload []tx.Transaction, createdAt time.Time, author string, height uint64) ([]byte, error) {
	var buf bytes.Buffer
	writeLP(&buf, []byte(selfParent))
	writeLP(&buf, []byte(otherParent))

	var payloadBuf bytes.Buffer
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(payload)))
	payloadBuf.Write(countBuf[:])
	for _, t := range payload {
		b, err := t.CanonicalBytes()
		if err != nil {
			return nil, fmt.Errorf("canonical payload: %w", err)
		}
		writeLP(&payloadBuf, b)
	}
	writeLP(&buf, payloadBuf.Bytes())

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(createdAt.UnixMilli()))
	buf.Write(tsBuf[:])

	writeLP(&buf, []byte(author))

	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], height)
	buf.Write(heightBuf[:])

	return buf.Bytes(), nil
}

func writeLP(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

// Create builds, signs, and returns a new event. Parents (other than a
// genesis event's, which must both be absent) must already be known to
// known; otherwise ErrInvalidParent is returned.
func Create(selfParent, otherParent string, payload []tx.Transaction, now time.Time, signKey crypto.PrivateKey, known Lookup) (*Core, error) {
	author := signKey.Public().Hex()

	var height uint64
	if selfParent == "" && otherParent == "" {
		height = 0
	} else {
		sp, ok := known.Event(selfParent)
		if !ok {
			return nil, fmt.Errorf("%w: self-parent %s not known", ErrInvalidParent, selfParent)
		}
		if sp.Author != author {
			return nil, fmt.Errorf("%w: self-parent authored by %s, want %s", ErrInvalidParent, sp.Author, author)
		}
		if otherParent != "" {
			op, ok := known.Event(otherParent)
			if !ok {
				return nil, fmt.Errorf("%w: other-parent %s not known", ErrInvalidParent, otherParent)
			}
			if op.Author == author {
				return nil, fmt.Errorf("%w: other-parent authored by self", ErrInvalidParent)
			}
		}
		height = sp.Height + 1
	}

	for _, t := range payload {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("event: invalid payload: %w", err)
		}
	}

	canon, err := CanonicalBytes(selfParent, otherParent, payload, now, author, height)
	if err != nil {
		return nil, err
	}
	sigHex := crypto.Sign(signKey, canon)
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, fmt.Errorf("event: decode freshly computed signature: %w", err)
	}
	id := crypto.Hash(append(append([]byte{}, canon...), sigBytes...))

	return &Core{
		SelfParent:  selfParent,
		OtherParent: otherParent,
		Height:      height,
		Author:      author,
		Payload:     payload,
		CreatedAt:   now,
		Signature:   sigHex,
		ID:          id,
	}, nil
}

// Verify recomputes e's canonical bytes and id and checks its signature.
func Verify(e *Core) error {
	canon, err := CanonicalBytes(e.SelfParent, e.OtherParent, e.Payload, e.CreatedAt, e.Author, e.Height)
	if err != nil {
		return err
	}
	sigBytes, err := hex.DecodeString(e.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	wantID := crypto.Hash(append(append([]byte{}, canon...), sigBytes...))
	if wantID != e.ID {
		return fmt.Errorf("%w: got %s want %s", ErrIDMismatch, e.ID, wantID)
	}
	pub, err := crypto.PubKeyFromHex(e.Author)
	if err != nil {
		return fmt.Errorf("%w: invalid author key: %v", ErrBadSignature, err)
	}
	if err := crypto.Verify(pub, canon, e.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// Marshal/Unmarshal round-trip a Core through JSON, used by the wire
// format (gossip) and the persistence layer.
func Marshal(e *Core) ([]byte, error) { return json.Marshal(e) }

func Unmarshal(data []byte) (*Core, error) {
	var e Core
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
