// Package tx defines the transaction kinds carried inside event payloads.
// Kept separate from hashgraph/ledger so the event model can serialize and
// hash payloads without importing the ledger's dispatch machinery.
package tx

import (
	"encoding/json"
	"fmt"
)

// Kind labels a transaction's payload type.
type Kind string

const (
	KindTransfer    Kind = "transfer"
	KindPublishName Kind = "publish_name"
)

// Transfer moves native balance from the event author to receiver.
type Transfer struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"`
	Comment  string `json:"comment,omitempty"`
}

// PublishName assigns a display name to a member.
type PublishName struct {
	Member string `json:"member"`
	Name   string `json:"name"`
}

// Transaction is one entry in an event's payload: a tagged, ordered union
// of the kinds above. Exactly one of Transfer/PublishName is set,
// matching Kind.
type Transaction struct {
	Kind        Kind         `json:"kind"`
	Transfer    *Transfer    `json:"transfer,omitempty"`
	PublishName *PublishName `json:"publish_name,omitempty"`
}

// NewTransfer builds a Transfer transaction. sender is filled in by the
// caller from the event author at signing time (spec §3: "Transactions...
// inherit the event's author as sender").
func NewTransfer(sender, receiver string, amount uint64, comment string) Transaction {
	return Transaction{
		Kind:     KindTransfer,
		Transfer: &Transfer{Sender: sender, Receiver: receiver, Amount: amount, Comment: comment},
	}
}

// NewPublishName builds a PublishName transaction.
func NewPublishName(member, name string) Transaction {
	return Transaction{
		Kind:        KindPublishName,
		PublishName: &PublishName{Member: member, Name: name},
	}
}

// Validate checks that exactly the field matching Kind is populated.
func (t Transaction) Validate() error {
	switch t.Kind {
	case KindTransfer:
		if t.Transfer == nil {
			return fmt.Errorf("tx: kind %q missing transfer body", t.Kind)
		}
	case KindPublishName:
		if t.PublishName == nil {
			return fmt.Errorf("tx: kind %q missing publish_name body", t.Kind)
		}
	default:
		return fmt.Errorf("tx: unknown kind %q", t.Kind)
	}
	return nil
}

// CanonicalBytes returns a deterministic JSON encoding of the transaction,
// used as one length-prefixed element of an event's canonical payload
// encoding. encoding/json already sorts map keys and this type has no maps,
// so marshaling the same value twice always yields the same bytes.
func (t Transaction) CanonicalBytes() ([]byte, error) {
	return json.Marshal(t)
}
