// Package indexer maintains a secondary per-member history index over the
// hashgraph's total order so api.getHistory can answer "what events did
// member X author, in the order the engine assigned them a consensus
// position" without walking the whole DAG.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tolchain/hashgraph/events"
	"github.com/tolchain/hashgraph/storage"
)

const prefixMemberHistory = "idx:member:history:"

// Indexer subscribes to hashgraph events and updates the history table.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to order_assigned.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventOrderAssigned, idx.onOrderAssigned)
	return idx
}

// MemberHistory returns the event ids authored by id, in the order they
// were assigned a round_received (satisfies api.HistoryLookup).
func (idx *Indexer) MemberHistory(id string) ([]string, error) {
	return idx.getList(prefixMemberHistory + id)
}

func (idx *Indexer) onOrderAssigned(ev events.Event) {
	author, _ := ev.Data["author"].(string)
	if author == "" || ev.EventID == "" {
		return
	}
	if err := idx.addToList(prefixMemberHistory+author, ev.EventID); err != nil {
		log.Printf("[indexer] history index write failed (author=%s event=%s): %v", author, ev.EventID, err)
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil // already present
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
