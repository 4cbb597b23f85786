package gossip

import (
	"encoding/json"
	"fmt"

	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/hashgraph"
)

// headsPayload advertises the sender's current per-author (id, height)
// heads, the HEADS frame of spec §4.3 step 4.
type headsPayload struct {
	Heads map[string]hashgraph.HeadEntry `json:"heads"`
}

// requestPayload is the REQUEST(set<id>, heads) frame of spec §4.3 leg 5:
// the responder names the head ids it lacks, alongside its own heads. The
// initiator decides what to push from Heads alone; IDs is not read.
type requestPayload struct {
	IDs   []string                       `json:"ids"`
	Heads map[string]hashgraph.HeadEntry `json:"heads"`
}

// eventsPayload carries the events one side is pushing because the other
// is missing them, computed via Hashgraph.KnownEventsSubtraction.
type eventsPayload struct {
	Events []*event.Core `json:"events"`
}

// initiatePush runs the dialing side of one gossip round (spec §4.3): send
// our heads, read the REQUEST the responder sends back, then push every
// event that the responder's advertised heads show it is missing
// (KnownEventsSubtraction over the REQUEST's heads, not its listed ids),
// parents first. The responder never pushes back in the
// same round — the protocol is push-only, so each direction of data flow
// corresponds to whichever side happened to initiate.
func initiatePush(c *Conn, hg *hashgraph.Hashgraph) error {
	if err := sendHeads(c, hg.HeadHeights()); err != nil {
		return err
	}
	req, err := receiveRequest(c)
	if err != nil {
		return err
	}
	missing := hg.KnownEventsSubtraction(req.Heads)
	if err := sendEvents(c, hg, missing); err != nil {
		return err
	}
	return sendBye(c)
}

// respondPush runs the accepting side: read the initiator's heads, work
// out which of the initiator's advertised heads we lack (by author, since
// an unknown or shorter local chain means we're missing at least the
// advertised head), and REQUEST them by id — then receive and insert
// whatever gets pushed back.
func respondPush(c *Conn, hg *hashgraph.Hashgraph) error {
	initiatorHeads, err := receiveHeads(c)
	if err != nil {
		return err
	}
	ownHeads := hg.HeadHeights()
	var wanted []string
	for author, their := range initiatorHeads {
		own, known := ownHeads[author]
		if !known || own.Height < their.Height {
			wanted = append(wanted, their.ID)
		}
	}
	if err := sendRequest(c, wanted, ownHeads); err != nil {
		return err
	}
	for {
		f, err := c.ReceiveFrame()
		if err != nil {
			return err
		}
		switch f.Type {
		case MsgEvents:
			var payload eventsPayload
			if err := json.Unmarshal(f.Payload, &payload); err != nil {
				return fmt.Errorf("gossip: decode events: %w", err)
			}
			if err := hg.Insert(payload.Events); err != nil {
				return fmt.Errorf("gossip: insert pushed events: %w", err)
			}
		case MsgBye:
			return nil
		default:
			return fmt.Errorf("gossip: unexpected frame type %q", f.Type)
		}
	}
}

func sendHeads(c *Conn, heads map[string]hashgraph.HeadEntry) error {
	data, err := json.Marshal(headsPayload{Heads: heads})
	if err != nil {
		return err
	}
	return c.SendFrame(MsgHeads, data)
}

func receiveHeads(c *Conn) (map[string]hashgraph.HeadEntry, error) {
	f, err := c.ReceiveFrame()
	if err != nil {
		return nil, err
	}
	if f.Type != MsgHeads {
		return nil, fmt.Errorf("gossip: expected heads frame, got %q", f.Type)
	}
	var payload headsPayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		return nil, err
	}
	return payload.Heads, nil
}

func sendRequest(c *Conn, ids []string, heads map[string]hashgraph.HeadEntry) error {
	data, err := json.Marshal(requestPayload{IDs: ids, Heads: heads})
	if err != nil {
		return err
	}
	return c.SendFrame(MsgRequest, data)
}

func receiveRequest(c *Conn) (requestPayload, error) {
	f, err := c.ReceiveFrame()
	if err != nil {
		return requestPayload{}, err
	}
	if f.Type != MsgRequest {
		return requestPayload{}, fmt.Errorf("gossip: expected request frame, got %q", f.Type)
	}
	var payload requestPayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		return requestPayload{}, err
	}
	return payload, nil
}

// sendEvents pushes the events named by ids in the engine's insertion
// order, which places every parent before its children.
func sendEvents(c *Conn, hg *hashgraph.Hashgraph, ids []string) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	cores := make([]*event.Core, 0, len(ids))
	for _, e := range hg.AllEvents() {
		if want[e.ID] {
			cores = append(cores, e)
			delete(want, e.ID)
		}
	}
	data, err := json.Marshal(eventsPayload{Events: cores})
	if err != nil {
		return err
	}
	return c.SendFrame(MsgEvents, data)
}

func sendBye(c *Conn) error {
	return c.SendFrame(MsgBye, nil)
}
