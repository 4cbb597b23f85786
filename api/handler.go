package api

import (
	"encoding/json"
	"fmt"

	"github.com/tolchain/hashgraph/event"
	"github.com/tolchain/hashgraph/hashgraph"
	"github.com/tolchain/hashgraph/member"
	"github.com/tolchain/hashgraph/tx"
)

// HistoryLookup is the read-only slice of indexer.Indexer the handler needs,
// kept as an interface so api never imports indexer (which imports
// hashgraph and storage, not api) and so tests can supply a stub.
type HistoryLookup interface {
	MemberHistory(id string) ([]string, error)
}

// Handler dispatches JSON-RPC methods against a running Hashgraph.
type Handler struct {
	hg       *hashgraph.Hashgraph
	registry *member.Registry
	history  HistoryLookup // may be nil, in which case getHistory errors out
}

// NewHandler creates a Handler. history may be nil.
func NewHandler(hg *hashgraph.Hashgraph, registry *member.Registry, history HistoryLookup) *Handler {
	return &Handler{hg: hg, registry: registry, history: history}
}

// Dispatch routes req to the method implementation named by req.Method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "submitTransfer":
		return h.submitTransfer(req)
	case "submitPublishName":
		return h.submitPublishName(req)
	case "getMemberStatus":
		return h.getMemberStatus(req)
	case "getHistory":
		return h.getHistory(req)
	case "getHead":
		return h.getHead(req)
	case "getOrderedEvents":
		return h.getOrderedEvents(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

type submitTransferParams struct {
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"`
	Comment  string `json:"comment,omitempty"`
}

// submitTransfer builds and inserts a self-authored event carrying a single
// transfer transaction. It does not gossip the event to any peer: the
// pusher's next tick is what propagates it (spec §4.3
// is push-only, so submission and propagation are decoupled here exactly
// as they are at the protocol level).
func (h *Handler) submitTransfer(req Request) Response {
	var p submitTransferParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	local, err := h.registry.Local()
	if err != nil {
		return errResponse(req.ID, CodeApplicationErr, err.Error())
	}
	id, err := h.createAndInsert(local.ID(), transferTx(local.ID(), p.Receiver, p.Amount, p.Comment))
	if err != nil {
		return errResponse(req.ID, CodeApplicationErr, err.Error())
	}
	return okResponse(req.ID, map[string]string{"event_id": id})
}

type submitPublishNameParams struct {
	Name string `json:"name"`
}

func (h *Handler) submitPublishName(req Request) Response {
	var p submitPublishNameParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	local, err := h.registry.Local()
	if err != nil {
		return errResponse(req.ID, CodeApplicationErr, err.Error())
	}
	id, err := h.createAndInsert(local.ID(), publishNameTx(local.ID(), p.Name))
	if err != nil {
		return errResponse(req.ID, CodeApplicationErr, err.Error())
	}
	return okResponse(req.ID, map[string]string{"event_id": id})
}

type getMemberStatusParams struct {
	ID string `json:"id"`
}

func (h *Handler) getMemberStatus(req Request) Response {
	var p getMemberStatusParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	snap, err := h.hg.MemberStatus(p.ID)
	if err != nil {
		return errResponse(req.ID, CodeApplicationErr, err.Error())
	}
	return okResponse(req.ID, snap)
}

type getHistoryParams struct {
	ID string `json:"id"`
}

func (h *Handler) getHistory(req Request) Response {
	if h.history == nil {
		return errResponse(req.ID, CodeApplicationErr, "history index not available")
	}
	var p getHistoryParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	ids, err := h.history.MemberHistory(p.ID)
	if err != nil {
		return errResponse(req.ID, CodeApplicationErr, err.Error())
	}
	return okResponse(req.ID, map[string]any{"event_ids": ids})
}

func (h *Handler) getHead(req Request) Response {
	var p getMemberStatusParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	snap, err := h.hg.MemberStatus(p.ID)
	if err != nil {
		return errResponse(req.ID, CodeApplicationErr, err.Error())
	}
	return okResponse(req.ID, map[string]string{"head": snap.Head})
}

func (h *Handler) getOrderedEvents(req Request) Response {
	return okResponse(req.ID, map[string]any{"event_ids": h.hg.OrderedEventIDs()})
}

func transferTx(sender, receiver string, amount uint64, comment string) tx.Transaction {
	return tx.NewTransfer(sender, receiver, amount, comment)
}

func publishNameTx(member, name string) tx.Transaction {
	return tx.NewPublishName(member, name)
}

// createAndInsert builds a single-payload event authored by the local
// identity and inserts it as a one-event batch, going through the same
// Insert path a received gossip push uses.
func (h *Handler) createAndInsert(_ string, t tx.Transaction) (string, error) {
	e, err := h.hg.NewEvent([]tx.Transaction{t}, "")
	if err != nil {
		return "", err
	}
	if err := h.hg.Insert([]*event.Core{e}); err != nil {
		return "", err
	}
	return e.ID, nil
}
