package ledger

import (
	"fmt"

	"github.com/tolchain/hashgraph/tx"
)

func init() {
	Register(tx.KindTransfer, handleTransfer)
}

// handleTransfer debits author and credits Receiver. The debit account is
// always the signing event's author, never the payload's Sender field —
// spec §3 has embedded transactions inherit the event's author as sender,
// and nothing upstream of here cryptographically ties Transfer.Sender to
// author, so trusting the payload field would let a hand-crafted event
// debit an arbitrary third party.
func handleTransfer(l *Ledger, author string, t tx.Transaction) error {
	if t.Transfer == nil {
		return fmt.Errorf("ledger: transfer payload missing")
	}
	p := t.Transfer
	l.transferBalance(author, p.Receiver, p.Amount)
	return nil
}
