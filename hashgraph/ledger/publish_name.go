package ledger

import (
	"fmt"

	"github.com/tolchain/hashgraph/tx"
)

func init() {
	Register(tx.KindPublishName, handlePublishName)
}

// handlePublishName unconditionally overwrites the member's published
// name; unlike transfer there is no precondition to fail, so this always
// applies.
func handlePublishName(l *Ledger, author string, t tx.Transaction) error {
	if t.PublishName == nil {
		return fmt.Errorf("ledger: publish_name payload missing")
	}
	l.setName(t.PublishName.Member, t.PublishName.Name)
	return nil
}
