package transform

import (
	"errors"
	"fmt"

	"github.com/canopy-network/solanax/pkg/db/models/indexer"
	"github.com/canopy-network/solanax/pkg/indexer/types"
)

var errMissingSignature = errors.New("transaction has no signature")

// BlockRows holds every row derived from one classified block.
type BlockRows struct {
	Block        *indexer.Block
	Transactions []*indexer.Transaction
	Instructions []*indexer.Instruction
	Transfers    []*indexer.Transfer
	Accounts     []*indexer.AccountActivity
}

// Block converts a classified block to its rows.
// ParentSlot is copied as reported by the node; the store decides whether it can be kept.
func Block(cb *types.ClassifiedBlock) (*BlockRows, error) {
	raw := cb.Block
	rows := &BlockRows{
		Block: &indexer.Block{
			Slot:             raw.Slot,
			Blockhash:        raw.Blockhash,
			ParentSlot:       raw.ParentSlot,
			BlockTime:        raw.BlockTime,
			BlockHeight:      raw.BlockHeight,
			TransactionCount: len(cb.Transactions),
			RawData:          raw.Payload,
		},
		Transactions: make([]*indexer.Transaction, 0, len(cb.Transactions)),
		Instructions: make([]*indexer.Instruction, 0, cb.InstructionCount()),
	}

	seen := make(map[string]int, len(cb.Transactions))
	for i := range cb.Transactions {
		ct := &cb.Transactions[i]
		sig := ct.Transaction.Signature
		if sig == "" {
			return nil, fmt.Errorf("slot %d tx %d: %w", raw.Slot, ct.Index, errMissingSignature)
		}
		if prev, dup := seen[sig]; dup {
			return nil, fmt.Errorf("slot %d: signature %s repeated at tx %d and %d", raw.Slot, sig, prev, ct.Index)
		}
		seen[sig] = ct.Index

		rows.Transactions = append(rows.Transactions, Transaction(raw.Slot, ct))
		ixs, transfers := Instructions(ct)
		rows.Instructions = append(rows.Instructions, ixs...)
		rows.Transfers = append(rows.Transfers, transfers...)
	}
	rows.Accounts = Accounts(cb)

	return rows, nil
}
