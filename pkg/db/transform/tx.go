package transform

import (
	"github.com/canopy-network/solanax/pkg/db/models/indexer"
	"github.com/canopy-network/solanax/pkg/indexer/types"
)

// Transaction maps a classified transaction into its row. The signer is the fee payer,
// i.e. the first account key.
func Transaction(slot uint64, ct *types.ClassifiedTransaction) *indexer.Transaction {
	tx := ct.Transaction
	return &indexer.Transaction{
		Signature:        tx.Signature,
		BlockSlot:        slot,
		TransactionIndex: ct.Index,
		Success:          tx.Success,
		Fee:              tx.Fee,
		TransactionType:  ct.Category.Slug(),
		TransactionLabel: ct.Label,
		Signer:           tx.Signer(),
		NumAccounts:      len(tx.Accounts),
		NumInstructions:  len(tx.Instructions),
		RawData:          tx.Payload,
	}
}
