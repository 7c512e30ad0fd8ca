package indexer

import "encoding/json"

const TransactionsTableName = "transactions"

// Transaction is one row of the transactions table.
// TransactionType holds the category slug, TransactionLabel the display label with program names.
type Transaction struct {
	Signature        string          `db:"signature" json:"signature"`
	BlockSlot        uint64          `db:"block_slot" json:"block_slot"`
	TransactionIndex int             `db:"transaction_index" json:"transaction_index"`
	Success          bool            `db:"success" json:"success"`
	Fee              uint64          `db:"fee" json:"fee"`
	TransactionType  string          `db:"transaction_type" json:"transaction_type"`
	TransactionLabel string          `db:"transaction_label" json:"transaction_label"`
	Signer           string          `db:"signer" json:"signer"`
	NumAccounts      int             `db:"num_accounts" json:"num_accounts"`
	NumInstructions  int             `db:"num_instructions" json:"num_instructions"`
	RawData          json.RawMessage `db:"raw_data" json:"raw_data,omitempty"`
}
