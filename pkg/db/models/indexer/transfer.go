package indexer

import "github.com/shopspring/decimal"

const TransfersTableName = "transfers"

// Transfer is the value movement decoded from a system or SPL token transfer instruction.
// Amount is in lamports for SOL transfers and raw token units otherwise.
type Transfer struct {
	TransactionSignature string          `db:"transaction_signature" json:"transaction_signature"`
	InstructionIndex     int             `db:"instruction_index" json:"instruction_index"`
	TransferKind         string          `db:"transfer_kind" json:"transfer_kind"`
	Source               string          `db:"source" json:"source"`
	Destination          string          `db:"destination" json:"destination"`
	Mint                 *string         `db:"mint" json:"mint,omitempty"`
	Amount               decimal.Decimal `db:"amount" json:"amount"`
}
