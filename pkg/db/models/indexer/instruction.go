package indexer

import "encoding/json"

const InstructionsTableName = "instructions"

type Instruction struct {
	TransactionSignature string  `db:"transaction_signature" json:"transaction_signature"`
	InstructionIndex     int     `db:"instruction_index" json:"instruction_index"`
	ProgramID            string  `db:"program_id" json:"program_id"`
	ProgramName          *string `db:"program_name" json:"program_name,omitempty"`
	// InstructionType is the category slug assigned by the instruction classifier.
	InstructionType string   `db:"instruction_type" json:"instruction_type"`
	Accounts        []string `db:"accounts" json:"accounts"`
	// DataBase58 is the exact encoded payload; DataBytes is its decoding, nil when it does not decode.
	DataBase58 string          `db:"data_base58" json:"data_base58"`
	DataBytes  []byte          `db:"data_bytes" json:"data_bytes,omitempty"`
	Parsed     json.RawMessage `db:"parsed" json:"parsed,omitempty"`
}
