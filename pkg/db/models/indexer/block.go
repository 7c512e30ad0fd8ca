package indexer

import (
	"encoding/json"
	"time"
)

const BlocksTableName = "blocks"

type Block struct {
	Slot      uint64 `db:"slot" json:"slot"`
	Blockhash string `db:"blockhash" json:"blockhash"`
	// ParentSlot is nil when the parent is neither stored nor part of the same batch.
	ParentSlot       *uint64         `db:"parent_slot" json:"parent_slot,omitempty"`
	BlockTime        *time.Time      `db:"block_time" json:"block_time,omitempty"`
	BlockHeight      *uint64         `db:"block_height" json:"block_height,omitempty"`
	TransactionCount int             `db:"transaction_count" json:"transaction_count"`
	RawData          json.RawMessage `db:"raw_data" json:"raw_data,omitempty"`
}
