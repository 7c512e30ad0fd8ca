package types

import (
	"time"
)

// BlockIndexedEvent is published after the batch holding the block has committed,
// so every row it describes is already queryable.
type BlockIndexedEvent struct {
	Event        string     `json:"event"` // Always "block.indexed"
	Slot         uint64     `json:"slot"`
	Blockhash    string     `json:"blockhash"`
	BlockTime    *time.Time `json:"blockTime,omitempty"`
	Transactions int        `json:"transactions"`
	BatchID      int        `json:"batchId"`
	Timestamp    time.Time  `json:"timestamp"` // Event publication time (UTC)
}

// GetChannel returns the Redis Pub/Sub channel name for an event type.
// Channel format: solana:{eventType}
func GetChannel(eventType string) string {
	return "solana:" + eventType
}

// GetBlockIndexedChannel returns the Redis channel for block.indexed events.
func GetBlockIndexedChannel() string {
	return GetChannel("block.indexed")
}
