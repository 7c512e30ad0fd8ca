package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// AccountMeta is one entry of a transaction's account list, in message order.
type AccountMeta struct {
	Address     string `json:"address"`
	Signer      bool   `json:"signer"`
	Writable    bool   `json:"writable"`
	PreBalance  uint64 `json:"preBalance"`
	PostBalance uint64 `json:"postBalance"`
}

// RawInstruction is a top-level instruction as returned by the node.
// Parsed instructions (jsonParsed encoding) carry Program and Parsed; the rest carry base58 Data.
type RawInstruction struct {
	ProgramID   string          `json:"programId"`
	Program     string          `json:"program,omitempty"`
	Accounts    []string        `json:"accounts,omitempty"`
	Data        string          `json:"data,omitempty"`
	Parsed      json.RawMessage `json:"parsed,omitempty"`
	StackHeight *int            `json:"stackHeight,omitempty"`
	// Malformed describes references that could not be resolved while decoding.
	Malformed string `json:"malformed,omitempty"`
}

type RawTransaction struct {
	Signature    string           `json:"signature"`
	Success      bool             `json:"success"`
	Fee          uint64           `json:"fee"`
	Accounts     []AccountMeta    `json:"accounts"`
	Instructions []RawInstruction `json:"instructions"`
	// Payload is the node's transaction object, kept verbatim for audit.
	Payload json.RawMessage `json:"-"`
}

// Signer returns the fee payer (first account key), or "" for an empty account list.
func (t *RawTransaction) Signer() string {
	if len(t.Accounts) == 0 {
		return ""
	}
	return t.Accounts[0].Address
}

type RawBlock struct {
	Slot         uint64           `json:"slot"`
	Blockhash    string           `json:"blockhash"`
	ParentSlot   *uint64          `json:"parentSlot,omitempty"`
	BlockTime    *time.Time       `json:"blockTime,omitempty"`
	BlockHeight  *uint64          `json:"blockHeight,omitempty"`
	Transactions []RawTransaction `json:"transactions"`
	// Payload is the block object without transactions, kept verbatim for audit.
	Payload json.RawMessage `json:"-"`
}

// Transfer is the value movement decoded from a parsed system or token transfer.
type Transfer struct {
	Kind        TransferKind    `json:"kind"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Mint        string          `json:"mint,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

type TransferKind string

const (
	TransferKindSOL   TransferKind = "sol"
	TransferKindToken TransferKind = "token"
)

type ClassifiedInstruction struct {
	Index       int
	Instruction RawInstruction
	// ProgramName is empty when the registry does not know the program.
	ProgramName string
	Category    Category
	Transfer    *Transfer
	// Anomaly describes an unexpected instruction shape; empty for well-formed input.
	Anomaly string
}

type ClassifiedTransaction struct {
	Index        int
	Transaction  *RawTransaction
	Category     Category
	Label        string
	Instructions []ClassifiedInstruction
}

// Anomalies counts instructions whose shape could not be interpreted.
func (t *ClassifiedTransaction) Anomalies() int {
	n := 0
	for i := range t.Instructions {
		if t.Instructions[i].Anomaly != "" {
			n++
		}
	}
	return n
}

type ClassifiedBlock struct {
	Block        *RawBlock
	Transactions []ClassifiedTransaction
}

func (b *ClassifiedBlock) Slot() uint64 {
	return b.Block.Slot
}

func (b *ClassifiedBlock) InstructionCount() int {
	n := 0
	for i := range b.Transactions {
		n += len(b.Transactions[i].Instructions)
	}
	return n
}
