package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/shopspring/decimal"
)

var (
	errIncompleteTransfer = errors.New("transfer is missing amount, source or destination")
	errInvalidAmount      = errors.New("amount is not a non-negative integer of at most 39 digits")
)

// maxTokenAmount is the largest value a NUMERIC(39,0) column holds.
var maxTokenAmount = decimal.New(1, 39).Sub(decimal.New(1, 0))

type parsedInstruction struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

type systemTransferInfo struct {
	Lamports    *uint64 `json:"lamports"`
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
}

type tokenTransferInfo struct {
	Amount      json.RawMessage `json:"amount"`
	TokenAmount *struct {
		Amount string `json:"amount"`
	} `json:"tokenAmount"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Mint        string `json:"mint"`
}

// ParseSystemTransfer extracts a lamport transfer from a parsed System Program
// instruction. It returns nil, nil for any other system instruction.
func ParseSystemTransfer(parsed json.RawMessage) (*types.Transfer, error) {
	p, ok, err := decodeParsed(parsed, "transfer", "transferWithSeed")
	if !ok || err != nil {
		return nil, err
	}
	var info systemTransferInfo
	if err := json.Unmarshal(p.Info, &info); err != nil {
		return nil, fmt.Errorf("system %s info: %w", p.Type, err)
	}
	if info.Lamports == nil || info.Source == "" || info.Destination == "" {
		return nil, errIncompleteTransfer
	}
	return &types.Transfer{
		Kind:        types.TransferKindSOL,
		Source:      info.Source,
		Destination: info.Destination,
		Amount:      decimal.NewFromUint64(*info.Lamports),
	}, nil
}

// ParseTokenTransfer extracts a raw-unit token transfer from a parsed SPL Token
// (or Token-2022) transfer or transferChecked instruction. Unchecked transfers
// carry no mint.
func ParseTokenTransfer(parsed json.RawMessage) (*types.Transfer, error) {
	p, ok, err := decodeParsed(parsed, "transfer", "transferChecked")
	if !ok || err != nil {
		return nil, err
	}
	var info tokenTransferInfo
	if err := json.Unmarshal(p.Info, &info); err != nil {
		return nil, fmt.Errorf("token %s info: %w", p.Type, err)
	}

	var amount decimal.Decimal
	switch {
	case len(info.Amount) > 0:
		amount, err = decimal.NewFromString(string(bytes.Trim(info.Amount, `"`)))
	case info.TokenAmount != nil:
		amount, err = decimal.NewFromString(info.TokenAmount.Amount)
	default:
		err = errIncompleteTransfer
	}
	if err == nil && (!amount.IsInteger() || amount.IsNegative() || amount.GreaterThan(maxTokenAmount)) {
		err = fmt.Errorf("%w: %s", errInvalidAmount, amount.String())
	}
	if err != nil {
		return nil, fmt.Errorf("token %s amount: %w", p.Type, err)
	}
	if info.Source == "" || info.Destination == "" {
		return nil, errIncompleteTransfer
	}
	return &types.Transfer{
		Kind:        types.TransferKindToken,
		Source:      info.Source,
		Destination: info.Destination,
		Mint:        info.Mint,
		Amount:      amount,
	}, nil
}

// decodeParsed reports ok when the parsed payload is one of the wanted instruction types.
func decodeParsed(parsed json.RawMessage, wanted ...string) (parsedInstruction, bool, error) {
	var p parsedInstruction
	trimmed := bytes.TrimSpace(parsed)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return p, false, nil
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return p, false, fmt.Errorf("parsed instruction: %w", err)
	}
	for _, w := range wanted {
		if p.Type == w {
			return p, true, nil
		}
	}
	return p, false, nil
}
