package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/canopy-network/solanax/pkg/indexer/types"
)

// DecodeError reports a getBlock result whose shape could not be mapped.
// Fetching the same slot again returns the same bytes, so it is not retried.
type DecodeError struct {
	Slot uint64
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode block %d: %v", e.Slot, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// GetBlock returns the block at slot with full, jsonParsed transaction details.
func (c *HTTPClient) GetBlock(ctx context.Context, slot uint64, maxSupportedVersion uint8) (*types.RawBlock, error) {
	cfg := map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": maxSupportedVersion,
		"transactionDetails":             "full",
		"rewards":                        false,
		"commitment":                     c.blockCommitment(),
	}
	raw, err := c.call(ctx, methodGetBlock, slot, cfg)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, fmt.Errorf("slot %d: %w", slot, ErrBlockNotAvailable)
	}
	return decodeBlock(slot, raw)
}

// getBlock does not accept "processed".
func (c *HTTPClient) blockCommitment() string {
	if c.commitment == "processed" {
		return "confirmed"
	}
	return c.commitment
}

func decodeBlock(slot uint64, raw json.RawMessage) (*types.RawBlock, error) {
	var bw blockWire
	if err := json.Unmarshal(raw, &bw); err != nil {
		return nil, &DecodeError{Slot: slot, Err: err}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Slot: slot, Err: err}
	}
	delete(fields, "transactions")
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, &DecodeError{Slot: slot, Err: err}
	}

	block := &types.RawBlock{
		Slot:         slot,
		Blockhash:    bw.Blockhash,
		ParentSlot:   bw.ParentSlot,
		BlockHeight:  bw.BlockHeight,
		Transactions: make([]types.RawTransaction, 0, len(bw.Transactions)),
		Payload:      payload,
	}
	if bw.BlockTime != nil {
		t := time.Unix(*bw.BlockTime, 0).UTC()
		block.BlockTime = &t
	}

	for i, txRaw := range bw.Transactions {
		tx, err := decodeTransaction(txRaw)
		if err != nil {
			return nil, &DecodeError{Slot: slot, Err: fmt.Errorf("transaction %d: %w", i, err)}
		}
		block.Transactions = append(block.Transactions, tx)
	}
	return block, nil
}

func decodeTransaction(raw json.RawMessage) (types.RawTransaction, error) {
	var tw txWire
	if err := json.Unmarshal(raw, &tw); err != nil {
		return types.RawTransaction{}, err
	}
	if len(tw.Transaction.Signatures) == 0 {
		return types.RawTransaction{}, fmt.Errorf("transaction has no signatures")
	}

	tx := types.RawTransaction{
		Signature: tw.Transaction.Signatures[0],
		Payload:   raw,
	}
	if tw.Meta != nil {
		tx.Success = isNull(tw.Meta.Err)
		tx.Fee = tw.Meta.Fee
	}

	tx.Accounts = accountMetas(&tw)
	for _, iw := range tw.Transaction.Message.Instructions {
		tx.Instructions = append(tx.Instructions, decodeInstruction(iw, tx.Accounts))
	}
	return tx, nil
}

// accountMetas builds the ordered account list. Bare string keys get their
// signer/writable flags from the message header, followed by any addresses
// loaded from lookup tables.
func accountMetas(tw *txWire) []types.AccountMeta {
	msg := &tw.Transaction.Message
	keys := msg.AccountKeys
	metas := make([]types.AccountMeta, 0, len(keys))

	for i, k := range keys {
		m := types.AccountMeta{Address: k.Pubkey, Signer: k.Signer, Writable: k.Writable}
		if !k.flagged && msg.Header != nil {
			h := msg.Header
			m.Signer = i < h.NumRequiredSignatures
			if m.Signer {
				m.Writable = i < h.NumRequiredSignatures-h.NumReadonlySignedAccounts
			} else {
				m.Writable = i < len(keys)-h.NumReadonlyUnsignedAccounts
			}
		}
		metas = append(metas, m)
	}

	staticOnly := len(keys) == 0 || !keys[0].flagged
	if staticOnly && tw.Meta != nil && tw.Meta.LoadedAddresses != nil {
		for _, addr := range tw.Meta.LoadedAddresses.Writable {
			metas = append(metas, types.AccountMeta{Address: addr, Writable: true})
		}
		for _, addr := range tw.Meta.LoadedAddresses.Readonly {
			metas = append(metas, types.AccountMeta{Address: addr})
		}
	}

	if tw.Meta != nil {
		for i := range metas {
			if i < len(tw.Meta.PreBalances) {
				metas[i].PreBalance = tw.Meta.PreBalances[i]
			}
			if i < len(tw.Meta.PostBalances) {
				metas[i].PostBalance = tw.Meta.PostBalances[i]
			}
		}
	}
	return metas
}

// decodeInstruction resolves account indexes against the transaction's account
// list. Indexes that point outside it are dropped and noted in Malformed; the
// instruction is kept so the rest of the block still loads.
func decodeInstruction(iw instructionWire, accounts []types.AccountMeta) types.RawInstruction {
	ix := types.RawInstruction{
		ProgramID:   iw.ProgramID,
		Program:     iw.Program,
		Data:        iw.Data,
		StackHeight: iw.StackHeight,
	}
	if !isNull(iw.Parsed) {
		ix.Parsed = iw.Parsed
	}
	if ix.ProgramID == "" && iw.ProgramIDIndex != nil {
		idx := *iw.ProgramIDIndex
		if idx < 0 || idx >= len(accounts) {
			ix.Malformed = fmt.Sprintf("program id index %d out of range", idx)
		} else {
			ix.ProgramID = accounts[idx].Address
		}
	}
	for _, ref := range iw.Accounts {
		if !ref.IsIndex {
			ix.Accounts = append(ix.Accounts, ref.Address)
			continue
		}
		if ref.Index < 0 || ref.Index >= len(accounts) {
			if ix.Malformed == "" {
				ix.Malformed = fmt.Sprintf("account index %d out of range", ref.Index)
			}
			continue
		}
		ix.Accounts = append(ix.Accounts, accounts[ref.Index].Address)
	}
	return ix
}
