package chain

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	indexermodels "github.com/canopy-network/solanax/pkg/db/models/indexer"
	"github.com/canopy-network/solanax/pkg/db/postgres"
	"github.com/canopy-network/solanax/pkg/db/transform"
)

// RowCounts reports how many rows of each kind one batch commit wrote.
type RowCounts struct {
	Blocks       int `json:"blocks"`
	Transactions int `json:"transactions"`
	Instructions int `json:"instructions"`
	Transfers    int `json:"transfers"`
	Accounts     int `json:"accounts"`
}

// Add accumulates other into c.
func (c *RowCounts) Add(other RowCounts) {
	c.Blocks += other.Blocks
	c.Transactions += other.Transactions
	c.Instructions += other.Instructions
	c.Transfers += other.Transfers
	c.Accounts += other.Accounts
}

// CommitBatch writes every row of the batch in a single transaction. Either all
// blocks of the batch are stored or none are.
//
// Re-committing a slot leaves blocks, transactions, instructions and transfers
// identical to a single commit; account counters only grow.
func (db *DB) CommitBatch(ctx context.Context, batch []*transform.BlockRows) (RowCounts, error) {
	var counts RowCounts
	if len(batch) == 0 {
		return counts, nil
	}

	rows := make([]*transform.BlockRows, len(batch))
	copy(rows, batch)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Block.Slot < rows[j].Block.Slot })

	var (
		blocks      = make([]*indexermodels.Block, 0, len(rows))
		txs         []*indexermodels.Transaction
		ixs         []*indexermodels.Instruction
		transfers   []*indexermodels.Transfer
		accountSets = make([][]*indexermodels.AccountActivity, 0, len(rows))
		slots       = make([]int64, 0, len(rows))
		signatures  []string
		instrCounts []int32
	)
	for _, r := range rows {
		b := *r.Block
		blocks = append(blocks, &b)
		slots = append(slots, int64(b.Slot))
		txs = append(txs, r.Transactions...)
		ixs = append(ixs, r.Instructions...)
		transfers = append(transfers, r.Transfers...)
		accountSets = append(accountSets, r.Accounts)
		for _, tx := range r.Transactions {
			signatures = append(signatures, tx.Signature)
			instrCounts = append(instrCounts, int32(tx.NumInstructions))
		}
	}
	accounts := transform.MergeAccounts(accountSets...)

	err := db.BeginFunc(ctx, func(tx pgx.Tx) error {
		if err := db.resolveParents(ctx, tx, blocks); err != nil {
			return err
		}
		if err := fmtInsertError("blocks", db.insertBlocks(ctx, tx, blocks)); err != nil {
			return err
		}
		if err := db.deleteStaleRows(ctx, tx, slots, signatures, instrCounts); err != nil {
			return err
		}
		if err := fmtInsertError("transactions", db.insertTransactions(ctx, tx, txs)); err != nil {
			return err
		}
		if err := fmtInsertError("instructions", db.insertInstructions(ctx, tx, ixs)); err != nil {
			return err
		}
		if err := fmtInsertError("transfers", db.insertTransfers(ctx, tx, transfers)); err != nil {
			return err
		}
		return fmtInsertError("accounts", db.mergeAccounts(ctx, tx, accounts))
	})
	if err != nil {
		return counts, err
	}

	counts = RowCounts{
		Blocks:       len(blocks),
		Transactions: len(txs),
		Instructions: len(ixs),
		Transfers:    len(transfers),
		Accounts:     len(accounts),
	}
	db.Logger.Debug("Committed batch",
		zap.Int64("first_slot", slots[0]),
		zap.Int64("last_slot", slots[len(slots)-1]),
		zap.Int("blocks", counts.Blocks),
		zap.Int("transactions", counts.Transactions),
		zap.Int("instructions", counts.Instructions))
	return counts, nil
}

// resolveParents keeps a block's parent slot only when the parent is already stored
// or precedes it in the same batch. blocks must be sorted by slot.
func (db *DB) resolveParents(ctx context.Context, exec postgres.Executor, blocks []*indexermodels.Block) error {
	parents := make([]int64, 0, len(blocks))
	for _, b := range blocks {
		if b.ParentSlot != nil {
			parents = append(parents, int64(*b.ParentSlot))
		}
	}
	if len(parents) == 0 {
		return nil
	}

	stored, err := db.existingSlots(ctx, exec, parents)
	if err != nil {
		return err
	}

	inBatch := make(map[uint64]struct{}, len(blocks))
	for _, b := range blocks {
		if b.ParentSlot != nil {
			p := *b.ParentSlot
			_, earlier := inBatch[p]
			_, known := stored[p]
			if !earlier && !known {
				db.Logger.Debug("Parent slot not indexed, storing without back-reference",
					zap.Uint64("slot", b.Slot),
					zap.Uint64("parent_slot", p))
				b.ParentSlot = nil
			}
		}
		inBatch[b.Slot] = struct{}{}
	}
	return nil
}

func (db *DB) existingSlots(ctx context.Context, exec postgres.Executor, slots []int64) (map[uint64]struct{}, error) {
	rows, err := exec.Query(ctx, `SELECT slot FROM blocks WHERE slot = ANY($1)`, slots)
	if err != nil {
		return nil, fmt.Errorf("query parent slots: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan parent slots: %w", err)
	}
	out := make(map[uint64]struct{}, len(found))
	for _, s := range found {
		out[uint64(s)] = struct{}{}
	}
	return out, nil
}

// deleteStaleRows removes rows a previous commit of the same slots wrote that the new data
// no longer contains: transactions missing from a block, instructions past a transaction's
// new instruction count, and every transfer of the batch (transfers are re-inserted).
func (db *DB) deleteStaleRows(ctx context.Context, exec postgres.Executor, slots []int64, signatures []string, instrCounts []int32) error {
	if signatures == nil {
		signatures = []string{}
	}
	batch := &pgx.Batch{}
	batch.Queue(`
		DELETE FROM transactions
		WHERE block_slot = ANY($1) AND NOT (signature = ANY($2))
	`, slots, signatures)
	batch.Queue(`
		DELETE FROM instructions i
		USING unnest($1::text[], $2::int[]) AS n(signature, instruction_count)
		WHERE i.transaction_signature = n.signature AND i.instruction_index >= n.instruction_count
	`, signatures, instrCounts)
	batch.Queue(`DELETE FROM transfers WHERE transaction_signature = ANY($1)`, signatures)

	if err := db.executeBatch(ctx, exec, batch); err != nil {
		return fmt.Errorf("delete stale rows: %w", err)
	}
	return nil
}
