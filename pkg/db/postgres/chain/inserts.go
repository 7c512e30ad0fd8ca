package chain

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	indexermodels "github.com/canopy-network/solanax/pkg/db/models/indexer"
	"github.com/canopy-network/solanax/pkg/db/postgres"
)

// insertBlocks upserts blocks in the given order. processed_at is only set on first insert.
func (db *DB) insertBlocks(ctx context.Context, exec postgres.Executor, blocks []*indexermodels.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO blocks (
			slot, blockhash, parent_slot, block_time, block_height, transaction_count, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slot) DO UPDATE SET
			blockhash = EXCLUDED.blockhash,
			parent_slot = EXCLUDED.parent_slot,
			block_time = EXCLUDED.block_time,
			block_height = EXCLUDED.block_height,
			transaction_count = EXCLUDED.transaction_count,
			raw_data = EXCLUDED.raw_data
	`

	for _, b := range blocks {
		batch.Queue(query,
			b.Slot, b.Blockhash, b.ParentSlot, b.BlockTime, b.BlockHeight, b.TransactionCount, nullJSON(b.RawData),
		)
	}

	return db.executeBatch(ctx, exec, batch)
}

// insertTransactions upserts transactions into the transactions table
func (db *DB) insertTransactions(ctx context.Context, exec postgres.Executor, txs []*indexermodels.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO transactions (
			signature, block_slot, transaction_index, success, fee,
			transaction_type, transaction_label, signer, num_accounts, num_instructions, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (signature) DO UPDATE SET
			block_slot = EXCLUDED.block_slot,
			transaction_index = EXCLUDED.transaction_index,
			success = EXCLUDED.success,
			fee = EXCLUDED.fee,
			transaction_type = EXCLUDED.transaction_type,
			transaction_label = EXCLUDED.transaction_label,
			signer = EXCLUDED.signer,
			num_accounts = EXCLUDED.num_accounts,
			num_instructions = EXCLUDED.num_instructions,
			raw_data = EXCLUDED.raw_data
	`

	for _, tx := range txs {
		batch.Queue(query,
			tx.Signature, tx.BlockSlot, tx.TransactionIndex, tx.Success, tx.Fee,
			tx.TransactionType, tx.TransactionLabel, tx.Signer, tx.NumAccounts, tx.NumInstructions, nullJSON(tx.RawData),
		)
	}

	return db.executeBatch(ctx, exec, batch)
}

// insertInstructions upserts instructions keyed by (signature, index)
func (db *DB) insertInstructions(ctx context.Context, exec postgres.Executor, ixs []*indexermodels.Instruction) error {
	if len(ixs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO instructions (
			transaction_signature, instruction_index, program_id, program_name,
			instruction_type, accounts, data_base58, data_bytes, parsed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_signature, instruction_index) DO UPDATE SET
			program_id = EXCLUDED.program_id,
			program_name = EXCLUDED.program_name,
			instruction_type = EXCLUDED.instruction_type,
			accounts = EXCLUDED.accounts,
			data_base58 = EXCLUDED.data_base58,
			data_bytes = EXCLUDED.data_bytes,
			parsed = EXCLUDED.parsed
	`

	for _, ix := range ixs {
		batch.Queue(query,
			ix.TransactionSignature, ix.InstructionIndex, ix.ProgramID, ix.ProgramName,
			ix.InstructionType, ix.Accounts, ix.DataBase58, ix.DataBytes, nullJSON(ix.Parsed),
		)
	}

	return db.executeBatch(ctx, exec, batch)
}

// insertTransfers upserts decoded transfers keyed by their instruction
func (db *DB) insertTransfers(ctx context.Context, exec postgres.Executor, transfers []*indexermodels.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO transfers (
			transaction_signature, instruction_index, transfer_kind, source, destination, mint, amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_signature, instruction_index) DO UPDATE SET
			transfer_kind = EXCLUDED.transfer_kind,
			source = EXCLUDED.source,
			destination = EXCLUDED.destination,
			mint = EXCLUDED.mint,
			amount = EXCLUDED.amount
	`

	for _, tr := range transfers {
		batch.Queue(query,
			tr.TransactionSignature, tr.InstructionIndex, tr.TransferKind, tr.Source, tr.Destination, tr.Mint, tr.Amount,
		)
	}

	return db.executeBatch(ctx, exec, batch)
}

// mergeAccounts folds account activity into the accounts table: earliest first sighting,
// latest last sighting, summed counters, and the strongest account type.
func (db *DB) mergeAccounts(ctx context.Context, exec postgres.Executor, accounts []*indexermodels.AccountActivity) error {
	if len(accounts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO accounts AS a (
			address, first_seen_slot, last_seen_slot, first_seen_at, last_seen_at,
			transaction_count, signer_count, writable_count, account_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address) DO UPDATE SET
			first_seen_at = CASE
				WHEN EXCLUDED.first_seen_slot < a.first_seen_slot THEN EXCLUDED.first_seen_at
				ELSE COALESCE(a.first_seen_at, EXCLUDED.first_seen_at) END,
			first_seen_slot = LEAST(a.first_seen_slot, EXCLUDED.first_seen_slot),
			last_seen_at = CASE
				WHEN EXCLUDED.last_seen_slot > a.last_seen_slot THEN EXCLUDED.last_seen_at
				ELSE COALESCE(a.last_seen_at, EXCLUDED.last_seen_at) END,
			last_seen_slot = GREATEST(a.last_seen_slot, EXCLUDED.last_seen_slot),
			transaction_count = a.transaction_count + EXCLUDED.transaction_count,
			signer_count = a.signer_count + EXCLUDED.signer_count,
			writable_count = a.writable_count + EXCLUDED.writable_count,
			account_type = CASE
				WHEN 'program' IN (a.account_type, EXCLUDED.account_type) THEN 'program'
				WHEN 'signer' IN (a.account_type, EXCLUDED.account_type) THEN 'signer'
				ELSE 'account' END
	`

	for _, acc := range accounts {
		batch.Queue(query,
			acc.Address, acc.FirstSeenSlot, acc.LastSeenSlot, acc.FirstSeenAt, acc.LastSeenAt,
			acc.TransactionCount, acc.SignerCount, acc.WritableCount, acc.AccountType,
		)
	}

	return db.executeBatch(ctx, exec, batch)
}

// Helper function to execute batch and handle results
func (db *DB) executeBatch(ctx context.Context, exec postgres.Executor, batch *pgx.Batch) error {
	br := exec.SendBatch(ctx, batch)
	defer br.Close()

	// Execute all statements in batch and check for errors
	for i := 0; i < batch.Len(); i++ {
		_, err := br.Exec()
		if err != nil {
			return fmt.Errorf("batch statement %d failed: %w", i, err)
		}
	}

	return nil
}

// nullJSON maps an empty payload to SQL NULL.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Helper function to format error messages
func fmtInsertError(entity string, err error) error {
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", entity, err)
	}
	return nil
}
