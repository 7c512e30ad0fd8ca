package chain

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	indexermodels "github.com/canopy-network/solanax/pkg/db/models/indexer"
	"github.com/canopy-network/solanax/pkg/registry"
)

// LoadPrograms reads every program_registry row.
func (db *DB) LoadPrograms(ctx context.Context) ([]*indexermodels.Program, error) {
	query := `
		SELECT program_id, program_name, program_type, description
		FROM program_registry
		ORDER BY program_id
	`
	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query program registry: %w", err)
	}
	programs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[indexermodels.Program])
	if err != nil {
		return nil, fmt.Errorf("failed to scan program registry: %w", err)
	}
	return programs, nil
}

// LoadRegistry returns the stored program registry as registry entries.
func (db *DB) LoadRegistry(ctx context.Context) ([]registry.Entry, error) {
	programs, err := db.LoadPrograms(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]registry.Entry, 0, len(programs))
	for _, p := range programs {
		e := registry.Entry{ProgramID: p.ProgramID, Name: p.ProgramName}
		if p.ProgramType != nil {
			e.Category = *p.ProgramType
		}
		if p.Description != nil {
			e.Description = *p.Description
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// HasBlock checks if a block exists at a given slot
func (db *DB) HasBlock(ctx context.Context, slot uint64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM blocks WHERE slot = $1)`

	var exists bool
	err := db.QueryRow(ctx, query, slot).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check block existence: %w", err)
	}

	return exists, nil
}

// GetBlock retrieves a stored block by slot
func (db *DB) GetBlock(ctx context.Context, slot uint64) (*indexermodels.Block, error) {
	query := `
		SELECT slot, blockhash, parent_slot, block_time, block_height, transaction_count, raw_data
		FROM blocks
		WHERE slot = $1
	`
	rows, err := db.Query(ctx, query, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to query block %d: %w", slot, err)
	}
	block, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[indexermodels.Block])
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", slot, err)
	}
	return block, nil
}

// GetAccount retrieves the activity aggregate for an address
func (db *DB) GetAccount(ctx context.Context, address string) (*indexermodels.AccountActivity, error) {
	query := `
		SELECT address, first_seen_slot, last_seen_slot, first_seen_at, last_seen_at,
			transaction_count, signer_count, writable_count, account_type
		FROM accounts
		WHERE address = $1
	`
	rows, err := db.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("failed to query account %s: %w", address, err)
	}
	acc, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[indexermodels.AccountActivity])
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	return acc, nil
}

// LatestSlot returns the highest stored slot, or false when no block is stored.
func (db *DB) LatestSlot(ctx context.Context) (uint64, bool, error) {
	var slot *int64
	if err := db.QueryRow(ctx, `SELECT MAX(slot) FROM blocks`).Scan(&slot); err != nil {
		return 0, false, fmt.Errorf("failed to query latest slot: %w", err)
	}
	if slot == nil {
		return 0, false, nil
	}
	return uint64(*slot), true, nil
}

// TableCounts returns the row count of every indexed table.
func (db *DB) TableCounts(ctx context.Context) (map[string]int64, error) {
	tables := []string{
		indexermodels.BlocksTableName,
		indexermodels.TransactionsTableName,
		indexermodels.InstructionsTableName,
		indexermodels.TransfersTableName,
		indexermodels.AccountsTableName,
		indexermodels.ProgramRegistryTableName,
	}
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pgx.Identifier{table}.Sanitize())
		if err := db.QueryRow(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
