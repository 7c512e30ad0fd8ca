package chain

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	indexermodels "github.com/canopy-network/solanax/pkg/db/models/indexer"
	"github.com/canopy-network/solanax/pkg/db/postgres"
	"github.com/canopy-network/solanax/pkg/db/transform"
)

// newTestDB connects to the database prepared by TestMain with a freshly migrated schema.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dbURL := testDatabaseURL
	if dbURL == "" {
		t.Skip("no PostgreSQL available: Docker is not running and TEST_DATABASE_URL is not set")
	}
	logger := zaptest.NewLogger(t)
	require.NoError(t, postgres.MigrateDown(logger, dbURL))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	db, err := New(ctx, logger, dbURL, true, postgres.GetPoolConfigForComponent("integration_test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func u64(v uint64) *uint64 { return &v }

func blockRows(slot uint64, parent *uint64, sigs ...string) *transform.BlockRows {
	bt := time.Unix(int64(1_700_000_000+slot), 0).UTC()
	rows := &transform.BlockRows{
		Block: &indexermodels.Block{
			Slot:             slot,
			Blockhash:        "hash-" + decimal.NewFromUint64(slot).String(),
			ParentSlot:       parent,
			BlockTime:        &bt,
			TransactionCount: len(sigs),
			RawData:          json.RawMessage(`{"slot":1}`),
		},
	}
	for i, sig := range sigs {
		name := "System Program"
		mint := "mint1"
		rows.Transactions = append(rows.Transactions, &indexermodels.Transaction{
			Signature: sig, BlockSlot: slot, TransactionIndex: i, Success: true, Fee: 5000,
			TransactionType: "sol_transfer", TransactionLabel: "SOL Transfer (System Program)",
			Signer: "payer", NumAccounts: 2, NumInstructions: 2,
		})
		rows.Instructions = append(rows.Instructions,
			&indexermodels.Instruction{
				TransactionSignature: sig, InstructionIndex: 0, ProgramID: "11111111111111111111111111111111",
				ProgramName: &name, InstructionType: "sol_transfer", Accounts: []string{"payer", "dest"},
				Parsed: json.RawMessage(`{"type":"transfer"}`),
			},
			&indexermodels.Instruction{
				TransactionSignature: sig, InstructionIndex: 1, ProgramID: "Other1111111111111111111111111111",
				InstructionType: "unknown", Accounts: []string{}, DataBase58: "3Bxs", DataBytes: []byte{1, 2},
			},
		)
		rows.Transfers = append(rows.Transfers, &indexermodels.Transfer{
			TransactionSignature: sig, InstructionIndex: 0, TransferKind: "token",
			Source: "payer", Destination: "dest", Mint: &mint, Amount: decimal.RequireFromString("340282366920938463463374607431768211455"),
		})
	}
	rows.Accounts = []*indexermodels.AccountActivity{{
		Address: "payer", FirstSeenSlot: slot, LastSeenSlot: slot, FirstSeenAt: &bt, LastSeenAt: &bt,
		TransactionCount: uint64(len(sigs)), SignerCount: uint64(len(sigs)), WritableCount: uint64(len(sigs)),
		AccountType: indexermodels.AccountTypeSigner,
	}}
	return rows
}

func TestCommitBatchIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	batch := []*transform.BlockRows{blockRows(100, u64(99), "a1", "a2"), blockRows(101, u64(100), "b1")}
	counts, err := db.CommitBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, RowCounts{Blocks: 2, Transactions: 3, Instructions: 6, Transfers: 3, Accounts: 1}, counts)

	first, err := db.TableCounts(ctx)
	require.NoError(t, err)
	b101, err := db.GetBlock(ctx, 101)
	require.NoError(t, err)

	_, err = db.CommitBatch(ctx, []*transform.BlockRows{blockRows(100, u64(99), "a1", "a2"), blockRows(101, u64(100), "b1")})
	require.NoError(t, err)

	second, err := db.TableCounts(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("row counts changed on re-commit (-first +second):\n%s", diff)
	}
	again, err := db.GetBlock(ctx, 101)
	require.NoError(t, err)
	if diff := cmp.Diff(b101, again); diff != "" {
		t.Errorf("block changed on re-commit (-first +second):\n%s", diff)
	}
}

func TestCommitBatchParentResolution(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// 99 is never stored; 100 is earlier in the same batch as 101.
	_, err := db.CommitBatch(ctx, []*transform.BlockRows{blockRows(101, u64(100)), blockRows(100, u64(99))})
	require.NoError(t, err)

	b100, err := db.GetBlock(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, b100.ParentSlot)
	b101, err := db.GetBlock(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, u64(100), b101.ParentSlot)

	// A later batch can reference a stored parent.
	_, err = db.CommitBatch(ctx, []*transform.BlockRows{blockRows(102, u64(101))})
	require.NoError(t, err)
	b102, err := db.GetBlock(ctx, 102)
	require.NoError(t, err)
	assert.Equal(t, u64(101), b102.ParentSlot)
}

func TestCommitBatchRollsBackOnFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	good := blockRows(200, nil, "g1")
	bad := blockRows(201, nil, "x1")
	// An instruction for a transaction that does not exist violates the foreign key.
	bad.Instructions = append(bad.Instructions, &indexermodels.Instruction{
		TransactionSignature: "missing", InstructionIndex: 0, ProgramID: "p", InstructionType: "unknown", Accounts: []string{},
	})

	_, err := db.CommitBatch(ctx, []*transform.BlockRows{good, bad})
	require.Error(t, err)

	for _, slot := range []uint64{200, 201} {
		ok, err := db.HasBlock(ctx, slot)
		require.NoError(t, err)
		assert.False(t, ok, "slot %d should be rolled back", slot)
	}
	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[indexermodels.AccountsTableName])
}

func TestCommitBatchRemovesStaleRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.CommitBatch(ctx, []*transform.BlockRows{blockRows(300, nil, "s1", "s2")})
	require.NoError(t, err)

	// Re-fetched block now has one transaction with a single instruction and no transfer.
	refetched := blockRows(300, nil, "s1")
	refetched.Transactions[0].NumInstructions = 1
	refetched.Instructions = refetched.Instructions[:1]
	refetched.Transfers = nil
	_, err = db.CommitBatch(ctx, []*transform.BlockRows{refetched})
	require.NoError(t, err)

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[indexermodels.TransactionsTableName])
	assert.Equal(t, int64(1), counts[indexermodels.InstructionsTableName])
	assert.Zero(t, counts[indexermodels.TransfersTableName])
}

func TestCommitBatchAccountsMonotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.CommitBatch(ctx, []*transform.BlockRows{blockRows(401, nil, "m1")})
	require.NoError(t, err)
	before, err := db.GetAccount(ctx, "payer")
	require.NoError(t, err)

	earlier := blockRows(400, nil, "m0")
	earlier.Accounts[0].AccountType = indexermodels.AccountTypeProgram
	_, err = db.CommitBatch(ctx, []*transform.BlockRows{earlier})
	require.NoError(t, err)
	after, err := db.GetAccount(ctx, "payer")
	require.NoError(t, err)

	assert.Equal(t, uint64(400), after.FirstSeenSlot)
	assert.Equal(t, uint64(401), after.LastSeenSlot)
	assert.True(t, after.FirstSeenAt.Before(*before.FirstSeenAt))
	assert.GreaterOrEqual(t, after.TransactionCount, before.TransactionCount)
	assert.Equal(t, indexermodels.AccountTypeProgram, after.AccountType)
}

func TestLoadRegistrySeeded(t *testing.T) {
	db := newTestDB(t)

	entries, err := db.LoadRegistry(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	byID := make(map[string]string, len(entries))
	for _, e := range entries {
		byID[e.ProgramID] = e.Category
	}
	assert.Equal(t, "DEX", byID["JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"])
	assert.Equal(t, "System", byID["11111111111111111111111111111111"])
}
