package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/canopy-network/solanax/pkg/classify"
	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/canopy-network/solanax/pkg/registry"
	"github.com/canopy-network/solanax/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parsedBlock = `{
  "blockHeight": 250000100,
  "blockTime": 1700000000,
  "blockhash": "5YtnQ1yv1yQyB7Hq8m8rWg8p3sKfQv2vJZc5n1X1XyZd",
  "parentSlot": 299,
  "previousBlockhash": "9pSx9a2tQYg5Eo9Vt4bKdF4oK3y1P8xvSgH1b6ZLv7Nq",
  "transactions": [
    {
      "meta": {"err": null, "fee": 5000, "preBalances": [1000000, 0, 1], "postBalances": [994000, 1000, 1]},
      "transaction": {
        "signatures": ["sigA"],
        "message": {
          "accountKeys": [
            {"pubkey": "payer111", "signer": true, "writable": true, "source": "transaction"},
            {"pubkey": "dest222", "signer": false, "writable": true, "source": "transaction"},
            {"pubkey": "11111111111111111111111111111111", "signer": false, "writable": false, "source": "transaction"}
          ],
          "instructions": [
            {
              "parsed": {"type": "transfer", "info": {"lamports": 1000, "source": "payer111", "destination": "dest222"}},
              "program": "system",
              "programId": "11111111111111111111111111111111",
              "stackHeight": null
            }
          ]
        }
      },
      "version": 0
    },
    {
      "meta": {"err": {"InstructionError": [0, "Custom"]}, "fee": 7000, "preBalances": [5, 6], "postBalances": [4, 6]},
      "transaction": {
        "signatures": ["sigB", "sigB2"],
        "message": {
          "accountKeys": [
            {"pubkey": "payer333", "signer": true, "writable": true, "source": "transaction"},
            {"pubkey": "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", "signer": false, "writable": false, "source": "transaction"}
          ],
          "instructions": [
            {"accounts": ["payer333"], "data": "3Bxs4h24hBtQy9rw", "programId": "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", "stackHeight": 1}
          ]
        }
      },
      "version": "legacy"
    }
  ]
}`

const compiledBlock = `{
  "blockHeight": null,
  "blockTime": null,
  "blockhash": "hashC",
  "parentSlot": 41,
  "transactions": [
    {
      "meta": {
        "err": null, "fee": 5000,
        "preBalances": [10, 20, 30, 40, 50, 60], "postBalances": [9, 21, 30, 40, 50, 60],
        "loadedAddresses": {"writable": ["lutW"], "readonly": ["lutR"]}
      },
      "transaction": {
        "signatures": ["sigC"],
        "message": {
          "header": {"numRequiredSignatures": 2, "numReadonlySignedAccounts": 1, "numReadonlyUnsignedAccounts": 1},
          "accountKeys": ["k0", "k1", "k2", "prog"],
          "instructions": [{"programIdIndex": 3, "accounts": [0, 2, 4], "data": "3Bxs"}]
        }
      }
    }
  ]
}`

func TestGetBlockDecodesParsedEncoding(t *testing.T) {
	var seen rpcCall
	client := newTestRPCClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = decodeCall(t, r)
		writeResult(w, seen.ID, parsedBlock)
	}))

	block, err := client.GetBlock(context.Background(), 300, rpc.MaxSupportedTransactionVersion)
	require.NoError(t, err)

	assert.Equal(t, "getBlock", seen.Method)
	require.Len(t, seen.Params, 2)
	assert.JSONEq(t, `300`, string(seen.Params[0]))
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(seen.Params[1], &cfg))
	assert.Equal(t, "jsonParsed", cfg["encoding"])
	assert.Equal(t, float64(0), cfg["maxSupportedTransactionVersion"])
	assert.Equal(t, "full", cfg["transactionDetails"])
	assert.Equal(t, "finalized", cfg["commitment"])

	assert.Equal(t, uint64(300), block.Slot)
	assert.Equal(t, "5YtnQ1yv1yQyB7Hq8m8rWg8p3sKfQv2vJZc5n1X1XyZd", block.Blockhash)
	require.NotNil(t, block.ParentSlot)
	assert.Equal(t, uint64(299), *block.ParentSlot)
	require.NotNil(t, block.BlockTime)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *block.BlockTime)
	require.NotNil(t, block.BlockHeight)
	assert.Equal(t, uint64(250000100), *block.BlockHeight)
	assert.NotContains(t, string(block.Payload), "transactions")

	require.Len(t, block.Transactions, 2)
	first := block.Transactions[0]
	assert.Equal(t, "sigA", first.Signature)
	assert.True(t, first.Success)
	assert.Equal(t, uint64(5000), first.Fee)
	assert.Equal(t, "payer111", first.Signer())
	require.Len(t, first.Accounts, 3)
	assert.True(t, first.Accounts[0].Signer)
	assert.False(t, first.Accounts[2].Writable)
	assert.Equal(t, uint64(994000), first.Accounts[0].PostBalance)
	require.Len(t, first.Instructions, 1)
	assert.Equal(t, "system", first.Instructions[0].Program)
	assert.Contains(t, string(first.Instructions[0].Parsed), `"lamports": 1000`)
	assert.Contains(t, string(first.Payload), `"sigA"`)

	second := block.Transactions[1]
	assert.Equal(t, "sigB", second.Signature)
	assert.False(t, second.Success)
	assert.Equal(t, uint64(7000), second.Fee)
	require.Len(t, second.Instructions, 1)
	ix := second.Instructions[0]
	assert.Equal(t, "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", ix.ProgramID)
	assert.Empty(t, ix.Program)
	assert.Nil(t, ix.Parsed)
	assert.Equal(t, "3Bxs4h24hBtQy9rw", ix.Data)
	assert.Equal(t, []string{"payer333"}, ix.Accounts)
	require.NotNil(t, ix.StackHeight)
	assert.Equal(t, 1, *ix.StackHeight)
}

func TestGetBlockResolvesCompiledInstructions(t *testing.T) {
	client := newTestRPCClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, decodeCall(t, r).ID, compiledBlock)
	}))

	block, err := client.GetBlock(context.Background(), 42, 0)
	require.NoError(t, err)
	assert.Nil(t, block.BlockTime)
	assert.Nil(t, block.BlockHeight)

	require.Len(t, block.Transactions, 1)
	tx := block.Transactions[0]
	require.Len(t, tx.Accounts, 6)

	flags := make([][2]bool, 0, len(tx.Accounts))
	for _, a := range tx.Accounts {
		flags = append(flags, [2]bool{a.Signer, a.Writable})
	}
	assert.Equal(t, [][2]bool{
		{true, true},   // k0: writable signer
		{true, false},  // k1: readonly signer
		{false, true},  // k2: writable non-signer
		{false, false}, // prog: readonly non-signer
		{false, true},  // lutW
		{false, false}, // lutR
	}, flags)
	assert.Equal(t, "lutW", tx.Accounts[4].Address)
	assert.Equal(t, uint64(21), tx.Accounts[1].PostBalance)

	require.Len(t, tx.Instructions, 1)
	assert.Equal(t, "prog", tx.Instructions[0].ProgramID)
	assert.Equal(t, []string{"k0", "k2", "lutW"}, tx.Instructions[0].Accounts)
}

func TestGetBlockKeepsInstructionsWithBadIndexes(t *testing.T) {
	block := `{"blockhash":"h","parentSlot":1,"transactions":[` +
		`{"meta":{"err":null,"fee":5000},"transaction":{"signatures":["good"],"message":{"accountKeys":["payer","11111111111111111111111111111111"],"instructions":[{"programIdIndex":1,"accounts":[0],"data":""}]}}},` +
		`{"meta":{"err":null,"fee":5000},"transaction":{"signatures":["bad"],"message":{"accountKeys":["a"],"instructions":[{"programIdIndex":5,"accounts":[],"data":""},{"programIdIndex":0,"accounts":[0,9],"data":""}]}}}]}`
	client := newTestRPCClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, decodeCall(t, r).ID, block)
	}))

	got, err := client.GetBlock(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, got.Transactions, 2)

	good := got.Transactions[0]
	assert.Equal(t, "good", good.Signature)
	require.Len(t, good.Instructions, 1)
	assert.Empty(t, good.Instructions[0].Malformed)

	bad := got.Transactions[1]
	require.Len(t, bad.Instructions, 2)
	assert.Empty(t, bad.Instructions[0].ProgramID)
	assert.Equal(t, "program id index 5 out of range", bad.Instructions[0].Malformed)
	assert.Equal(t, "a", bad.Instructions[1].ProgramID)
	assert.Equal(t, []string{"a"}, bad.Instructions[1].Accounts)
	assert.Equal(t, "account index 9 out of range", bad.Instructions[1].Malformed)

	ct := classify.New(registry.Default()).Classify(1, &bad)
	assert.Equal(t, types.Unknown, ct.Category)
	assert.Equal(t, "Unknown", ct.Label)
	require.Len(t, ct.Instructions, 2)
	assert.Equal(t, types.Unknown, ct.Instructions[0].Category)
	assert.Equal(t, "program id index 5 out of range", ct.Instructions[0].Anomaly)
	assert.Equal(t, "account index 9 out of range", ct.Instructions[1].Anomaly)
}

func TestGetBlockUndecodableIsPermanent(t *testing.T) {
	client := newTestRPCClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, decodeCall(t, r).ID, `{"blockhash":"h","transactions":[{"transaction":{"signatures":[]}}]}`)
	}))

	_, err := client.GetBlock(context.Background(), 2, 0)
	var decodeErr *rpc.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, uint64(2), decodeErr.Slot)
	assert.False(t, rpc.IsTransient(err))
}

func TestGetBlockNullResultIsPermanent(t *testing.T) {
	client := newTestRPCClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, decodeCall(t, r).ID, `null`)
	}))

	_, err := client.GetBlock(context.Background(), 7, 0)
	require.ErrorIs(t, err, rpc.ErrBlockNotAvailable)
	assert.False(t, rpc.IsTransient(err))
	assert.True(t, rpc.IsSlotUnavailable(err))
}

func TestGetBlockSkippedSlot(t *testing.T) {
	calls := 0
	client := newTestRPCClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeError(w, decodeCall(t, r).ID, rpc.CodeSlotSkipped, "Slot 7 was skipped, or missing due to ledger jump to recent snapshot")
	}))

	_, err := client.GetBlock(context.Background(), 7, 0)
	var rpcErr *rpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeSlotSkipped, rpcErr.Code)
	assert.False(t, rpc.IsTransient(err))
	assert.True(t, rpc.IsSlotUnavailable(err))
	assert.Equal(t, 1, calls)
}
