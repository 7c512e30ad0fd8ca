package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/solanax/pkg/classify"
	"github.com/canopy-network/solanax/pkg/db/transform"
	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/canopy-network/solanax/pkg/registry"
	"github.com/canopy-network/solanax/pkg/retry"
	"go.uber.org/zap/zaptest"
)

// fakeSource serves synthetic blocks. Scripted errors for a slot are returned
// in order before the block is served; a permanent error is returned forever.
type fakeSource struct {
	mu        sync.Mutex
	failures  map[uint64][]error
	permanent map[uint64]error
	blocks    map[uint64]*types.RawBlock
	calls     map[uint64]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		failures:  make(map[uint64][]error),
		permanent: make(map[uint64]error),
		blocks:    make(map[uint64]*types.RawBlock),
		calls:     make(map[uint64]int),
	}
}

func (f *fakeSource) GetBlock(_ context.Context, slot uint64, _ uint8) (*types.RawBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[slot]++
	if err, ok := f.permanent[slot]; ok {
		return nil, err
	}
	if errs := f.failures[slot]; len(errs) > 0 {
		f.failures[slot] = errs[1:]
		return nil, errs[0]
	}
	if b, ok := f.blocks[slot]; ok {
		return b, nil
	}
	return testBlock(slot), nil
}

func (f *fakeSource) callsFor(slot uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[slot]
}

// testBlock returns a block with one successful SOL transfer paying a 5000 lamport fee.
func testBlock(slot uint64) *types.RawBlock {
	parent := slot - 1
	return &types.RawBlock{
		Slot:       slot,
		Blockhash:  fmt.Sprintf("hash-%d", slot),
		ParentSlot: &parent,
		Transactions: []types.RawTransaction{{
			Signature: fmt.Sprintf("sig-%d", slot),
			Success:   true,
			Fee:       5000,
			Accounts: []types.AccountMeta{
				{Address: "payer", Signer: true, Writable: true},
				{Address: "dest", Writable: true},
				{Address: registry.SystemProgramID},
			},
			Instructions: []types.RawInstruction{{
				ProgramID: registry.SystemProgramID,
				Program:   "system",
				Accounts:  []string{"payer", "dest"},
				Parsed:    json.RawMessage(`{"type":"transfer","info":{"source":"payer","destination":"dest","lamports":1000}}`),
			}},
		}},
	}
}

// fakeStore records committed batches. Batches touching a slot in failSlots fail;
// failFirst fails that many commits before succeeding.
type fakeStore struct {
	mu        sync.Mutex
	committed [][]uint64
	calls     int
	failFirst int
	failSlots map[uint64]bool
	onCommit  func(ctx context.Context)
}

func (s *fakeStore) CommitBatch(ctx context.Context, batch []*transform.BlockRows) (RowCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.onCommit != nil {
		s.onCommit(ctx)
	}
	if s.calls <= s.failFirst {
		return RowCounts{}, fmt.Errorf("deadlock detected")
	}

	var counts RowCounts
	slots := make([]uint64, 0, len(batch))
	for _, r := range batch {
		if s.failSlots[r.Block.Slot] {
			return RowCounts{}, fmt.Errorf("foreign key violation at slot %d", r.Block.Slot)
		}
		slots = append(slots, r.Block.Slot)
		counts.Blocks++
		counts.Transactions += len(r.Transactions)
		counts.Instructions += len(r.Instructions)
		counts.Transfers += len(r.Transfers)
		counts.Accounts += len(r.Accounts)
	}
	s.committed = append(s.committed, slots)
	return counts, nil
}

func (s *fakeStore) batches() [][]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]uint64(nil), s.committed...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []types.BlockIndexedEvent
}

func (p *fakePublisher) PublishBlockIndexed(_ context.Context, e types.BlockIndexedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// recordingPolicy returns a policy whose sleeps are captured instead of waited on.
func recordingPolicy(maxAttempts int, base time.Duration) (retry.Policy, *[]time.Duration) {
	var mu sync.Mutex
	var slept []time.Duration
	return retry.Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		Multiplier:  2,
		Sleep: func(_ context.Context, d time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			slept = append(slept, d)
			return nil
		},
	}, &slept
}

type harness struct {
	source   *fakeSource
	store    *fakeStore
	pipeline *Pipeline
	slept    *[]time.Duration
}

func newHarness(t *testing.T, cfg PipelineConfig, opts ...Option) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	h := &harness{source: newFakeSource(), store: &fakeStore{failSlots: map[uint64]bool{}}}
	extractPolicy, slept := recordingPolicy(3, 100*time.Millisecond)
	h.slept = slept

	if cfg.CommitPolicy.MaxAttempts == 0 {
		cfg.CommitPolicy, _ = recordingPolicy(3, 10*time.Millisecond)
	}

	h.pipeline = NewPipeline(
		cfg,
		NewExtractor(h.source, extractPolicy, logger, nil),
		classify.New(registry.Default()),
		NewBatchLoader(h.store, logger),
		NewStats(nil),
		logger,
		opts...,
	)
	t.Cleanup(h.pipeline.Close)
	return h
}
