package indexer

import (
	"context"
	"fmt"

	"github.com/canopy-network/solanax/pkg/db/postgres/chain"
	"github.com/canopy-network/solanax/pkg/db/transform"
	"github.com/canopy-network/solanax/pkg/indexer/types"
	"go.uber.org/zap"
)

// RowCounts reports rows written per table by one commit.
type RowCounts = chain.RowCounts

// BatchStore persists the rows of a batch atomically.
type BatchStore interface {
	CommitBatch(ctx context.Context, batch []*transform.BlockRows) (chain.RowCounts, error)
}

// CommitError reports a batch that could not be written. No row of the batch was applied.
type CommitError struct {
	BatchID   int
	FirstSlot uint64
	LastSlot  uint64
	Cause     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit batch %d (slots %d-%d): %v", e.BatchID, e.FirstSlot, e.LastSlot, e.Cause)
}

func (e *CommitError) Unwrap() error { return e.Cause }

// BatchLoader turns classified blocks into rows and hands them to the store in one commit.
type BatchLoader struct {
	store  BatchStore
	logger *zap.Logger
}

func NewBatchLoader(store BatchStore, logger *zap.Logger) *BatchLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchLoader{store: store, logger: logger.With(zap.String("component", "loader"))}
}

// Prepare converts one classified block to rows.
func (l *BatchLoader) Prepare(cb *types.ClassifiedBlock) (*transform.BlockRows, error) {
	return transform.Block(cb)
}

// CommitRows writes already prepared rows as a single atomic batch.
func (l *BatchLoader) CommitRows(ctx context.Context, batchID int, rows []*transform.BlockRows) (RowCounts, error) {
	if len(rows) == 0 {
		return RowCounts{}, nil
	}
	counts, err := l.store.CommitBatch(ctx, rows)
	if err != nil {
		return RowCounts{}, l.commitError(batchID, slotsOfRows(rows), err)
	}
	return counts, nil
}

func (l *BatchLoader) commitError(batchID int, slots []uint64, cause error) *CommitError {
	e := &CommitError{BatchID: batchID, Cause: cause}
	for i, s := range slots {
		if i == 0 || s < e.FirstSlot {
			e.FirstSlot = s
		}
		if s > e.LastSlot {
			e.LastSlot = s
		}
	}
	return e
}

func slotsOfRows(rows []*transform.BlockRows) []uint64 {
	out := make([]uint64, len(rows))
	for i, r := range rows {
		out[i] = r.Block.Slot
	}
	return out
}
