package indexer

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedStats(metrics *Metrics, elapsed time.Duration) *Stats {
	st := NewStats(metrics)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.s.StartedAt = start
	st.now = func() time.Time { return start.Add(elapsed) }
	return st
}

func committedBlocks(slots ...uint64) []*types.ClassifiedBlock {
	blocks := classified(slots...)
	out := make([]*types.ClassifiedBlock, len(blocks))
	for i := range blocks {
		out[i] = &blocks[i]
	}
	return out
}

func TestStatsDerivedRates(t *testing.T) {
	st := fixedStats(nil, 2*time.Second)
	blocks := committedBlocks(1, 2, 3)
	blocks[2].Transactions[0].Transaction.Success = false
	for _, cb := range blocks {
		st.RecordClassified(cb)
	}
	st.RecordBatchCommitted(blocks, RowCounts{Blocks: 3, Transactions: 3, Instructions: 3, Transfers: 3})
	st.RecordBlockFailure(4, StageExtract, errors.New("slot skipped"))

	s := st.Snapshot()
	assert.Equal(t, uint64(4), s.BlocksAttempted)
	assert.Equal(t, uint64(3), s.BlocksSucceeded)
	assert.InDelta(t, 75.0, s.SuccessRate(), 0.001)
	assert.InDelta(t, 1.5, s.BlocksPerSecond(), 0.001)
	assert.InDelta(t, 1.5, s.TransactionsPerSecond(), 0.001)
	assert.InDelta(t, 100.0, s.CategoryPercent(types.SolTransfer), 0.001)
	assert.Zero(t, s.CategoryPercent(types.DexSwap))
	assert.Equal(t, uint64(2), s.SuccessfulTransactions)
	assert.Equal(t, uint64(1), s.FailedTransactions)
	assert.Equal(t, uint64(3), s.LastCommittedSlot)
	assert.Equal(t, "0.000015", s.FeesSOL.String())
}

func TestStatsEmpty(t *testing.T) {
	s := fixedStats(nil, 0).Snapshot()
	assert.Zero(t, s.SuccessRate())
	assert.Zero(t, s.BlocksPerSecond())
	assert.Zero(t, s.TransactionsPerSecond())
	assert.Zero(t, s.CategoryPercent(types.Unknown))
}

func TestStatsSnapshotIsACopy(t *testing.T) {
	st := fixedStats(nil, time.Second)
	st.RecordBatchFailed(1, []uint64{9, 8}, errors.New("boom"))

	s := st.Snapshot()
	assert.Equal(t, uint64(2), s.BlocksFailed)
	s.ByCategory["x"] = 1
	s.Errors[0].Message = "changed"

	again := st.Snapshot()
	assert.NotContains(t, again.ByCategory, "x")
	assert.Equal(t, "boom", again.Errors[0].Message)
}

func TestStatsReportListsLatestErrors(t *testing.T) {
	st := fixedStats(nil, time.Second)
	for slot := uint64(1); slot <= 7; slot++ {
		st.RecordBlockFailure(slot, StageExtract, fmt.Errorf("slot %d skipped", slot))
	}

	report := st.Report()
	assert.Contains(t, report, "Errors encountered: 7")
	assert.Contains(t, report, "... 2 earlier errors not shown")
	assert.NotContains(t, report, "slot 2 skipped")
	assert.Contains(t, report, "1. [extract] slot 3: slot 3 skipped")
	assert.Contains(t, report, "5. [extract] slot 7: slot 7 skipped")
	assert.Contains(t, report, "0.0% success")
}

func TestStatsRetainedErrorsAreBounded(t *testing.T) {
	st := fixedStats(nil, time.Second)
	const failures = 200_000
	for slot := uint64(1); slot <= failures; slot++ {
		st.RecordBlockFailure(slot, StageExtract, errors.New("skipped"))
	}
	st.RecordBatchFailed(9, []uint64{failures + 1, failures + 2}, errors.New("deadlock"))

	s := st.Snapshot()
	assert.Equal(t, uint64(failures+1), s.ErrorCount)
	assert.Equal(t, uint64(failures+2), s.BlocksFailed)
	require.Len(t, s.Errors, reportedErrors)
	assert.Equal(t, uint64(failures-3), s.Errors[0].Slot)
	last := s.Errors[reportedErrors-1]
	assert.Equal(t, StageLoad, last.Stage)
	assert.Equal(t, 9, last.BatchID)
}

func TestStatsReportCategories(t *testing.T) {
	st := fixedStats(nil, time.Second)
	blocks := committedBlocks(1, 2)
	st.RecordBatchCommitted(blocks, RowCounts{Blocks: 2})
	st.RecordBatchFailed(2, []uint64{3}, errors.New("deadlock"))

	report := st.Report()
	assert.Contains(t, report, "SOL Transfer")
	assert.Contains(t, report, "(100.0%)")
	assert.Contains(t, report, "[load] batch 2 from slot 3: deadlock")
	assert.Contains(t, report, "10,000 lamports")
	assert.False(t, strings.Contains(report, "Classification anomalies"))
}

func TestStatsMirrorsMetrics(t *testing.T) {
	m := NewMetrics()
	st := fixedStats(m, time.Second)
	st.RecordBatchCommitted(committedBlocks(1, 2), RowCounts{Blocks: 2})
	st.RecordBlockFailure(3, StageTransform, errors.New("bad"))

	require.NotNil(t, m.Registry())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlocksProcessed.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksProcessed.WithLabelValues("transform_failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransactionsProcessed.WithLabelValues(types.SolTransfer.Slug())))
}
