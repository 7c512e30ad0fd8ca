package indexer

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/canopy-network/solanax/pkg/utils"
	"github.com/shopspring/decimal"
)

// Stage names where a block can fail.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

// reportedErrors is how many of the most recent errors a snapshot keeps.
const reportedErrors = 5

var lamportsPerSOL = decimal.New(1, 9)

// StageError is one recorded failure. BatchID is zero for block-level failures.
type StageError struct {
	Stage   Stage  `json:"stage"`
	Slot    uint64 `json:"slot"`
	BatchID int    `json:"batch_id,omitempty"`
	Message string `json:"message"`
}

// Snapshot is an immutable copy of the run statistics.
type Snapshot struct {
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`

	BlocksAttempted  uint64 `json:"blocks_attempted"`
	BlocksSucceeded  uint64 `json:"blocks_succeeded"`
	BlocksFailed     uint64 `json:"blocks_failed"`
	BatchesCommitted uint64 `json:"batches_committed"`
	BatchesFailed    uint64 `json:"batches_failed"`

	TransactionsProcessed  uint64            `json:"transactions_processed"`
	TransactionsInserted   uint64            `json:"transactions_inserted"`
	InstructionsInserted   uint64            `json:"instructions_inserted"`
	TransfersInserted      uint64            `json:"transfers_inserted"`
	SuccessfulTransactions uint64            `json:"successful_transactions"`
	FailedTransactions     uint64            `json:"failed_transactions"`
	ByCategory             map[string]uint64 `json:"by_category"`
	Anomalies              uint64            `json:"classification_anomalies"`

	FeesLamports uint64          `json:"fees_lamports"`
	FeesSOL      decimal.Decimal `json:"fees_sol"`

	LastCommittedSlot uint64 `json:"last_committed_slot"`
	// ErrorCount is every error recorded; Errors holds only the latest, oldest first.
	ErrorCount uint64       `json:"error_count"`
	Errors     []StageError `json:"errors"`
}

// SuccessRate is the percentage of attempted blocks that were committed.
func (s Snapshot) SuccessRate() float64 {
	if s.BlocksAttempted == 0 {
		return 0
	}
	return float64(s.BlocksSucceeded) / float64(s.BlocksAttempted) * 100
}

func (s Snapshot) BlocksPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.BlocksSucceeded) / s.Elapsed.Seconds()
}

func (s Snapshot) TransactionsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.TransactionsInserted) / s.Elapsed.Seconds()
}

// CategoryPercent is the share of inserted transactions with the given category.
func (s Snapshot) CategoryPercent(c types.Category) float64 {
	if s.TransactionsInserted == 0 {
		return 0
	}
	return float64(s.ByCategory[c.Slug()]) / float64(s.TransactionsInserted) * 100
}

// Stats accumulates run statistics. The pipeline is the only writer; the mutex
// serves concurrent readers such as the status server.
type Stats struct {
	mu      sync.RWMutex
	now     func() time.Time
	metrics *Metrics
	s       Snapshot
}

func NewStats(metrics *Metrics) *Stats {
	st := &Stats{now: time.Now, metrics: metrics}
	st.s.StartedAt = st.now()
	st.s.ByCategory = make(map[string]uint64)
	return st
}

// RecordBlockFailure records a block that failed before reaching a batch commit.
func (st *Stats) RecordBlockFailure(slot uint64, stage Stage, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.BlocksAttempted++
	st.s.BlocksFailed++
	st.recordError(StageError{Stage: stage, Slot: slot, Message: err.Error()})
	st.metrics.blockDone(string(stage) + "_failed")
}

// RecordClassified counts the transactions and anomalies of a block that was classified.
func (st *Stats) RecordClassified(cb *types.ClassifiedBlock) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.TransactionsProcessed += uint64(len(cb.Transactions))
	for i := range cb.Transactions {
		st.s.Anomalies += uint64(cb.Transactions[i].Anomalies())
	}
}

// RecordBatchCommitted records a successful commit of blocks.
func (st *Stats) RecordBatchCommitted(blocks []*types.ClassifiedBlock, rows RowCounts) {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := uint64(len(blocks))
	st.s.BlocksAttempted += n
	st.s.BlocksSucceeded += n
	st.s.BatchesCommitted++
	st.s.InstructionsInserted += uint64(rows.Instructions)
	st.s.TransfersInserted += uint64(rows.Transfers)

	for _, cb := range blocks {
		if cb.Slot() > st.s.LastCommittedSlot {
			st.s.LastCommittedSlot = cb.Slot()
		}
		for i := range cb.Transactions {
			ct := &cb.Transactions[i]
			st.s.TransactionsInserted++
			st.s.ByCategory[ct.Category.Slug()]++
			st.s.FeesLamports += ct.Transaction.Fee
			if ct.Transaction.Success {
				st.s.SuccessfulTransactions++
			} else {
				st.s.FailedTransactions++
			}
			st.metrics.transactionCommitted(ct.Category.Slug())
		}
		st.metrics.blockDone("success")
	}
}

// RecordBatchFailed records a batch whose commit failed after every retry. All of its blocks count as failed.
func (st *Stats) RecordBatchFailed(batchID int, slots []uint64, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := uint64(len(slots))
	st.s.BlocksAttempted += n
	st.s.BlocksFailed += n
	st.s.BatchesFailed++
	var first uint64
	if len(slots) > 0 {
		first = slots[0]
	}
	st.recordError(StageError{Stage: StageLoad, Slot: first, BatchID: batchID, Message: err.Error()})
	for range slots {
		st.metrics.blockDone("load_failed")
	}
}

// recordError keeps the last reportedErrors entries. Callers hold mu.
func (st *Stats) recordError(e StageError) {
	st.s.ErrorCount++
	if len(st.s.Errors) == reportedErrors {
		copy(st.s.Errors, st.s.Errors[1:])
		st.s.Errors = st.s.Errors[:reportedErrors-1]
	}
	st.s.Errors = append(st.s.Errors, e)
}

// Snapshot returns a copy safe to read while the pipeline keeps running.
func (st *Stats) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := st.s
	out.Elapsed = st.now().Sub(st.s.StartedAt)
	out.FeesSOL = decimal.NewFromUint64(st.s.FeesLamports).Div(lamportsPerSOL)
	out.ByCategory = make(map[string]uint64, len(st.s.ByCategory))
	for k, v := range st.s.ByCategory {
		out.ByCategory[k] = v
	}
	out.Errors = append([]StageError(nil), st.s.Errors...)
	return out
}

// Report renders the human-readable summary logged at the end of a run.
func (st *Stats) Report() string {
	return st.Snapshot().Render()
}

// Render formats the snapshot as a multi-line summary.
func (s Snapshot) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Pipeline statistics\n")
	fmt.Fprintf(&b, "  Elapsed:       %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "  Blocks:        %s attempted, %s succeeded, %s failed (%.1f%% success)\n",
		utils.FormatNumber(s.BlocksAttempted), utils.FormatNumber(s.BlocksSucceeded), utils.FormatNumber(s.BlocksFailed), s.SuccessRate())
	fmt.Fprintf(&b, "  Batches:       %s committed, %s failed\n",
		utils.FormatNumber(s.BatchesCommitted), utils.FormatNumber(s.BatchesFailed))
	fmt.Fprintf(&b, "  Transactions:  %s processed, %s inserted (%s succeeded, %s failed on-chain)\n",
		utils.FormatNumber(s.TransactionsProcessed), utils.FormatNumber(s.TransactionsInserted),
		utils.FormatNumber(s.SuccessfulTransactions), utils.FormatNumber(s.FailedTransactions))
	fmt.Fprintf(&b, "  Instructions:  %s inserted, %s transfers decoded\n",
		utils.FormatNumber(s.InstructionsInserted), utils.FormatNumber(s.TransfersInserted))
	fmt.Fprintf(&b, "  Fees:          %s lamports (%s SOL)\n", utils.FormatNumber(s.FeesLamports), s.FeesSOL.String())
	fmt.Fprintf(&b, "  Throughput:    %.2f blocks/s, %.0f tx/s\n", s.BlocksPerSecond(), s.TransactionsPerSecond())

	if s.TransactionsInserted > 0 {
		fmt.Fprintf(&b, "  Transaction types:\n")
		for _, c := range types.AllCategories() {
			n := s.ByCategory[c.Slug()]
			if n == 0 {
				continue
			}
			fmt.Fprintf(&b, "    %-20s %s (%.1f%%)\n", c.String(), utils.FormatNumber(n), s.CategoryPercent(c))
		}
	}
	if s.Anomalies > 0 {
		fmt.Fprintf(&b, "  Classification anomalies: %s\n", utils.FormatNumber(s.Anomalies))
	}

	if s.ErrorCount > 0 {
		fmt.Fprintf(&b, "Errors encountered: %d\n", s.ErrorCount)
		if older := s.ErrorCount - uint64(len(s.Errors)); older > 0 {
			fmt.Fprintf(&b, "  ... %d earlier errors not shown\n", older)
		}
		for i, e := range s.Errors {
			if e.BatchID > 0 {
				fmt.Fprintf(&b, "  %d. [%s] batch %d from slot %d: %s\n", i+1, e.Stage, e.BatchID, e.Slot, e.Message)
			} else {
				fmt.Fprintf(&b, "  %d. [%s] slot %d: %s\n", i+1, e.Stage, e.Slot, e.Message)
			}
		}
	}
	return b.String()
}
