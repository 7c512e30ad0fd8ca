package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/solanax/pkg/db/transform"
	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/canopy-network/solanax/pkg/retry"
	"go.uber.org/zap"
)

var ErrInvalidRange = errors.New("invalid slot range")

var errNotFetched = errors.New("block was not fetched")

const eventBlockIndexed = "block.indexed"

// SlotRange is an inclusive range of slots.
type SlotRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

func (r SlotRange) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

func (r SlotRange) Validate() error {
	if r.End < r.Start {
		return fmt.Errorf("%w: start %d > end %d", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

func (r SlotRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// PipelineConfig controls batching and commit behavior.
type PipelineConfig struct {
	BatchSize int
	// FetchWorkers > 1 fetches the blocks of a batch concurrently.
	FetchWorkers int
	// CommitTimeout bounds one commit attempt. Zero means no bound.
	CommitTimeout time.Duration
	// CommitPolicy retries a failed batch as a whole. Its Retryable predicate is replaced.
	CommitPolicy retry.Policy
}

// BlockResult is the outcome of one slot. Stage and Err are empty on success.
type BlockResult struct {
	Slot         uint64 `json:"slot"`
	BatchID      int    `json:"batch_id"`
	Stage        Stage  `json:"stage,omitempty"`
	Err          error  `json:"-"`
	Transactions int    `json:"transactions"`
}

func (r BlockResult) OK() bool { return r.Err == nil }

// BatchResult is the outcome of one commit.
type BatchResult struct {
	BatchID   int           `json:"batch_id"`
	FirstSlot uint64        `json:"first_slot"`
	LastSlot  uint64        `json:"last_slot"`
	Blocks    int           `json:"blocks"`
	Rows      RowCounts     `json:"rows"`
	Attempts  int           `json:"attempts"`
	Err       error         `json:"-"`
	Duration  time.Duration `json:"duration"`
}

// Report collects the results of one Run.
type Report struct {
	Range   SlotRange     `json:"range"`
	Blocks  []BlockResult `json:"blocks"`
	Batches []BatchResult `json:"batches"`
	Stats   Snapshot      `json:"stats"`
}

// Succeeded returns the committed slots in order.
func (r *Report) Succeeded() []uint64 {
	var out []uint64
	for _, b := range r.Blocks {
		if b.OK() {
			out = append(out, b.Slot)
		}
	}
	return out
}

// Failed returns the failed slots in order.
func (r *Report) Failed() []uint64 {
	var out []uint64
	for _, b := range r.Blocks {
		if !b.OK() {
			out = append(out, b.Slot)
		}
	}
	return out
}

type Fetcher interface {
	Fetch(ctx context.Context, slot uint64) (*types.RawBlock, error)
}

type BlockClassifier interface {
	ClassifyBlock(block *types.RawBlock) types.ClassifiedBlock
}

type Loader interface {
	Prepare(cb *types.ClassifiedBlock) (*transform.BlockRows, error)
	CommitRows(ctx context.Context, batchID int, rows []*transform.BlockRows) (RowCounts, error)
}

// Publisher receives a notification per committed block. Delivery is best effort.
type Publisher interface {
	PublishBlockIndexed(ctx context.Context, event types.BlockIndexedEvent)
}

// TipSource reports the newest slot at the configured commitment.
type TipSource interface {
	GetSlot(ctx context.Context) (uint64, error)
}

type Option func(*Pipeline)

func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithSleep replaces the wait between continuous iterations.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

// Pipeline drives blocks through extract, classify and load in ascending batches.
// Run and RunContinuous must not be called concurrently.
type Pipeline struct {
	cfg        PipelineConfig
	fetcher    Fetcher
	classifier BlockClassifier
	loader     Loader
	stats      *Stats
	logger     *zap.Logger

	publisher Publisher
	metrics   *Metrics
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	pool    pond.Pool
	batchID atomic.Int64
}

func NewPipeline(cfg PipelineConfig, fetcher Fetcher, classifier BlockClassifier, loader Loader, stats *Stats, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	p := &Pipeline{
		cfg:        cfg,
		fetcher:    fetcher,
		classifier: classifier,
		loader:     loader,
		stats:      stats,
		logger:     logger.With(zap.String("component", "pipeline")),
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.stats == nil {
		p.stats = NewStats(p.metrics)
	}
	if cfg.FetchWorkers > 1 {
		p.pool = pond.NewPool(cfg.FetchWorkers, pond.WithQueueSize(cfg.BatchSize))
	}
	return p
}

// Close stops the fetch pool.
func (p *Pipeline) Close() {
	if p.pool != nil {
		p.pool.StopAndWait()
	}
}

// Run processes r once. Block and batch failures are recorded in the report and
// never returned; the error is non-nil only for an invalid range or cancellation.
func (p *Pipeline) Run(ctx context.Context, r SlotRange) (*Report, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	report := &Report{Range: r}

	p.logger.Info("Processing slot range",
		zap.Uint64("start", r.Start),
		zap.Uint64("end", r.End),
		zap.Uint64("blocks", r.Len()),
		zap.Int("batch_size", p.cfg.BatchSize))

	size := uint64(p.cfg.BatchSize)
	start := r.Start
	for {
		if err := ctx.Err(); err != nil {
			report.Stats = p.stats.Snapshot()
			return report, err
		}
		end := r.End
		if r.End-start >= size {
			end = start + size - 1
		}
		if err := p.runBatch(ctx, SlotRange{Start: start, End: end}, report); err != nil {
			report.Stats = p.stats.Snapshot()
			return report, err
		}
		if end == r.End {
			break
		}
		start = end + 1
	}

	report.Stats = p.stats.Snapshot()
	return report, nil
}

type fetched struct {
	slot  uint64
	block *types.RawBlock
	err   error
}

// runBatch returns an error only when ctx was cancelled before the commit started.
// Nothing of the batch is recorded in that case.
func (p *Pipeline) runBatch(ctx context.Context, rng SlotRange, report *Report) error {
	batchID := int(p.batchID.Add(1))
	logger := p.logger.With(zap.Int("batch_id", batchID))

	results := p.fetchAll(ctx, rng)
	if err := ctx.Err(); err != nil {
		return err
	}

	classified := make([]*types.ClassifiedBlock, 0, len(results))
	rows := make([]*transform.BlockRows, 0, len(results))
	for _, res := range results {
		if res.err != nil {
			var extractErr *ExtractionError
			if errors.As(res.err, &extractErr) && extractErr.Skipped {
				logger.Info("Slot has no block", zap.Uint64("slot", res.slot), zap.Error(res.err))
			} else {
				logger.Warn("Failed to extract block", zap.Uint64("slot", res.slot), zap.Error(res.err))
			}
			p.stats.RecordBlockFailure(res.slot, StageExtract, res.err)
			report.Blocks = append(report.Blocks, BlockResult{Slot: res.slot, BatchID: batchID, Stage: StageExtract, Err: res.err})
			continue
		}

		cb := p.classifier.ClassifyBlock(res.block)
		p.stats.RecordClassified(&cb)

		br, err := p.loader.Prepare(&cb)
		if err != nil {
			logger.Warn("Failed to transform block", zap.Uint64("slot", res.slot), zap.Error(err))
			p.stats.RecordBlockFailure(res.slot, StageTransform, err)
			report.Blocks = append(report.Blocks, BlockResult{Slot: res.slot, BatchID: batchID, Stage: StageTransform, Err: err})
			continue
		}
		classified = append(classified, &cb)
		rows = append(rows, br)
	}

	if len(rows) == 0 {
		logger.Warn("Batch has no blocks to commit", zap.Stringer("range", rng))
		return nil
	}

	res := p.commit(ctx, batchID, rows)
	res.FirstSlot = classified[0].Slot()
	res.LastSlot = classified[len(classified)-1].Slot()
	report.Batches = append(report.Batches, res)

	if res.Err != nil {
		slots := make([]uint64, len(classified))
		for i, cb := range classified {
			slots[i] = cb.Slot()
			report.Blocks = append(report.Blocks, BlockResult{
				Slot: cb.Slot(), BatchID: batchID, Stage: StageLoad, Err: res.Err, Transactions: len(cb.Transactions),
			})
		}
		logger.Error("Batch commit failed",
			zap.Uint64("first_slot", res.FirstSlot),
			zap.Uint64("last_slot", res.LastSlot),
			zap.Int("attempts", res.Attempts),
			zap.Error(res.Err))
		p.stats.RecordBatchFailed(batchID, slots, res.Err)
		p.metrics.batchFailed(res.Duration)
		return nil
	}

	p.stats.RecordBatchCommitted(classified, res.Rows)
	p.metrics.batchCommitted(res.Duration, res.LastSlot, res.Rows)
	for _, cb := range classified {
		report.Blocks = append(report.Blocks, BlockResult{Slot: cb.Slot(), BatchID: batchID, Transactions: len(cb.Transactions)})
	}
	logger.Info("Batch committed",
		zap.Uint64("first_slot", res.FirstSlot),
		zap.Uint64("last_slot", res.LastSlot),
		zap.Int("blocks", res.Blocks),
		zap.Int("transactions", res.Rows.Transactions),
		zap.Int("instructions", res.Rows.Instructions),
		zap.Duration("duration", res.Duration))

	p.publish(ctx, batchID, classified)
	return nil
}

// fetchAll returns one result per slot of rng, in slot order.
func (p *Pipeline) fetchAll(ctx context.Context, rng SlotRange) []fetched {
	out := make([]fetched, rng.Len())
	for i := range out {
		out[i] = fetched{slot: rng.Start + uint64(i), err: errNotFetched}
	}

	if p.pool == nil || len(out) == 1 {
		for i := range out {
			if ctx.Err() != nil {
				break
			}
			out[i].block, out[i].err = p.fetcher.Fetch(ctx, out[i].slot)
		}
		return out
	}

	group := p.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := range out {
		i := i
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			out[i].block, out[i].err = p.fetcher.Fetch(groupCtx, out[i].slot)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		p.logger.Warn("Fetch group encountered error", zap.Stringer("range", rng), zap.Error(err))
	}
	return out
}

// commit writes rows under the commit policy. Attempts run on a context detached
// from ctx so a started attempt always finishes; cancellation only stops further retries.
func (p *Pipeline) commit(ctx context.Context, batchID int, rows []*transform.BlockRows) BatchResult {
	res := BatchResult{BatchID: batchID, Blocks: len(rows)}
	start := p.now()

	policy := p.cfg.CommitPolicy.WithRetryable(func(error) bool { return ctx.Err() == nil })
	sleep := policy.Sleep
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		if sleep != nil {
			return sleep(ctx, d)
		}
		return sleepContext(ctx, d)
	}

	detached := context.WithoutCancel(ctx)
	res.Attempts, res.Err = policy.Do(detached, p.logger, "commit_batch", func(c context.Context, _ int) error {
		if p.cfg.CommitTimeout > 0 {
			var cancel context.CancelFunc
			c, cancel = context.WithTimeout(c, p.cfg.CommitTimeout)
			defer cancel()
		}
		counts, err := p.loader.CommitRows(c, batchID, rows)
		if err != nil {
			return err
		}
		res.Rows = counts
		return nil
	})
	res.Duration = p.now().Sub(start)
	return res
}

func (p *Pipeline) publish(ctx context.Context, batchID int, blocks []*types.ClassifiedBlock) {
	if p.publisher == nil || ctx.Err() != nil {
		return
	}
	ts := p.now().UTC()
	for _, cb := range blocks {
		p.publisher.PublishBlockIndexed(ctx, types.BlockIndexedEvent{
			Event:        eventBlockIndexed,
			Slot:         cb.Slot(),
			Blockhash:    cb.Block.Blockhash,
			BlockTime:    cb.Block.BlockTime,
			Transactions: len(cb.Transactions),
			BatchID:      batchID,
			Timestamp:    ts,
		})
	}
}

// ContinuousConfig controls RunContinuous.
type ContinuousConfig struct {
	// Start is the lowest slot ever processed.
	Start uint64
	// NumBlocks sizes the first iteration's look-back from the finalized tip.
	NumBlocks uint64
	// FromStart begins the first iteration at Start even when it is behind the look-back window.
	FromStart    bool
	FinalityLag  uint64
	PollInterval time.Duration
	// OnIteration is called with each iteration's report.
	OnIteration func(*Report)
}

// RunContinuous follows the tip until ctx is cancelled, which it returns.
// Each iteration processes [next, tip-FinalityLag]; slots that fail are not revisited.
func (p *Pipeline) RunContinuous(ctx context.Context, tips TipSource, cc ContinuousConfig) error {
	var next uint64
	first := true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tip, err := tips.GetSlot(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("Failed to query tip slot", zap.Error(err))
		case tip < cc.FinalityLag:
			p.logger.Debug("Tip below finality lag", zap.Uint64("tip", tip))
		default:
			target := tip - cc.FinalityLag
			if first {
				next = cc.Start
				if !cc.FromStart && cc.NumBlocks > 0 && target+1 >= cc.NumBlocks && target+1-cc.NumBlocks > next {
					next = target + 1 - cc.NumBlocks
				}
				first = false
			}

			if next <= target {
				report, err := p.Run(ctx, SlotRange{Start: next, End: target})
				if report != nil && cc.OnIteration != nil {
					cc.OnIteration(report)
				}
				if err != nil {
					return err
				}
				next = target + 1
			} else {
				p.logger.Debug("Caught up with tip", zap.Uint64("tip", tip), zap.Uint64("next", next))
			}
		}

		if err := p.sleep(ctx, cc.PollInterval); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
