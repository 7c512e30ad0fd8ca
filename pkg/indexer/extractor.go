package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/canopy-network/solanax/pkg/retry"
	"github.com/canopy-network/solanax/pkg/rpc"
	"go.uber.org/zap"
)

// BlockSource is the part of the RPC client the extractor needs.
type BlockSource interface {
	GetBlock(ctx context.Context, slot uint64, maxSupportedVersion uint8) (*types.RawBlock, error)
}

// ExtractionError reports a block that could not be fetched.
// Permanent is set when the failure was not retryable (skipped slot, bad params, undecodable payload).
// Skipped is set when the slot has no block at all.
type ExtractionError struct {
	Slot      uint64
	Attempts  int
	Permanent bool
	Skipped   bool
	Cause     error
}

func (e *ExtractionError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("extract slot %d (%s, %d attempts): %v", e.Slot, kind, e.Attempts, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// Extractor fetches blocks, retrying transient RPC failures.
type Extractor struct {
	source  BlockSource
	policy  retry.Policy
	logger  *zap.Logger
	metrics *Metrics
}

// NewExtractor wraps source with policy. The policy's Retryable predicate is replaced by rpc.IsTransient.
func NewExtractor(source BlockSource, policy retry.Policy, logger *zap.Logger, metrics *Metrics) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		source:  source,
		policy:  policy.WithRetryable(rpc.IsTransient),
		logger:  logger.With(zap.String("component", "extractor")),
		metrics: metrics,
	}
}

// Fetch returns the block at slot or an *ExtractionError. It never panics on bad input.
func (e *Extractor) Fetch(ctx context.Context, slot uint64) (*types.RawBlock, error) {
	start := time.Now()
	var block *types.RawBlock

	attempts, err := e.policy.Do(ctx, e.logger.With(zap.Uint64("slot", slot)), "get_block", func(ctx context.Context, _ int) error {
		b, err := e.source.GetBlock(ctx, slot, rpc.MaxSupportedTransactionVersion)
		if err != nil {
			return err
		}
		block = b
		return nil
	})
	e.metrics.observeExtract(time.Since(start), attempts)

	if err != nil {
		permanent := !rpc.IsTransient(err) || errors.Is(err, context.Canceled)
		return nil, &ExtractionError{Slot: slot, Attempts: attempts, Permanent: permanent, Skipped: rpc.IsSlotUnavailable(err), Cause: err}
	}
	if block == nil {
		return nil, &ExtractionError{Slot: slot, Attempts: attempts, Permanent: true, Skipped: true, Cause: rpc.ErrBlockNotAvailable}
	}
	return block, nil
}
