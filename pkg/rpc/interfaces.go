package rpc

import (
	"context"
	"time"

	"github.com/canopy-network/solanax/pkg/indexer/types"
)

// MaxSupportedTransactionVersion is the highest transaction version requested from getBlock.
const MaxSupportedTransactionVersion uint8 = 0

// Client captures the RPC calls used by the pipeline. Blocks come back already
// normalized into indexer types; wire shapes stay inside this package.
type Client interface {
	ChainHead(ctx context.Context) (uint64, error)
	GetSlot(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, slot uint64, maxSupportedVersion uint8) (*types.RawBlock, error)
	GetBlockTime(ctx context.Context, slot uint64) (*time.Time, error)
	GetVersion(ctx context.Context) (VersionInfo, error)
	GetLatestBlockhash(ctx context.Context) (LatestBlockhash, error)
	Probe(ctx context.Context) (ConnectionInfo, error)
}

var _ Client = (*HTTPClient)(nil)
