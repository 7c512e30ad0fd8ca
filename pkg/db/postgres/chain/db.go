package chain

import (
	"context"
	"fmt"

	"github.com/canopy-network/solanax/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB is the Solana chain store: blocks, transactions, instructions, transfers,
// account activity and the program registry.
type DB struct {
	postgres.Client
}

// New connects to dbURL and, when migrate is set, brings the schema up to date.
func New(ctx context.Context, logger *zap.Logger, dbURL string, migrate bool, poolConfig *postgres.PoolConfig) (*DB, error) {
	if poolConfig == nil {
		poolConfig = postgres.GetPoolConfigForComponent("indexer")
	}
	logger = logger.With(zap.String("component", poolConfig.Component))

	if migrate {
		if err := postgres.MigrateUp(logger, dbURL); err != nil {
			return nil, fmt.Errorf("migrate chain database: %w", err)
		}
	}

	client, err := postgres.New(ctx, logger, dbURL, poolConfig)
	if err != nil {
		return nil, err
	}
	return &DB{Client: client}, nil
}

// Close terminates the underlying PostgreSQL connection
func (db *DB) Close() error {
	db.Client.Close()
	return nil
}
