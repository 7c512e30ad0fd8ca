package postgres

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/solana", MigrationURL("postgres://u:p@localhost:5432/solana"))
	assert.Equal(t, "pgx5://localhost/solana?sslmode=disable", MigrationURL("postgresql://localhost/solana?sslmode=disable"))
	assert.Equal(t, "pgx5://already", MigrationURL("pgx5://already"))
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	ups, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFS, "migrations/*.down.sql")
	require.NoError(t, err)
	assert.Len(t, ups, 2)
	assert.Len(t, downs, len(ups))
}

func TestGetPoolConfigForComponent(t *testing.T) {
	t.Setenv("POSTGRES_CONN_MAX_LIFETIME", "")

	cfg := GetPoolConfigForComponent("indexer")
	assert.Equal(t, int32(8), cfg.MaxConns)
	assert.Equal(t, "indexer", cfg.Component)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)

	cfg = GetPoolConfigForComponent("")
	assert.Equal(t, "unknown", cfg.Component)
	assert.Equal(t, int32(20), cfg.MaxConns)
}

func TestParseConnMaxLifetime(t *testing.T) {
	t.Setenv("POSTGRES_CONN_MAX_LIFETIME", "10m")
	assert.Equal(t, 5*time.Minute, ParseConnMaxLifetime("5m"))
	assert.Equal(t, 10*time.Minute, ParseConnMaxLifetime(""))
	assert.Equal(t, 10*time.Minute, ParseConnMaxLifetime("bogus"))
}
