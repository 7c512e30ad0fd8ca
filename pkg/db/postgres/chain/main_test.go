package chain

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

const testPostgresImage = "postgres:16-alpine"

// testDatabaseURL is empty when neither TEST_DATABASE_URL nor Docker is available.
var testDatabaseURL string

// TestMain starts a throwaway PostgreSQL container for the store tests.
// TEST_DATABASE_URL points the tests at an existing server instead.
func TestMain(m *testing.M) {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		testDatabaseURL = url
		exitCode = m.Run()
		return
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		exitCode = 1
		return
	}

	ctx := context.Background()
	if !isDockerAvailable(ctx) {
		logger.Info("Docker not available, store tests will be skipped")
		exitCode = m.Run()
		return
	}

	logger.Info("Starting PostgreSQL container...", zap.String("image", testPostgresImage))
	container, err := tcpostgres.Run(ctx, testPostgresImage,
		tcpostgres.WithDatabase("solanax_test"),
		tcpostgres.WithUsername("solanax"),
		tcpostgres.WithPassword("solanax"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		logger.Error("Failed to start PostgreSQL container", zap.Error(err))
		exitCode = 1
		return
	}
	defer func() {
		terminateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := container.Terminate(terminateCtx); err != nil {
			logger.Error("Failed to terminate container", zap.Error(err))
		}
	}()

	testDatabaseURL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		logger.Error("Failed to get connection string", zap.Error(err))
		exitCode = 1
		return
	}
	logger.Info("PostgreSQL container started", zap.String("dsn", testDatabaseURL))

	exitCode = m.Run()
}

func isDockerAvailable(ctx context.Context) bool {
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	return provider.Health(ctx) == nil
}
