package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/canopy-network/solanax/app/indexer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "solanax",
	Short: "Extract, classify and load Solana blocks into PostgreSQL",
	RunE:  run,
}

func init() {
	def := indexer.DefaultConfig()
	flags := rootCmd.Flags()

	flags.Uint64P("start-slot", "s", 0, "Starting slot (defaults to latest - 30)")
	flags.Uint64P("end-slot", "e", 0, "Ending slot (defaults to latest - 20)")
	flags.Uint64P("num-blocks", "n", 0, "Number of blocks to fetch (alternative to end-slot)")
	flags.StringP("rpc-url", "r", "", "RPC endpoint URL, comma separated for failover (overrides HELIUS_RPC_URL)")
	flags.StringP("database-url", "d", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	flags.IntP("batch-size", "b", def.BatchSize, "Blocks per atomic commit")
	flags.Int("max-retries", def.MaxRetries, "Attempts per block fetch and per batch commit")
	flags.Duration("retry-delay", def.RetryDelay, "Delay before the first retry, doubled on each further retry")
	flags.Duration("max-retry-delay", def.MaxRetryDelay, "Upper bound of the retry delay")
	flags.Int("fetch-workers", def.FetchWorkers, "Concurrent block fetches within a batch")
	flags.Duration("commit-timeout", def.CommitTimeout, "Timeout of a single batch commit attempt")
	flags.BoolP("continuous", "c", false, "Keep processing new finalized blocks")
	flags.Bool("resume", false, "Continue after the highest stored slot in continuous mode")
	flags.Duration("interval", def.Interval, "Interval between continuous iterations")
	flags.Uint64("finality-lag", def.FinalityLag, "Slots kept between the tip and the last processed slot in continuous mode")
	flags.String("status-addr", def.StatusAddr, "Status server address, empty disables it")
	flags.String("commitment", def.Commitment, "Commitment level for RPC requests (confirmed or finalized)")
	flags.String("recognizer", def.Recognizer, "Fallback rule for unclassified programs: known, registry or pubkey")
	flags.Bool("migrate", def.Migrate, "Apply database migrations at startup")
	flags.Bool("redis", false, "Publish block.indexed notifications to Redis")
	flags.String("stats-schedule", def.StatsSchedule, "Cron spec of the periodic stats log in continuous mode")

	if err := viper.BindPFlags(flags); err != nil {
		log.Fatal(err)
	}

	viper.SetEnvPrefix("SOLANAX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	mustBindEnv("rpc-url", "SOLANAX_RPC_URL", "HELIUS_RPC_URL")
	mustBindEnv("database-url", "SOLANAX_DATABASE_URL", "DATABASE_URL")
	mustBindEnv("redis", "SOLANAX_REDIS", "REDIS_ENABLED")
	mustBindEnv("stats-schedule", "SOLANAX_STATS_SCHEDULE", "STATS_SCHEDULE")
}

func mustBindEnv(key string, envs ...string) {
	if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
		log.Fatal(err)
	}
}

// optionalSlot returns nil unless the flag was given or its env var is set.
func optionalSlot(cmd *cobra.Command, name string) *uint64 {
	if !cmd.Flags().Changed(name) && !viper.IsSet(name) {
		return nil
	}
	v := viper.GetUint64(name)
	return &v
}

func configFromFlags(cmd *cobra.Command) indexer.Config {
	return indexer.Config{
		StartSlot:     optionalSlot(cmd, "start-slot"),
		EndSlot:       optionalSlot(cmd, "end-slot"),
		NumBlocks:     optionalSlot(cmd, "num-blocks"),
		RPCURL:        viper.GetString("rpc-url"),
		DatabaseURL:   viper.GetString("database-url"),
		Commitment:    viper.GetString("commitment"),
		BatchSize:     viper.GetInt("batch-size"),
		MaxRetries:    viper.GetInt("max-retries"),
		RetryDelay:    viper.GetDuration("retry-delay"),
		MaxRetryDelay: viper.GetDuration("max-retry-delay"),
		FetchWorkers:  viper.GetInt("fetch-workers"),
		CommitTimeout: viper.GetDuration("commit-timeout"),
		Continuous:    viper.GetBool("continuous"),
		Resume:        viper.GetBool("resume"),
		Interval:      viper.GetDuration("interval"),
		FinalityLag:   viper.GetUint64("finality-lag"),
		StatusAddr:    viper.GetString("status-addr"),
		RedisEnabled:  viper.GetBool("redis"),
		StatsSchedule: viper.GetString("stats-schedule"),
		Recognizer:    viper.GetString("recognizer"),
		Migrate:       viper.GetBool("migrate"),
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := configFromFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := indexer.Initialize(ctx, cfg)
	app.Start(ctx)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
