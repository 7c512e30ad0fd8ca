package indexer

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/canopy-network/solanax/pkg/classify"
	"github.com/canopy-network/solanax/pkg/db/postgres"
	"github.com/canopy-network/solanax/pkg/db/postgres/chain"
	etl "github.com/canopy-network/solanax/pkg/indexer"
	"github.com/canopy-network/solanax/pkg/logging"
	"github.com/canopy-network/solanax/pkg/redis"
	"github.com/canopy-network/solanax/pkg/registry"
	"github.com/canopy-network/solanax/pkg/rpc"
	"github.com/canopy-network/solanax/pkg/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type App struct {
	Config Config
	Logger *zap.Logger

	DB       *chain.DB
	DBHealth Pinger
	RPC      *rpc.HTTPClient
	Redis    *redis.Client

	Metrics  *etl.Metrics
	Stats    *etl.Stats
	Pipeline *etl.Pipeline

	// Range is the resolved one-shot range; unused in continuous mode.
	Range etl.SlotRange
	// Continuous holds the continuous mode settings, including a resumed start.
	Continuous etl.ContinuousConfig

	Server *http.Server
	Cron   *cron.Cron

	running atomic.Bool
}

// Start runs the pipeline in the configured mode, then stops the app.
// One-shot mode returns after the report; continuous mode runs until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	if a.Server != nil {
		go func() {
			a.Logger.Info("Starting status server", zap.String("addr", a.Server.Addr))
			if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("Status server failed", zap.Error(err))
			}
		}()
	}
	a.running.Store(true)

	if a.Config.Continuous {
		a.runContinuous(ctx)
	} else {
		a.runOnce(ctx)
	}

	a.running.Store(false)
	a.Stop()
}

func (a *App) runOnce(ctx context.Context) {
	report, err := a.Pipeline.Run(ctx, a.Range)
	if err != nil {
		a.Logger.Warn("Run interrupted", zap.Error(err))
	}
	if report != nil {
		a.logReport(report)
	}
}

func (a *App) runContinuous(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("Cron started", zap.String("cronSpec", a.Config.StatsSchedule))
	}
	cc := a.Continuous
	cc.OnIteration = a.logReport

	a.Logger.Info("Entering continuous mode",
		zap.Duration("interval", cc.PollInterval),
		zap.Uint64("finality_lag", cc.FinalityLag))

	if err := a.Pipeline.RunContinuous(ctx, a.RPC, cc); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("Continuous mode stopped", zap.Error(err))
	}
}

func (a *App) logReport(report *etl.Report) {
	s := report.Stats
	a.Logger.Info("Run complete",
		zap.Stringer("range", report.Range),
		zap.Int("blocks_succeeded", len(report.Succeeded())),
		zap.Uint64s("failed_slots", report.Failed()),
		zap.Uint64("transactions", s.TransactionsInserted),
		zap.Float64("success_rate", s.SuccessRate()))
	a.Logger.Info("Pipeline report\n" + s.Render())
}

// Stop releases every resource. It is safe to call once after Start returns.
func (a *App) Stop() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	if a.Server != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.Server.Shutdown(sctx); err != nil {
			a.Logger.Warn("Status server shutdown", zap.Error(err))
		}
		cancel()
	}
	if a.Pipeline != nil {
		a.Pipeline.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Redis close", zap.Error(err))
		}
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	a.Logger.Info("さようなら!")
	_ = a.Logger.Sync()
}

// Initialize builds the app. Startup failures are fatal.
func Initialize(ctx context.Context, cfg Config) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	db, err := chain.New(ctx, logger, cfg.DatabaseURL, cfg.Migrate, postgres.GetPoolConfigForComponent("indexer"))
	if err != nil {
		logger.Fatal("Unable to initialize database", zap.Error(err))
	}

	if counts, err := db.TableCounts(ctx); err != nil {
		logger.Warn("Unable to count stored rows", zap.Error(err))
	} else {
		fields := make([]zap.Field, 0, len(counts))
		for table, n := range counts {
			fields = append(fields, zap.Int64(table, n))
		}
		logger.Info("Database ready", fields...)
	}

	reg := registry.Default()
	if entries, err := db.LoadRegistry(ctx); err != nil {
		logger.Warn("Unable to load program registry, using built-in entries", zap.Error(err))
	} else {
		reg = registry.Merge(reg, registry.New(entries))
	}
	logger.Info("Program registry loaded", zap.Int("programs", reg.Len()))

	rpcClient := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints:       cfg.Endpoints(),
		Commitment:      cfg.Commitment,
		RPS:             utils.EnvInt("RPC_RPS", 20),
		Burst:           utils.EnvInt("RPC_BURST", 40),
		BreakerFailures: utils.EnvInt("RPC_BREAKER_FAILURES", 5),
		BreakerCooldown: utils.EnvDuration("RPC_BREAKER_COOLDOWN", 10*time.Second),
		Timeout:         utils.EnvDuration("RPC_TIMEOUT", 30*time.Second),
	})
	info, err := rpcClient.Probe(ctx)
	if err != nil {
		logger.Fatal("Unable to reach RPC endpoint", zap.Strings("endpoints", rpcClient.Endpoints()), zap.Error(err))
	}
	logger.Info("Connected to Solana RPC",
		zap.String("endpoint", info.Endpoint),
		zap.String("version", info.Version),
		zap.String("blockhash", info.Blockhash),
		zap.Uint64("slot", info.Slot))

	app := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		DBHealth: db,
		RPC:      rpcClient,
		Metrics:  etl.NewMetrics(),
	}
	app.Stats = etl.NewStats(app.Metrics)

	if cfg.Continuous {
		app.Continuous = cfg.ContinuousConfig()
		if cfg.Resume {
			latest, ok, err := db.LatestSlot(ctx)
			if err != nil {
				logger.Fatal("Unable to read latest stored slot", zap.Error(err))
			}
			if ok && latest+1 > app.Continuous.Start {
				app.Continuous.Start = latest + 1
				app.Continuous.FromStart = true
			}
			logger.Info("Resuming continuous mode",
				zap.Uint64("start", app.Continuous.Start),
				zap.Bool("from_start", app.Continuous.FromStart))
		}
	} else {
		tip := info.Slot
		app.Range, err = cfg.ResolveRange(tip)
		if err != nil {
			logger.Fatal("Invalid slot range", zap.Uint64("tip", tip), zap.Error(err))
		}
		logger.Info("Slot range resolved",
			zap.Stringer("range", app.Range),
			zap.String("blocks", utils.FormatNumber(app.Range.Len())))
	}

	var opts []etl.Option
	opts = append(opts, etl.WithMetrics(app.Metrics))
	if cfg.RedisEnabled {
		rc, err := redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Redis unavailable, block notifications disabled", zap.Error(err))
		} else {
			app.Redis = rc
			opts = append(opts, etl.WithPublisher(rc))
		}
	}

	recognizer, err := classify.RecognizerByName(cfg.Recognizer)
	if err != nil {
		logger.Fatal("Invalid recognizer", zap.Error(err))
	}

	pcfg := cfg.PipelineConfig()
	app.Pipeline = etl.NewPipeline(
		pcfg,
		etl.NewExtractor(rpcClient, pcfg.CommitPolicy, logger, app.Metrics),
		classify.New(reg, classify.WithRecognizer(recognizer)),
		etl.NewBatchLoader(db, logger),
		app.Stats,
		logger,
		opts...,
	)

	app.SetupServer()
	if cfg.Continuous {
		if err := app.SetupScheduler(cron.DefaultLogger, cfg.StatsSchedule); err != nil {
			logger.Fatal("Invalid stats schedule", zap.String("spec", cfg.StatsSchedule), zap.Error(err))
		}
	}

	return app
}
