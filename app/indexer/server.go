package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	etl "github.com/canopy-network/solanax/pkg/indexer"
	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pinger is the readiness dependency of the status server.
type Pinger interface {
	Ping(ctx context.Context) error
}

type statsResponse struct {
	etl.Snapshot
	ElapsedSeconds        float64            `json:"elapsed_seconds"`
	SuccessRate           float64            `json:"success_rate"`
	BlocksPerSecond       float64            `json:"blocks_per_second"`
	TransactionsPerSecond float64            `json:"transactions_per_second"`
	CategoryPercent       map[string]float64 `json:"category_percent"`
}

func newStatsResponse(s etl.Snapshot) statsResponse {
	resp := statsResponse{
		Snapshot:              s,
		ElapsedSeconds:        s.Elapsed.Seconds(),
		SuccessRate:           s.SuccessRate(),
		BlocksPerSecond:       s.BlocksPerSecond(),
		TransactionsPerSecond: s.TransactionsPerSecond(),
		CategoryPercent:       make(map[string]float64),
	}
	for _, c := range types.AllCategories() {
		resp.CategoryPercent[c.Slug()] = s.CategoryPercent(c)
	}
	return resp
}

// NewRouter builds the status routes.
func (a *App) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if a.Ready(req.Context()) {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})).Methods("GET")
	r.HandleFunc("/stats", a.handleStats).Methods("GET")
	r.Handle("/metrics", a.Metrics.Handler()).Methods("GET")

	return r
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newStatsResponse(a.Stats.Snapshot())); err != nil {
		a.Logger.Warn("Failed to encode stats", zap.Error(err))
	}
}

// Ready reports whether the pipeline is running and the database answers.
func (a *App) Ready(ctx context.Context) bool {
	if !a.running.Load() {
		return false
	}
	if a.DBHealth == nil {
		return true
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.DBHealth.Ping(pctx) == nil
}

// SetupServer creates the status server. An empty StatusAddr disables it.
func (a *App) SetupServer() {
	if a.Config.StatusAddr == "" {
		return
	}
	a.Server = &http.Server{
		Addr:              a.Config.StatusAddr,
		Handler:           a.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// SetupScheduler registers the periodic stats log.
func (a *App) SetupScheduler(logger cron.Logger, spec string) error {
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))

	_, err := a.Cron.AddFunc(spec, a.logStats)
	return err
}

func (a *App) logStats() {
	s := a.Stats.Snapshot()
	a.Logger.Info("Indexer progress",
		zap.Uint64("blocks_succeeded", s.BlocksSucceeded),
		zap.Uint64("blocks_failed", s.BlocksFailed),
		zap.Uint64("transactions", s.TransactionsInserted),
		zap.Uint64("last_committed_slot", s.LastCommittedSlot),
		zap.Float64("success_rate", s.SuccessRate()),
		zap.Float64("blocks_per_second", s.BlocksPerSecond()),
	)
}
