package indexer

import (
	"fmt"
	"strings"
	"time"

	"github.com/canopy-network/solanax/pkg/classify"
	etl "github.com/canopy-network/solanax/pkg/indexer"
	"github.com/canopy-network/solanax/pkg/retry"
)

const (
	// Without an explicit range the run covers [tip-defaultStartLag, tip-defaultEndLag].
	defaultStartLag = 30
	defaultEndLag   = 20
	// An explicit start with no end covers this many blocks.
	defaultSpan = 10
)

// Config holds every setting of an indexer run.
type Config struct {
	StartSlot *uint64
	EndSlot   *uint64
	NumBlocks *uint64

	RPCURL      string
	DatabaseURL string
	Commitment  string

	BatchSize     int
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	FetchWorkers  int
	CommitTimeout time.Duration

	Continuous bool
	// Resume starts continuous mode right after the highest stored slot.
	Resume       bool
	Interval     time.Duration
	FinalityLag  uint64
	StatusAddr   string
	RedisEnabled bool
	// StatsSchedule is the cron spec of the periodic stats log in continuous mode.
	StatsSchedule string

	// Recognizer names the fallback rule for unclassified programs (known, registry or pubkey).
	Recognizer string
	Migrate    bool
}

func DefaultConfig() Config {
	return Config{
		Commitment:    "finalized",
		BatchSize:     10,
		MaxRetries:    3,
		RetryDelay:    2 * time.Second,
		MaxRetryDelay: 30 * time.Second,
		FetchWorkers:  1,
		CommitTimeout: 2 * time.Minute,
		Interval:      10 * time.Second,
		FinalityLag:   defaultEndLag,
		StatusAddr:    ":3002",
		StatsSchedule: "@every 1m",
		Recognizer:    "known",
		Migrate:       true,
	}
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks settings that do not depend on the chain tip.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return &ConfigError{Field: "rpc-url", Reason: "required (flag or HELIUS_RPC_URL)"}
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return &ConfigError{Field: "database-url", Reason: "required (flag or DATABASE_URL)"}
	}
	if c.EndSlot != nil && c.NumBlocks != nil {
		return &ConfigError{Field: "num-blocks", Reason: "cannot be combined with end-slot"}
	}
	if c.NumBlocks != nil && *c.NumBlocks == 0 {
		return &ConfigError{Field: "num-blocks", Reason: "must be greater than 0"}
	}
	if c.StartSlot != nil && c.EndSlot != nil && *c.StartSlot > *c.EndSlot {
		return &ConfigError{
			Field:  "start-slot",
			Reason: fmt.Sprintf("start slot (%d) must be less than or equal to end slot (%d)", *c.StartSlot, *c.EndSlot),
		}
	}
	if c.BatchSize <= 0 {
		return &ConfigError{Field: "batch-size", Reason: "must be greater than 0"}
	}
	if c.MaxRetries <= 0 {
		return &ConfigError{Field: "max-retries", Reason: "must be greater than 0"}
	}
	if c.RetryDelay < 0 || c.MaxRetryDelay < 0 {
		return &ConfigError{Field: "retry-delay", Reason: "must not be negative"}
	}
	if c.FetchWorkers <= 0 {
		return &ConfigError{Field: "fetch-workers", Reason: "must be greater than 0"}
	}
	if c.Resume && !c.Continuous {
		return &ConfigError{Field: "resume", Reason: "only applies to continuous mode"}
	}
	if c.Continuous && c.Interval <= 0 {
		return &ConfigError{Field: "interval", Reason: "must be positive in continuous mode"}
	}
	if _, err := classify.RecognizerByName(c.Recognizer); err != nil {
		return &ConfigError{Field: "recognizer", Reason: err.Error()}
	}
	switch c.Commitment {
	case "confirmed", "finalized":
	default:
		return &ConfigError{Field: "commitment", Reason: fmt.Sprintf("%q is not supported by getBlock", c.Commitment)}
	}
	return nil
}

// ResolveRange computes the one-shot slot range. tip is only read when no start slot is set.
func (c Config) ResolveRange(tip uint64) (etl.SlotRange, error) {
	var r etl.SlotRange

	if c.StartSlot != nil {
		r.Start = *c.StartSlot
	} else {
		r.Start = saturatingSub(tip, defaultStartLag)
	}

	switch {
	case c.NumBlocks != nil:
		r.End = r.Start + *c.NumBlocks - 1
	case c.EndSlot != nil:
		r.End = *c.EndSlot
	case c.StartSlot != nil:
		r.End = r.Start + defaultSpan - 1
	default:
		r.End = saturatingSub(tip, defaultEndLag)
	}

	if err := r.Validate(); err != nil {
		return r, &ConfigError{Field: "slot range", Reason: err.Error()}
	}
	return r, nil
}

// ContinuousConfig returns the settings of continuous mode.
func (c Config) ContinuousConfig() etl.ContinuousConfig {
	cc := etl.ContinuousConfig{
		NumBlocks:    defaultSpan,
		FinalityLag:  c.FinalityLag,
		PollInterval: c.Interval,
	}
	if c.NumBlocks != nil {
		cc.NumBlocks = *c.NumBlocks
	}
	if c.StartSlot != nil {
		cc.Start = *c.StartSlot
	}
	return cc
}

// RetryPolicy is the policy shared by block extraction and batch commits.
func (c Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.MaxRetries
	p.BaseDelay = c.RetryDelay
	p.MaxDelay = c.MaxRetryDelay
	p.Jitter = false
	return p
}

// PipelineConfig maps the run settings onto the pipeline.
func (c Config) PipelineConfig() etl.PipelineConfig {
	return etl.PipelineConfig{
		BatchSize:     c.BatchSize,
		FetchWorkers:  c.FetchWorkers,
		CommitTimeout: c.CommitTimeout,
		CommitPolicy:  c.RetryPolicy(),
	}
}

// Endpoints splits the comma-separated RPC URL into failover endpoints.
func (c Config) Endpoints() []string {
	var out []string
	for _, ep := range strings.Split(c.RPCURL, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			out = append(out, ep)
		}
	}
	return out
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
