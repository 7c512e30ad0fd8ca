package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/canopy-network/solanax/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
)

// HTTPClient is a Solana JSON-RPC client over HTTP with endpoint failover,
// a per-endpoint circuit-breaker and a shared token-bucket.
type HTTPClient struct {
	endpoints  []string
	client     *http.Client
	commitment string
	requestID  atomic.Uint64

	// token-bucket
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time

	// circuit-breaker
	breakers         *xsync.Map[string, breakerState]
	breakerThreshold int
	breakerCooldown  time.Duration
	now              func() time.Time
}

type breakerState struct {
	failures  int
	openUntil time.Time
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	// Commitment is sent with every request that accepts one (default "finalized").
	Commitment string
	HTTPClient *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}
	if o.Commitment == "" {
		o.Commitment = "finalized"
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	refillEvery := time.Second / time.Duration(o.RPS)
	if refillEvery <= 0 {
		refillEvery = time.Nanosecond
	}

	c := &HTTPClient{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           client,
		commitment:       o.Commitment,
		maxTokens:        int64(o.Burst),
		refillEvery:      refillEvery,
		breakers:         xsync.NewMap[string, breakerState](),
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
		now:              time.Now,
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

// Endpoints returns the deduplicated endpoint list in failover order.
func (c *HTTPClient) Endpoints() []string {
	return append([]string(nil), c.endpoints...)
}

// refill refills the token-bucket with new tokens if necessary.
func (c *HTTPClient) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if elapsed := now.Sub(last); elapsed >= c.refillEvery {
		add := int64(elapsed / c.refillEvery)
		for i := int64(0); i < add; i++ {
			if atomic.LoadInt64(&c.tokens) >= c.maxTokens {
				break
			}
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

// acquire takes a token from the bucket, waiting for a refill if it is empty.
func (c *HTTPClient) acquire(ctx context.Context) error {
	for {
		c.refill()
		if atomic.AddInt64(&c.tokens, -1) >= 0 {
			return nil
		}
		atomic.AddInt64(&c.tokens, 1)

		t := time.NewTimer(c.refillEvery / 2)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// isOpen returns true while the endpoint's breaker is OPEN; an expired breaker is reset.
func (c *HTTPClient) isOpen(ep string) bool {
	open := false
	c.breakers.Compute(ep, func(old breakerState, loaded bool) (breakerState, xsync.ComputeOp) {
		if !loaded || old.openUntil.IsZero() {
			return old, xsync.CancelOp
		}
		if c.now().After(old.openUntil) {
			return breakerState{}, xsync.DeleteOp
		}
		open = true
		return old, xsync.CancelOp
	})
	return open
}

// noteFailure counts a failure and opens the breaker once the threshold is reached.
func (c *HTTPClient) noteFailure(ep string) {
	c.breakers.Compute(ep, func(old breakerState, _ bool) (breakerState, xsync.ComputeOp) {
		old.failures++
		if old.failures >= c.breakerThreshold {
			old.openUntil = c.now().Add(c.breakerCooldown)
		}
		return old, xsync.UpdateOp
	})
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.breakers.Delete(ep)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// call sends one JSON-RPC request, failing over across endpoints on transport
// errors, 5xx/429 answers and transient RPC error codes. Permanent RPC errors are
// returned as soon as a node reports them. The raw result is returned undecoded.
func (c *HTTPClient) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if len(c.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	var lastErr error
	for _, ep := range c.endpoints {
		// Skip endpoints whose breaker is OPEN.
		if c.isOpen(ep) {
			continue
		}

		if err := c.acquire(ctx); err != nil {
			return nil, err
		}

		result, err := c.post(ctx, ep, payload)
		if err == nil {
			c.noteSuccess(ep)
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = fmt.Errorf("%s: %w", method, err)

		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			// The node answered; only "not ready" style codes are worth another endpoint.
			if !transientCodes[rpcErr.Code] {
				return nil, lastErr
			}
			continue
		}
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			continue
		}
		c.noteFailure(ep)
	}

	if lastErr == nil {
		return nil, ErrCircuitOpen
	}
	return nil, lastErr
}

func (c *HTTPClient) post(ctx context.Context, ep string, payload []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	// From here on, always drain+close the body before returning.
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Endpoint: ep}
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	return out.Result, nil
}

// isNull reports whether a raw JSON result is absent or the literal null.
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
