package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ChainHead returns the latest slot at the client's commitment.
func (c *HTTPClient) ChainHead(ctx context.Context) (uint64, error) {
	slot, err := c.GetSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot probe head: %w", err)
	}
	return slot, nil
}

// GetSlot returns the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, methodGetSlot, map[string]any{"commitment": c.commitment})
	if err != nil {
		return 0, err
	}
	var slot uint64
	if err := json.Unmarshal(raw, &slot); err != nil {
		return 0, fmt.Errorf("decode slot: %w", err)
	}
	return slot, nil
}

// GetBlockTime returns the estimated production time of a slot, or nil when the node has none.
func (c *HTTPClient) GetBlockTime(ctx context.Context, slot uint64) (*time.Time, error) {
	raw, err := c.call(ctx, methodGetBlockTime, slot)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var ts int64
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, fmt.Errorf("decode block time: %w", err)
	}
	t := time.Unix(ts, 0).UTC()
	return &t, nil
}

func (c *HTTPClient) GetVersion(ctx context.Context) (VersionInfo, error) {
	raw, err := c.call(ctx, methodGetVersion)
	if err != nil {
		return VersionInfo{}, err
	}
	var v VersionInfo
	if err := json.Unmarshal(raw, &v); err != nil {
		return VersionInfo{}, fmt.Errorf("decode version: %w", err)
	}
	return v, nil
}

func (c *HTTPClient) GetLatestBlockhash(ctx context.Context) (LatestBlockhash, error) {
	raw, err := c.call(ctx, methodGetLatestBlockhash, map[string]any{"commitment": c.commitment})
	if err != nil {
		return LatestBlockhash{}, err
	}
	var w latestBlockhashWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return LatestBlockhash{}, fmt.Errorf("decode latest blockhash: %w", err)
	}
	return LatestBlockhash{
		Slot:                 w.Context.Slot,
		Blockhash:            w.Value.Blockhash,
		LastValidBlockHeight: w.Value.LastValidBlockHeight,
	}, nil
}

// ConnectionInfo summarizes the node reached at startup.
type ConnectionInfo struct {
	Endpoint  string
	Version   string
	Blockhash string
	Slot      uint64
	Timestamp time.Time
}

// Probe checks that the RPC is reachable and returns what it reports.
func (c *HTTPClient) Probe(ctx context.Context) (ConnectionInfo, error) {
	info := ConnectionInfo{Timestamp: time.Now().UTC()}
	if len(c.endpoints) > 0 {
		info.Endpoint = c.endpoints[0]
	}

	version, err := c.GetVersion(ctx)
	if err != nil {
		return info, fmt.Errorf("get version: %w", err)
	}
	info.Version = version.SolanaCore

	latest, err := c.GetLatestBlockhash(ctx)
	if err != nil {
		return info, fmt.Errorf("get latest blockhash: %w", err)
	}
	info.Blockhash = latest.Blockhash

	slot, err := c.GetSlot(ctx)
	if err != nil {
		return info, fmt.Errorf("get slot: %w", err)
	}
	info.Slot = slot
	return info, nil
}
