package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	// ErrBlockNotAvailable is returned when the node answers getBlock with a null result.
	ErrBlockNotAvailable = errors.New("block not available")
	// ErrCircuitOpen is returned when every endpoint's breaker is open.
	ErrCircuitOpen = errors.New("all endpoints have an open circuit breaker")
	ErrNoEndpoints = errors.New("no endpoints configured")
)

// JSON-RPC error codes returned by Solana nodes.
const (
	CodeBlockCleanedUp                 = -32001
	CodeSendTransactionPreflight       = -32002
	CodeBlockNotAvailable              = -32004
	CodeNodeUnhealthy                  = -32005
	CodeSlotSkipped                    = -32007
	CodeLongTermStorageSlotSkipped     = -32009
	CodeKeyExcludedFromSecondaryIndex  = -32010
	CodeMinContextSlotNotReached       = -32016
	CodeBlockStatusNotAvailableYet     = -32014
	CodeUnsupportedTransactionVersion  = -32015
	CodeInvalidRequest                 = -32600
	CodeMethodNotFound                 = -32601
	CodeInvalidParams                  = -32602
	CodeInternalError                  = -32603
	CodeTransactionHistoryNotAvailable = -32011
	// CodeRateLimited is not part of the node API; hosted providers use it for throttling.
	CodeRateLimited = -32429
)

var transientCodes = map[int]bool{
	CodeBlockNotAvailable:          true,
	CodeNodeUnhealthy:              true,
	CodeBlockStatusNotAvailableYet: true,
	CodeMinContextSlotNotReached:   true,
	CodeInternalError:              true,
	CodeRateLimited:                true,
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.Endpoint)
}

// IsTransient reports whether err is worth retrying: network failures, timeouts,
// rate limits, 5xx answers, malformed bodies and the node's "not ready yet" codes.
// Skipped slots, missing blocks and request errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrBlockNotAvailable) || errors.Is(err, ErrNoEndpoints) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return transientCodes[rpcErr.Code]
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode == 408 || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	// Unclassified transport failures are retried.
	return true
}

// IsSlotUnavailable reports whether err means the slot has no block and never will.
func IsSlotUnavailable(err error) bool {
	if errors.Is(err, ErrBlockNotAvailable) {
		return true
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == CodeSlotSkipped || rpcErr.Code == CodeLongTermStorageSlotSkipped || rpcErr.Code == CodeBlockCleanedUp
	}
	return false
}
