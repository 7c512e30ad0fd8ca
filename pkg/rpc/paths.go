package rpc

// JSON-RPC method names used by the indexer.
const (
	methodGetSlot            = "getSlot"
	methodGetBlock           = "getBlock"
	methodGetBlockTime       = "getBlockTime"
	methodGetVersion         = "getVersion"
	methodGetLatestBlockhash = "getLatestBlockhash"
)
