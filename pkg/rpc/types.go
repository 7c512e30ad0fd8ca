package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// blockWire is the getBlock result. Transactions stay raw so each one can be
// kept verbatim next to its decoded form.
type blockWire struct {
	Blockhash         string            `json:"blockhash"`
	PreviousBlockhash string            `json:"previousBlockhash"`
	ParentSlot        *uint64           `json:"parentSlot"`
	BlockTime         *int64            `json:"blockTime"`
	BlockHeight       *uint64           `json:"blockHeight"`
	Transactions      []json.RawMessage `json:"transactions"`
}

type txWire struct {
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys  []accountKeyWire  `json:"accountKeys"`
			Header       *messageHeader    `json:"header"`
			Instructions []instructionWire `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
	Meta *struct {
		Err             json.RawMessage `json:"err"`
		Fee             uint64          `json:"fee"`
		PreBalances     []uint64        `json:"preBalances"`
		PostBalances    []uint64        `json:"postBalances"`
		LoadedAddresses *struct {
			Writable []string `json:"writable"`
			Readonly []string `json:"readonly"`
		} `json:"loadedAddresses"`
	} `json:"meta"`
	Version json.RawMessage `json:"version"`
}

type messageHeader struct {
	NumRequiredSignatures       int `json:"numRequiredSignatures"`
	NumReadonlySignedAccounts   int `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsignedAccounts int `json:"numReadonlyUnsignedAccounts"`
}

// accountKeyWire accepts both the jsonParsed object form and the bare base58 string form.
type accountKeyWire struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
	Source   string `json:"source"`
	// flagged is true when signer/writable came from the node rather than the header.
	flagged bool
}

func (a *accountKeyWire) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &a.Pubkey)
	}
	type plain accountKeyWire
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*a = accountKeyWire(p)
	a.flagged = true
	return nil
}

// instructionWire covers parsed, partially decoded and compiled instruction shapes.
type instructionWire struct {
	ProgramID      string          `json:"programId"`
	ProgramIDIndex *int            `json:"programIdIndex"`
	Program        string          `json:"program"`
	Accounts       []accountRef    `json:"accounts"`
	Data           string          `json:"data"`
	Parsed         json.RawMessage `json:"parsed"`
	StackHeight    *int            `json:"stackHeight"`
}

// accountRef is an instruction account given either as an address or as an
// index into the message account keys.
type accountRef struct {
	Address string
	Index   int
	IsIndex bool
}

func (r *accountRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.Address)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("account reference %s: %w", b, err)
	}
	r.Index = n
	r.IsIndex = true
	return nil
}

// VersionInfo is the getVersion result.
type VersionInfo struct {
	SolanaCore string `json:"solana-core"`
	FeatureSet uint32 `json:"feature-set"`
}

// LatestBlockhash is the value of the getLatestBlockhash result.
type LatestBlockhash struct {
	Slot                 uint64
	Blockhash            string
	LastValidBlockHeight uint64
}

type latestBlockhashWire struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}
