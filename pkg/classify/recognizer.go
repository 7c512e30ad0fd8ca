package classify

import (
	"fmt"

	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/canopy-network/solanax/pkg/registry"
	"github.com/gagliardetto/solana-go"
)

// Recognizer decides whether an instruction that matched no classification
// family is still a recognizable program call (ProgramInteraction) rather than Unknown.
// entry and known are the registry lookup result for the instruction's program id.
type Recognizer interface {
	Recognize(ix types.RawInstruction, entry registry.Entry, known bool) bool
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ix types.RawInstruction, entry registry.Entry, known bool) bool

func (f RecognizerFunc) Recognize(ix types.RawInstruction, entry registry.Entry, known bool) bool {
	return f(ix, entry, known)
}

// KnownProgram recognizes programs listed in the registry under any category
// and programs the RPC node itself could parse.
type KnownProgram struct{}

func (KnownProgram) Recognize(ix types.RawInstruction, _ registry.Entry, known bool) bool {
	return known || ix.Program != ""
}

// ValidProgramID recognizes every instruction whose program id is a well-formed
// 32-byte base58 public key, in addition to what KnownProgram accepts.
type ValidProgramID struct{}

func (ValidProgramID) Recognize(ix types.RawInstruction, entry registry.Entry, known bool) bool {
	if (KnownProgram{}).Recognize(ix, entry, known) {
		return true
	}
	if ix.ProgramID == "" {
		return false
	}
	_, err := solana.PublicKeyFromBase58(ix.ProgramID)
	return err == nil
}

// RegistryOnly recognizes only programs listed in the registry.
type RegistryOnly struct{}

func (RegistryOnly) Recognize(_ types.RawInstruction, _ registry.Entry, known bool) bool {
	return known
}

// RecognizerByName maps a configuration value to a Recognizer.
// Valid names are "known" (the default), "registry" and "pubkey".
func RecognizerByName(name string) (Recognizer, error) {
	switch name {
	case "", "known":
		return KnownProgram{}, nil
	case "registry":
		return RegistryOnly{}, nil
	case "pubkey":
		return ValidProgramID{}, nil
	default:
		return nil, fmt.Errorf("unknown recognizer %q (want known, registry or pubkey)", name)
	}
}
