package classify

import (
	"encoding/json"

	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/canopy-network/solanax/pkg/registry"
)

// InstructionClassifier labels single instructions. It never fails: anything it
// cannot interpret falls back to ProgramInteraction or Unknown.
type InstructionClassifier struct {
	registry   *registry.Registry
	recognizer Recognizer
}

func NewInstructionClassifier(reg *registry.Registry, recognizer Recognizer) *InstructionClassifier {
	if recognizer == nil {
		recognizer = KnownProgram{}
	}
	return &InstructionClassifier{registry: reg, recognizer: recognizer}
}

// familyOf maps a registry category to its classification family.
func familyOf(category string) (types.Category, bool) {
	switch category {
	case registry.CategorySystem:
		return types.SolTransfer, true
	case registry.CategoryToken:
		return types.TokenTransfer, true
	case registry.CategoryDEX:
		return types.DexSwap, true
	case registry.CategoryNFT:
		return types.NftOperation, true
	default:
		return types.Unknown, false
	}
}

// Classify labels the instruction found at index within its transaction.
func (c *InstructionClassifier) Classify(index int, ix types.RawInstruction) types.ClassifiedInstruction {
	out := types.ClassifiedInstruction{Index: index, Instruction: ix, Category: types.Unknown}

	if ix.Malformed != "" {
		out.Anomaly = ix.Malformed
	}
	if ix.ProgramID == "" {
		if out.Anomaly == "" {
			out.Anomaly = "missing program id"
		}
		return out
	}
	if len(ix.Parsed) > 0 && !json.Valid(ix.Parsed) {
		if out.Anomaly == "" {
			out.Anomaly = "malformed parsed payload"
		}
		out.Instruction.Parsed = nil
	}

	entry, known := c.registry.Resolve(ix.ProgramID)
	if known {
		out.ProgramName = entry.Name
	}

	if family, ok := familyOf(entry.Category); known && ok {
		out.Category = family
		c.attachTransfer(&out)
		return out
	}

	if c.recognizer.Recognize(ix, entry, known) {
		out.Category = types.ProgramInteraction
	}
	return out
}

func (c *InstructionClassifier) attachTransfer(out *types.ClassifiedInstruction) {
	parsed := out.Instruction.Parsed
	if len(parsed) == 0 {
		return
	}

	var (
		transfer *types.Transfer
		err      error
	)
	switch out.Category {
	case types.SolTransfer:
		transfer, err = ParseSystemTransfer(parsed)
	case types.TokenTransfer:
		transfer, err = ParseTokenTransfer(parsed)
	default:
		return
	}
	if err != nil {
		out.Anomaly = err.Error()
		return
	}
	out.Transfer = transfer
}
