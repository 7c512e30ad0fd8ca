package classify

import (
	"strings"

	"github.com/canopy-network/solanax/pkg/indexer/types"
	"github.com/canopy-network/solanax/pkg/registry"
)

// DefaultPrecedence ranks transaction categories from strongest to weakest.
// A swap routed through a DEX also carries token and SOL movements, so the
// rarer category dominates.
var DefaultPrecedence = []types.Category{
	types.DexSwap,
	types.NftOperation,
	types.TokenTransfer,
	types.SolTransfer,
	types.ProgramInteraction,
	types.Unknown,
}

// Classifier derives one type and label per transaction from its instructions.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	instructions *InstructionClassifier
	rank         map[types.Category]int
}

type options struct {
	recognizer Recognizer
	precedence []types.Category
}

type Option func(*options)

// WithRecognizer sets the rule deciding ProgramInteraction versus Unknown.
func WithRecognizer(r Recognizer) Option {
	return func(o *options) { o.recognizer = r }
}

// WithPrecedence overrides the category order. Categories left out keep their
// DefaultPrecedence order after the given ones.
func WithPrecedence(order ...types.Category) Option {
	return func(o *options) { o.precedence = order }
}

func New(reg *registry.Registry, opts ...Option) *Classifier {
	o := options{recognizer: KnownProgram{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Classifier{
		instructions: NewInstructionClassifier(reg, o.recognizer),
		rank:         buildRank(o.precedence),
	}
}

func buildRank(order []types.Category) map[types.Category]int {
	rank := make(map[types.Category]int, len(DefaultPrecedence))
	for _, c := range order {
		if _, dup := rank[c]; !dup {
			rank[c] = len(rank)
		}
	}
	for _, c := range DefaultPrecedence {
		if _, seen := rank[c]; !seen {
			rank[c] = len(rank)
		}
	}
	return rank
}

// Instructions exposes the instruction-level classifier.
func (c *Classifier) Instructions() *InstructionClassifier {
	return c.instructions
}

// Dominant returns the highest-precedence category in cats, or Unknown when cats is empty.
func (c *Classifier) Dominant(cats []types.Category) types.Category {
	best := types.Unknown
	bestRank := c.rank[types.Unknown]
	for _, cat := range cats {
		if r := c.rank[cat]; r < bestRank {
			best, bestRank = cat, r
		}
	}
	return best
}

// Classify labels the transaction found at index within its block.
func (c *Classifier) Classify(index int, tx *types.RawTransaction) types.ClassifiedTransaction {
	out := types.ClassifiedTransaction{
		Index:        index,
		Transaction:  tx,
		Instructions: make([]types.ClassifiedInstruction, 0, len(tx.Instructions)),
	}

	cats := make([]types.Category, 0, len(tx.Instructions))
	names := make([]string, 0, 4)
	seen := make(map[string]bool, 4)
	for i, ix := range tx.Instructions {
		ci := c.instructions.Classify(i, ix)
		out.Instructions = append(out.Instructions, ci)
		cats = append(cats, ci.Category)
		if ci.ProgramName != "" && !seen[ci.ProgramName] {
			seen[ci.ProgramName] = true
			names = append(names, ci.ProgramName)
		}
	}

	out.Category = c.Dominant(cats)
	out.Label = Label(out.Category, names)
	return out
}

// ClassifyBlock classifies every transaction of a block, preserving source order.
func (c *Classifier) ClassifyBlock(block *types.RawBlock) types.ClassifiedBlock {
	out := types.ClassifiedBlock{
		Block:        block,
		Transactions: make([]types.ClassifiedTransaction, 0, len(block.Transactions)),
	}
	for i := range block.Transactions {
		out.Transactions = append(out.Transactions, c.Classify(i, &block.Transactions[i]))
	}
	return out
}

// Label renders "<type> (<name>, ...)", or just "<type>" when no program name resolved.
func Label(cat types.Category, programNames []string) string {
	if len(programNames) == 0 {
		return cat.String()
	}
	return cat.String() + " (" + strings.Join(programNames, ", ") + ")"
}
