package types

// Category is the semantic label assigned to instructions and transactions.
type Category uint8

const (
	Unknown Category = iota
	ProgramInteraction
	NftOperation
	DexSwap
	TokenTransfer
	SolTransfer
)

// AllCategories lists every category in declaration order.
func AllCategories() []Category {
	return []Category{SolTransfer, TokenTransfer, DexSwap, NftOperation, ProgramInteraction, Unknown}
}

// String returns the human-readable label used in transaction labels and reports.
func (c Category) String() string {
	switch c {
	case SolTransfer:
		return "SOL Transfer"
	case TokenTransfer:
		return "Token Transfer"
	case DexSwap:
		return "DEX Swap"
	case NftOperation:
		return "NFT Operation"
	case ProgramInteraction:
		return "Program Interaction"
	default:
		return "Unknown"
	}
}

// Slug returns a stable snake_case identifier for metrics labels and JSON keys.
func (c Category) Slug() string {
	switch c {
	case SolTransfer:
		return "sol_transfer"
	case TokenTransfer:
		return "token_transfer"
	case DexSwap:
		return "dex_swap"
	case NftOperation:
		return "nft_operation"
	case ProgramInteraction:
		return "program_interaction"
	default:
		return "unknown"
	}
}
