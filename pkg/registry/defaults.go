package registry

// Well-known program ids.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	ComputeBudgetProgramID   = "ComputeBudget111111111111111111111111111111"
	JupiterV6ProgramID       = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	OrcaWhirlpoolProgramID   = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	RaydiumAMMV4ProgramID    = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	RaydiumCLMMProgramID     = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	MetaplexMetadataID       = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	MagicEdenV2ProgramID     = "M2mx93ekt1fmXSVkTrUL9xVFHkmME8HTUi5Cyc5aF7K"
)

// DefaultEntries is the built-in seed; the schema migration inserts the same rows.
var DefaultEntries = []Entry{
	{SystemProgramID, "System Program", CategorySystem, "Native SOL transfers and account creation"},
	{ComputeBudgetProgramID, "Compute Budget Program", CategoryCompute, "Compute unit limits and priority fees"},
	{TokenProgramID, "Token Program", CategoryToken, "SPL token mint, transfer and account management"},
	{Token2022ProgramID, "Token-2022 Program", CategoryToken, "SPL token program with extensions"},
	{AssociatedTokenProgramID, "Associated Token Program", CategoryToken, "Deterministic token account creation"},
	{JupiterV6ProgramID, "Jupiter v6", CategoryDEX, "Jupiter swap aggregator"},
	{OrcaWhirlpoolProgramID, "Orca Whirlpool", CategoryDEX, "Orca concentrated liquidity pools"},
	{RaydiumAMMV4ProgramID, "Raydium AMM v4", CategoryDEX, "Raydium constant product AMM"},
	{RaydiumCLMMProgramID, "Raydium CLMM", CategoryDEX, "Raydium concentrated liquidity"},
	{MetaplexMetadataID, "Metaplex Token Metadata", CategoryNFT, "NFT metadata, mint and update"},
	{MagicEdenV2ProgramID, "Magic Eden v2", CategoryNFT, "Magic Eden marketplace"},
}

// Default returns a registry holding DefaultEntries.
func Default() *Registry {
	return New(DefaultEntries)
}
