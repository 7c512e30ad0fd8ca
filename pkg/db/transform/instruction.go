package transform

import (
	"github.com/canopy-network/solanax/pkg/db/models/indexer"
	"github.com/canopy-network/solanax/pkg/indexer/types"
)

// Instructions maps the classified instructions of a transaction to instruction rows
// and, for decoded transfers, transfer rows.
func Instructions(ct *types.ClassifiedTransaction) ([]*indexer.Instruction, []*indexer.Transfer) {
	sig := ct.Transaction.Signature
	ixs := make([]*indexer.Instruction, 0, len(ct.Instructions))
	var transfers []*indexer.Transfer

	for i := range ct.Instructions {
		ci := &ct.Instructions[i]
		accounts := ci.Instruction.Accounts
		if accounts == nil {
			accounts = []string{}
		}
		ixs = append(ixs, &indexer.Instruction{
			TransactionSignature: sig,
			InstructionIndex:     ci.Index,
			ProgramID:            ci.Instruction.ProgramID,
			ProgramName:          strPtr(ci.ProgramName),
			InstructionType:      ci.Category.Slug(),
			Accounts:             accounts,
			DataBase58:           ci.Instruction.Data,
			DataBytes:            decodeBase58(ci.Instruction.Data),
			Parsed:               ci.Instruction.Parsed,
		})

		if tr := ci.Transfer; tr != nil {
			transfers = append(transfers, &indexer.Transfer{
				TransactionSignature: sig,
				InstructionIndex:     ci.Index,
				TransferKind:         string(tr.Kind),
				Source:               tr.Source,
				Destination:          tr.Destination,
				Mint:                 strPtr(tr.Mint),
				Amount:               tr.Amount,
			})
		}
	}
	return ixs, transfers
}
