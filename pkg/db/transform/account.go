package transform

import (
	"sort"

	"github.com/canopy-network/solanax/pkg/db/models/indexer"
	"github.com/canopy-network/solanax/pkg/indexer/types"
)

// Accounts aggregates account activity for one block. An address counts once per
// transaction even if it is listed twice. Rows are sorted by address.
func Accounts(cb *types.ClassifiedBlock) []*indexer.AccountActivity {
	raw := cb.Block

	programs := make(map[string]struct{})
	for i := range cb.Transactions {
		for _, ix := range cb.Transactions[i].Transaction.Instructions {
			if ix.ProgramID != "" {
				programs[ix.ProgramID] = struct{}{}
			}
		}
	}

	byAddr := make(map[string]*indexer.AccountActivity)
	for i := range cb.Transactions {
		tx := cb.Transactions[i].Transaction
		inTx := make(map[string]bool, len(tx.Accounts))
		for _, meta := range tx.Accounts {
			if meta.Address == "" || inTx[meta.Address] {
				continue
			}
			inTx[meta.Address] = true

			acc, ok := byAddr[meta.Address]
			if !ok {
				acc = &indexer.AccountActivity{
					Address:       meta.Address,
					FirstSeenSlot: raw.Slot,
					LastSeenSlot:  raw.Slot,
					FirstSeenAt:   raw.BlockTime,
					LastSeenAt:    raw.BlockTime,
					AccountType:   indexer.AccountTypeAccount,
				}
				byAddr[meta.Address] = acc
			}
			acc.TransactionCount++
			if meta.Signer {
				acc.SignerCount++
				acc.AccountType = indexer.StrongerAccountType(acc.AccountType, indexer.AccountTypeSigner)
			}
			if meta.Writable {
				acc.WritableCount++
			}
			if _, isProgram := programs[meta.Address]; isProgram {
				acc.AccountType = indexer.AccountTypeProgram
			}
		}
	}

	return sortedAccounts(byAddr)
}

// MergeAccounts folds the per-block aggregates of a batch into one row per address.
func MergeAccounts(groups ...[]*indexer.AccountActivity) []*indexer.AccountActivity {
	byAddr := make(map[string]*indexer.AccountActivity)
	for _, group := range groups {
		for _, acc := range group {
			if cur, ok := byAddr[acc.Address]; ok {
				cur.Merge(acc)
				continue
			}
			cp := *acc
			byAddr[acc.Address] = &cp
		}
	}
	return sortedAccounts(byAddr)
}

func sortedAccounts(byAddr map[string]*indexer.AccountActivity) []*indexer.AccountActivity {
	out := make([]*indexer.AccountActivity, 0, len(byAddr))
	for _, acc := range byAddr {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
