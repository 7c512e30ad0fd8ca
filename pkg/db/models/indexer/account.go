package indexer

import "time"

const AccountsTableName = "accounts"

// Account types, strongest first.
const (
	AccountTypeProgram = "program"
	AccountTypeSigner  = "signer"
	AccountTypeAccount = "account"
)

// AccountActivity aggregates how often an address appeared in indexed transactions.
type AccountActivity struct {
	Address          string     `db:"address" json:"address"`
	FirstSeenSlot    uint64     `db:"first_seen_slot" json:"first_seen_slot"`
	LastSeenSlot     uint64     `db:"last_seen_slot" json:"last_seen_slot"`
	FirstSeenAt      *time.Time `db:"first_seen_at" json:"first_seen_at,omitempty"`
	LastSeenAt       *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
	TransactionCount uint64     `db:"transaction_count" json:"transaction_count"`
	SignerCount      uint64     `db:"signer_count" json:"signer_count"`
	WritableCount    uint64     `db:"writable_count" json:"writable_count"`
	AccountType      string     `db:"account_type" json:"account_type"`
}

func accountTypeRank(t string) int {
	switch t {
	case AccountTypeProgram:
		return 2
	case AccountTypeSigner:
		return 1
	default:
		return 0
	}
}

// StrongerAccountType returns whichever of a and b wins on merge: program beats signer beats account.
func StrongerAccountType(a, b string) string {
	if accountTypeRank(b) > accountTypeRank(a) {
		return b
	}
	if a == "" {
		return AccountTypeAccount
	}
	return a
}

// Merge folds other into a, keeping the earliest first sighting and the latest last sighting.
func (a *AccountActivity) Merge(other *AccountActivity) {
	if other.FirstSeenSlot < a.FirstSeenSlot {
		a.FirstSeenSlot = other.FirstSeenSlot
		a.FirstSeenAt = other.FirstSeenAt
	} else if other.FirstSeenSlot == a.FirstSeenSlot && a.FirstSeenAt == nil {
		a.FirstSeenAt = other.FirstSeenAt
	}
	if other.LastSeenSlot > a.LastSeenSlot {
		a.LastSeenSlot = other.LastSeenSlot
		a.LastSeenAt = other.LastSeenAt
	} else if other.LastSeenSlot == a.LastSeenSlot && a.LastSeenAt == nil {
		a.LastSeenAt = other.LastSeenAt
	}
	a.TransactionCount += other.TransactionCount
	a.SignerCount += other.SignerCount
	a.WritableCount += other.WritableCount
	a.AccountType = StrongerAccountType(a.AccountType, other.AccountType)
}
