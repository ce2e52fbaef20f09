package enums

// LedgerEntryType classifies a seller balance movement.
type LedgerEntryType string

const (
	LedgerEntryOrderCredit    LedgerEntryType = "order_credit"
	LedgerEntryRefundDebit    LedgerEntryType = "refund_debit"
	LedgerEntryPayoutDebit    LedgerEntryType = "payout_debit"
	LedgerEntryPayoutReversal LedgerEntryType = "payout_reversal"
)

var ledgerEntryTypes = []LedgerEntryType{
	LedgerEntryOrderCredit,
	LedgerEntryRefundDebit,
	LedgerEntryPayoutDebit,
	LedgerEntryPayoutReversal,
}

func (t LedgerEntryType) IsValid() bool { return isMember(t, ledgerEntryTypes) }

// IsCredit reports whether entries of this type increase the balance.
func (t LedgerEntryType) IsCredit() bool {
	return t == LedgerEntryOrderCredit || t == LedgerEntryPayoutReversal
}

// AffectsWithdrawn reports whether entries of this type move total_withdrawn
// rather than total_earnings.
func (t LedgerEntryType) AffectsWithdrawn() bool {
	return t == LedgerEntryPayoutDebit || t == LedgerEntryPayoutReversal
}

func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	return parseMember("ledger entry type", value, ledgerEntryTypes)
}
