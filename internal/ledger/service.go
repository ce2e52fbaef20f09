package ledger

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

// Movement describes one balance change and its attribution.
type Movement struct {
	SellerEmail string
	Type        enums.LedgerEntryType
	AmountCents int64
	OrderRef    string
	PayoutRef   string
	Reason      string
}

func (m Movement) validate(credit bool) error {
	if strings.TrimSpace(m.SellerEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller email is required")
	}
	if !m.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", m.Type))
	}
	if m.Type.IsCredit() != credit {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry type %q does not match movement direction", m.Type))
	}
	if m.AmountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if m.OrderRef == "" && m.PayoutRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger movement must reference an order or payout")
	}
	return nil
}

// Reconciliation compares the stored seller totals with the ledger entries.
type Reconciliation struct {
	SellerEmail string `json:"seller_email"`

	BalanceCents        int64 `json:"balance_cents"`
	TotalEarningsCents  int64 `json:"total_earnings_cents"`
	TotalWithdrawnCents int64 `json:"total_withdrawn_cents"`

	LedgerBalanceCents   int64 `json:"ledger_balance_cents"`
	LedgerEarningsCents  int64 `json:"ledger_earnings_cents"`
	LedgerWithdrawnCents int64 `json:"ledger_withdrawn_cents"`
	EntryCount           int64 `json:"entry_count"`

	Balanced bool `json:"balanced"`
}

// Service applies credits and debits to seller balances. Callers pass the
// transaction the movement belongs to.
type Service interface {
	EnsureSeller(ctx context.Context, tx *gorm.DB, email string) error
	Credit(ctx context.Context, tx *gorm.DB, m Movement) (*models.LedgerEntry, error)
	Debit(ctx context.Context, tx *gorm.DB, m Movement) (*models.LedgerEntry, error)
	DebitAvailable(ctx context.Context, tx *gorm.DB, m Movement) (*Shortfall, error)
	Reconcile(ctx context.Context, email string) (*Reconciliation, error)
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) EnsureSeller(ctx context.Context, tx *gorm.DB, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller email is required")
	}
	if err := s.repo.WithTx(tx).EnsureSeller(ctx, email); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure seller")
	}
	return nil
}

// Credit raises the seller balance and appends a positive ledger entry.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, m Movement) (*models.LedgerEntry, error) {
	m.SellerEmail = normalizeEmail(m.SellerEmail)
	if err := m.validate(true); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	ok, err := repo.ApplyCredit(ctx, m.SellerEmail, m.Type, m.AmountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply ledger credit")
	}
	if !ok {
		seller, err := repo.FindSeller(ctx, m.SellerEmail)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
		}
		if seller == nil {
			return nil, ErrSellerNotFound
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reversal exceeds total withdrawn")
	}

	return s.appendEntry(ctx, repo, m, m.AmountCents)
}

// Debit lowers the seller balance with a single conditional update. A balance
// that does not cover the amount yields InsufficientBalanceError and no change.
func (s *service) Debit(ctx context.Context, tx *gorm.DB, m Movement) (*models.LedgerEntry, error) {
	m.SellerEmail = normalizeEmail(m.SellerEmail)
	if err := m.validate(false); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	ok, err := repo.ApplyDebit(ctx, m.SellerEmail, m.Type, m.AmountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply ledger debit")
	}
	if !ok {
		seller, err := repo.FindSeller(ctx, m.SellerEmail)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
		}
		if seller == nil {
			return nil, ErrSellerNotFound
		}
		return nil, &InsufficientBalanceError{
			SellerEmail:    m.SellerEmail,
			RequestedCents: m.AmountCents,
			AvailableCents: seller.BalanceCents,
		}
	}

	return s.appendEntry(ctx, repo, m, -m.AmountCents)
}

// Shortfall reports how much of a requested debit could be taken.
type Shortfall struct {
	Entry            *models.LedgerEntry
	DebitedCents     int64
	UnrecoveredCents int64
}

const debitAvailableAttempts = 3

// DebitAvailable debits min(requested, balance). The part the balance cannot
// cover is noted on the entry reason and returned as unrecovered.
func (s *service) DebitAvailable(ctx context.Context, tx *gorm.DB, m Movement) (*Shortfall, error) {
	m.SellerEmail = normalizeEmail(m.SellerEmail)
	if err := m.validate(false); err != nil {
		return nil, err
	}
	requested := m.AmountCents
	reason := m.Reason
	repo := s.repo.WithTx(tx)

	for attempt := 0; attempt < debitAvailableAttempts; attempt++ {
		seller, err := repo.FindSeller(ctx, m.SellerEmail)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
		}
		if seller == nil {
			return nil, ErrSellerNotFound
		}

		m.AmountCents = min(requested, seller.BalanceCents)
		unrecovered := requested - m.AmountCents
		m.Reason = reason
		if unrecovered > 0 {
			m.Reason = fmt.Sprintf("%s; unrecoverable shortfall %d cents", reason, unrecovered)
		}

		entry, err := s.Debit(ctx, tx, m)
		if IsInsufficientBalance(err) {
			// balance moved between read and update
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Shortfall{Entry: entry, DebitedCents: m.AmountCents, UnrecoveredCents: unrecovered}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "seller balance changed concurrently")
}

func (s *service) appendEntry(ctx context.Context, repo Repository, m Movement, signed int64) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		SellerEmail: m.SellerEmail,
		Type:        m.Type,
		AmountCents: signed,
		Reason:      m.Reason,
	}
	if m.OrderRef != "" {
		ref := m.OrderRef
		entry.OrderID = &ref
	}
	if m.PayoutRef != "" {
		ref := m.PayoutRef
		entry.PayoutID = &ref
	}
	if entry.Reason == "" {
		entry.Reason = string(m.Type)
	}
	if err := repo.InsertEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}
	return entry, nil
}

// Reconcile sums the seller's ledger entries and checks them against the
// stored balance and totals.
func (s *service) Reconcile(ctx context.Context, email string) (*Reconciliation, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller email is required")
	}

	seller, err := s.repo.FindSeller(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	if seller == nil {
		return nil, ErrSellerNotFound
	}
	totals, err := s.repo.SumEntries(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger entries")
	}

	rec := &Reconciliation{
		SellerEmail:         email,
		BalanceCents:        seller.BalanceCents,
		TotalEarningsCents:  seller.TotalEarningsCents,
		TotalWithdrawnCents: seller.TotalWithdrawnCents,
	}
	for entryType, total := range totals {
		rec.LedgerBalanceCents += total.AmountCents
		rec.EntryCount += total.Count
		if entryType.AffectsWithdrawn() {
			rec.LedgerWithdrawnCents -= total.AmountCents
		} else {
			rec.LedgerEarningsCents += total.AmountCents
		}
	}
	rec.Balanced = rec.BalanceCents == rec.LedgerBalanceCents &&
		rec.TotalEarningsCents == rec.LedgerEarningsCents &&
		rec.TotalWithdrawnCents == rec.LedgerWithdrawnCents &&
		rec.BalanceCents == rec.TotalEarningsCents-rec.TotalWithdrawnCents
	return rec, nil
}
