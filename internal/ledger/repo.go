package ledger

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// Repository manages seller balances and ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureSeller(ctx context.Context, email string) error
	FindSeller(ctx context.Context, email string) (*models.Seller, error)
	ApplyCredit(ctx context.Context, email string, entryType enums.LedgerEntryType, amount int64) (bool, error)
	ApplyDebit(ctx context.Context, email string, entryType enums.LedgerEntryType, amount int64) (bool, error)
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	SumEntries(ctx context.Context, email string) (map[enums.LedgerEntryType]EntryTotal, error)
}

// EntryTotal aggregates ledger entries of one type.
type EntryTotal struct {
	AmountCents int64
	Count       int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) EnsureSeller(ctx context.Context, email string) error {
	seller := models.Seller{Email: email}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&seller).Error
}

func (r *repository) FindSeller(ctx context.Context, email string) (*models.Seller, error) {
	var seller models.Seller
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&seller).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &seller, nil
}

// ApplyCredit raises the balance in one statement. Reversals also lower
// total_withdrawn and are refused if that would go negative.
func (r *repository) ApplyCredit(ctx context.Context, email string, entryType enums.LedgerEntryType, amount int64) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Seller{}).Where("email = ?", email)
	updates := map[string]any{
		"balance_cents": gorm.Expr("balance_cents + ?", amount),
	}
	if entryType.AffectsWithdrawn() {
		query = query.Where("total_withdrawn_cents >= ?", amount)
		updates["total_withdrawn_cents"] = gorm.Expr("total_withdrawn_cents - ?", amount)
	} else {
		updates["total_earnings_cents"] = gorm.Expr("total_earnings_cents + ?", amount)
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ApplyDebit lowers the balance only if it covers amount.
func (r *repository) ApplyDebit(ctx context.Context, email string, entryType enums.LedgerEntryType, amount int64) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Seller{}).
		Where("email = ? AND balance_cents >= ?", email, amount)
	updates := map[string]any{
		"balance_cents": gorm.Expr("balance_cents - ?", amount),
	}
	if entryType.AffectsWithdrawn() {
		updates["total_withdrawn_cents"] = gorm.Expr("total_withdrawn_cents + ?", amount)
	} else {
		query = query.Where("total_earnings_cents >= ?", amount)
		updates["total_earnings_cents"] = gorm.Expr("total_earnings_cents - ?", amount)
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) SumEntries(ctx context.Context, email string) (map[enums.LedgerEntryType]EntryTotal, error) {
	var rows []struct {
		Type  enums.LedgerEntryType
		Total int64
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("type, COALESCE(SUM(amount_cents), 0) AS total, COUNT(*) AS count").
		Where("seller_email = ?", email).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[enums.LedgerEntryType]EntryTotal, len(rows))
	for _, row := range rows {
		totals[row.Type] = EntryTotal{AmountCents: row.Total, Count: row.Count}
	}
	return totals, nil
}
