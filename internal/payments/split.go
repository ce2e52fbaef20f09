package payments

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/money"
)

// Split is the three-way division of an amount paid.
type Split struct {
	SupplierCostCents int64
	CommissionCents   int64
	SellerMarginCents int64
}

// Total returns the sum of all components.
func (s Split) Total() int64 {
	return s.SupplierCostCents + s.CommissionCents + s.SellerMarginCents
}

// Splitter applies the configured commission policy.
type Splitter struct {
	rate  decimal.Decimal
	basis string
}

// NewSplitter validates the commission configuration.
func NewSplitter(cfg config.CommissionConfig) (*Splitter, error) {
	rate, err := cfg.RateDecimal()
	if err != nil {
		return nil, err
	}
	basis := cfg.Basis
	if basis == "" {
		basis = config.CommissionBasisMargin
	}
	if basis != config.CommissionBasisMargin && basis != config.CommissionBasisGross {
		return nil, fmt.Errorf("unknown commission basis %q", basis)
	}
	return &Splitter{rate: rate, basis: basis}, nil
}

// Compute splits amountPaid. No component is ever negative and the three
// always add up to amountPaid: when the sale does not cover supplier cost
// plus commission the margin drops to zero first, then the commission, and
// the supplier cost absorbs whatever is left.
func (s *Splitter) Compute(amountPaid, supplierCost int64) Split {
	if amountPaid <= 0 {
		return Split{}
	}
	if supplierCost < 0 {
		supplierCost = 0
	}

	var commission int64
	switch s.basis {
	case config.CommissionBasisGross:
		commission = money.ApplyRate(amountPaid, s.rate)
	default:
		commission = money.ApplyRate(max(amountPaid-supplierCost, 0), s.rate)
	}

	cost := min(supplierCost, amountPaid)
	commission = min(commission, amountPaid-cost)
	return Split{
		SupplierCostCents: cost,
		CommissionCents:   commission,
		SellerMarginCents: amountPaid - cost - commission,
	}
}
