package payouts

import (
	"errors"
	"fmt"

	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

var (
	// ErrPayoutInProgress is returned while the seller already has a pending payout.
	ErrPayoutInProgress = pkgerrors.New(pkgerrors.CodeConflict, "a payout is already in progress")
	// ErrRateLimited is returned when the seller exceeds the withdrawal rate.
	ErrRateLimited = pkgerrors.New(pkgerrors.CodeRateLimit, "too many withdrawal requests")
	// ErrSellerNotFound is returned for unknown seller emails.
	ErrSellerNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
	// ErrPayoutNotFound is returned for unknown payout references.
	ErrPayoutNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
)

// PayoutMethodNotConfiguredError means the seller has no destination on file
// for the requested method.
type PayoutMethodNotConfiguredError struct {
	SellerEmail string
	Method      enums.PayoutMethod
}

func (e *PayoutMethodNotConfiguredError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("seller %s has no payout method configured", e.SellerEmail)
	}
	return fmt.Sprintf("seller %s has no %s payout destination configured", e.SellerEmail, e.Method)
}

// Unwrap exposes the API error code.
func (e *PayoutMethodNotConfiguredError) Unwrap() error {
	return pkgerrors.New(pkgerrors.CodePayoutMethodMissing, e.Error())
}

// PayoutRailFailure means the rail rejected the transfer. The payout is
// failed and the debit has been reversed.
type PayoutRailFailure struct {
	PayoutRef string
	Method    enums.PayoutMethod
	Err       error
}

func (e *PayoutRailFailure) Error() string {
	return fmt.Sprintf("payout %s via %s failed: %v", e.PayoutRef, e.Method, e.Err)
}

// Unwrap exposes the API error code.
func (e *PayoutRailFailure) Unwrap() error {
	return pkgerrors.Wrap(pkgerrors.CodePayoutFailed, e.Err, "payout failed, balance restored").
		WithDetails(map[string]any{"payout_id": e.PayoutRef})
}

// IsRailFailure reports whether err is a PayoutRailFailure.
func IsRailFailure(err error) bool {
	var target *PayoutRailFailure
	return errors.As(err, &target)
}
