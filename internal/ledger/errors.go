package ledger

import (
	"errors"
	"fmt"

	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

// ErrSellerNotFound is returned when a balance movement targets an unknown seller.
var ErrSellerNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")

// InsufficientBalanceError rejects a debit larger than the available balance.
type InsufficientBalanceError struct {
	SellerEmail    string
	RequestedCents int64
	AvailableCents int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: requested %d, available %d", e.SellerEmail, e.RequestedCents, e.AvailableCents)
}

// Unwrap exposes the API error code.
func (e *InsufficientBalanceError) Unwrap() error {
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance").WithDetails(map[string]any{
		"requested_cents": e.RequestedCents,
		"available_cents": e.AvailableCents,
	})
}

// IsInsufficientBalance reports whether err is an InsufficientBalanceError.
func IsInsufficientBalance(err error) bool {
	var target *InsufficientBalanceError
	return errors.As(err, &target)
}
