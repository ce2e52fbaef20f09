package fulfillment

import (
	"errors"
	"fmt"

	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

// SupplierOrderError reports that the supplier did not accept an order. The
// order has been moved to error and the seller credit is kept.
type SupplierOrderError struct {
	OrderRef string
	Attempts int
	Err      error
}

func (e *SupplierOrderError) Error() string {
	return fmt.Sprintf("supplier order for %s failed after %d attempt(s): %v", e.OrderRef, e.Attempts, e.Err)
}

// Unwrap exposes the API error code.
func (e *SupplierOrderError) Unwrap() error {
	return pkgerrors.Wrap(pkgerrors.CodeFulfillmentFailed, e.Err, "supplier order failed").WithDetails(map[string]any{
		"order_id": e.OrderRef,
		"attempts": e.Attempts,
	})
}

// IsSupplierOrderError reports whether err is a SupplierOrderError.
func IsSupplierOrderError(err error) bool {
	var target *SupplierOrderError
	return errors.As(err, &target)
}
