package orders

import (
	"errors"
	"fmt"

	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

// ErrOrderNotFound is returned when no order matches the reference.
var ErrOrderNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")

// InvalidTransitionError rejects a status change the graph does not allow.
type InvalidTransitionError struct {
	OrderRef string
	From     enums.OrderStatus
	To       enums.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: transition %s -> %s not allowed", e.OrderRef, e.From, e.To)
}

// Unwrap exposes the API error code.
func (e *InvalidTransitionError) Unwrap() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, e.Error()).WithDetails(map[string]any{
		"order_id": e.OrderRef,
		"from":     e.From,
		"to":       e.To,
	})
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
