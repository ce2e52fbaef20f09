package orders

import (
	"slices"

	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/refs"
)

// transitions is the fulfillment graph. delivered and refunded have no exits.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusError, enums.OrderStatusRefunded},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusError, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusError, enums.OrderStatusRefunded},
	enums.OrderStatusError:      {enums.OrderStatusProcessing, enums.OrderStatusRefunded},
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedSources lists every status with an edge into to.
func AllowedSources(to enums.OrderStatus) []enums.OrderStatus {
	var sources []enums.OrderStatus
	for _, from := range []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusError,
	} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

var submittableStatuses = []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusError}

// Submittable reports whether the supplier bridge may place the order.
func Submittable(status enums.OrderStatus) bool {
	return slices.Contains(submittableStatuses, status)
}

// NewOrderRef returns a public order reference such as DO-3F9A1C07.
func NewOrderRef() string {
	return refs.Order()
}
