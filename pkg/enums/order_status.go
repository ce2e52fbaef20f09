package enums

// OrderStatus tracks a customer order through fulfillment. The allowed moves
// between statuses live with the order state machine.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusError      OrderStatus = "error"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusRefunded,
	OrderStatusError,
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return isMember(s, orderStatuses) }

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusRefunded
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parseMember("order status", value, orderStatuses)
}
