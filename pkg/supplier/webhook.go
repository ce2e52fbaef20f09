package supplier

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

// Webhook notification types sent by CJ.
const (
	EventOrderStatusChange    = "ORDER_STATUS_CHANGE"
	EventTrackingNumberUpdate = "TRACKING_NUMBER_UPDATE"
	EventOrderDelivered       = "ORDER_DELIVERED"
)

// WebhookEvent is a CJ order notification.
type WebhookEvent struct {
	MessageID string      `json:"messageId"`
	Type      string      `json:"type"`
	Data      WebhookData `json:"data"`
}

// WebhookData carries the order fields CJ includes in notifications.
type WebhookData struct {
	OrderID      string `json:"orderId"`
	OrderNumber  string `json:"orderNumber"`
	OrderStatus  string `json:"orderStatus"`
	TrackNumber  string `json:"trackNumber"`
	LogisticName string `json:"logisticName"`
	TrackingURL  string `json:"trackingUrl"`
}

// ParseWebhook decodes and validates a notification body.
func ParseWebhook(raw []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid supplier webhook payload")
	}
	event.Type = strings.ToUpper(strings.TrimSpace(event.Type))
	event.Data.OrderStatus = strings.ToUpper(strings.TrimSpace(event.Data.OrderStatus))
	if strings.TrimSpace(event.Data.OrderID) == "" && strings.TrimSpace(event.Data.OrderNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier webhook missing order reference")
	}
	return &event, nil
}

// Detail converts the notification into the same shape as a polled order detail.
func (e WebhookEvent) Detail() OrderDetail {
	status := e.Data.OrderStatus
	if e.Type == EventOrderDelivered {
		status = StatusDelivered
	}
	return OrderDetail{
		SupplierOrderID: e.Data.OrderID,
		Status:          status,
		TrackingNumber:  strings.TrimSpace(e.Data.TrackNumber),
		Carrier:         strings.TrimSpace(e.Data.LogisticName),
		TrackingURL:     strings.TrimSpace(e.Data.TrackingURL),
	}
}
