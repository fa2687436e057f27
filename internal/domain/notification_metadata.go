package domain

import (
	"fmt"

	"github.com/goccy/go-json"
)

type NotificationType string

const (
	NotificationOrderPlaced          NotificationType = "order_placed"
	NotificationOrderConfirmation    NotificationType = "order_confirmation"
	NotificationPaymentStatusChanged NotificationType = "payment_status_changed"
	NotificationOrderCancelled       NotificationType = "order_cancelled"
	NotificationNewProduct           NotificationType = "new_product"
	NotificationSystemUpdate         NotificationType = "system_update"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationOrderPlaced, NotificationOrderConfirmation, NotificationPaymentStatusChanged,
		NotificationOrderCancelled, NotificationNewProduct, NotificationSystemUpdate:
		return true
	}
	return false
}

// NotificationMetadata is the closed set of per-type metadata payloads.
// Adding a notification type means adding a tag and a payload here.
type NotificationMetadata interface {
	NotificationType() NotificationType
}

type OrderMetadata struct {
	OrderNumber string  `json:"order_number"`
	Total       float64 `json:"total"`
	Currency    string  `json:"currency"`
	ItemCount   int     `json:"item_count"`
	BuyerName   string  `json:"buyer_name,omitempty"`
	kind        NotificationType
}

// NewOrderMetadata builds order metadata for an order placed or order
// confirmation notification.
func NewOrderMetadata(t NotificationType, order OrderData) OrderMetadata {
	return OrderMetadata{
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
		Currency:    order.Currency,
		ItemCount:   order.ItemCount,
		BuyerName:   order.BuyerName,
		kind:        t,
	}
}

func (m OrderMetadata) NotificationType() NotificationType {
	if m.kind == "" {
		return NotificationOrderPlaced
	}
	return m.kind
}

type PaymentStatusMetadata struct {
	OldStatus string  `json:"old_status"`
	NewStatus string  `json:"new_status"`
	Provider  string  `json:"provider,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

func (PaymentStatusMetadata) NotificationType() NotificationType {
	return NotificationPaymentStatusChanged
}

type OrderCancelledMetadata struct {
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

func (OrderCancelledMetadata) NotificationType() NotificationType {
	return NotificationOrderCancelled
}

type NewProductMetadata struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	ProductSlug string `json:"product_slug"`
	ImageURL    string `json:"image_url,omitempty"`
	StoreName   string `json:"store_name,omitempty"`
}

func (NewProductMetadata) NotificationType() NotificationType {
	return NotificationNewProduct
}

type SystemUpdateMetadata struct {
	Link string `json:"link,omitempty"`
}

func (SystemUpdateMetadata) NotificationType() NotificationType {
	return NotificationSystemUpdate
}

// EncodeMetadata checks that meta matches t and serializes it. A nil meta
// encodes to nil.
func EncodeMetadata(t NotificationType, meta NotificationMetadata) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	if meta.NotificationType() != t {
		return nil, Validation(fmt.Sprintf("metadata of type %s does not match notification type %s", meta.NotificationType(), t))
	}
	return json.Marshal(meta)
}

// DecodeMetadata restores the typed payload stored for a notification of type t.
func DecodeMetadata(t NotificationType, raw []byte) (NotificationMetadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var (
		meta NotificationMetadata
		err  error
	)
	switch t {
	case NotificationOrderPlaced, NotificationOrderConfirmation:
		var m OrderMetadata
		err = json.Unmarshal(raw, &m)
		m.kind = t
		meta = m
	case NotificationPaymentStatusChanged:
		var m PaymentStatusMetadata
		err = json.Unmarshal(raw, &m)
		meta = m
	case NotificationOrderCancelled:
		var m OrderCancelledMetadata
		err = json.Unmarshal(raw, &m)
		meta = m
	case NotificationNewProduct:
		var m NewProductMetadata
		err = json.Unmarshal(raw, &m)
		meta = m
	case NotificationSystemUpdate:
		var m SystemUpdateMetadata
		err = json.Unmarshal(raw, &m)
		meta = m
	default:
		return nil, Validation("unknown notification type: " + string(t))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", t, err)
	}
	return meta, nil
}
