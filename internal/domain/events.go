package domain

// OrderData is the order summary carried by order domain events.
type OrderData struct {
	OrderNumber string  `json:"order_number"`
	Total       float64 `json:"total"`
	Currency    string  `json:"currency"`
	ItemCount   int     `json:"item_count"`
	BuyerName   string  `json:"buyer_name,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	CancelledBy string  `json:"cancelled_by,omitempty"`
}

type PaymentData struct {
	Provider string  `json:"provider"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Domain events published by the order and catalog services.

type OrderPlacedEvent struct {
	OrderID string    `json:"order_id"`
	UserID  string    `json:"user_id"`
	StoreID string    `json:"store_id"`
	Order   OrderData `json:"order"`
}

type PaymentStatusChangedEvent struct {
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	StoreID   string      `json:"store_id"`
	OldStatus string      `json:"old_status"`
	NewStatus string      `json:"new_status"`
	Payment   PaymentData `json:"payment"`
}

type OrderCancelledEvent struct {
	OrderID string    `json:"order_id"`
	UserID  string    `json:"user_id"`
	StoreID string    `json:"store_id"`
	Order   OrderData `json:"order"`
}

type ProductPublishedEvent struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
}
