package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType indicates how the order should be worked.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeSniper OrderType = "sniper"
)

// OrderStatus tracks the order lifecycle. Confirmed and failed are terminal;
// an order never transitions out of a terminal status.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusRouting   OrderStatus = "routing"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusFailed
}

// ValidOrderType reports whether t is one of the accepted order types.
func ValidOrderType(t OrderType) bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeSniper:
		return true
	}
	return false
}

// ValidOrderSide reports whether s is buy or sell.
func ValidOrderSide(s OrderSide) bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Order represents a submitted trade order. The ID is minted at submission
// and never changes; Status is mutated only by the execution worker. TxHash
// is the settlement reference and is set only when the order confirms.
type Order struct {
	ID        string      `json:"orderId"`
	Type      OrderType   `json:"type"`
	Side      OrderSide   `json:"side"`
	Amount    float64     `json:"amount"`
	Status    OrderStatus `json:"status"`
	TxHash    string      `json:"txHash,omitempty"`
	LastError string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
