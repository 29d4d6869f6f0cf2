package domain

import "time"

// StatusEvent is a single order lifecycle notification. It is a tagged
// variant over Status: submitted events carry the chosen venue, confirmed
// events carry the settlement reference, failed events carry the terminal
// error message. Use the constructors below rather than building literals so
// each kind only carries its own fields.
//
// Events are best-effort notifications. The order store is the durable
// source of truth; consumers must tolerate missing a status change entirely
// (for example, when attaching after the worker already published it).
type StatusEvent struct {
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
	Venue   string      `json:"venue,omitempty"`
	TxHash  string      `json:"txHash,omitempty"`
	Error   string      `json:"error,omitempty"`
	At      time.Time   `json:"at"`
}

// NewPendingEvent marks an order accepted at intake.
func NewPendingEvent(orderID string) StatusEvent {
	return StatusEvent{OrderID: orderID, Status: OrderStatusPending, At: time.Now().UTC()}
}

// NewRoutingEvent marks the start of quote comparison for an attempt.
func NewRoutingEvent(orderID string) StatusEvent {
	return StatusEvent{OrderID: orderID, Status: OrderStatusRouting, At: time.Now().UTC()}
}

// NewSubmittedEvent marks the best venue chosen and execution in flight.
func NewSubmittedEvent(orderID, venue string) StatusEvent {
	return StatusEvent{OrderID: orderID, Status: OrderStatusSubmitted, Venue: venue, At: time.Now().UTC()}
}

// NewConfirmedEvent marks terminal success with the settlement reference.
func NewConfirmedEvent(orderID, txHash string) StatusEvent {
	return StatusEvent{OrderID: orderID, Status: OrderStatusConfirmed, TxHash: txHash, At: time.Now().UTC()}
}

// NewFailedEvent marks terminal failure after retries were exhausted.
func NewFailedEvent(orderID, errMsg string) StatusEvent {
	return StatusEvent{OrderID: orderID, Status: OrderStatusFailed, Error: errMsg, At: time.Now().UTC()}
}
