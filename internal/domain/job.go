package domain

import "time"

// ExecutionJob is the unit of work placed on the job queue when an order is
// submitted. It carries a copy of the fields needed to execute so the worker
// does not need a synchronous read from the order store.
type ExecutionJob struct {
	OrderID string    `json:"orderId"`
	Type    OrderType `json:"type"`
	Side    OrderSide `json:"side"`
	Amount  float64   `json:"amount"`
}

// RetryPolicy controls automatic redelivery of a failed job. Attempt 1 is
// the first, unretried try; after a handler error on attempt n < MaxAttempts
// the job is redelivered after Delay(n).
type RetryPolicy struct {
	MaxAttempts       int           `json:"maxAttempts"`
	InitialDelay      time.Duration `json:"initialDelay"`
	BackoffMultiplier float64       `json:"backoffMultiplier"`
}

// maxBackoff caps the redelivery delay so a misconfigured multiplier cannot
// push retries out indefinitely.
const maxBackoff = 60 * time.Second

// DefaultRetryPolicy matches the system default: three attempts with
// exponential backoff starting at one second (retries at +1s, +2s).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2,
	}
}

// Delay returns how long to wait before redelivering after a failure on the
// given attempt number: InitialDelay * BackoffMultiplier^(attempt-1), capped
// at one minute.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.BackoffMultiplier
		if time.Duration(d) >= maxBackoff {
			return maxBackoff
		}
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}
