package domain

import "time"

// StatusTimeoutEvent schedules a conditional order transition. The worker
// waits until Deadline and applies ExpectedStatus -> TargetStatus; if the
// order has moved on by then, the event is a no-op.
type StatusTimeoutEvent struct {
	OrderID        string      `json:"order_id"`
	ExpectedStatus OrderStatus `json:"expected_status"`
	TargetStatus   OrderStatus `json:"target_status"`
	Deadline       time.Time   `json:"deadline"`
}
