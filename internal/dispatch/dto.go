package dispatch

import "courier-dispatch/internal/order"

// Failure reasons are part of the wire contract: the courier app renders a
// different message for each.
const (
	ReasonAlreadyTaken     = "AlreadyTaken"
	ReasonNotFound         = "NotFound"
	ReasonAcceptanceLocked = "AcceptanceLocked"
)

type Failure struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// Result is always structured, never a partial-batch exception: winners and
// losers are reported side by side so the caller can act on what it got.
type Result struct {
	Accepted []string  `json:"accepted"`
	Failed   []Failure `json:"failed"`
}

// BatchOutcome is the store-level result before event emission.
type BatchOutcome struct {
	Accepted []*order.Order
	Failed   []Failure
}

type AcceptRequest struct {
	OrderIDs []string `json:"order_ids" binding:"required"`
}
