package dispatch

import (
	"errors"
	"testing"

	domainerrors "courier-dispatch/internal/errors"
)

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
		ok     bool
	}{
		{"retired order", domainerrors.OrderNotFound("o-1"), ReasonNotFound, true},
		{"lost race", domainerrors.OrderConflict("o-1", "waiting", "assigned"), ReasonAlreadyTaken, true},
		{"still locked", domainerrors.OrderLocked("o-1"), ReasonAcceptanceLocked, true},
		{"blocked courier aborts", domainerrors.CourierBlocked("c-1"), "", false},
		{"transport error aborts", errors.New("connection reset"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := failureReason(tt.err)
			if ok != tt.ok || reason != tt.reason {
				t.Fatalf("failureReason(%v) = (%q, %v), want (%q, %v)", tt.err, reason, ok, tt.reason, tt.ok)
			}
		})
	}
}
