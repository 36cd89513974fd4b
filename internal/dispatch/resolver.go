package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"courier-dispatch/internal/clock"
	"courier-dispatch/internal/courier"
	domainerrors "courier-dispatch/internal/errors"
	"courier-dispatch/internal/order"
	"courier-dispatch/internal/ws"
)

// Couriers is the slice of the courier service the resolver needs.
type Couriers interface {
	EnsureExists(ctx context.Context, courierID string) (*courier.Courier, error)
	IsOnline(ctx context.Context, courierID string) (bool, error)
}

type Publisher interface {
	Publish(room, event string, payload any)
}

type Resolver interface {
	// Accept resolves a batch of accept-attempts into at most one winner per
	// order. Partial success is the normal case, not an error.
	Accept(ctx context.Context, courierID string, rawIDs []string) (*Result, error)
}

type resolver struct {
	store    Store
	couriers Couriers
	pub      Publisher
	clk      clock.Clock
	lockout  time.Duration
}

func NewResolver(store Store, couriers Couriers, pub Publisher, clk clock.Clock, lockout time.Duration) Resolver {
	return &resolver{store: store, couriers: couriers, pub: pub, clk: clk, lockout: lockout}
}

func (r *resolver) Accept(ctx context.Context, courierID string, rawIDs []string) (*Result, error) {
	if len(rawIDs) == 0 {
		return nil, domainerrors.NewValidation("order_ids must not be empty")
	}

	// Malformed IDs cannot name an existing order, so they surface as
	// per-order NotFound failures instead of poisoning the batch.
	var ids []uuid.UUID
	var preFailed []Failure
	seen := make(map[uuid.UUID]struct{}, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			preFailed = append(preFailed, Failure{OrderID: raw, Reason: ReasonNotFound})
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return &Result{Accepted: []string{}, Failed: preFailed}, nil
	}

	if _, err := r.couriers.EnsureExists(ctx, courierID); err != nil {
		return nil, err
	}

	online, err := r.couriers.IsOnline(ctx, courierID)
	if err != nil {
		return nil, domainerrors.NewUnavailable("courier presence check failed", err)
	}
	if !online {
		return nil, domainerrors.CourierOffline(courierID)
	}

	now := r.clk.Now()
	outcome, err := r.store.AcceptBatch(ctx, courierID, ids, now, now.Add(-r.lockout))
	if err != nil {
		return nil, err
	}

	for _, o := range outcome.Accepted {
		r.announce(o)
	}

	result := &Result{Accepted: make([]string, 0, len(outcome.Accepted))}
	for _, o := range outcome.Accepted {
		result.Accepted = append(result.Accepted, o.ID.String())
	}
	result.Failed = append(preFailed, outcome.Failed...)
	if result.Failed == nil {
		result.Failed = []Failure{}
	}

	slog.Info("accept batch resolved",
		"courier_id", courierID,
		"accepted", len(result.Accepted),
		"failed", len(result.Failed))
	return result, nil
}

// announce fires after commit: the owning restaurant learns its order is
// assigned, every courier learns the order is gone from the open pool.
func (r *resolver) announce(o *order.Order) {
	evt := order.StatusEvent{
		OrderID:      o.ID.String(),
		RestaurantID: o.RestaurantID,
		Status:       o.Status,
		CourierID:    o.CourierID,
	}
	r.pub.Publish(ws.RestaurantRoom(o.RestaurantID), ws.EventOrderStatusUpdate, evt)
	r.pub.Publish(ws.RoomCouriers, ws.EventOrderAccepted, evt)
}
