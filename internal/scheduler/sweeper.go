package scheduler

import (
	"context"
	"log/slog"
	"time"

	"courier-dispatch/internal/clock"
	"courier-dispatch/internal/order"
	"courier-dispatch/internal/ws"
)

type Publisher interface {
	Publish(room, event string, payload any)
}

type Config struct {
	Interval          time.Duration
	AcceptanceLockout time.Duration
	AutoDeleteWindow  time.Duration
	DeliverySLA       time.Duration
}

// Sweeper drives every time-boxed lifecycle rule off one ticker: announcing
// orders whose lockout elapsed, retiring waiting orders nobody took, and
// flagging assigned orders past the delivery SLA.
type Sweeper struct {
	store Store
	pub   Publisher
	clk   clock.Clock
	cfg   Config

	// lastUnlockCutoff bounds the acceptance-enabled window so each order is
	// announced once per process run. Duplicates after a restart are fine,
	// the event is at-least-once by contract.
	lastUnlockCutoff time.Time
}

func NewSweeper(store Store, pub Publisher, clk clock.Clock, cfg Config) *Sweeper {
	return &Sweeper{store: store, pub: pub, clk: clk, cfg: cfg}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.Info("lifecycle sweeper started", "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("lifecycle sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass of all three rules. Each rule tolerates the others
// failing; a flaky database pauses a rule for a tick rather than killing the
// loop.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clk.Now()
	s.announceUnlocked(ctx, now)
	s.retireStale(ctx, now)
	s.flagOverdue(ctx, now)
}

func (s *Sweeper) announceUnlocked(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.cfg.AcceptanceLockout)
	orders, err := s.store.WaitingUnlockedBetween(ctx, s.lastUnlockCutoff, cutoff)
	if err != nil {
		slog.Warn("acceptance sweep skipped", "error", err)
		return
	}
	for _, o := range orders {
		s.pub.Publish(ws.RoomCouriers, ws.EventOrderAcceptanceEnabled, order.StatusEvent{
			OrderID:      o.ID.String(),
			RestaurantID: o.RestaurantID,
			Status:       o.Status,
			Order:        o,
		})
	}
	s.lastUnlockCutoff = cutoff
}

func (s *Sweeper) retireStale(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.cfg.AutoDeleteWindow)
	orders, err := s.store.WaitingCreatedBefore(ctx, cutoff)
	if err != nil {
		slog.Warn("auto-delete sweep skipped", "error", err)
		return
	}
	for _, o := range orders {
		deleted, err := s.store.AutoDelete(ctx, o.ID, now)
		if err != nil {
			// Lost the race to an accepting courier; the order lives on.
			slog.Debug("auto-delete miss", "order_id", o.ID.String(), "error", err)
			continue
		}
		evt := order.StatusEvent{
			OrderID:      deleted.ID.String(),
			RestaurantID: deleted.RestaurantID,
			Status:       deleted.Status,
		}
		s.pub.Publish(ws.RoomCouriers, ws.EventOrderAutoDeleted, evt)
		s.pub.Publish(ws.RestaurantRoom(deleted.RestaurantID), ws.EventOrderAutoDeleted, evt)
		slog.Info("order auto-deleted", "order_id", deleted.ID.String())
	}
}

func (s *Sweeper) flagOverdue(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.cfg.DeliverySLA)
	orders, err := s.store.OverdueUnnotified(ctx, cutoff)
	if err != nil {
		slog.Warn("overdue sweep skipped", "error", err)
		return
	}
	for _, o := range orders {
		claimed, err := s.store.ClaimOverdue(ctx, o.ID, now)
		if err != nil {
			slog.Warn("overdue claim failed", "order_id", o.ID.String(), "error", err)
			continue
		}
		if !claimed {
			continue // another sweep got there first
		}
		evt := order.StatusEvent{
			OrderID:      o.ID.String(),
			RestaurantID: o.RestaurantID,
			Status:       o.Status,
			CourierID:    o.CourierID,
		}
		s.pub.Publish(ws.RestaurantRoom(o.RestaurantID), ws.EventDeliveryOverdue, evt)
		if o.CourierID != nil {
			s.pub.Publish(ws.CourierRoom(*o.CourierID), ws.EventDeliveryOverdue, evt)
		}
		slog.Info("order flagged overdue", "order_id", o.ID.String())
	}
}
