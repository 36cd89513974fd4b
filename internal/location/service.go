package location

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"courier-dispatch/internal/clock"
	"courier-dispatch/internal/common"
	domainerrors "courier-dispatch/internal/errors"
	"courier-dispatch/internal/order"
	"courier-dispatch/internal/redis"
	"courier-dispatch/internal/ws"
)

// Sample is one GPS fix as reported by the courier app.
type Sample struct {
	OrderID  string   `json:"order_id"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Speed    *float64 `json:"speed,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// Event is what the owning restaurant sees. Nobody else ever receives it.
type Event struct {
	OrderID   string    `json:"order_id"`
	CourierID string    `json:"courier_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Orders interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

type Cache interface {
	Set(ctx context.Context, courierID, orderID string, sample redis.CachedSample) error
	Get(ctx context.Context, courierID, orderID string) (*redis.CachedSample, error)
	Drop(ctx context.Context, courierID, orderID string) error
}

type Publisher interface {
	Publish(room, event string, payload any)
}

type Service interface {
	// Ingest validates and caches a fix, then fans it out to the owning
	// restaurant. Fixes for orders the courier does not hold, or that are no
	// longer en route, are dropped without telling the sender anything.
	Ingest(ctx context.Context, courierID string, s Sample) error

	// Latest returns the most recent cached fix for a restaurant's own order.
	Latest(ctx context.Context, restaurantID string, orderID uuid.UUID) (*Event, error)

	// EndTracking discards cached and throttle state for a finished order.
	EndTracking(ctx context.Context, courierID string, orderID uuid.UUID)
}

type service struct {
	orders      Orders
	cache       Cache
	pub         Publisher
	clk         clock.Clock
	minInterval time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewService(orders Orders, cache Cache, pub Publisher, clk clock.Clock, minInterval time.Duration) Service {
	return &service{
		orders:      orders,
		cache:       cache,
		pub:         pub,
		clk:         clk,
		minInterval: minInterval,
		lastSent:    make(map[string]time.Time),
	}
}

// -------------------------------------------------------------------------------------------------
func (s *service) Ingest(ctx context.Context, courierID string, sample Sample) error {
	if err := common.ValidateLatLng(sample.Lat, sample.Lng); err != nil {
		return domainerrors.NewValidation(err.Error())
	}
	orderID, err := uuid.Parse(sample.OrderID)
	if err != nil {
		return domainerrors.NewValidation("invalid order id")
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		// A fix for a vanished order is stale app state, not an attack.
		slog.Debug("location fix for unknown order", "courier_id", courierID, "order_id", sample.OrderID)
		return nil
	}
	if o.CourierID == nil || *o.CourierID != courierID || !o.Status.Trackable() {
		slog.Debug("location fix dropped",
			"courier_id", courierID, "order_id", sample.OrderID, "status", o.Status)
		return nil
	}

	now := s.clk.Now()
	cached := redis.CachedSample{
		Lat:       sample.Lat,
		Lng:       sample.Lng,
		Speed:     sample.Speed,
		Heading:   sample.Heading,
		Accuracy:  sample.Accuracy,
		Timestamp: now,
	}
	// The cache always takes the newest fix even when the fan-out below is
	// throttled, so a late subscriber starts from fresh state.
	if err := s.cache.Set(ctx, courierID, sample.OrderID, cached); err != nil {
		slog.Warn("location cache write failed", "error", err)
	}

	if !s.shouldPublish(courierID, sample.OrderID, now) {
		return nil
	}

	s.pub.Publish(ws.RestaurantRoom(o.RestaurantID), ws.EventLocationUpdate, Event{
		OrderID:   sample.OrderID,
		CourierID: courierID,
		Lat:       sample.Lat,
		Lng:       sample.Lng,
		Speed:     sample.Speed,
		Heading:   sample.Heading,
		Accuracy:  sample.Accuracy,
		Timestamp: now,
	})
	return nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) Latest(ctx context.Context, restaurantID string, orderID uuid.UUID) (*Event, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.RestaurantID != restaurantID {
		return nil, domainerrors.OrderNotOwned()
	}
	if o.CourierID == nil || !o.Status.Trackable() {
		return nil, domainerrors.NewNotFound("location for order", orderID.String())
	}

	cached, err := s.cache.Get(ctx, *o.CourierID, orderID.String())
	if err != nil {
		return nil, domainerrors.NewUnavailable("location cache read failed", err)
	}
	if cached == nil {
		return nil, domainerrors.NewNotFound("location for order", orderID.String())
	}
	return &Event{
		OrderID:   orderID.String(),
		CourierID: *o.CourierID,
		Lat:       cached.Lat,
		Lng:       cached.Lng,
		Speed:     cached.Speed,
		Heading:   cached.Heading,
		Accuracy:  cached.Accuracy,
		Timestamp: cached.Timestamp,
	}, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) EndTracking(ctx context.Context, courierID string, orderID uuid.UUID) {
	key := throttleKey(courierID, orderID.String())
	s.mu.Lock()
	delete(s.lastSent, key)
	s.mu.Unlock()

	if err := s.cache.Drop(ctx, courierID, orderID.String()); err != nil {
		slog.Warn("location cache drop failed",
			"courier_id", courierID, "order_id", orderID.String(), "error", err)
	}
}

// shouldPublish rate-limits fan-out per (courier, order) pair. Couriers that
// report faster than the interval still win the cache, just not the wire.
func (s *service) shouldPublish(courierID, orderID string, now time.Time) bool {
	key := throttleKey(courierID, orderID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[key]; ok && now.Sub(last) < s.minInterval {
		return false
	}
	s.lastSent[key] = now
	return true
}

func throttleKey(courierID, orderID string) string {
	return courierID + "|" + orderID
}
