package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"courier-dispatch/internal/clock"
	"courier-dispatch/internal/common"
	domainerrors "courier-dispatch/internal/errors"
	"courier-dispatch/internal/ws"
)

// Publisher is the fan-out seam; satisfied by *ws.Hub.
type Publisher interface {
	Publish(room, event string, payload any)
}

// Tracker lets the order lifecycle tear down live tracking when an order
// leaves the trackable states. Satisfied by the location service.
type Tracker interface {
	EndTracking(ctx context.Context, courierID string, orderID uuid.UUID)
}

type Service interface {
	Create(ctx context.Context, spec CreateSpec) (*Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)

	Deliver(ctx context.Context, orderID uuid.UUID, courierID string) (*Order, error)
	RequestApproval(ctx context.Context, orderID uuid.UUID, courierID string) (*Order, error)
	Approve(ctx context.Context, orderID uuid.UUID, restaurantID string) (*Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, restaurantID string) (*Order, error)

	ActiveByCourier(ctx context.Context, courierID string) ([]*Order, error)
	OpenForAcceptance(ctx context.Context, prefs Preferences) ([]*Order, error)
	PendingApprovalByCourier(ctx context.Context, courierID string) ([]*Order, error)
	PendingApprovalByRestaurant(ctx context.Context, restaurantID string) ([]*Order, error)
	ActiveByRestaurant(ctx context.Context, restaurantID string) ([]*Order, error)
}

// Preferences is the pass-through filter for the with-preferences listing.
// Eligibility scoring beyond fee and pickup distance lives in an external
// collaborator.
type Preferences struct {
	MinFee        *float64
	MaxDistanceKM *float64
	From          *common.Location
}

type service struct {
	repo    Repository
	db      *sqlx.DB
	clk     clock.Clock
	pub     Publisher
	tracker Tracker
	lockout time.Duration
}

func NewService(repo Repository, db *sqlx.DB, clk clock.Clock, pub Publisher, tracker Tracker, lockout time.Duration) Service {
	return &service{repo: repo, db: db, clk: clk, pub: pub, tracker: tracker, lockout: lockout}
}

// -------------------------------------------------------------------------------------------------
func (s *service) Create(ctx context.Context, spec CreateSpec) (*Order, error) {
	if spec.RestaurantID == "" {
		return nil, domainerrors.NewValidation("restaurant id is required")
	}
	if err := common.ValidateLatLng(spec.PickupLat, spec.PickupLng); err != nil {
		return nil, domainerrors.NewValidation(err.Error())
	}
	if err := common.ValidateLatLng(spec.DropoffLat, spec.DropoffLng); err != nil {
		return nil, domainerrors.NewValidation(err.Error())
	}

	o := New(spec, s.clk.Now())
	if err := s.repo.Create(ctx, s.db, o); err != nil {
		return nil, domainerrors.NewInternal("failed to create order", err)
	}

	s.pub.Publish(ws.RoomCouriers, ws.EventNewOrder, StatusEvent{
		OrderID:      o.ID.String(),
		RestaurantID: o.RestaurantID,
		Status:       o.Status,
		Order:        o,
	})
	return o, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetByID(ctx, s.db, id)
}

// -------------------------------------------------------------------------------------------------
func (s *service) Deliver(ctx context.Context, orderID uuid.UUID, courierID string) (*Order, error) {
	current, err := s.repo.GetByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if current.CourierID == nil || *current.CourierID != courierID {
		return nil, domainerrors.OrderNotOwned()
	}

	now := s.clk.Now()
	o, err := s.repo.Transition(ctx, s.db, orderID, StatusAssigned, StatusDelivered,
		TransitionFields{DeliveredAt: &now}, now)
	if err != nil {
		return nil, err
	}

	s.publishStatus(o, ws.EventOrderDelivered)
	return o, nil
}

// -------------------------------------------------------------------------------------------------
// RequestApproval moves a delivered order into the restaurant's settlement
// queue. Tracking ends here: pending_approval is not a trackable state.
func (s *service) RequestApproval(ctx context.Context, orderID uuid.UUID, courierID string) (*Order, error) {
	current, err := s.repo.GetByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if current.CourierID == nil || *current.CourierID != courierID {
		return nil, domainerrors.OrderNotOwned()
	}

	now := s.clk.Now()
	o, err := s.repo.Transition(ctx, s.db, orderID, StatusDelivered, StatusPendingApproval,
		TransitionFields{}, now)
	if err != nil {
		return nil, err
	}

	s.tracker.EndTracking(ctx, courierID, orderID)
	s.pub.Publish(ws.RestaurantRoom(o.RestaurantID), ws.EventTrackingEnded, TrackingEvent{
		OrderID:   o.ID.String(),
		CourierID: courierID,
	})
	s.publishStatus(o, ws.EventOrderStatusUpdate)
	return o, nil
}

// -------------------------------------------------------------------------------------------------
// Approve accepts both pending_approval and plain delivered orders; the CAS
// re-verifies whichever state the read observed, so a concurrent transition
// still loses cleanly.
func (s *service) Approve(ctx context.Context, orderID uuid.UUID, restaurantID string) (*Order, error) {
	current, err := s.repo.GetByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if current.RestaurantID != restaurantID {
		return nil, domainerrors.OrderNotOwned()
	}

	expected := StatusPendingApproval
	if current.Status == StatusDelivered {
		expected = StatusDelivered
	}

	now := s.clk.Now()
	o, err := s.repo.Transition(ctx, s.db, orderID, expected, StatusApproved,
		TransitionFields{ApprovedAt: &now}, now)
	if err != nil {
		return nil, err
	}

	if expected == StatusDelivered && o.CourierID != nil {
		s.tracker.EndTracking(ctx, *o.CourierID, orderID)
		s.pub.Publish(ws.RestaurantRoom(o.RestaurantID), ws.EventTrackingEnded, TrackingEvent{
			OrderID:   o.ID.String(),
			CourierID: *o.CourierID,
		})
	}

	if o.CourierID != nil {
		s.pub.Publish(ws.CourierRoom(*o.CourierID), ws.EventOrderApproved, StatusEvent{
			OrderID:      o.ID.String(),
			RestaurantID: o.RestaurantID,
			Status:       o.Status,
			CourierID:    o.CourierID,
		})
	}
	s.pub.Publish(ws.RestaurantRoom(o.RestaurantID), ws.EventOrderStatusUpdate, statusEventOf(o))
	return o, nil
}

// -------------------------------------------------------------------------------------------------
// Cancel is restaurant-initiated and races courier actions through the same
// CAS as everything else: whichever transition lands first wins, the loser
// gets a Conflict and re-fetches.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, restaurantID string) (*Order, error) {
	current, err := s.repo.GetByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if current.RestaurantID != restaurantID {
		return nil, domainerrors.OrderNotOwned()
	}

	expected := current.Status
	if expected != StatusWaiting && expected != StatusAssigned {
		return nil, domainerrors.OrderConflict(orderID.String(), "waiting or assigned", string(expected))
	}

	assignedCourier := current.CourierID

	now := s.clk.Now()
	o, err := s.repo.Transition(ctx, s.db, orderID, expected, StatusCancelled,
		TransitionFields{ClearCourier: true}, now)
	if err != nil {
		return nil, err
	}

	cancelEvent := StatusEvent{
		OrderID:      o.ID.String(),
		RestaurantID: o.RestaurantID,
		Status:       o.Status,
	}
	// Waiting orders are still on every courier's open list; assigned ones
	// concern only the courier that held them.
	if expected == StatusWaiting {
		s.pub.Publish(ws.RoomCouriers, ws.EventOrderCancelled, cancelEvent)
	} else if assignedCourier != nil {
		s.pub.Publish(ws.CourierRoom(*assignedCourier), ws.EventOrderCancelled, cancelEvent)
		s.tracker.EndTracking(ctx, *assignedCourier, orderID)
		s.pub.Publish(ws.RestaurantRoom(o.RestaurantID), ws.EventTrackingEnded, TrackingEvent{
			OrderID:   o.ID.String(),
			CourierID: *assignedCourier,
		})
	}
	s.pub.Publish(ws.RestaurantRoom(o.RestaurantID), ws.EventOrderStatusUpdate, statusEventOf(o))
	return o, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) ActiveByCourier(ctx context.Context, courierID string) ([]*Order, error) {
	return s.repo.ListActiveByCourier(ctx, s.db, courierID)
}

// -------------------------------------------------------------------------------------------------
func (s *service) OpenForAcceptance(ctx context.Context, prefs Preferences) ([]*Order, error) {
	openBefore := s.clk.Now().Add(-s.lockout)
	orders, err := s.repo.ListOpenWaiting(ctx, s.db, openBefore)
	if err != nil {
		return nil, err
	}

	filtered := orders[:0]
	for _, o := range orders {
		if prefs.MinFee != nil && o.CourierFee < *prefs.MinFee {
			continue
		}
		if prefs.MaxDistanceKM != nil && prefs.From != nil {
			pickup := common.NewLocation(o.PickupLat, o.PickupLng)
			if common.HaversineDistance(*prefs.From, pickup) > *prefs.MaxDistanceKM {
				continue
			}
		}
		filtered = append(filtered, o)
	}
	return filtered, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) PendingApprovalByCourier(ctx context.Context, courierID string) ([]*Order, error) {
	return s.repo.ListPendingApprovalByCourier(ctx, s.db, courierID)
}

// -------------------------------------------------------------------------------------------------
func (s *service) PendingApprovalByRestaurant(ctx context.Context, restaurantID string) ([]*Order, error) {
	return s.repo.ListPendingApprovalByRestaurant(ctx, s.db, restaurantID)
}

// -------------------------------------------------------------------------------------------------
func (s *service) ActiveByRestaurant(ctx context.Context, restaurantID string) ([]*Order, error) {
	return s.repo.ListActiveByRestaurant(ctx, s.db, restaurantID)
}

// -------------------------------------------------------------------------------------------------
func (s *service) publishStatus(o *Order, event string) {
	ev := statusEventOf(o)
	s.pub.Publish(ws.RestaurantRoom(o.RestaurantID), event, ev)
	if o.CourierID != nil {
		s.pub.Publish(ws.CourierRoom(*o.CourierID), ws.EventOrderStatusUpdate, ev)
	}
}

func statusEventOf(o *Order) StatusEvent {
	return StatusEvent{
		OrderID:      o.ID.String(),
		RestaurantID: o.RestaurantID,
		Status:       o.Status,
		CourierID:    o.CourierID,
	}
}
