package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"courier-dispatch/internal/clock"
	"courier-dispatch/internal/common"
	domainerrors "courier-dispatch/internal/errors"
	"courier-dispatch/internal/order"
	"courier-dispatch/internal/ws"
)

// memRepo mirrors the guarded-update semantics of the real repository against
// a map.
type memRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[uuid.UUID]*order.Order)}
}

func (r *memRepo) Create(_ context.Context, _ sqlx.ExtContext, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, _ sqlx.ExtContext, id uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domainerrors.OrderNotFound(id.String())
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) Transition(_ context.Context, _ sqlx.ExtContext, id uuid.UUID, expected, next order.Status, fields order.TransitionFields, now time.Time) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domainerrors.OrderNotFound(id.String())
	}
	if o.Status != expected {
		return nil, domainerrors.OrderConflict(id.String(), string(expected), string(o.Status))
	}
	o.Status = next
	if fields.ClearCourier {
		o.CourierID = nil
	} else if fields.CourierID != nil {
		o.CourierID = fields.CourierID
	}
	if fields.AcceptedAt != nil {
		o.AcceptedAt = fields.AcceptedAt
	}
	if fields.DeliveredAt != nil {
		o.DeliveredAt = fields.DeliveredAt
	}
	if fields.ApprovedAt != nil {
		o.ApprovedAt = fields.ApprovedAt
	}
	o.UpdatedAt = now
	cp := *o
	return &cp, nil
}

func (r *memRepo) Accept(_ context.Context, _ sqlx.ExtContext, id uuid.UUID, courierID string, now, openBefore time.Time) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domainerrors.OrderNotFound(id.String())
	}
	if o.Status == order.StatusCancelled || o.Status == order.StatusAutoDeleted {
		return nil, domainerrors.OrderNotFound(id.String())
	}
	if o.Status != order.StatusWaiting {
		return nil, domainerrors.OrderConflict(id.String(), string(order.StatusWaiting), string(o.Status))
	}
	if o.CreatedAt.After(openBefore) {
		return nil, domainerrors.OrderLocked(id.String())
	}
	o.Status = order.StatusAssigned
	o.CourierID = &courierID
	o.AcceptedAt = &now
	o.UpdatedAt = now
	cp := *o
	return &cp, nil
}

func (r *memRepo) CountActive(_ context.Context, _ sqlx.ExtContext, courierID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.orders {
		if o.CourierID != nil && *o.CourierID == courierID && o.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) list(match func(*order.Order) bool) []*order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*order.Order
	for _, o := range r.orders {
		if match(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out
}

func (r *memRepo) ListActiveByCourier(_ context.Context, _ sqlx.ExtContext, courierID string) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.CourierID != nil && *o.CourierID == courierID && o.Status.Active()
	}), nil
}

func (r *memRepo) ListOpenWaiting(_ context.Context, _ sqlx.ExtContext, openBefore time.Time) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.Status == order.StatusWaiting && !o.CreatedAt.After(openBefore)
	}), nil
}

func (r *memRepo) ListPendingApprovalByCourier(_ context.Context, _ sqlx.ExtContext, courierID string) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.CourierID != nil && *o.CourierID == courierID && o.Status == order.StatusPendingApproval
	}), nil
}

func (r *memRepo) ListPendingApprovalByRestaurant(_ context.Context, _ sqlx.ExtContext, restaurantID string) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.RestaurantID == restaurantID && o.Status == order.StatusPendingApproval
	}), nil
}

func (r *memRepo) ListActiveByRestaurant(_ context.Context, _ sqlx.ExtContext, restaurantID string) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.RestaurantID == restaurantID && !o.Status.Terminal()
	}), nil
}

func (r *memRepo) ListWaitingCreatedBefore(_ context.Context, _ sqlx.ExtContext, cutoff time.Time) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.Status == order.StatusWaiting && !o.CreatedAt.After(cutoff)
	}), nil
}

func (r *memRepo) ListWaitingUnlockedSince(_ context.Context, _ sqlx.ExtContext, from, to time.Time) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.Status == order.StatusWaiting && o.CreatedAt.After(from) && !o.CreatedAt.After(to)
	}), nil
}

func (r *memRepo) ListOverdueUnnotified(_ context.Context, _ sqlx.ExtContext, acceptedBefore time.Time) ([]*order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.Status == order.StatusAssigned && o.AcceptedAt != nil &&
			!o.AcceptedAt.After(acceptedBefore) && o.OverdueNotifiedAt == nil
	}), nil
}

func (r *memRepo) MarkOverdueNotified(_ context.Context, _ sqlx.ExtContext, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.OverdueNotifiedAt != nil {
		return false, nil
	}
	o.OverdueNotifiedAt = &now
	return true, nil
}

type recordedEvent struct {
	room  string
	event string
}

type recordingPub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPub) Publish(room, event string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{room: room, event: event})
}

func (p *recordingPub) has(room, event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.room == room && e.event == event {
			return true
		}
	}
	return false
}

type recordingTracker struct {
	mu    sync.Mutex
	ended []uuid.UUID
}

func (t *recordingTracker) EndTracking(_ context.Context, _ string, orderID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ended = append(t.ended, orderID)
}

func newTestService(repo *memRepo) (order.Service, *recordingPub, *recordingTracker, *clock.Manual) {
	pub := &recordingPub{}
	tracker := &recordingTracker{}
	clk := clock.NewManual(testNow)
	svc := order.NewService(repo, nil, clk, pub, tracker, 10*time.Second)
	return svc, pub, tracker, clk
}

func seedAssigned(repo *memRepo, courierID string) *order.Order {
	o := order.New(order.CreateSpec{RestaurantID: "rest-1", PickupLat: 24.7, PickupLng: 46.7, DropoffLat: 24.8, DropoffLng: 46.8}, testNow.Add(-time.Hour))
	o.Status = order.StatusAssigned
	o.CourierID = &courierID
	accepted := testNow.Add(-30 * time.Minute)
	o.AcceptedAt = &accepted
	repo.orders[o.ID] = o
	return o
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *domainerrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected domain error %s, got %v", code, err)
	}
	if de.Code != code {
		t.Fatalf("expected %s, got %s", code, de.Code)
	}
}

func TestCreate_ValidatesInput(t *testing.T) {
	svc, _, _, _ := newTestService(newMemRepo())

	_, err := svc.Create(context.Background(), order.CreateSpec{})
	expectCode(t, err, domainerrors.ErrValidation)

	_, err = svc.Create(context.Background(), order.CreateSpec{RestaurantID: "rest-1", PickupLat: 91})
	expectCode(t, err, domainerrors.ErrValidation)
}

func TestCreate_ZeroCoordinatesAreLegal(t *testing.T) {
	svc, _, _, _ := newTestService(newMemRepo())

	// A dropoff at 0,0 sits on the equator and prime meridian; it must not
	// be mistaken for a missing field.
	o, err := svc.Create(context.Background(), order.CreateSpec{
		RestaurantID: "rest-1",
		PickupLat:    5.5, PickupLng: -0.2,
		DropoffLat: 0, DropoffLng: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.DropoffLat != 0 || o.DropoffLng != 0 {
		t.Fatalf("zero coordinates not preserved: %+v", o)
	}
}

func TestCreate_AnnouncesToCouriers(t *testing.T) {
	repo := newMemRepo()
	svc, pub, _, _ := newTestService(repo)

	o, err := svc.Create(context.Background(), order.CreateSpec{
		RestaurantID: "rest-1",
		PickupLat:    24.7, PickupLng: 46.7,
		DropoffLat: 24.8, DropoffLng: 46.8,
		CourierFee: 12,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != order.StatusWaiting {
		t.Fatalf("expected waiting, got %s", o.Status)
	}
	if !pub.has(ws.RoomCouriers, ws.EventNewOrder) {
		t.Fatal("expected newOrder broadcast to couriers")
	}
}

func TestDeliver_OnlyAssignedCourier(t *testing.T) {
	repo := newMemRepo()
	svc, _, _, _ := newTestService(repo)
	o := seedAssigned(repo, "courier-1")

	_, err := svc.Deliver(context.Background(), o.ID, "courier-2")
	expectCode(t, err, domainerrors.ErrForbidden)
}

func TestDeliver_SetsDeliveredAtOnce(t *testing.T) {
	repo := newMemRepo()
	svc, pub, _, _ := newTestService(repo)
	o := seedAssigned(repo, "courier-1")

	got, err := svc.Deliver(context.Background(), o.ID, "courier-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != order.StatusDelivered || got.DeliveredAt == nil {
		t.Fatalf("expected delivered with timestamp, got %+v", got)
	}
	if !pub.has(ws.RestaurantRoom("rest-1"), ws.EventOrderDelivered) {
		t.Fatal("expected orderDelivered to the restaurant")
	}

	// Second attempt finds the CAS guard stale.
	_, err = svc.Deliver(context.Background(), o.ID, "courier-1")
	expectCode(t, err, domainerrors.ErrConflict)
}

func TestRequestApproval_EndsTracking(t *testing.T) {
	repo := newMemRepo()
	svc, pub, tracker, _ := newTestService(repo)
	o := seedAssigned(repo, "courier-1")

	if _, err := svc.Deliver(context.Background(), o.ID, "courier-1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	got, err := svc.RequestApproval(context.Background(), o.ID, "courier-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != order.StatusPendingApproval {
		t.Fatalf("expected pending_approval, got %s", got.Status)
	}
	if len(tracker.ended) != 1 || tracker.ended[0] != o.ID {
		t.Fatal("expected tracking teardown")
	}
	if !pub.has(ws.RestaurantRoom("rest-1"), ws.EventTrackingEnded) {
		t.Fatal("expected trackingEnded to the restaurant")
	}
}

func TestApprove_FromPendingApproval(t *testing.T) {
	repo := newMemRepo()
	svc, pub, _, _ := newTestService(repo)
	o := seedAssigned(repo, "courier-1")

	if _, err := svc.Deliver(context.Background(), o.ID, "courier-1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := svc.RequestApproval(context.Background(), o.ID, "courier-1"); err != nil {
		t.Fatalf("request approval: %v", err)
	}

	got, err := svc.Approve(context.Background(), o.ID, "rest-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != order.StatusApproved || got.ApprovedAt == nil {
		t.Fatalf("expected approved with timestamp, got %+v", got)
	}
	if !pub.has(ws.CourierRoom("courier-1"), ws.EventOrderApproved) {
		t.Fatal("expected orderApproved to the courier")
	}
}

func TestApprove_DirectlyFromDelivered(t *testing.T) {
	repo := newMemRepo()
	svc, _, tracker, _ := newTestService(repo)
	o := seedAssigned(repo, "courier-1")

	if _, err := svc.Deliver(context.Background(), o.ID, "courier-1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	got, err := svc.Approve(context.Background(), o.ID, "rest-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != order.StatusApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}
	// Skipping the approval request must still tear tracking down.
	if len(tracker.ended) != 1 {
		t.Fatal("expected tracking teardown")
	}
}

func TestApprove_ForeignRestaurantForbidden(t *testing.T) {
	repo := newMemRepo()
	svc, _, _, _ := newTestService(repo)
	o := seedAssigned(repo, "courier-1")

	_, err := svc.Approve(context.Background(), o.ID, "rest-2")
	expectCode(t, err, domainerrors.ErrForbidden)
}

func TestCancel_WaitingBroadcastsToCouriers(t *testing.T) {
	repo := newMemRepo()
	svc, pub, _, _ := newTestService(repo)

	o, err := svc.Create(context.Background(), order.CreateSpec{
		RestaurantID: "rest-1",
		PickupLat:    24.7, PickupLng: 46.7,
		DropoffLat: 24.8, DropoffLng: 46.8,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Cancel(context.Background(), o.ID, "rest-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != order.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if !pub.has(ws.RoomCouriers, ws.EventOrderCancelled) {
		t.Fatal("expected orderCancelled broadcast")
	}
}

func TestCancel_AssignedReleasesCourierAndTracking(t *testing.T) {
	repo := newMemRepo()
	svc, pub, tracker, _ := newTestService(repo)
	o := seedAssigned(repo, "courier-1")

	got, err := svc.Cancel(context.Background(), o.ID, "rest-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CourierID != nil {
		t.Fatal("expected courier to be released")
	}
	if !pub.has(ws.CourierRoom("courier-1"), ws.EventOrderCancelled) {
		t.Fatal("expected orderCancelled to the assigned courier")
	}
	if len(tracker.ended) != 1 {
		t.Fatal("expected tracking teardown")
	}
}

func TestCancel_DeliveredIsConflict(t *testing.T) {
	repo := newMemRepo()
	svc, _, _, _ := newTestService(repo)
	o := seedAssigned(repo, "courier-1")

	if _, err := svc.Deliver(context.Background(), o.ID, "courier-1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	_, err := svc.Cancel(context.Background(), o.ID, "rest-1")
	expectCode(t, err, domainerrors.ErrConflict)
}

func TestOpenForAcceptance_FiltersLockoutFeeAndDistance(t *testing.T) {
	repo := newMemRepo()
	svc, _, _, _ := newTestService(repo)

	unlockedCheap := order.New(order.CreateSpec{RestaurantID: "rest-1", PickupLat: 24.7, PickupLng: 46.7, CourierFee: 5}, testNow.Add(-time.Minute))
	unlockedFar := order.New(order.CreateSpec{RestaurantID: "rest-1", PickupLat: 26.0, PickupLng: 48.0, CourierFee: 20}, testNow.Add(-time.Minute))
	unlockedGood := order.New(order.CreateSpec{RestaurantID: "rest-1", PickupLat: 24.71, PickupLng: 46.71, CourierFee: 20}, testNow.Add(-time.Minute))
	locked := order.New(order.CreateSpec{RestaurantID: "rest-1", PickupLat: 24.71, PickupLng: 46.71, CourierFee: 20}, testNow.Add(-2*time.Second))
	for _, o := range []*order.Order{unlockedCheap, unlockedFar, unlockedGood, locked} {
		repo.orders[o.ID] = o
	}

	minFee := 10.0
	maxDist := 10.0
	from := common.NewLocation(24.7, 46.7)
	got, err := svc.OpenForAcceptance(context.Background(), order.Preferences{
		MinFee:        &minFee,
		MaxDistanceKM: &maxDist,
		From:          &from,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != unlockedGood.ID {
		t.Fatalf("expected only the close well-paid unlocked order, got %d", len(got))
	}
}
