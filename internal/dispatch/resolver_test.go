package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"courier-dispatch/internal/clock"
	"courier-dispatch/internal/courier"
	"courier-dispatch/internal/dispatch"
	domainerrors "courier-dispatch/internal/errors"
	"courier-dispatch/internal/order"
	"courier-dispatch/internal/ws"
)

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	outcome *dispatch.BatchOutcome
	err     error

	gotCourier string
	gotIDs     []uuid.UUID
	calls      int
}

func (f *fakeStore) AcceptBatch(_ context.Context, courierID string, orderIDs []uuid.UUID, _, _ time.Time) (*dispatch.BatchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotCourier = courierID
	f.gotIDs = orderIDs
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

type fakeCouriers struct {
	online    bool
	onlineErr error
}

func (f *fakeCouriers) EnsureExists(_ context.Context, id string) (*courier.Courier, error) {
	return courier.New(id, 5, start), nil
}

func (f *fakeCouriers) IsOnline(context.Context, string) (bool, error) {
	return f.online, f.onlineErr
}

type published struct {
	room  string
	event string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePublisher) Publish(room, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{room: room, event: event})
}

func newResolver(store dispatch.Store, online bool) (dispatch.Resolver, *fakePublisher) {
	pub := &fakePublisher{}
	r := dispatch.NewResolver(store, &fakeCouriers{online: online}, pub, clock.NewManual(start), 10*time.Second)
	return r, pub
}

func assignedOrder(courierID string) *order.Order {
	o := order.New(order.CreateSpec{RestaurantID: "rest-1"}, start.Add(-time.Minute))
	o.Status = order.StatusAssigned
	o.CourierID = &courierID
	return o
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var de *domainerrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected a domain error, got %v", err)
	}
	return de.Code
}

func TestAccept_EmptyBatchRejected(t *testing.T) {
	r, _ := newResolver(&fakeStore{}, true)

	_, err := r.Accept(context.Background(), "courier-1", nil)
	if code := domainCode(t, err); code != domainerrors.ErrValidation {
		t.Fatalf("expected VALIDATION, got %s", code)
	}
}

func TestAccept_OfflineCourierLockedOut(t *testing.T) {
	store := &fakeStore{}
	r, _ := newResolver(store, false)

	_, err := r.Accept(context.Background(), "courier-1", []string{uuid.NewString()})
	if code := domainCode(t, err); code != domainerrors.ErrAcceptanceLocked {
		t.Fatalf("expected ACCEPTANCE_LOCKED, got %s", code)
	}
	if store.calls != 0 {
		t.Fatal("offline courier must not reach the store")
	}
}

func TestAccept_MalformedIDsFailWithoutStoreCall(t *testing.T) {
	store := &fakeStore{}
	r, _ := newResolver(store, true)

	res, err := r.Accept(context.Background(), "courier-1", []string{"not-a-uuid", "also-bad"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Accepted) != 0 || len(res.Failed) != 2 {
		t.Fatalf("expected 0 accepted / 2 failed, got %d/%d", len(res.Accepted), len(res.Failed))
	}
	for _, f := range res.Failed {
		if f.Reason != dispatch.ReasonNotFound {
			t.Fatalf("expected %s, got %s", dispatch.ReasonNotFound, f.Reason)
		}
	}
	if store.calls != 0 {
		t.Fatal("all-malformed batch must not reach the store")
	}
}

func TestAccept_DuplicateIDsCollapsed(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{outcome: &dispatch.BatchOutcome{}}
	r, _ := newResolver(store, true)

	if _, err := r.Accept(context.Background(), "courier-1", []string{id.String(), id.String()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.gotIDs) != 1 {
		t.Fatalf("expected 1 deduplicated id, got %d", len(store.gotIDs))
	}
	if store.gotCourier != "courier-1" {
		t.Fatalf("expected courier-1, got %s", store.gotCourier)
	}
}

func TestAccept_BlockedCourierPropagates(t *testing.T) {
	store := &fakeStore{err: domainerrors.CourierBlocked("courier-1")}
	r, _ := newResolver(store, true)

	_, err := r.Accept(context.Background(), "courier-1", []string{uuid.NewString()})
	if code := domainCode(t, err); code != domainerrors.ErrForbidden {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
}

func TestAccept_CapacityExceededPropagates(t *testing.T) {
	store := &fakeStore{err: domainerrors.PackageLimitExceeded(5, 4, 2)}
	r, _ := newResolver(store, true)

	_, err := r.Accept(context.Background(), "courier-1", []string{uuid.NewString(), uuid.NewString()})
	if code := domainCode(t, err); code != domainerrors.ErrCapacityExceeded {
		t.Fatalf("expected CAPACITY_EXCEEDED, got %s", code)
	}
}

func TestAccept_PartialOutcomeAndEvents(t *testing.T) {
	won := assignedOrder("courier-1")
	lostID := uuid.New()
	store := &fakeStore{outcome: &dispatch.BatchOutcome{
		Accepted: []*order.Order{won},
		Failed:   []dispatch.Failure{{OrderID: lostID.String(), Reason: dispatch.ReasonAlreadyTaken}},
	}}
	r, pub := newResolver(store, true)

	res, err := r.Accept(context.Background(), "courier-1", []string{won.ID.String(), lostID.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Accepted) != 1 || res.Accepted[0] != won.ID.String() {
		t.Fatalf("expected %s accepted, got %v", won.ID, res.Accepted)
	}
	if len(res.Failed) != 1 || res.Failed[0].Reason != dispatch.ReasonAlreadyTaken {
		t.Fatalf("expected one AlreadyTaken failure, got %v", res.Failed)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	if pub.events[0].room != ws.RestaurantRoom("rest-1") || pub.events[0].event != ws.EventOrderStatusUpdate {
		t.Fatalf("unexpected first event: %+v", pub.events[0])
	}
	if pub.events[1].room != ws.RoomCouriers || pub.events[1].event != ws.EventOrderAccepted {
		t.Fatalf("unexpected second event: %+v", pub.events[1])
	}
}

// casStore emulates the database's compare-and-swap: first courier to touch an
// order wins, everyone else gets AlreadyTaken.
type casStore struct {
	mu      sync.Mutex
	winner  map[uuid.UUID]string
	retired map[uuid.UUID]bool
}

func (s *casStore) AcceptBatch(_ context.Context, courierID string, orderIDs []uuid.UUID, now, _ time.Time) (*dispatch.BatchOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &dispatch.BatchOutcome{}
	for _, id := range orderIDs {
		if s.retired[id] {
			out.Failed = append(out.Failed, dispatch.Failure{OrderID: id.String(), Reason: dispatch.ReasonNotFound})
			continue
		}
		if _, taken := s.winner[id]; taken {
			out.Failed = append(out.Failed, dispatch.Failure{OrderID: id.String(), Reason: dispatch.ReasonAlreadyTaken})
			continue
		}
		s.winner[id] = courierID
		o := order.New(order.CreateSpec{RestaurantID: "rest-1"}, now.Add(-time.Minute))
		o.ID = id
		o.Status = order.StatusAssigned
		o.CourierID = &courierID
		out.Accepted = append(out.Accepted, o)
	}
	return out, nil
}

func TestAccept_AtMostOneWinnerUnderContention(t *testing.T) {
	store := &casStore{winner: make(map[uuid.UUID]string)}
	orderID := uuid.New()

	const couriers = 20
	results := make([]*dispatch.Result, couriers)

	var wg sync.WaitGroup
	for i := 0; i < couriers; i++ {
		r, _ := newResolver(store, true)
		wg.Add(1)
		go func(i int, r dispatch.Resolver) {
			defer wg.Done()
			res, err := r.Accept(context.Background(), uuid.NewString(), []string{orderID.String()})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = res
		}(i, r)
	}
	wg.Wait()

	winners := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		winners += len(res.Accepted)
		for _, f := range res.Failed {
			if f.Reason != dispatch.ReasonAlreadyTaken {
				t.Fatalf("loser got reason %s", f.Reason)
			}
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

// An order retired by the auto-delete sweep stays in the table but must look
// gone to an accepting courier, not taken by somebody else.
func TestAccept_RetiredOrderReportsNotFound(t *testing.T) {
	retiredID := uuid.New()
	liveID := uuid.New()
	store := &casStore{
		winner:  make(map[uuid.UUID]string),
		retired: map[uuid.UUID]bool{retiredID: true},
	}
	r, pub := newResolver(store, true)

	res, err := r.Accept(context.Background(), "courier-1", []string{retiredID.String(), liveID.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Accepted) != 1 || res.Accepted[0] != liveID.String() {
		t.Fatalf("expected %s accepted, got %v", liveID, res.Accepted)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("expected one failure, got %v", res.Failed)
	}
	if res.Failed[0].OrderID != retiredID.String() || res.Failed[0].Reason != dispatch.ReasonNotFound {
		t.Fatalf("expected %s to fail with NotFound, got %+v", retiredID, res.Failed[0])
	}

	// Only the won order is announced.
	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events for the single win, got %d", len(pub.events))
	}
}
