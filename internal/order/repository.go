package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "courier-dispatch/internal/errors"
)

const columns = `id, restaurant_id, courier_id, status, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, courier_fee, payment_method, preparation_time_minutes, created_at, accepted_at, delivered_at, approved_at, overdue_notified_at, updated_at`

// TransitionFields are the columns a status transition may set alongside the
// status itself. Nil pointers leave the column untouched, so timestamps are
// written exactly once.
type TransitionFields struct {
	CourierID    *string
	ClearCourier bool
	AcceptedAt   *time.Time
	DeliveredAt  *time.Time
	ApprovedAt   *time.Time
}

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, o *Order) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Order, error)

	// Transition is the single serialization point for order mutation: one
	// guarded UPDATE whose WHERE clause pins the expected status. A stale
	// expectation mutates nothing and comes back as a Conflict.
	Transition(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, expected, next Status, fields TransitionFields, now time.Time) (*Order, error)

	// Accept is the dispatch-specific CAS: waiting -> assigned, additionally
	// guarded so orders still inside the acceptance lockout cannot be won.
	Accept(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, courierID string, now, openBefore time.Time) (*Order, error)

	// CountActive is the authoritative package-limit count, recomputed from
	// rows rather than any in-memory counter.
	CountActive(ctx context.Context, ext sqlx.ExtContext, courierID string) (int, error)

	ListActiveByCourier(ctx context.Context, ext sqlx.ExtContext, courierID string) ([]*Order, error)
	ListOpenWaiting(ctx context.Context, ext sqlx.ExtContext, openBefore time.Time) ([]*Order, error)
	ListPendingApprovalByCourier(ctx context.Context, ext sqlx.ExtContext, courierID string) ([]*Order, error)
	ListPendingApprovalByRestaurant(ctx context.Context, ext sqlx.ExtContext, restaurantID string) ([]*Order, error)
	ListActiveByRestaurant(ctx context.Context, ext sqlx.ExtContext, restaurantID string) ([]*Order, error)

	// Sweep queries for the lifecycle scheduler.
	ListWaitingCreatedBefore(ctx context.Context, ext sqlx.ExtContext, cutoff time.Time) ([]*Order, error)
	ListWaitingUnlockedSince(ctx context.Context, ext sqlx.ExtContext, from, to time.Time) ([]*Order, error)
	ListOverdueUnnotified(ctx context.Context, ext sqlx.ExtContext, acceptedBefore time.Time) ([]*Order, error)
	MarkOverdueNotified(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, now time.Time) (bool, error)
}

type orderRepository struct{}

func NewRepository() Repository {
	return &orderRepository{}
}

func (r *orderRepository) Create(ctx context.Context, ext sqlx.ExtContext, o *Order) error {
	const query = `INSERT INTO orders (id, restaurant_id, courier_id, status, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, courier_fee, payment_method, preparation_time_minutes, created_at, accepted_at, delivered_at, approved_at, overdue_notified_at, updated_at)
		VALUES (:id, :restaurant_id, :courier_id, :status, :pickup_lat, :pickup_lng, :dropoff_lat, :dropoff_lng, :courier_fee, :payment_method, :preparation_time_minutes, :created_at, :accepted_at, :delivered_at, :approved_at, :overdue_notified_at, :updated_at)`

	_, err := sqlx.NamedExecContext(ctx, ext, query, o)
	return err
}

func (r *orderRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Order, error) {
	var o Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, columns)
	err := sqlx.GetContext(ctx, ext, &o, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.OrderNotFound(id.String())
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) Transition(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, expected, next Status, fields TransitionFields, now time.Time) (*Order, error) {
	query := fmt.Sprintf(`UPDATE orders SET
			status = $3,
			courier_id = CASE WHEN $4::boolean THEN NULL ELSE COALESCE($5::text, courier_id) END,
			accepted_at = COALESCE($6, accepted_at),
			delivered_at = COALESCE($7, delivered_at),
			approved_at = COALESCE($8, approved_at),
			updated_at = $9
		WHERE id = $1 AND status = $2
		RETURNING %s`, columns)

	var o Order
	err := sqlx.GetContext(ctx, ext, &o, query,
		id, expected, next, fields.ClearCourier, fields.CourierID,
		fields.AcceptedAt, fields.DeliveredAt, fields.ApprovedAt, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyMiss(ctx, ext, id, expected)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// classifyMiss distinguishes a vanished order from a lost race after a
// guarded UPDATE touched zero rows.
func (r *orderRepository) classifyMiss(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, expected Status) error {
	current, err := r.GetByID(ctx, ext, id)
	if err != nil {
		return err // OrderNotFound or a transport error
	}
	return domainerrors.OrderConflict(id.String(), string(expected), string(current.Status))
}

func (r *orderRepository) Accept(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, courierID string, now, openBefore time.Time) (*Order, error) {
	query := fmt.Sprintf(`UPDATE orders SET
			status = $3, courier_id = $4, accepted_at = $5, updated_at = $5
		WHERE id = $1 AND status = $2 AND created_at <= $6
		RETURNING %s`, columns)

	var o Order
	err := sqlx.GetContext(ctx, ext, &o, query,
		id, StatusWaiting, StatusAssigned, courierID, now, openBefore)
	if errors.Is(err, sql.ErrNoRows) {
		current, gerr := r.GetByID(ctx, ext, id)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status == StatusWaiting {
			return nil, domainerrors.OrderLocked(id.String())
		}
		// Retired rows are kept for audit; to an accepting courier they are gone.
		if current.Status == StatusCancelled || current.Status == StatusAutoDeleted {
			return nil, domainerrors.OrderNotFound(id.String())
		}
		return nil, domainerrors.OrderConflict(id.String(), string(StatusWaiting), string(current.Status))
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) CountActive(ctx context.Context, ext sqlx.ExtContext, courierID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM orders WHERE courier_id = $1 AND status IN ('assigned', 'delivered', 'pending_approval')`
	if err := sqlx.GetContext(ctx, ext, &count, query, courierID); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *orderRepository) ListActiveByCourier(ctx context.Context, ext sqlx.ExtContext, courierID string) ([]*Order, error) {
	var orders []*Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE courier_id = $1 AND status IN ('assigned', 'delivered', 'pending_approval') ORDER BY accepted_at ASC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &orders, query, courierID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListOpenWaiting(ctx context.Context, ext sqlx.ExtContext, openBefore time.Time) ([]*Order, error) {
	var orders []*Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE status = 'waiting' AND created_at <= $1 ORDER BY created_at ASC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &orders, query, openBefore); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListPendingApprovalByCourier(ctx context.Context, ext sqlx.ExtContext, courierID string) ([]*Order, error) {
	var orders []*Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE courier_id = $1 AND status = 'pending_approval' ORDER BY delivered_at ASC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &orders, query, courierID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListPendingApprovalByRestaurant(ctx context.Context, ext sqlx.ExtContext, restaurantID string) ([]*Order, error) {
	var orders []*Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE restaurant_id = $1 AND status = 'pending_approval' ORDER BY delivered_at ASC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &orders, query, restaurantID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListActiveByRestaurant(ctx context.Context, ext sqlx.ExtContext, restaurantID string) ([]*Order, error) {
	var orders []*Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE restaurant_id = $1 AND status IN ('waiting', 'assigned', 'delivered', 'pending_approval') ORDER BY created_at DESC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &orders, query, restaurantID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListWaitingCreatedBefore(ctx context.Context, ext sqlx.ExtContext, cutoff time.Time) ([]*Order, error) {
	var orders []*Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE status = 'waiting' AND created_at <= $1 ORDER BY created_at ASC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &orders, query, cutoff); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListWaitingUnlockedSince(ctx context.Context, ext sqlx.ExtContext, from, to time.Time) ([]*Order, error) {
	var orders []*Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE status = 'waiting' AND created_at > $1 AND created_at <= $2 ORDER BY created_at ASC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &orders, query, from, to); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListOverdueUnnotified(ctx context.Context, ext sqlx.ExtContext, acceptedBefore time.Time) ([]*Order, error) {
	var orders []*Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE status = 'assigned' AND accepted_at <= $1 AND overdue_notified_at IS NULL ORDER BY accepted_at ASC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &orders, query, acceptedBefore); err != nil {
		return nil, err
	}
	return orders, nil
}

// MarkOverdueNotified claims the single overdue notification for an order.
// The IS NULL guard makes the claim exactly-once even with overlapping
// sweeps.
func (r *orderRepository) MarkOverdueNotified(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, now time.Time) (bool, error) {
	const query = `UPDATE orders SET overdue_notified_at = $2 WHERE id = $1 AND overdue_notified_at IS NULL`
	res, err := ext.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
