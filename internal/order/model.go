package order

import (
	"time"

	"github.com/google/uuid"
)

type Status string

// Status values are the wire contract; clients switch on the raw strings.
const (
	StatusWaiting         Status = "waiting"
	StatusAssigned        Status = "assigned"
	StatusDelivered       Status = "delivered"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusCancelled       Status = "cancelled"
	StatusAutoDeleted     Status = "auto_deleted"
)

// Active reports whether the order counts against its courier's package
// limit.
func (s Status) Active() bool {
	return s == StatusAssigned || s == StatusDelivered || s == StatusPendingApproval
}

// Trackable reports whether location samples for the order are accepted.
func (s Status) Trackable() bool {
	return s == StatusAssigned || s == StatusDelivered
}

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusCancelled || s == StatusAutoDeleted
}

type Order struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	RestaurantID           string     `db:"restaurant_id" json:"restaurant_id"`
	CourierID              *string    `db:"courier_id" json:"courier_id,omitempty"`
	Status                 Status     `db:"status" json:"status"`
	PickupLat              float64    `db:"pickup_lat" json:"pickup_lat"`
	PickupLng              float64    `db:"pickup_lng" json:"pickup_lng"`
	DropoffLat             float64    `db:"dropoff_lat" json:"dropoff_lat"`
	DropoffLng             float64    `db:"dropoff_lng" json:"dropoff_lng"`
	CourierFee             float64    `db:"courier_fee" json:"courier_fee"`
	PaymentMethod          string     `db:"payment_method" json:"payment_method"`
	PreparationTimeMinutes int        `db:"preparation_time_minutes" json:"preparation_time_minutes"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	AcceptedAt             *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	DeliveredAt            *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ApprovedAt             *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	OverdueNotifiedAt      *time.Time `db:"overdue_notified_at" json:"-"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

type CreateSpec struct {
	RestaurantID           string
	PickupLat              float64
	PickupLng              float64
	DropoffLat             float64
	DropoffLng             float64
	CourierFee             float64
	PaymentMethod          string
	PreparationTimeMinutes int
}

func New(spec CreateSpec, now time.Time) *Order {
	return &Order{
		ID:                     uuid.New(),
		RestaurantID:           spec.RestaurantID,
		Status:                 StatusWaiting,
		PickupLat:              spec.PickupLat,
		PickupLng:              spec.PickupLng,
		DropoffLat:             spec.DropoffLat,
		DropoffLng:             spec.DropoffLng,
		CourierFee:             spec.CourierFee,
		PaymentMethod:          spec.PaymentMethod,
		PreparationTimeMinutes: spec.PreparationTimeMinutes,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// AcceptableAt is the instant the acceptance lockout ends. The window gives
// the dispatch broadcast time to reach every eligible courier before any one
// of them can win.
func (o *Order) AcceptableAt(lockout time.Duration) time.Time {
	return o.CreatedAt.Add(lockout)
}

// OverdueAt is the delivery deadline measured from acceptance.
func (o *Order) OverdueAt(sla time.Duration) (time.Time, bool) {
	if o.AcceptedAt == nil {
		return time.Time{}, false
	}
	return o.AcceptedAt.Add(sla), true
}
