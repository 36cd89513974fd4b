package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"courier-dispatch/internal/order"
)

// Store is the slice of persistence the sweeper needs. Kept narrow so tests
// can drive sweeps against an in-memory fake.
type Store interface {
	WaitingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*order.Order, error)
	WaitingUnlockedBetween(ctx context.Context, from, to time.Time) ([]*order.Order, error)
	OverdueUnnotified(ctx context.Context, acceptedBefore time.Time) ([]*order.Order, error)

	AutoDelete(ctx context.Context, id uuid.UUID, now time.Time) (*order.Order, error)
	ClaimOverdue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type pgStore struct {
	db   *sqlx.DB
	repo order.Repository
}

func NewStore(db *sqlx.DB, repo order.Repository) Store {
	return &pgStore{db: db, repo: repo}
}

func (s *pgStore) WaitingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*order.Order, error) {
	return s.repo.ListWaitingCreatedBefore(ctx, s.db, cutoff)
}

func (s *pgStore) WaitingUnlockedBetween(ctx context.Context, from, to time.Time) ([]*order.Order, error) {
	return s.repo.ListWaitingUnlockedSince(ctx, s.db, from, to)
}

func (s *pgStore) OverdueUnnotified(ctx context.Context, acceptedBefore time.Time) ([]*order.Order, error) {
	return s.repo.ListOverdueUnnotified(ctx, s.db, acceptedBefore)
}

// AutoDelete is a plain CAS from waiting. An order accepted between the list
// and this call loses nothing: the transition misses and comes back Conflict.
func (s *pgStore) AutoDelete(ctx context.Context, id uuid.UUID, now time.Time) (*order.Order, error) {
	return s.repo.Transition(ctx, s.db, id, order.StatusWaiting, order.StatusAutoDeleted, order.TransitionFields{}, now)
}

func (s *pgStore) ClaimOverdue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return s.repo.MarkOverdueNotified(ctx, s.db, id, now)
}
