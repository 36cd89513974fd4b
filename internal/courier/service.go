package courier

import (
	"context"

	"github.com/jmoiron/sqlx"

	"courier-dispatch/internal/clock"
	domainerrors "courier-dispatch/internal/errors"
)

// Sessions is the redis-backed liveness flag; satisfied by
// redis.SessionStore.
type Sessions interface {
	Heartbeat(ctx context.Context, courierID string) error
	SetOffline(ctx context.Context, courierID string) error
	IsOnline(ctx context.Context, courierID string) (bool, error)
}

type Service interface {
	EnsureExists(ctx context.Context, courierID string) (*Courier, error)
	GetByID(ctx context.Context, id string) (*Courier, error)

	Heartbeat(ctx context.Context, courierID string) error
	SetOnline(ctx context.Context, courierID string) error
	SetOffline(ctx context.Context, courierID string) error
	IsOnline(ctx context.Context, courierID string) (bool, error)

	SetBlocked(ctx context.Context, courierID string, blocked bool) error
	SetPackageLimit(ctx context.Context, courierID string, limit int) error
}

type service struct {
	repo         Repository
	db           *sqlx.DB
	sessions     Sessions
	clk          clock.Clock
	defaultLimit int
}

func NewService(repo Repository, db *sqlx.DB, sessions Sessions, clk clock.Clock, defaultLimit int) Service {
	return &service{
		repo:         repo,
		db:           db,
		sessions:     sessions,
		clk:          clk,
		defaultLimit: defaultLimit,
	}
}

// EnsureExists registers a courier on first contact with the default package
// limit. Couriers are provisioned lazily; there is no signup flow here.
func (s *service) EnsureExists(ctx context.Context, courierID string) (*Courier, error) {
	c, err := s.repo.GetByID(ctx, s.db, courierID)
	if err == nil {
		return c, nil
	}

	c = New(courierID, s.defaultLimit, s.clk.Now())
	if err := s.repo.Upsert(ctx, s.db, c); err != nil {
		return nil, domainerrors.NewInternal("failed to register courier", err)
	}
	return s.repo.GetByID(ctx, s.db, courierID)
}

func (s *service) GetByID(ctx context.Context, id string) (*Courier, error) {
	return s.repo.GetByID(ctx, s.db, id)
}

// Heartbeat keeps the courier's acceptance eligibility alive. Missing a
// beat for the TTL window flips them offline without any explicit signal.
func (s *service) Heartbeat(ctx context.Context, courierID string) error {
	if _, err := s.EnsureExists(ctx, courierID); err != nil {
		return err
	}
	if err := s.sessions.Heartbeat(ctx, courierID); err != nil {
		return domainerrors.NewUnavailable("session store unreachable", err)
	}
	return nil
}

func (s *service) SetOnline(ctx context.Context, courierID string) error {
	return s.Heartbeat(ctx, courierID)
}

func (s *service) SetOffline(ctx context.Context, courierID string) error {
	if err := s.sessions.SetOffline(ctx, courierID); err != nil {
		return domainerrors.NewUnavailable("session store unreachable", err)
	}
	return nil
}

func (s *service) IsOnline(ctx context.Context, courierID string) (bool, error) {
	online, err := s.sessions.IsOnline(ctx, courierID)
	if err != nil {
		return false, domainerrors.NewUnavailable("session store unreachable", err)
	}
	return online, nil
}

func (s *service) SetBlocked(ctx context.Context, courierID string, blocked bool) error {
	return s.repo.SetBlocked(ctx, s.db, courierID, blocked)
}

func (s *service) SetPackageLimit(ctx context.Context, courierID string, limit int) error {
	if limit < 1 {
		return domainerrors.NewValidation("package limit must be at least 1")
	}
	return s.repo.SetPackageLimit(ctx, s.db, courierID, limit)
}
