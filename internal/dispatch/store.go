package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"courier-dispatch/internal/courier"
	domainerrors "courier-dispatch/internal/errors"
	"courier-dispatch/internal/order"
)

// Store runs the whole accept-batch inside one transaction. The courier row
// lock serializes batches from the same courier so the package-limit check
// counts against a frozen view; couriers never contend on each other's row.
type Store interface {
	AcceptBatch(ctx context.Context, courierID string, orderIDs []uuid.UUID, now, openBefore time.Time) (*BatchOutcome, error)
}

type store struct {
	db       *sqlx.DB
	orders   order.Repository
	couriers courier.Repository
}

func NewStore(db *sqlx.DB, orders order.Repository, couriers courier.Repository) Store {
	return &store{db: db, orders: orders, couriers: couriers}
}

func (s *store) AcceptBatch(ctx context.Context, courierID string, orderIDs []uuid.UUID, now, openBefore time.Time) (*BatchOutcome, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accept tx: %w", err)
	}
	defer tx.Rollback()

	cr, err := s.couriers.GetForUpdate(ctx, tx, courierID)
	if err != nil {
		return nil, err
	}
	if cr.Blocked {
		return nil, domainerrors.CourierBlocked(courierID)
	}

	held, err := s.orders.CountActive(ctx, tx, courierID)
	if err != nil {
		return nil, err
	}
	if held+len(orderIDs) > cr.PackageLimit {
		return nil, domainerrors.PackageLimitExceeded(cr.PackageLimit, held, len(orderIDs))
	}

	// Fixed lock order across overlapping batches from different couriers.
	sorted := make([]uuid.UUID, len(orderIDs))
	copy(sorted, orderIDs)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	outcome := &BatchOutcome{}
	for _, id := range sorted {
		o, err := s.orders.Accept(ctx, tx, id, courierID, now, openBefore)
		if err != nil {
			reason, ok := failureReason(err)
			if !ok {
				return nil, err // transport failure, abort the batch
			}
			outcome.Failed = append(outcome.Failed, Failure{OrderID: id.String(), Reason: reason})
			continue
		}
		outcome.Accepted = append(outcome.Accepted, o)
	}

	// Losing some orders never rolls back the ones this courier won.
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit accept tx: %w", err)
	}
	return outcome, nil
}

// failureReason maps a per-order domain error onto a wire reason. Anything
// else is a real failure and aborts the transaction.
func failureReason(err error) (string, bool) {
	var de *domainerrors.DomainError
	if !errors.As(err, &de) {
		return "", false
	}
	switch de.Code {
	case domainerrors.ErrNotFound:
		return ReasonNotFound, true
	case domainerrors.ErrConflict:
		return ReasonAlreadyTaken, true
	case domainerrors.ErrAcceptanceLocked:
		return ReasonAcceptanceLocked, true
	default:
		return "", false
	}
}
