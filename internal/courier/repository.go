package courier

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	domainerrors "courier-dispatch/internal/errors"
)

type Repository interface {
	Upsert(ctx context.Context, ext sqlx.ExtContext, c *Courier) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Courier, error)

	// GetForUpdate takes the courier's row lock, serializing concurrent
	// accept batches from the same courier for the capacity check.
	GetForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*Courier, error)

	SetBlocked(ctx context.Context, ext sqlx.ExtContext, id string, blocked bool) error
	SetPackageLimit(ctx context.Context, ext sqlx.ExtContext, id string, limit int) error
}

type courierRepository struct{}

func NewRepository() Repository {
	return &courierRepository{}
}

const columns = `id, package_limit, blocked, created_at, updated_at`

func (r *courierRepository) Upsert(ctx context.Context, ext sqlx.ExtContext, c *Courier) error {
	const query = `INSERT INTO couriers (id, package_limit, blocked, created_at, updated_at)
		VALUES (:id, :package_limit, :blocked, :created_at, :updated_at)
		ON CONFLICT (id) DO NOTHING`
	_, err := sqlx.NamedExecContext(ctx, ext, query, c)
	return err
}

func (r *courierRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Courier, error) {
	var c Courier
	err := sqlx.GetContext(ctx, ext, &c, `SELECT `+columns+` FROM couriers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.CourierNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *courierRepository) GetForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*Courier, error) {
	var c Courier
	err := sqlx.GetContext(ctx, ext, &c, `SELECT `+columns+` FROM couriers WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.CourierNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *courierRepository) SetBlocked(ctx context.Context, ext sqlx.ExtContext, id string, blocked bool) error {
	res, err := ext.ExecContext(ctx, `UPDATE couriers SET blocked = $2, updated_at = now() WHERE id = $1`, id, blocked)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *courierRepository) SetPackageLimit(ctx context.Context, ext sqlx.ExtContext, id string, limit int) error {
	res, err := ext.ExecContext(ctx, `UPDATE couriers SET package_limit = $2, updated_at = now() WHERE id = $1`, id, limit)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domainerrors.CourierNotFound(id)
	}
	return nil
}
