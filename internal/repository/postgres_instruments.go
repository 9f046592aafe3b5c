package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const instrumentSchema = `
CREATE TABLE IF NOT EXISTS instruments (
	id          BIGSERIAL PRIMARY KEY,
	symbol      VARCHAR(20)  NOT NULL UNIQUE,
	name        VARCHAR(100) NOT NULL,
	asset_type  VARCHAR(16)  NOT NULL,
	description TEXT,
	created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ
)`

const instrumentColumns = "id, symbol, name, asset_type, description, created_at, updated_at"

// PGInstrumentRepo implements InstrumentRepository on Postgres via pgx.
type PGInstrumentRepo struct {
	pool *pgxpool.Pool
}

func NewPGInstrumentRepo(pool *pgxpool.Pool) *PGInstrumentRepo {
	return &PGInstrumentRepo{pool: pool}
}

var _ domrepo.InstrumentRepository = (*PGInstrumentRepo)(nil)

func (r *PGInstrumentRepo) Init(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, instrumentSchema); err != nil {
		return fmt.Errorf("init instruments schema: %w", err)
	}
	return nil
}

func (r *PGInstrumentRepo) Create(ctx context.Context, inst *models.Instrument) error {
	const q = `
		INSERT INTO instruments (symbol, name, asset_type, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, inst.Symbol, inst.Name, string(inst.AssetType), inst.Description).
		Scan(&inst.ID, &inst.CreatedAt)
	if err != nil {
		return mapPGError(err, "create instrument")
	}
	inst.UpdatedAt = nil
	return nil
}

func (r *PGInstrumentRepo) Get(ctx context.Context, id int64) (*models.Instrument, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+instrumentColumns+" FROM instruments WHERE id = $1", id)
	inst, err := scanInstrument(row)
	if err != nil {
		return nil, mapPGError(err, fmt.Sprintf("get instrument %d", id))
	}
	return inst, nil
}

func (r *PGInstrumentRepo) GetBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+instrumentColumns+" FROM instruments WHERE symbol = $1", symbol)
	inst, err := scanInstrument(row)
	if err != nil {
		return nil, mapPGError(err, fmt.Sprintf("get instrument %q", symbol))
	}
	return inst, nil
}

func (r *PGInstrumentRepo) List(ctx context.Context, offset, limit int) ([]models.Instrument, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+instrumentColumns+" FROM instruments ORDER BY id LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	out := make([]models.Instrument, 0, limit)
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func (r *PGInstrumentRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM instruments").Scan(&n); err != nil {
		return 0, fmt.Errorf("count instruments: %w", err)
	}
	return n, nil
}

func (r *PGInstrumentRepo) Update(ctx context.Context, inst *models.Instrument) error {
	const q = `
		UPDATE instruments
		SET symbol = $2, name = $3, asset_type = $4, description = $5, updated_at = $6
		WHERE id = $1`
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, q, inst.ID, inst.Symbol, inst.Name, string(inst.AssetType), inst.Description, now)
	if err != nil {
		return mapPGError(err, fmt.Sprintf("update instrument %d", inst.ID))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update instrument %d: %w", inst.ID, domrepo.ErrNotFound)
	}
	inst.UpdatedAt = &now
	return nil
}

func (r *PGInstrumentRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM instruments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete instrument %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete instrument %d: %w", id, domrepo.ErrNotFound)
	}
	return nil
}

func (r *PGInstrumentRepo) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PGInstrumentRepo) Close() error {
	r.pool.Close()
	return nil
}

func scanInstrument(row pgx.Row) (*models.Instrument, error) {
	var (
		inst      models.Instrument
		assetType string
	)
	if err := row.Scan(&inst.ID, &inst.Symbol, &inst.Name, &assetType,
		&inst.Description, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	inst.AssetType = models.AssetType(assetType)
	return &inst, nil
}

func mapPGError(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domrepo.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: symbol already exists: %w", op, domrepo.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
