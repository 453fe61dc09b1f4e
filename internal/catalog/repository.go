package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Tx is the narrow slice of pgx.Tx the checkout path needs: staged conditional
// writes plus the commit/abort decision. pgx.Tx satisfies it directly.
type Tx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository is the CRUD surface consumed by the HTTP handlers.
type Repository interface {
	Create(ctx context.Context, p Product) (Product, error)
	GetByName(ctx context.Context, name string) (Product, error)
	List(ctx context.Context) ([]Product, error)
	Update(ctx context.Context, p Product) (Product, error)
	Delete(ctx context.Context, id string) error
}

// CheckoutStore is the transactional surface consumed by the Coordinator:
// snapshot reads, begin, and the conditional decrement applied within a
// transaction.
type CheckoutStore interface {
	GetByName(ctx context.Context, name string) (Product, error)
	Begin(ctx context.Context) (Tx, error)
	DecrementStock(ctx context.Context, tx Tx, name string, observed, next int) (Product, error)
}

const productColumns = `id, name, description, price_cents, amount`

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, p Product) (Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, description, price_cents, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.PriceCents, p.Amount)

	created, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Product{}, invalidInput("product %q already exists", p.Name)
		}
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE name=$1`, name)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, p Product) (Product, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE products
		SET name=$2, description=$3, price_cents=$4, amount=$5, updated_at=now()
		WHERE id=$1
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.PriceCents, p.Amount)

	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return Product{}, invalidInput("product %q already exists", p.Name)
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return updated, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Begin opens the checkout transaction at repeatable read. The snapshot only
// covers the staged writes; conflict handling lives in the per-row guard of
// DecrementStock.
func (r *PostgresRepository) Begin(ctx context.Context) (Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
}

// DecrementStock applies one staged decrement conditioned on the amount still
// being the value observed at read time. Returns ErrStaleStock when the guard
// no longer holds: either zero rows matched, or the row was changed by a
// transaction that committed after our snapshot, which repeatable read
// surfaces as a serialization failure instead of a guard miss.
func (r *PostgresRepository) DecrementStock(ctx context.Context, tx Tx, name string, observed, next int) (Product, error) {
	row := tx.QueryRow(ctx, `
		UPDATE products
		SET amount=$3, updated_at=now()
		WHERE name=$1 AND amount=$2
		RETURNING `+productColumns,
		name, observed, next)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isSerializationFailure(err) {
			return Product{}, ErrStaleStock
		}
		return Product{}, fmt.Errorf("decrement stock: %w", err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Amount); err != nil {
		return Product{}, err
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// 40001 is serialization_failure, 40P01 is deadlock_detected. Both mean a
// concurrent checkout touched the same rows and this transaction must abort.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
