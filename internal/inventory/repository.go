package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/agroflow-system/internal/dedup"
	"github.com/andreasstove999/agroflow-system/internal/harvest"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository interface {
	List(ctx context.Context) ([]StockItem, error)
	SetQuantity(ctx context.Context, name string, quantity decimal.Decimal) (StockItem, error)
	ApplyConsumption(ctx context.Context, harvestUUID string, usages []harvest.Usage) ([]ItemResult, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) List(ctx context.Context) ([]StockItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, quantity::text, updated_at
		FROM inventory.stock_items
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("select stock items: %w", err)
	}
	defer rows.Close()

	items := []StockItem{}
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return items, nil
}

// SetQuantity stores an absolute quantity, creating the item when needed.
func (r *PostgresRepository) SetQuantity(ctx context.Context, name string, quantity decimal.Decimal) (StockItem, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO inventory.stock_items (name, quantity)
		VALUES ($1, $2::numeric)
		ON CONFLICT (name) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
		RETURNING id, name, quantity::text, updated_at
	`, name, quantity.String())
	item, err := scanStockItem(row)
	if err != nil {
		return StockItem{}, fmt.Errorf("set quantity of %q: %w", name, err)
	}
	return item, nil
}

// ApplyConsumption decrements stock for every usage of one harvest in a single
// transaction. Deltas already recorded in the ledger are skipped, so applying
// the same harvest twice never decrements an item twice. Items absent from the
// inventory are reported as missing and do not fail the event.
func (r *PostgresRepository) ApplyConsumption(ctx context.Context, harvestUUID string, usages []harvest.Usage) ([]ItemResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ledger := dedup.NewLedger(tx)
	results := make([]ItemResult, 0, len(usages))
	for _, u := range usages {
		res := ItemResult{Item: u.Item, Amount: u.Amount}

		fresh, err := ledger.MarkApplied(ctx, harvestUUID, u.Item, u.Amount)
		if err != nil {
			return nil, err
		}
		if !fresh {
			res.Outcome = OutcomeAlreadyApplied
			results = append(results, res)
			continue
		}

		var remaining string
		err = tx.QueryRow(ctx, `
			UPDATE inventory.stock_items
			SET quantity = quantity - $1::numeric, updated_at = now()
			WHERE name = $2
			RETURNING quantity::text
		`, u.Amount.String(), u.Item).Scan(&remaining)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			res.Outcome = OutcomeMissingItem
		case err != nil:
			return nil, fmt.Errorf("decrement %q: %w", u.Item, err)
		default:
			res.Outcome = OutcomeApplied
			if res.Remaining, err = decimal.NewFromString(remaining); err != nil {
				return nil, fmt.Errorf("parse quantity %q: %w", remaining, err)
			}
		}
		results = append(results, res)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit consumption: %w", err)
	}
	return results, nil
}

func scanStockItem(row pgx.Row) (StockItem, error) {
	var (
		item     StockItem
		quantity string
	)
	if err := row.Scan(&item.ID, &item.Name, &quantity, &item.UpdatedAt); err != nil {
		return StockItem{}, fmt.Errorf("scan stock item: %w", err)
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return StockItem{}, fmt.Errorf("parse quantity %q: %w", quantity, err)
	}
	item.Quantity = q
	return item, nil
}
