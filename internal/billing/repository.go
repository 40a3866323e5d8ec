package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository interface {
	// UpsertForHarvest creates the invoice of a harvest, or returns the one
	// already stored for it. created reports whether a row was inserted.
	UpsertForHarvest(ctx context.Context, in NewInvoice) (inv Invoice, created bool, err error)
	List(ctx context.Context) ([]Invoice, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const upsertInvoiceSQL = `
	INSERT INTO billing.invoices (uuid_id, harvest_id, harvest_uuid, monto, pagada)
	VALUES ($1::uuid, $2, $3::uuid, $4::numeric, false)
	ON CONFLICT (harvest_id) DO UPDATE SET harvest_id = EXCLUDED.harvest_id
	RETURNING id, uuid_id::text, harvest_id, harvest_uuid::text, monto::text, pagada, created_at, (xmax = 0) AS inserted
`

func (r *PostgresRepository) UpsertForHarvest(ctx context.Context, in NewInvoice) (Invoice, bool, error) {
	var (
		inv      Invoice
		amount   string
		inserted bool
	)
	err := r.pool.QueryRow(ctx, upsertInvoiceSQL,
		uuid.NewString(), in.HarvestID, in.HarvestUUID, in.Amount.String(),
	).Scan(&inv.ID, &inv.UUID, &inv.HarvestID, &inv.HarvestUUID, &amount, &inv.Paid, &inv.CreatedAt, &inserted)
	if err != nil {
		return Invoice{}, false, fmt.Errorf("upsert invoice for harvest %d: %w", in.HarvestID, err)
	}
	if inv.Amount, err = decimal.NewFromString(amount); err != nil {
		return Invoice{}, false, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return inv, inserted, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uuid_id::text, harvest_id, harvest_uuid::text, monto::text, pagada, created_at
		FROM billing.invoices
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	defer rows.Close()

	invoices := []Invoice{}
	for rows.Next() {
		var (
			inv    Invoice
			amount string
		)
		if err := rows.Scan(&inv.ID, &inv.UUID, &inv.HarvestID, &inv.HarvestUUID, &amount, &inv.Paid, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		if inv.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return invoices, nil
}
