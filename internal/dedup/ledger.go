package dedup

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Executor represents the subset of pgx methods required for ledger operations.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Ledger records which stock deltas of a harvest have already been applied.
// A row per (harvest, item) is the idempotence key for redelivered events.
type Ledger struct {
	executor Executor
}

// NewLedger binds the ledger to exec, normally the transaction that applies
// the stock deltas.
func NewLedger(exec Executor) *Ledger {
	return &Ledger{executor: exec}
}

// MarkApplied claims the (harvest, item) pair. It returns false when the pair
// was already recorded, in which case the delta must not be applied again.
func (l *Ledger) MarkApplied(ctx context.Context, harvestUUID, item string, amount decimal.Decimal) (bool, error) {
	tag, err := l.executor.Exec(ctx, `
		INSERT INTO inventory.stock_consumptions (harvest_uuid, item_name, amount)
		VALUES ($1::uuid, $2, $3::numeric)
		ON CONFLICT (harvest_uuid, item_name) DO NOTHING
	`, harvestUUID, item, amount.String())
	if err != nil {
		return false, fmt.Errorf("insert consumption %s/%s: %w", harvestUUID, item, err)
	}
	return tag.RowsAffected() == 1, nil
}
