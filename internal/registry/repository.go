package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/agroflow-system/internal/contracts"
	"github.com/andreasstove999/agroflow-system/internal/harvest"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// OutboxStore is the part of the repository the outbox relay needs.
type OutboxStore interface {
	PendingOutbox(ctx context.Context, createdBefore time.Time, limit int) ([]OutboxEntry, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	RecordOutboxFailure(ctx context.Context, id int64, cause string) error
}

type Repository interface {
	OutboxStore

	CreateFarmer(ctx context.Context, name string) (Farmer, error)
	ListFarmers(ctx context.Context) ([]Farmer, error)
	GetFarmerByUUID(ctx context.Context, farmerUUID string) (Farmer, error)

	// CreateHarvest stores a REGISTRADA harvest and its outbox entry atomically.
	CreateHarvest(ctx context.Context, in NewHarvest) (Harvest, OutboxEntry, error)
	GetHarvest(ctx context.Context, ref HarvestRef) (Harvest, error)
	// TransitionStatus applies the status state machine under a row lock.
	// changed is false when the request was an idempotent no-op.
	TransitionStatus(ctx context.Context, ref HarvestRef, next harvest.Status, invoice *harvest.InvoiceRef) (h Harvest, changed bool, err error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateFarmer(ctx context.Context, name string) (Farmer, error) {
	var f Farmer
	err := r.pool.QueryRow(ctx, `
		INSERT INTO registry.farmers (uuid_id, nombre)
		VALUES ($1::uuid, $2)
		RETURNING id, uuid_id::text, nombre, created_at
	`, uuid.NewString(), name).Scan(&f.ID, &f.UUID, &f.Name, &f.CreatedAt)
	if err != nil {
		return Farmer{}, fmt.Errorf("insert farmer: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListFarmers(ctx context.Context) ([]Farmer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uuid_id::text, nombre, created_at
		FROM registry.farmers
		ORDER BY nombre
	`)
	if err != nil {
		return nil, fmt.Errorf("select farmers: %w", err)
	}
	defer rows.Close()

	farmers := []Farmer{}
	for rows.Next() {
		var f Farmer
		if err := rows.Scan(&f.ID, &f.UUID, &f.Name, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan farmer: %w", err)
		}
		farmers = append(farmers, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return farmers, nil
}

func (r *PostgresRepository) GetFarmerByUUID(ctx context.Context, farmerUUID string) (Farmer, error) {
	var f Farmer
	err := r.pool.QueryRow(ctx, `
		SELECT id, uuid_id::text, nombre, created_at
		FROM registry.farmers
		WHERE uuid_id = $1::uuid
	`, farmerUUID).Scan(&f.ID, &f.UUID, &f.Name, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Farmer{}, ErrFarmerNotFound
		}
		return Farmer{}, fmt.Errorf("select farmer: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) CreateHarvest(ctx context.Context, in NewHarvest) (Harvest, OutboxEntry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Harvest{}, OutboxEntry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	h := Harvest{
		UUID:       uuid.NewString(),
		FarmerID:   in.Farmer.ID,
		FarmerUUID: in.Farmer.UUID,
		Product:    in.Product,
		Tonnes:     in.Tonnes,
		Location:   in.Location,
		Status:     harvest.StatusRegistered,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO registry.harvests (uuid_id, farmer_id, farmer_uuid, producto, toneladas, ubicacion, estado)
		VALUES ($1::uuid, $2, $3::uuid, $4, $5::numeric, $6, $7)
		RETURNING id, registered_at, updated_at
	`, h.UUID, h.FarmerID, h.FarmerUUID, string(h.Product), h.Tonnes.String(), h.Location, string(h.Status)).
		Scan(&h.ID, &h.RegisteredAt, &h.UpdatedAt)
	if err != nil {
		return Harvest{}, OutboxEntry{}, fmt.Errorf("insert harvest: %w", err)
	}

	payload, err := contracts.EncodeHarvestCreated(HarvestCreatedEvent(h))
	if err != nil {
		return Harvest{}, OutboxEntry{}, err
	}
	entry := OutboxEntry{HarvestID: h.ID, EventType: contracts.EventTypeHarvestCreated, Payload: payload}
	err = tx.QueryRow(ctx, `
		INSERT INTO registry.outbox (harvest_id, event_type, payload)
		VALUES ($1, $2, $3::jsonb)
		RETURNING id, created_at
	`, entry.HarvestID, entry.EventType, string(payload)).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return Harvest{}, OutboxEntry{}, fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Harvest{}, OutboxEntry{}, fmt.Errorf("commit: %w", err)
	}
	return h, entry, nil
}

const harvestColumns = `id, uuid_id::text, farmer_id, farmer_uuid::text, producto, toneladas::text, ubicacion,
	estado, factura_id, factura_uuid::text, registered_at, updated_at`

func (r *PostgresRepository) GetHarvest(ctx context.Context, ref HarvestRef) (Harvest, error) {
	where, arg := refPredicate(ref)
	h, err := scanHarvest(r.pool.QueryRow(ctx, `SELECT `+harvestColumns+` FROM registry.harvests WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Harvest{}, ErrHarvestNotFound
		}
		return Harvest{}, fmt.Errorf("select harvest %s: %w", ref, err)
	}
	return h, nil
}

func (r *PostgresRepository) TransitionStatus(ctx context.Context, ref HarvestRef, next harvest.Status, invoice *harvest.InvoiceRef) (Harvest, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Harvest{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	where, arg := refPredicate(ref)
	h, err := scanHarvest(tx.QueryRow(ctx, `SELECT `+harvestColumns+` FROM registry.harvests WHERE `+where+` FOR UPDATE`, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Harvest{}, false, ErrHarvestNotFound
		}
		return Harvest{}, false, fmt.Errorf("lock harvest %s: %w", ref, err)
	}

	lc := h.Lifecycle()
	changed, err := lc.Apply(next, invoice)
	if err != nil {
		return h, false, err
	}
	if !changed {
		return h, false, nil
	}
	h.setLifecycle(lc)

	var invoiceUUID string
	if h.InvoiceUUID != nil {
		invoiceUUID = *h.InvoiceUUID
	}
	err = tx.QueryRow(ctx, `
		UPDATE registry.harvests
		SET estado = $1, factura_id = $2, factura_uuid = NULLIF($3, '')::uuid, updated_at = now()
		WHERE id = $4
		RETURNING updated_at
	`, string(h.Status), h.InvoiceID, invoiceUUID, h.ID).Scan(&h.UpdatedAt)
	if err != nil {
		return Harvest{}, false, fmt.Errorf("update harvest %d: %w", h.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Harvest{}, false, fmt.Errorf("commit: %w", err)
	}
	return h, true, nil
}

func (r *PostgresRepository) PendingOutbox(ctx context.Context, createdBefore time.Time, limit int) ([]OutboxEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, harvest_id, event_type, payload::text, attempts, created_at
		FROM registry.outbox
		WHERE published_at IS NULL AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			e       OutboxEntry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.HarvestID, &e.EventType, &payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE registry.outbox
		SET published_at = now(), attempts = attempts + 1, last_error = NULL
		WHERE id = $1 AND published_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("mark outbox %d published: %w", id, err)
	}
	return nil
}

func (r *PostgresRepository) RecordOutboxFailure(ctx context.Context, id int64, cause string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE registry.outbox
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, id, cause)
	if err != nil {
		return fmt.Errorf("record outbox %d failure: %w", id, err)
	}
	return nil
}

// HarvestCreatedEvent builds the wire event announcing h.
func HarvestCreatedEvent(h Harvest) contracts.HarvestCreated {
	return contracts.HarvestCreated{
		HarvestID:   h.ID,
		HarvestUUID: h.UUID,
		Producto:    string(h.Product),
		Toneladas:   h.Tonnes,
	}
}

func refPredicate(ref HarvestRef) (string, any) {
	if ref.UUID != "" {
		return "uuid_id = $1::uuid", ref.UUID
	}
	return "id = $1", ref.ID
}

func scanHarvest(row pgx.Row) (Harvest, error) {
	var (
		h       Harvest
		product string
		status  string
		tonnes  string
	)
	err := row.Scan(&h.ID, &h.UUID, &h.FarmerID, &h.FarmerUUID, &product, &tonnes, &h.Location,
		&status, &h.InvoiceID, &h.InvoiceUUID, &h.RegisteredAt, &h.UpdatedAt)
	if err != nil {
		return Harvest{}, err
	}
	h.Product = harvest.Product(product)
	h.Status = harvest.Status(status)
	if h.Tonnes, err = decimal.NewFromString(tonnes); err != nil {
		return Harvest{}, fmt.Errorf("parse toneladas %q: %w", tonnes, err)
	}
	return h, nil
}
