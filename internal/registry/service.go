package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/andreasstove999/agroflow-system/internal/contracts"
	"github.com/andreasstove999/agroflow-system/internal/harvest"
)

// EventPublisher delivers harvest-created events to the broker.
type EventPublisher interface {
	PublishHarvestCreated(ctx context.Context, ev contracts.HarvestCreated) error
}

type Service struct {
	repo      Repository
	publisher EventPublisher
	logger    *zap.Logger
}

func NewService(repo Repository, publisher EventPublisher, logger *zap.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

type RegisterHarvestInput struct {
	FarmerUUID string
	Product    string
	Tonnes     decimal.Decimal
	Location   string
}

type StatusUpdate struct {
	Status      string
	InvoiceID   *int64
	InvoiceUUID *string
}

type StatusResult struct {
	Harvest Harvest
	Found   bool
	Changed bool
}

func (s *Service) RegisterFarmer(ctx context.Context, name string) (Farmer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Farmer{}, invalid("nombre", "is required")
	}
	return s.repo.CreateFarmer(ctx, name)
}

func (s *Service) ListFarmers(ctx context.Context) ([]Farmer, error) {
	return s.repo.ListFarmers(ctx)
}

// RegisterHarvest validates the request, stores the harvest with its outbox
// entry and publishes the event once. A failed publish leaves the harvest
// registered; the outbox relay retries it later.
func (s *Service) RegisterHarvest(ctx context.Context, in RegisterHarvestInput) (Harvest, error) {
	farmerUUID, product, err := validateHarvest(in)
	if err != nil {
		return Harvest{}, err
	}

	farmer, err := s.repo.GetFarmerByUUID(ctx, farmerUUID)
	if err != nil {
		return Harvest{}, err
	}

	h, entry, err := s.repo.CreateHarvest(ctx, NewHarvest{
		Farmer:   farmer,
		Product:  product,
		Tonnes:   in.Tonnes,
		Location: strings.TrimSpace(in.Location),
	})
	if err != nil {
		return Harvest{}, err
	}

	log := s.logger.With(zap.Int64("harvest_id", h.ID), zap.String("harvest_uuid", h.UUID), zap.Int64("outbox_id", entry.ID))
	if err := s.publisher.PublishHarvestCreated(ctx, HarvestCreatedEvent(h)); err != nil {
		log.Error("publish harvest created, left for outbox relay", zap.Error(err))
		if rerr := s.repo.RecordOutboxFailure(ctx, entry.ID, err.Error()); rerr != nil {
			log.Warn("record outbox failure", zap.Error(rerr))
		}
		return h, nil
	}
	if err := s.repo.MarkOutboxPublished(ctx, entry.ID); err != nil {
		// The relay will publish a duplicate; consumers are idempotent.
		log.Warn("mark outbox published", zap.Error(err))
	}
	log.Info("harvest registered", zap.String("producto", string(h.Product)), zap.String("toneladas", h.Tonnes.String()))
	return h, nil
}

func validateHarvest(in RegisterHarvestInput) (string, harvest.Product, error) {
	if strings.TrimSpace(in.FarmerUUID) == "" {
		return "", "", invalid("agricultor_id", "is required")
	}
	if in.Product == "" {
		return "", "", invalid("producto", "is required")
	}
	if !in.Tonnes.IsPositive() {
		return "", "", invalid("toneladas", "must be greater than 0")
	}
	if strings.TrimSpace(in.Location) == "" {
		return "", "", invalid("ubicacion", "is required")
	}
	product, err := harvest.ParseProduct(in.Product)
	if err != nil {
		return "", "", &ValidationError{Field: "producto", Message: err.Error()}
	}
	farmerUUID, err := uuid.Parse(strings.TrimSpace(in.FarmerUUID))
	if err != nil {
		return "", "", invalid("agricultor_id", "must be a UUID")
	}
	return farmerUUID.String(), product, nil
}

func (s *Service) GetHarvest(ctx context.Context, rawRef string) (Harvest, error) {
	ref, err := ParseHarvestRef(rawRef)
	if err != nil {
		return Harvest{}, err
	}
	return s.repo.GetHarvest(ctx, ref)
}

// UpdateStatus reconciles a harvest with the billing outcome. An unknown
// harvest is not an error: nothing is mutated and Found is false.
func (s *Service) UpdateStatus(ctx context.Context, rawRef string, upd StatusUpdate) (StatusResult, error) {
	ref, err := ParseHarvestRef(rawRef)
	if err != nil {
		return StatusResult{}, err
	}
	next, err := harvest.ParseStatus(upd.Status)
	if err != nil {
		return StatusResult{}, &ValidationError{Field: "estado", Message: err.Error()}
	}
	invoice, err := invoiceRef(upd)
	if err != nil {
		return StatusResult{}, err
	}

	h, changed, err := s.repo.TransitionStatus(ctx, ref, next, invoice)
	switch {
	case errors.Is(err, ErrHarvestNotFound):
		s.logger.Warn("status update for unknown harvest", zap.String("harvest", ref.String()), zap.String("estado", string(next)))
		return StatusResult{}, nil
	case err != nil:
		return StatusResult{}, err
	}

	if changed && h.InvoiceID != nil {
		s.logger.Info(fmt.Sprintf("Cosecha registrada: %st %s. Factura #%d pendiente de pago",
			h.Tonnes.String(), h.Product.DisplayName(), *h.InvoiceID),
			zap.Int64("harvest_id", h.ID),
			zap.String("producto", string(h.Product)),
			zap.String("toneladas", h.Tonnes.String()),
			zap.Int64("factura_id", *h.InvoiceID),
		)
	}
	return StatusResult{Harvest: h, Found: true, Changed: changed}, nil
}

func invoiceRef(upd StatusUpdate) (*harvest.InvoiceRef, error) {
	if upd.InvoiceID == nil {
		if upd.InvoiceUUID != nil && *upd.InvoiceUUID != "" {
			return nil, invalid("factura_id", "is required when factura_uuid is set")
		}
		return nil, nil
	}
	if *upd.InvoiceID <= 0 {
		return nil, invalid("factura_id", "must be positive")
	}
	ref := &harvest.InvoiceRef{ID: *upd.InvoiceID}
	if upd.InvoiceUUID != nil && *upd.InvoiceUUID != "" {
		u, err := uuid.Parse(*upd.InvoiceUUID)
		if err != nil {
			return nil, invalid("factura_uuid", "must be a UUID")
		}
		ref.UUID = u.String()
	}
	return ref, nil
}
