package events

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/andreasstove999/agroflow-system/internal/billing"
	"github.com/andreasstove999/agroflow-system/internal/clients"
	"github.com/andreasstove999/agroflow-system/internal/contracts"
	"github.com/andreasstove999/agroflow-system/internal/harvest"
)

type InvoiceStore interface {
	UpsertForHarvest(ctx context.Context, in billing.NewInvoice) (billing.Invoice, bool, error)
}

// StatusNotifier tells the registry that a harvest has been invoiced.
type StatusNotifier interface {
	MarkInvoiced(ctx context.Context, harvestID int64, invoice harvest.InvoiceRef) error
}

// Billing stages, logged as the message moves through the handler.
const (
	stageReceived     = "RECEIVED"
	stagePriced       = "PRICED"
	stagePersisted    = "PERSISTED"
	stageCallbackSent = "CALLBACK_SENT"
)

// HarvestCreatedBillingHandler prices the harvest, stores its invoice (at most
// one per harvest, however often the event is delivered) and reports the
// invoice back to the registry.
func HarvestCreatedBillingHandler(store InvoiceStore, notifier StatusNotifier, logger *zap.Logger) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		ev, err := contracts.DecodeHarvestCreated(body)
		if err != nil {
			return Permanent(fmt.Errorf("decode HarvestCreated: %w", err))
		}
		log := logger.With(zap.Int64("harvest_id", ev.HarvestID), zap.String("harvest_uuid", ev.HarvestUUID))
		log.Debug("harvest received", zap.String("stage", stageReceived))

		product, err := harvest.ParseProduct(ev.Producto)
		if err != nil {
			return Permanent(fmt.Errorf("price harvest %d: %w", ev.HarvestID, err))
		}
		amount, err := harvest.Amount(product, ev.Toneladas)
		if err != nil {
			return Permanent(fmt.Errorf("price harvest %d: %w", ev.HarvestID, err))
		}
		log.Debug("harvest priced", zap.String("stage", stagePriced), zap.String("monto", amount.String()))

		inv, created, err := store.UpsertForHarvest(ctx, billing.NewInvoice{
			HarvestID:   ev.HarvestID,
			HarvestUUID: ev.HarvestUUID,
			Amount:      amount,
		})
		if err != nil {
			return fmt.Errorf("store invoice: %w", err)
		}
		log = log.With(zap.Int64("factura_id", inv.ID))
		if created {
			log.Info(fmt.Sprintf("Cosecha registrada: %st %s. Factura #%d pendiente de pago",
				ev.Toneladas.String(), product.DisplayName(), inv.ID),
				zap.String("stage", stagePersisted), zap.String("monto", inv.Amount.String()))
		} else {
			log.Info("invoice already exists for harvest", zap.String("stage", stagePersisted))
		}

		if err := notifier.MarkInvoiced(ctx, ev.HarvestID, inv.Ref()); err != nil {
			err = fmt.Errorf("status callback for harvest %d: %w", ev.HarvestID, err)
			if errors.Is(err, clients.ErrRejected) {
				return Permanent(err)
			}
			return err
		}
		log.Info("registry notified", zap.String("stage", stageCallbackSent))
		return nil
	}
}
