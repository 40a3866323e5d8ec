package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/andreasstove999/agroflow-system/internal/contracts"
	"github.com/andreasstove999/agroflow-system/internal/harvest"
	"github.com/andreasstove999/agroflow-system/internal/inventory"
)

type StockConsumer interface {
	ApplyConsumption(ctx context.Context, harvestUUID string, usages []harvest.Usage) ([]inventory.ItemResult, error)
}

// HarvestCreatedInventoryHandler decrements the stock consumed by a harvest.
// A product without a consumption row is acknowledged without any change.
func HarvestCreatedInventoryHandler(store StockConsumer, logger *zap.Logger) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		ev, err := contracts.DecodeHarvestCreated(body)
		if err != nil {
			return Permanent(fmt.Errorf("decode HarvestCreated: %w", err))
		}
		log := logger.With(zap.Int64("harvest_id", ev.HarvestID), zap.String("harvest_uuid", ev.HarvestUUID))

		product, err := harvest.ParseProduct(ev.Producto)
		if err != nil {
			log.Warn("no consumption for product, nothing to adjust", zap.String("producto", ev.Producto))
			return nil
		}
		usages, err := harvest.Consumption(product, ev.Toneladas)
		if err != nil {
			log.Warn("no consumption for product, nothing to adjust", zap.String("producto", ev.Producto), zap.Error(err))
			return nil
		}

		results, err := store.ApplyConsumption(ctx, ev.HarvestUUID, usages)
		if err != nil {
			return fmt.Errorf("apply consumption: %w", err)
		}

		for _, r := range results {
			fields := []zap.Field{zap.String("item", r.Item), zap.String("amount", r.Amount.String())}
			switch r.Outcome {
			case inventory.OutcomeApplied:
				log.Info("stock decremented", append(fields, zap.String("remaining", r.Remaining.String()))...)
			case inventory.OutcomeAlreadyApplied:
				log.Info("stock delta already applied", fields...)
			case inventory.OutcomeMissingItem:
				log.Warn("stock item not found", fields...)
			}
		}
		return nil
	}
}
