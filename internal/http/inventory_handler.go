package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/andreasstove999/agroflow-system/internal/inventory"
)

type StockRepository interface {
	List(ctx context.Context) ([]inventory.StockItem, error)
	SetQuantity(ctx context.Context, name string, quantity decimal.Decimal) (inventory.StockItem, error)
}

type InventoryHandler struct {
	repo   StockRepository
	logger *zap.Logger
}

func NewInventoryHandler(repo StockRepository, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{repo: repo, logger: logger}
}

func (h *InventoryHandler) ListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type adjustRequest struct {
	Nombre   string              `json:"nombre"`
	Cantidad decimal.NullDecimal `json:"cantidad"`
}

// AdjustStock sets an absolute quantity for an item, creating it if needed.
func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, categoryValidation, err.Error())
		return
	}
	name := strings.TrimSpace(req.Nombre)
	if name == "" {
		writeError(w, http.StatusBadRequest, categoryValidation, "nombre: is required")
		return
	}
	if !req.Cantidad.Valid || req.Cantidad.Decimal.IsNegative() {
		writeError(w, http.StatusBadRequest, categoryValidation, "cantidad: must be a number >= 0")
		return
	}

	item, err := h.repo.SetQuantity(r.Context(), name, req.Cantidad.Decimal)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.logger.Info("stock adjusted", zap.String("item", item.Name), zap.String("stock", item.Quantity.String()))
	writeJSON(w, http.StatusOK, item)
}
