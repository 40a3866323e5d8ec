package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/andreasstove999/agroflow-system/internal/registry"
)

type RegistryService interface {
	RegisterFarmer(ctx context.Context, name string) (registry.Farmer, error)
	ListFarmers(ctx context.Context) ([]registry.Farmer, error)
	RegisterHarvest(ctx context.Context, in registry.RegisterHarvestInput) (registry.Harvest, error)
	GetHarvest(ctx context.Context, rawRef string) (registry.Harvest, error)
	UpdateStatus(ctx context.Context, rawRef string, upd registry.StatusUpdate) (registry.StatusResult, error)
}

type RegistryHandler struct {
	svc    RegistryService
	logger *zap.Logger
}

func NewRegistryHandler(svc RegistryService, logger *zap.Logger) *RegistryHandler {
	return &RegistryHandler{svc: svc, logger: logger}
}

type registerFarmerRequest struct {
	Nombre string `json:"nombre"`
}

type registerFarmerResponse struct {
	Message    string          `json:"message"`
	Agricultor registry.Farmer `json:"agricultor"`
}

func (h *RegistryHandler) RegisterFarmer(w http.ResponseWriter, r *http.Request) {
	var req registerFarmerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, categoryValidation, err.Error())
		return
	}
	f, err := h.svc.RegisterFarmer(r.Context(), req.Nombre)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerFarmerResponse{Message: "Agricultor registrado correctamente", Agricultor: f})
}

func (h *RegistryHandler) ListFarmers(w http.ResponseWriter, r *http.Request) {
	farmers, err := h.svc.ListFarmers(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, farmers)
}

type registerHarvestRequest struct {
	AgricultorID string          `json:"agricultor_id"`
	Producto     string          `json:"producto"`
	Toneladas    decimal.Decimal `json:"toneladas"`
	Ubicacion    string          `json:"ubicacion"`
}

type registerHarvestResponse struct {
	Message     string `json:"message"`
	HarvestID   int64  `json:"harvestId"`
	HarvestUUID string `json:"harvestUuid"`
}

func (h *RegistryHandler) RegisterHarvest(w http.ResponseWriter, r *http.Request) {
	var req registerHarvestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, categoryValidation, err.Error())
		return
	}

	hv, err := h.svc.RegisterHarvest(r.Context(), registry.RegisterHarvestInput{
		FarmerUUID: req.AgricultorID,
		Product:    req.Producto,
		Tonnes:     req.Toneladas,
		Location:   req.Ubicacion,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerHarvestResponse{
		Message:     "Harvest registered",
		HarvestID:   hv.ID,
		HarvestUUID: hv.UUID,
	})
}

func (h *RegistryHandler) GetHarvest(w http.ResponseWriter, r *http.Request) {
	hv, err := h.svc.GetHarvest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hv)
}

type updateStatusRequest struct {
	Estado      string  `json:"estado"`
	FacturaID   *int64  `json:"factura_id"`
	FacturaUUID *string `json:"factura_uuid"`
}

type updateStatusResponse struct {
	Message string            `json:"message"`
	Updated bool              `json:"updated"`
	Harvest *registry.Harvest `json:"cosecha,omitempty"`
}

func (h *RegistryHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, categoryValidation, err.Error())
		return
	}

	res, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), registry.StatusUpdate{
		Status:      req.Estado,
		InvoiceID:   req.FacturaID,
		InvoiceUUID: req.FacturaUUID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if !res.Found {
		writeJSON(w, http.StatusOK, updateStatusResponse{Message: "Harvest not found, nothing updated"})
		return
	}
	writeJSON(w, http.StatusOK, updateStatusResponse{
		Message: "Harvest status updated",
		Updated: res.Changed,
		Harvest: &res.Harvest,
	})
}
