package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/andreasstove999/agroflow-system/internal/billing"
)

type InvoiceLister interface {
	List(ctx context.Context) ([]billing.Invoice, error)
}

type BillingHandler struct {
	invoices InvoiceLister
	logger   *zap.Logger
}

func NewBillingHandler(invoices InvoiceLister, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{invoices: invoices, logger: logger}
}

func (h *BillingHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.invoices.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}
