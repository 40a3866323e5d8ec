package registry

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andreasstove999/agroflow-system/internal/harvest"
)

const farmerUUID = "6a1f8c2e-3b4d-4e5f-9a6b-7c8d9e0f1a2b"

func newTestService(t *testing.T) (*Service, *memRepo, *fakePublisher, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	repo := newMemRepo()
	repo.addFarmer(farmerUUID, "Juan Perez")
	pub := &fakePublisher{}
	return NewService(repo, pub, zap.New(core)), repo, pub, logs
}

func validInput() RegisterHarvestInput {
	return RegisterHarvestInput{
		FarmerUUID: farmerUUID,
		Product:    "maiz",
		Tonnes:     decimal.NewFromInt(10),
		Location:   "Finca El Roble",
	}
}

func TestRegisterFarmer(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	f, err := svc.RegisterFarmer(context.Background(), "  Maria Lopez ")
	require.NoError(t, err)
	assert.Equal(t, "Maria Lopez", f.Name)

	_, err = svc.RegisterFarmer(context.Background(), " ")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "nombre", ve.Field)
}

func TestRegisterHarvest_PublishesOnce(t *testing.T) {
	svc, repo, pub, _ := newTestService(t)

	h, err := svc.RegisterHarvest(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, harvest.StatusRegistered, h.Status)
	assert.Equal(t, harvest.ProductMaiz, h.Product)

	require.Equal(t, 1, pub.count())
	ev := pub.published[0]
	assert.Equal(t, h.ID, ev.HarvestID)
	assert.Equal(t, h.UUID, ev.HarvestUUID)
	assert.Equal(t, "maiz", ev.Producto)
	assert.True(t, ev.Toneladas.Equal(decimal.NewFromInt(10)))
	assert.Zero(t, repo.unpublished())
}

func TestRegisterHarvest_ValidationHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterHarvestInput)
		field  string
	}{
		{name: "missing farmer", mutate: func(in *RegisterHarvestInput) { in.FarmerUUID = "" }, field: "agricultor_id"},
		{name: "malformed farmer", mutate: func(in *RegisterHarvestInput) { in.FarmerUUID = "17" }, field: "agricultor_id"},
		{name: "missing product", mutate: func(in *RegisterHarvestInput) { in.Product = "" }, field: "producto"},
		{name: "unknown product", mutate: func(in *RegisterHarvestInput) { in.Product = "soja" }, field: "producto"},
		{name: "zero tonnes", mutate: func(in *RegisterHarvestInput) { in.Tonnes = decimal.Zero }, field: "toneladas"},
		{name: "negative tonnes", mutate: func(in *RegisterHarvestInput) { in.Tonnes = decimal.NewFromInt(-3) }, field: "toneladas"},
		{name: "missing location", mutate: func(in *RegisterHarvestInput) { in.Location = "  " }, field: "ubicacion"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, pub, _ := newTestService(t)
			in := validInput()
			tt.mutate(&in)

			_, err := svc.RegisterHarvest(context.Background(), in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, repo.harvests)
			assert.Zero(t, pub.count())
		})
	}
}

func TestRegisterHarvest_UnknownProductMessageListsPermittedSet(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	in := validInput()
	in.Product = "soja"

	_, err := svc.RegisterHarvest(context.Background(), in)
	require.Error(t, err)
	for _, p := range []string{"maiz", "arroz", "trigo"} {
		assert.Contains(t, err.Error(), p)
	}
}

func TestRegisterHarvest_UnknownFarmer(t *testing.T) {
	svc, repo, pub, _ := newTestService(t)
	in := validInput()
	in.FarmerUUID = "11111111-2222-4333-8444-555555555555"

	_, err := svc.RegisterHarvest(context.Background(), in)
	require.ErrorIs(t, err, ErrFarmerNotFound)
	assert.Empty(t, repo.harvests)
	assert.Zero(t, pub.count())
}

func TestRegisterHarvest_PublishFailureKeepsHarvest(t *testing.T) {
	svc, repo, pub, logs := newTestService(t)
	pub.err = errors.New("broker down")

	h, err := svc.RegisterHarvest(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, harvest.StatusRegistered, h.Status)
	assert.Len(t, repo.harvests, 1)
	assert.Equal(t, 1, repo.unpublished())
	assert.Equal(t, []string{"broker down"}, repo.failures)
	assert.Equal(t, 1, logs.FilterMessageSnippet("left for outbox relay").Len())
}

func TestRegisterHarvest_StoreFailure(t *testing.T) {
	svc, repo, pub, _ := newTestService(t)
	repo.createErr = errors.New("db down")

	_, err := svc.RegisterHarvest(context.Background(), validInput())
	require.ErrorContains(t, err, "db down")
	assert.Zero(t, pub.count())
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	invoiceUUID := "7e6d5c4b-3a29-4817-9605-f4e3d2c1b0a9"

	t.Run("registered to invoiced attaches invoice and logs audit line", func(t *testing.T) {
		svc, _, _, logs := newTestService(t)
		h, err := svc.RegisterHarvest(ctx, validInput())
		require.NoError(t, err)

		res, err := svc.UpdateStatus(ctx, h.UUID, StatusUpdate{Status: "FACTURADA", InvoiceID: int64Ptr(7), InvoiceUUID: strPtr(invoiceUUID)})
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.True(t, res.Changed)
		assert.Equal(t, harvest.StatusInvoiced, res.Harvest.Status)
		require.NotNil(t, res.Harvest.InvoiceID)
		assert.Equal(t, int64(7), *res.Harvest.InvoiceID)
		assert.Equal(t, 1, logs.FilterMessage("Cosecha registrada: 10t Maiz. Factura #7 pendiente de pago").Len())
	})

	t.Run("repeated callback is a no-op", func(t *testing.T) {
		svc, _, _, logs := newTestService(t)
		h, err := svc.RegisterHarvest(ctx, validInput())
		require.NoError(t, err)
		upd := StatusUpdate{Status: "FACTURADA", InvoiceID: int64Ptr(7), InvoiceUUID: strPtr(invoiceUUID)}
		ref := strconv.FormatInt(h.ID, 10)

		_, err = svc.UpdateStatus(ctx, ref, upd)
		require.NoError(t, err)
		res, err := svc.UpdateStatus(ctx, ref, upd)
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.False(t, res.Changed)
		assert.Equal(t, h.ID, res.Harvest.ID)
		assert.Equal(t, 1, logs.FilterMessageSnippet("Factura #7").Len())
	})

	t.Run("different invoice conflicts", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		h, err := svc.RegisterHarvest(ctx, validInput())
		require.NoError(t, err)
		ref := strconv.FormatInt(h.ID, 10)

		_, err = svc.UpdateStatus(ctx, ref, StatusUpdate{Status: "FACTURADA", InvoiceID: int64Ptr(7)})
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, ref, StatusUpdate{Status: "FACTURADA", InvoiceID: int64Ptr(8)})
		require.ErrorIs(t, err, harvest.ErrInvalidTransition)
	})

	t.Run("backward transition rejected", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		h, err := svc.RegisterHarvest(ctx, validInput())
		require.NoError(t, err)
		ref := strconv.FormatInt(h.ID, 10)

		_, err = svc.UpdateStatus(ctx, ref, StatusUpdate{Status: "FACTURADA", InvoiceID: int64Ptr(7)})
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, ref, StatusUpdate{Status: "REGISTRADA"})
		require.ErrorIs(t, err, harvest.ErrInvalidTransition)
	})

	t.Run("unknown harvest is accepted without mutation", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		res, err := svc.UpdateStatus(ctx, "999", StatusUpdate{Status: "FACTURADA", InvoiceID: int64Ptr(7)})
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.False(t, res.Changed)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		cases := []struct {
			ref string
			upd StatusUpdate
		}{
			{ref: "abc", upd: StatusUpdate{Status: "FACTURADA"}},
			{ref: "1", upd: StatusUpdate{Status: "PAGADA"}},
			{ref: "1", upd: StatusUpdate{Status: "FACTURADA", InvoiceID: int64Ptr(0)}},
			{ref: "1", upd: StatusUpdate{Status: "FACTURADA", InvoiceID: int64Ptr(3), InvoiceUUID: strPtr("nope")}},
			{ref: "1", upd: StatusUpdate{Status: "FACTURADA", InvoiceUUID: strPtr(invoiceUUID)}},
		}
		for _, c := range cases {
			_, err := svc.UpdateStatus(ctx, c.ref, c.upd)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve, "ref=%s upd=%+v", c.ref, c.upd)
		}
	})
}

func TestGetHarvest(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	h, err := svc.RegisterHarvest(context.Background(), validInput())
	require.NoError(t, err)

	got, err := svc.GetHarvest(context.Background(), h.UUID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)

	_, err = svc.GetHarvest(context.Background(), "12345")
	require.ErrorIs(t, err, ErrHarvestNotFound)

	_, err = svc.GetHarvest(context.Background(), "x-y")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}
