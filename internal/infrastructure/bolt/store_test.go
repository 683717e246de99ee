package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/infrastructure/bolt"
)

func TestBoltRepositories_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "data", "merma.db"))
	require.NoError(t, err)
	defer db.Close()

	products := bolt.NewProductRepository(db)
	require.NoError(t, products.Create(ctx, &entity.Product{ID: "P1", Name: "Gasolina"}))
	assert.ErrorIs(t, products.Create(ctx, &entity.Product{ID: "P1"}), domain.ErrDuplicate)
	p, err := products.GetByID(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Gasolina", p.Name)
	missing, err := products.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ledger.New("P1", ledger.DefaultOptions())
	_, err = l.Apply([]entity.Movement{
		{ProductID: "P1", Date: day, Type: entity.MovementTypeReceipt, Quantity: decimal.NewFromInt(10)},
		{ProductID: "P1", Date: day.AddDate(0, 0, 1), Type: entity.MovementTypeSale, Quantity: decimal.NewFromInt(12)},
	})
	require.NoError(t, err)

	batches := bolt.NewBatchRepository(db)
	require.NoError(t, batches.SaveSnapshot(ctx, l.Snapshot()))
	snap, err := batches.LoadSnapshot(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	restored, err := ledger.Restore(*snap, ledger.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, restored.Totals().Sold.Equal(decimal.NewFromInt(12)))
	assert.Len(t, restored.Events(), 1)
	ids, err := batches.ListProductIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, ids)

	coeffs := bolt.NewCoefficientRepository(db)
	require.NoError(t, coeffs.Save(ctx, entity.ShrinkageCoefficients{ProductID: "P1", A: 0.1, Status: entity.FitStatusConverged}))
	require.NoError(t, coeffs.Save(ctx, entity.ShrinkageCoefficients{ProductID: "P1", A: 0.2, Status: entity.FitStatusConverged}))
	list, err := coeffs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 0.2, list[0].A)

	calcs := bolt.NewCalculationRepository(db)
	require.NoError(t, calcs.SaveAll(ctx, []entity.ShrinkageCalculation{
		{ProductID: "P1", BatchID: "B1"},
		{ProductID: "P10", BatchID: "X"},
		{ProductID: "P1", BatchID: "B2"},
	}))
	got, err := calcs.ListByProduct(ctx, "P1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B2", got[0].BatchID, "más reciente primero")

	movs := bolt.NewMovementRepository(db)
	require.NoError(t, movs.CreateMany(ctx, []entity.Movement{
		{ProductID: "P1", Date: day, Type: entity.MovementTypeReceipt, Quantity: decimal.NewFromInt(10)},
		{ProductID: "P1", Date: day.AddDate(0, 0, 5), Type: entity.MovementTypeSale, Quantity: decimal.NewFromInt(1)},
	}))
	from := day.AddDate(0, 0, 1)
	listed, err := movs.ListByProduct(ctx, "P1", &from, nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Quantity.Equal(decimal.NewFromInt(1)))
}

func TestBoltRepositories_ProductIDsWithSlash(t *testing.T) {
	ctx := context.Background()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "merma.db"))
	require.NoError(t, err)
	defer db.Close()

	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	movs := bolt.NewMovementRepository(db)
	require.NoError(t, movs.CreateMany(ctx, []entity.Movement{
		{ProductID: "P1", Date: day, Type: entity.MovementTypeReceipt, Quantity: decimal.NewFromInt(10)},
		{ProductID: "P1/x", Date: day, Type: entity.MovementTypeReceipt, Quantity: decimal.NewFromInt(99)},
		{ProductID: "P1", Date: day, Type: entity.MovementTypeSale, Quantity: decimal.NewFromInt(2)},
	}))

	listed, err := movs.ListByProduct(ctx, "P1", nil, nil)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, entity.MovementTypeReceipt, listed[0].Type, "orden de ingesta")
	assert.Equal(t, entity.MovementTypeSale, listed[1].Type)

	other, err := movs.ListByProduct(ctx, "P1/x", nil, nil)
	require.NoError(t, err)
	require.Len(t, other, 1)

	none, err := movs.ListByProduct(ctx, "P2", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	calcs := bolt.NewCalculationRepository(db)
	require.NoError(t, calcs.SaveAll(ctx, []entity.ShrinkageCalculation{
		{ProductID: "P1/x", BatchID: "X1"},
		{ProductID: "P1", BatchID: "B1"},
		{ProductID: "P1/x", BatchID: "X2"},
	}))
	got, err := calcs.ListByProduct(ctx, "P1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B1", got[0].BatchID)

	got, err = calcs.ListByProduct(ctx, "P1/x", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "X2", got[0].BatchID, "más reciente primero")
}
