package shrinkage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/merma-api/internal/application/shrinkage"
	"github.com/jhoicas/merma-api/internal/domain/calibration"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/forecast"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/infrastructure/memory"
)

type recordingMetrics struct {
	mu             sync.Mutex
	applied        map[string]int
	rejected       int
	reconciliation int
	forecasts      []string
}

func (r *recordingMetrics) MovementsApplied(movementType string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[movementType] += n
}

func (r *recordingMetrics) MovementsRejected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
}

func (r *recordingMetrics) ReconciliationEvent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciliation++
}

func (r *recordingMetrics) CalibrationFinished(string, int, time.Duration) {}

func (r *recordingMetrics) ForecastComputed(strategy, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forecasts = append(r.forecasts, strategy+"/"+status)
}

func TestService_ReportsToMetrics(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rec := &recordingMetrics{applied: map[string]int{}}
	svc, err := shrinkage.NewService(shrinkage.Deps{
		Products:     store,
		Batches:      store,
		Coefficients: memory.NewCoefficientStore(),
		Calculations: memory.NewCalculationStore(),
		Tx:           memory.TxRunner{Movements: memory.NewMovementStore(), Batches: store},
		Metrics:      rec,
	}, shrinkage.Options{
		Ledger:          ledger.DefaultOptions(),
		Calibration:     calibration.DefaultConfig(),
		DefaultStrategy: forecast.StrategyWeighted,
		Workers:         1,
	})
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &entity.Product{ID: "P1", Name: "P1"}))

	_, err = svc.ApplyMovements(ctx, "P1", []entity.Movement{
		movement("P1", entity.MovementTypeReceipt, 0, 10),
		movement("P1", entity.MovementTypeSale, 1, 4),
		movement("P1", entity.MovementTypeSale, 2, 9),
		movement("P1", entity.MovementTypeReceipt, 3, 5),
	})
	require.NoError(t, err)

	_, err = svc.ApplyMovements(ctx, "P1", []entity.Movement{movement("P1", entity.MovementTypeSale, 4, -1)})
	require.Error(t, err)

	_, err = svc.Forecast(ctx, "P1", string(forecast.StrategyPortion), t0.AddDate(0, 0, 5))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, map[string]int{entity.MovementTypeReceipt: 2, entity.MovementTypeSale: 2}, rec.applied)
	assert.Equal(t, 1, rec.rejected)
	assert.Equal(t, 1, rec.reconciliation)
	assert.Equal(t, []string{"portion/" + entity.CalculationSkipped}, rec.forecasts, "sin coeficientes el lote abierto se omite")
}

func TestNewService_DefaultsToNopMetrics(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.ApplyMovements(context.Background(), "P1", []entity.Movement{
		movement("P1", entity.MovementTypeSale, 0, 3),
	})
	require.NoError(t, err)
}
