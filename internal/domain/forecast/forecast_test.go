package forecast_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/forecast"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
)

var arrival = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func day(n int) time.Time { return arrival.AddDate(0, 0, n) }

func converged(productID string, a, b, c float64) entity.ShrinkageCoefficients {
	return entity.ShrinkageCoefficients{ProductID: productID, A: a, B: b, C: c, Status: entity.FitStatusConverged}
}

func mov(typ string, d int, q int64) entity.Movement {
	return entity.Movement{ProductID: "P1", Date: day(d), Type: typ, Quantity: decimal.NewFromInt(q)}
}

func states(t *testing.T, asOf time.Time, movs ...entity.Movement) []ledger.BatchState {
	t.Helper()
	l := ledger.New("P1", ledger.DefaultOptions())
	_, err := l.Apply(movs)
	require.NoError(t, err)
	return l.StateAt(asOf)
}

func fixedClock() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func TestPortion_Scenario(t *testing.T) {
	st := states(t, day(30),
		mov(entity.MovementTypeReceipt, 0, 100),
		mov(entity.MovementTypeSale, 30, 10),
	)
	coeffs := forecast.NewSnapshot([]entity.ShrinkageCoefficients{converged("P1", 0.08, 0.1, 0.01)})
	e := forecast.NewEngine(forecast.Options{}).WithClock(fixedClock)

	out, err := e.Forecast("P1", st, coeffs, forecast.StrategyPortion, day(30))
	require.NoError(t, err)
	require.Len(t, out, 1)
	calc := out[0]
	want := 10 * (0.08*(1-math.Exp(-3)) + 0.01)
	assert.Equal(t, entity.CalculationComputed, calc.Status)
	assert.InDelta(t, want, calc.CalculatedShrinkage.InexactFloat64(), 1e-6)
	assert.InDelta(t, 0.797, calc.CalculatedShrinkage.InexactFloat64(), 1e-3)
	assert.Equal(t, 30, calc.ElapsedDays)
	assert.True(t, calc.MovementsTotal.Equal(decimal.NewFromInt(-10)))
	assert.True(t, calc.ActualShrinkage.IsZero())
	assert.True(t, calc.Variance.Equal(calc.CalculatedShrinkage.Neg()))
	assert.True(t, calc.ExpectedRemaining.Equal(decimal.NewFromInt(90).Sub(calc.CalculatedShrinkage)))
	assert.Equal(t, fixedClock(), calc.CalculatedAt)
}

func TestStrategies_AgreeAtZeroElapsed(t *testing.T) {
	st := states(t, arrival,
		mov(entity.MovementTypeReceipt, 0, 50),
		mov(entity.MovementTypeSale, 0, 50),
	)
	coeffs := forecast.NewSnapshot([]entity.ShrinkageCoefficients{converged("P1", 0.2, 0.3, 0.01)})
	e := forecast.NewEngine(forecast.Options{IncludeClosed: true})

	for _, s := range forecast.Strategies() {
		out, err := e.Forecast("P1", st, coeffs, s, arrival)
		require.NoError(t, err)
		require.Len(t, out, 1, s)
		assert.InDelta(t, 0.5, out[0].CalculatedShrinkage.InexactFloat64(), 1e-9, "estrategia %s", s)
	}
}

func TestStrategies_AgreeAtZeroElapsedWithoutSales(t *testing.T) {
	st := states(t, arrival, mov(entity.MovementTypeReceipt, 0, 50))
	coeffs := forecast.NewSnapshot([]entity.ShrinkageCoefficients{converged("P1", 0.2, 0.3, 0.01)})

	e := forecast.NewEngine(forecast.Options{IncludeUnsold: true})
	for _, s := range forecast.Strategies() {
		out, err := e.Forecast("P1", st, coeffs, s, arrival)
		require.NoError(t, err)
		require.Len(t, out, 1, s)
		assert.InDelta(t, 0.5, out[0].CalculatedShrinkage.InexactFloat64(), 1e-9, "estrategia %s", s)
	}

	// Sin IncludeUnsold, portion solo cuenta lo vendido.
	out, err := forecast.NewEngine(forecast.Options{}).Forecast("P1", st, coeffs, forecast.StrategyPortion, arrival)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].CalculatedShrinkage.IsZero())
}

func TestWeighted_BelowCompatibilityWhenSelling(t *testing.T) {
	st := states(t, day(20),
		mov(entity.MovementTypeReceipt, 0, 100),
		mov(entity.MovementTypeSale, 5, 50),
	)
	coeffs := forecast.NewSnapshot([]entity.ShrinkageCoefficients{converged("P1", 0.1, 0.1, 0.01)})
	e := forecast.NewEngine(forecast.Options{})

	w, err := e.Forecast("P1", st, coeffs, forecast.StrategyWeighted, day(20))
	require.NoError(t, err)
	c, err := e.Forecast("P1", st, coeffs, forecast.StrategyCompatibility, day(20))
	require.NoError(t, err)

	assert.Less(t, w[0].CalculatedShrinkage.InexactFloat64(), c[0].CalculatedShrinkage.InexactFloat64())
	assert.InDelta(t, 100*(0.1*(1-math.Exp(-2))+0.01), c[0].CalculatedShrinkage.InexactFloat64(), 1e-6)
}

func TestWeighted_WithoutSalesCompoundsOnShrinkingBase(t *testing.T) {
	st := states(t, day(10), mov(entity.MovementTypeReceipt, 0, 100))
	coeffs := forecast.NewSnapshot([]entity.ShrinkageCoefficients{converged("P1", 0.1, 0.2, 0.02)})
	e := forecast.NewEngine(forecast.Options{})

	w, err := e.Forecast("P1", st, coeffs, forecast.StrategyWeighted, day(10))
	require.NoError(t, err)
	c, err := e.Forecast("P1", st, coeffs, forecast.StrategyCompatibility, day(10))
	require.NoError(t, err)

	assert.Greater(t, w[0].CalculatedShrinkage.InexactFloat64(), 0.0)
	assert.LessOrEqual(t, w[0].CalculatedShrinkage.InexactFloat64(), c[0].CalculatedShrinkage.InexactFloat64())
}

func TestPortion_IncludeUnsold(t *testing.T) {
	st := states(t, day(10),
		mov(entity.MovementTypeReceipt, 0, 100),
		mov(entity.MovementTypeSale, 10, 40),
	)
	coeffs := forecast.NewSnapshot([]entity.ShrinkageCoefficients{converged("P1", 0.1, 0.1, 0.01)})

	plain, err := forecast.NewEngine(forecast.Options{}).Forecast("P1", st, coeffs, forecast.StrategyPortion, day(10))
	require.NoError(t, err)
	full, err := forecast.NewEngine(forecast.Options{IncludeUnsold: true}).Forecast("P1", st, coeffs, forecast.StrategyPortion, day(10))
	require.NoError(t, err)

	f := 0.1*(1-math.Exp(-1)) + 0.01
	assert.InDelta(t, 40*f, plain[0].CalculatedShrinkage.InexactFloat64(), 1e-6)
	assert.InDelta(t, 100*f, full[0].CalculatedShrinkage.InexactFloat64(), 1e-6)
}

func TestForecast_SkipsWithoutUsableCoefficients(t *testing.T) {
	st := states(t, day(3), mov(entity.MovementTypeReceipt, 0, 10))
	e := forecast.NewEngine(forecast.Options{})

	out, err := e.Forecast("P1", st, forecast.Snapshot{}, forecast.StrategyWeighted, day(3))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, entity.CalculationSkipped, out[0].Status)
	assert.Contains(t, out[0].SkipReason, "sin calibrar")
	assert.True(t, out[0].CalculatedShrinkage.IsZero())

	failed := forecast.NewSnapshot([]entity.ShrinkageCoefficients{{ProductID: "P1", A: 0.1, B: 0.1, C: 0.01, Status: entity.FitStatusFailed}})
	out, err = e.Forecast("P1", st, failed, forecast.StrategyWeighted, day(3))
	require.NoError(t, err)
	assert.Equal(t, entity.CalculationSkipped, out[0].Status)
	assert.Contains(t, out[0].SkipReason, entity.FitStatusFailed)
}

func TestForecast_OnlyActiveBatchesSorted(t *testing.T) {
	st := states(t, day(6),
		mov(entity.MovementTypeReceipt, 0, 10),
		mov(entity.MovementTypeReceipt, 2, 10),
		mov(entity.MovementTypeSale, 3, 10),
		mov(entity.MovementTypeReceipt, 4, 5),
	)
	coeffs := forecast.NewSnapshot([]entity.ShrinkageCoefficients{converged("P1", 0.1, 0.1, 0.01)})
	out, err := forecast.NewEngine(forecast.Options{}).Forecast("P1", st, coeffs, forecast.StrategyCompatibility, day(6))
	require.NoError(t, err)
	require.Len(t, out, 2, "el primer lote quedó sin saldo")
	assert.True(t, out[0].PeriodStart.Before(out[1].PeriodStart))
}

func TestForecastAll_SortedByProduct(t *testing.T) {
	mk := func(id string) []ledger.BatchState {
		l := ledger.New(id, ledger.DefaultOptions())
		_, err := l.Apply([]entity.Movement{{ProductID: id, Date: arrival, Type: entity.MovementTypeReceipt, Quantity: decimal.NewFromInt(5)}})
		require.NoError(t, err)
		return l.StateAt(day(1))
	}
	input := map[string][]ledger.BatchState{"C": mk("C"), "A": mk("A"), "B": mk("B")}
	coeffs := forecast.NewSnapshot([]entity.ShrinkageCoefficients{converged("A", 0.1, 0.1, 0.01), converged("C", 0.1, 0.1, 0.01)})

	out, err := forecast.NewEngine(forecast.Options{}).ForecastAll(context.Background(), input, coeffs, forecast.StrategyPortion, day(1), 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "A", out[0].ProductID)
	assert.Equal(t, "B", out[1].ProductID)
	assert.Equal(t, entity.CalculationSkipped, out[1].Status)
	assert.Equal(t, "C", out[2].ProductID)
}

func TestParseStrategy(t *testing.T) {
	s, err := forecast.ParseStrategy("FINAL")
	require.NoError(t, err)
	assert.Equal(t, forecast.StrategyCompatibility, s)

	s, err = forecast.ParseStrategy(" weighted ")
	require.NoError(t, err)
	assert.Equal(t, forecast.StrategyWeighted, s)

	_, err = forecast.ParseStrategy("linear")
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)

	_, err = forecast.Strategy("linear").Evaluator(forecast.Options{})
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}
