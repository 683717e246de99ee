package calibration_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/merma-api/internal/domain/calibration"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/shrinkage"
)

func synthetic(productID string, k shrinkage.Coefficients, noise float64) []entity.Portion {
	var out []entity.Portion
	for i := 0; i < 40; i++ {
		m := float64(5 + (i*7)%23)
		t := float64((i * 3) % 31)
		loss := k.Loss(m, t)
		if noise != 0 {
			// ruido determinista alternado
			if i%2 == 0 {
				loss += noise
			} else {
				loss -= noise
			}
		}
		out = append(out, entity.Portion{ProductID: productID, Quantity: m, ElapsedDays: t, ObservedLoss: loss})
	}
	return out
}

func newEngine(t *testing.T, cfg calibration.Config) *calibration.Engine {
	t.Helper()
	e, err := calibration.NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func TestCalibrate_RecoversKnownCoefficients(t *testing.T) {
	truth := shrinkage.Coefficients{A: 0.08, B: 0.1, C: 0.01}
	e := newEngine(t, calibration.DefaultConfig())

	got := e.Calibrate("P1", synthetic("P1", truth, 0))
	require.Equal(t, entity.FitStatusConverged, got.Status, got.Message)
	assert.InDelta(t, truth.A, got.A, 1e-3)
	assert.InDelta(t, truth.B, got.B, 1e-3)
	assert.InDelta(t, truth.C, got.C, 1e-3)
	assert.Less(t, got.RMSE, 1e-4)
	assert.Equal(t, 40, got.DataPoints)
}

func TestCalibrate_Reproducible(t *testing.T) {
	e := newEngine(t, calibration.DefaultConfig())
	portions := synthetic("P1", shrinkage.Coefficients{A: 0.2, B: 0.05, C: 0.02}, 0.03)

	first := e.Calibrate("P1", portions)
	second := e.Calibrate("P1", portions)
	assert.Equal(t, first, second)
}

func TestCalibrate_InsufficientData(t *testing.T) {
	e := newEngine(t, calibration.DefaultConfig())
	portions := synthetic("P1", shrinkage.Coefficients{A: 0.1, B: 0.1, C: 0.01}, 0)[:2]

	got := e.Calibrate("P1", portions)
	assert.Equal(t, entity.FitStatusInsufficientData, got.Status)
	assert.Zero(t, got.Iterations, "no se intenta el ajuste")
	assert.Zero(t, got.A)
	assert.Contains(t, got.Message, "insuficientes")
}

func TestCalibrate_IgnoresInvalidPortions(t *testing.T) {
	e := newEngine(t, calibration.DefaultConfig())
	portions := []entity.Portion{
		{Quantity: 0, ElapsedDays: 3, ObservedLoss: 1},
		{Quantity: -2, ElapsedDays: 3, ObservedLoss: 1},
		{Quantity: 4, ElapsedDays: 3, ObservedLoss: 0.1},
	}
	got := e.Calibrate("P1", portions)
	assert.Equal(t, entity.FitStatusInsufficientData, got.Status)
	assert.Equal(t, 1, got.DataPoints)
}

func TestCalibrate_RespectsBounds(t *testing.T) {
	// la merma base observada (30 %) está fuera de la cota de c
	e := newEngine(t, calibration.DefaultConfig())
	got := e.Calibrate("P1", synthetic("P1", shrinkage.Coefficients{A: 0.9, B: 2, C: 0.3}, 0))

	b := calibration.DefaultConfig().Bounds
	assert.GreaterOrEqual(t, got.A, b.A.Min)
	assert.LessOrEqual(t, got.A, b.A.Max)
	assert.GreaterOrEqual(t, got.B, b.B.Min)
	assert.LessOrEqual(t, got.B, b.B.Max)
	assert.GreaterOrEqual(t, got.C, b.C.Min)
	assert.LessOrEqual(t, got.C, b.C.Max)
	assert.Greater(t, got.B, 0.0)
}

func TestCalibrate_FailedKeepsBestEffort(t *testing.T) {
	cfg := calibration.DefaultConfig()
	cfg.MaxIterations = 1
	e := newEngine(t, cfg)

	got := e.Calibrate("P1", synthetic("P1", shrinkage.Coefficients{A: 0.05, B: 0.2, C: 0.02}, 0.05))
	assert.Equal(t, entity.FitStatusFailed, got.Status)
	assert.Contains(t, got.Message, "no convergió")
	assert.Equal(t, 1, got.Iterations)

	guess := cfg.InitialGuess()
	assert.False(t, got.A == guess.A && got.B == guess.B && got.C == guess.C, "devuelve el mejor punto, no el inicial")
	assert.False(t, math.IsNaN(got.RMSE))
}

func TestCalibrateAll_IndependentAndSorted(t *testing.T) {
	e := newEngine(t, calibration.DefaultConfig())
	input := map[string][]entity.Portion{
		"Z": synthetic("Z", shrinkage.Coefficients{A: 0.1, B: 0.1, C: 0.01}, 0),
		"A": nil,
		"M": synthetic("M", shrinkage.Coefficients{A: 0.3, B: 0.2, C: 0.05}, 0),
	}
	got, err := e.CalibrateAll(context.Background(), input, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"A", "M", "Z"}, []string{got[0].ProductID, got[1].ProductID, got[2].ProductID})
	assert.Equal(t, entity.FitStatusInsufficientData, got[0].Status)
	assert.Equal(t, entity.FitStatusConverged, got[1].Status)
	assert.Equal(t, entity.FitStatusConverged, got[2].Status)
}

func TestConfig_Validate(t *testing.T) {
	cfg := calibration.DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Bounds.B.Min = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Bounds.A = calibration.Range{Min: 0.5, Max: 0.1}
	assert.Error(t, bad.Validate())

	_, err := calibration.NewEngine(bad)
	assert.Error(t, err)
}

func TestConfig_InitialGuessIsMidpoint(t *testing.T) {
	g := calibration.DefaultConfig().InitialGuess()
	assert.InDelta(t, 0.25, g.A, 1e-12)
	assert.InDelta(t, 0.5005, g.B, 1e-12)
	assert.InDelta(t, 0.05, g.C, 1e-12)
}
