package shrinkage_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/merma-api/internal/domain/shrinkage"
)

func TestLoss_PortionScenario(t *testing.T) {
	k := shrinkage.Coefficients{A: 0.08, B: 0.1, C: 0.01}
	want := 10 * (0.08*(1-math.Exp(-3)) + 0.01)

	assert.InDelta(t, want, k.Loss(10, 30), 1e-12)
	assert.InDelta(t, 0.797, k.Loss(10, 30), 1e-3)
}

func TestFraction_ZeroElapsedIsBaseLoss(t *testing.T) {
	k := shrinkage.Coefficients{A: 0.2, B: 0.5, C: 0.03}
	assert.Equal(t, 0.03, k.Fraction(0))
	assert.Equal(t, 0.03, k.Fraction(-4), "t negativo se trata como 0")
	assert.InDelta(t, 0.23, k.Fraction(1e6), 1e-12, "satura en a + c")
}

func TestDailyIncrement_SumsToFraction(t *testing.T) {
	k := shrinkage.Coefficients{A: 0.08, B: 0.1, C: 0.01}
	sum := 0.0
	for d := 0; d <= 45; d++ {
		sum += k.DailyIncrement(d)
	}
	assert.InDelta(t, k.Fraction(45), sum, 1e-12)
}

func TestPartials_MatchFiniteDifferences(t *testing.T) {
	k := shrinkage.Coefficients{A: 0.12, B: 0.07, C: 0.02}
	m, days := 25.0, 14.0
	da, db, dc := k.Partials(m, days)

	const h = 1e-6
	num := func(f func(c shrinkage.Coefficients) shrinkage.Coefficients) float64 {
		return (f(k).Loss(m, days) - k.Loss(m, days)) / h
	}
	assert.InDelta(t, num(func(c shrinkage.Coefficients) shrinkage.Coefficients { c.A += h; return c }), da, 1e-4)
	assert.InDelta(t, num(func(c shrinkage.Coefficients) shrinkage.Coefficients { c.B += h; return c }), db, 1e-4)
	assert.InDelta(t, num(func(c shrinkage.Coefficients) shrinkage.Coefficients { c.C += h; return c }), dc, 1e-4)
}

func TestValidate(t *testing.T) {
	require.NoError(t, shrinkage.Coefficients{A: 0, B: 0.01, C: 0}.Validate())
	assert.Error(t, shrinkage.Coefficients{A: -0.1, B: 0.1, C: 0}.Validate())
	assert.Error(t, shrinkage.Coefficients{A: 0.1, B: 0, C: 0}.Validate())
	assert.Error(t, shrinkage.Coefficients{A: 0.1, B: 0.1, C: -1}.Validate())
	assert.Error(t, shrinkage.Coefficients{A: math.NaN(), B: 0.1, C: 0}.Validate())
}

func TestElapsedDays(t *testing.T) {
	arrival := time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, shrinkage.ElapsedDays(arrival, arrival.Add(2*time.Hour)))
	assert.Equal(t, 30, shrinkage.ElapsedDays(arrival, time.Date(2024, 3, 31, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, shrinkage.ElapsedDays(arrival, arrival.AddDate(0, 0, -3)))
}

func TestElapsedDays_IgnoresLocation(t *testing.T) {
	cot := time.FixedZone("COT", -5*60*60)
	arrival := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 30, shrinkage.ElapsedDays(arrival, end))
	assert.Equal(t, 30, shrinkage.ElapsedDays(arrival.In(cot), end))
	assert.Equal(t, 30, shrinkage.ElapsedDays(arrival.In(cot), end.In(cot)))
}
