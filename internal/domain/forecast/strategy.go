// Package forecast estima la merma esperada de cada lote activo con coeficientes calibrados.
//
// Las estrategias forman un conjunto cerrado (Strategy) con una interfaz común de evaluación.
package forecast

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/domain/shrinkage"
)

// Strategy identifica el algoritmo de pronóstico.
type Strategy string

const (
	// StrategyPortion evalúa cada venta con su propio t y suma.
	StrategyPortion Strategy = "portion"
	// StrategyWeighted acumula la merma día a día contra el saldo vigente.
	StrategyWeighted Strategy = "weighted"
	// StrategyCompatibility evalúa una sola vez con la cantidad inicial.
	StrategyCompatibility Strategy = "compatibility"
)

// Strategies enumera todas las estrategias.
func Strategies() []Strategy {
	return []Strategy{StrategyPortion, StrategyWeighted, StrategyCompatibility}
}

// ParseStrategy acepta el nombre de la estrategia sin distinguir mayúsculas.
// "final" es el nombre histórico de compatibility.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "portion":
		return StrategyPortion, nil
	case "weighted", "weighted-integral", "weighted_integral":
		return StrategyWeighted, nil
	case "compatibility", "final":
		return StrategyCompatibility, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, s)
}

// Options ajusta las evaluaciones.
type Options struct {
	IncludeUnsold bool // portion: el saldo sin vender cuenta como una porción a t = días hasta asOf
	IncludeClosed bool // pronosticar también lotes sin saldo a la fecha
}

// Evaluator calcula la merma de un lote a una fecha de corte.
type Evaluator interface {
	Compute(batch ledger.BatchState, k shrinkage.Coefficients, asOf time.Time) entity.ShrinkageCalculation
}

// Evaluator devuelve la implementación de la estrategia.
func (s Strategy) Evaluator(opts Options) (Evaluator, error) {
	switch s {
	case StrategyPortion:
		return portionEvaluator{includeUnsold: opts.IncludeUnsold}, nil
	case StrategyWeighted:
		return weightedEvaluator{}, nil
	case StrategyCompatibility:
		return compatibilityEvaluator{}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, string(s))
}

type portionEvaluator struct {
	includeUnsold bool
}

func (e portionEvaluator) Compute(st ledger.BatchState, k shrinkage.Coefficients, asOf time.Time) entity.ShrinkageCalculation {
	arrival := st.Batch.ArrivalDate
	total := 0.0
	for _, s := range st.Sales {
		if s.Date.Before(arrival) || s.Date.After(asOf) {
			continue
		}
		total += k.Loss(s.Quantity.InexactFloat64(), float64(shrinkage.ElapsedDays(arrival, s.Date)))
	}
	if e.includeUnsold && st.Batch.Remaining.IsPositive() {
		total += k.Loss(st.Batch.Remaining.InexactFloat64(), float64(shrinkage.ElapsedDays(arrival, asOf)))
	}
	return build(st, StrategyPortion, asOf, total)
}

type weightedEvaluator struct{}

func (weightedEvaluator) Compute(st ledger.BatchState, k shrinkage.Coefficients, asOf time.Time) entity.ShrinkageCalculation {
	arrival := st.Batch.ArrivalDate
	days := shrinkage.ElapsedDays(arrival, asOf)
	salesByDay := make(map[int]float64)
	for _, s := range st.Sales {
		salesByDay[shrinkage.ElapsedDays(arrival, s.Date)] += s.Quantity.InexactFloat64()
	}

	balance := st.Batch.Initial.InexactFloat64()
	total := 0.0
	for d := 0; d <= days; d++ {
		loss := balance * k.DailyIncrement(d)
		total += loss
		balance -= loss
		balance -= salesByDay[d]
		if balance < 0 {
			balance = 0
		}
	}
	return build(st, StrategyWeighted, asOf, total)
}

type compatibilityEvaluator struct{}

func (compatibilityEvaluator) Compute(st ledger.BatchState, k shrinkage.Coefficients, asOf time.Time) entity.ShrinkageCalculation {
	t := shrinkage.ElapsedDays(st.Batch.ArrivalDate, asOf)
	return build(st, StrategyCompatibility, asOf, k.Loss(st.Batch.Initial.InexactFloat64(), float64(t)))
}

// build arma el registro con los saldos del lote y la merma calculada.
func build(st ledger.BatchState, s Strategy, asOf time.Time, calculated float64) entity.ShrinkageCalculation {
	c := base(st, s, asOf)
	c.Status = entity.CalculationComputed
	c.CalculatedShrinkage = decimal.NewFromFloat(calculated).Round(6)
	c.Variance = c.ActualShrinkage.Sub(c.CalculatedShrinkage)
	c.ExpectedRemaining = c.InitialBalance.Add(c.MovementsTotal).Sub(c.CalculatedShrinkage)
	if c.InitialBalance.IsPositive() {
		c.ShrinkagePercentage = c.CalculatedShrinkage.Div(c.InitialBalance).Mul(decimal.NewFromInt(100)).Round(4)
	}
	return c
}

func base(st ledger.BatchState, s Strategy, asOf time.Time) entity.ShrinkageCalculation {
	b := st.Batch
	movements := decimal.Zero
	for _, sale := range st.Sales {
		movements = movements.Sub(sale.Quantity)
	}
	return entity.ShrinkageCalculation{
		ProductID:           b.ProductID,
		BatchID:             b.ID,
		IsExternal:          b.IsExternal,
		Strategy:            string(s),
		PeriodStart:         b.ArrivalDate,
		PeriodEnd:           asOf,
		ElapsedDays:         shrinkage.ElapsedDays(b.ArrivalDate, asOf),
		InitialBalance:      b.Initial,
		MovementsTotal:      movements,
		FinalBalance:        b.Remaining,
		ActualShrinkage:     b.Initial.Add(movements).Sub(b.Remaining),
		CalculatedShrinkage: decimal.Zero,
		ShrinkagePercentage: decimal.Zero,
		Variance:            decimal.Zero,
		ExpectedRemaining:   decimal.Zero,
	}
}
