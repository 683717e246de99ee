package forecast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/domain/shrinkage"
)

// Snapshot es una copia de los coeficientes vigentes por producto, tomada una vez por corrida.
type Snapshot map[string]entity.ShrinkageCoefficients

// NewSnapshot copia coeffs para que el pronóstico no vea escrituras concurrentes.
func NewSnapshot(coeffs []entity.ShrinkageCoefficients) Snapshot {
	s := make(Snapshot, len(coeffs))
	for _, c := range coeffs {
		s[c.ProductID] = c
	}
	return s
}

// Engine produce registros ShrinkageCalculation.
type Engine struct {
	opts Options
	now  func() time.Time
}

// NewEngine crea un motor de pronóstico.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts, now: time.Now}
}

// WithClock fija el reloj usado para CalculatedAt.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// Forecast calcula la merma de cada lote activo del producto a la fecha asOf.
// Sin coeficientes convergidos cada lote sale como SKIPPED con el motivo; nunca se usan valores por defecto.
// Solo devuelve error si la estrategia es desconocida.
func (e *Engine) Forecast(productID string, states []ledger.BatchState, coeffs Snapshot, strategy Strategy, asOf time.Time) ([]entity.ShrinkageCalculation, error) {
	ev, err := strategy.Evaluator(e.opts)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()

	c, found := coeffs[productID]
	reason := ""
	var k shrinkage.Coefficients
	switch {
	case !found:
		reason = fmt.Sprintf("%s: producto sin calibrar", domain.ErrMissingCoefficients)
	case !c.Usable():
		reason = fmt.Sprintf("%s: estado %s", domain.ErrMissingCoefficients, c.Status)
	default:
		k = shrinkage.Coefficients{A: c.A, B: c.B, C: c.C}
		if verr := k.Validate(); verr != nil {
			reason = fmt.Sprintf("%s: %v", domain.ErrMissingCoefficients, verr)
		}
	}

	var out []entity.ShrinkageCalculation
	for _, st := range states {
		if st.Batch.ProductID != productID || st.Batch.ArrivalDate.After(asOf) {
			continue
		}
		if !e.opts.IncludeClosed && !st.Batch.Remaining.IsPositive() {
			continue
		}
		var calc entity.ShrinkageCalculation
		if reason != "" {
			calc = base(st, strategy, asOf)
			calc.Status = entity.CalculationSkipped
			calc.SkipReason = reason
		} else {
			calc = ev.Compute(st, k, asOf)
		}
		calc.CalculatedAt = now
		out = append(out, calc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.Before(out[j].PeriodStart)
		}
		return out[i].BatchID < out[j].BatchID
	})
	return out, nil
}

// ForecastAll pronostica todos los productos en paralelo y ordena por producto y lote.
func (e *Engine) ForecastAll(ctx context.Context, statesByProduct map[string][]ledger.BatchState, coeffs Snapshot, strategy Strategy, asOf time.Time, workers int) ([]entity.ShrinkageCalculation, error) {
	if _, err := strategy.Evaluator(e.opts); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	byProduct := make(map[string][]entity.ShrinkageCalculation, len(statesByProduct))
	for productID, states := range statesByProduct {
		productID, states := productID, states
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			calcs, err := e.Forecast(productID, states, coeffs, strategy, asOf)
			if err != nil {
				return err
			}
			mu.Lock()
			byProduct[productID] = calcs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(byProduct))
	for id := range byProduct {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []entity.ShrinkageCalculation
	for _, id := range ids {
		out = append(out, byProduct[id]...)
	}
	return out, nil
}
