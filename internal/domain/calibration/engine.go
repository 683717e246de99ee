package calibration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// Engine calibra productos de forma independiente con una Config fija.
type Engine struct {
	cfg Config
}

// NewEngine valida cfg y crea el motor.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config devuelve la configuración del motor.
func (e *Engine) Config() Config { return e.cfg }

// Calibrate ajusta los coeficientes de un producto. Nunca devuelve error: la falta de datos
// o la no convergencia quedan en Status y Message. RunID y CalibratedAt los asigna el llamador.
func (e *Engine) Calibrate(productID string, portions []entity.Portion) entity.ShrinkageCoefficients {
	points := make([]Point, 0, len(portions))
	for _, p := range portions {
		if p.Quantity <= 0 || p.ElapsedDays < 0 {
			continue
		}
		points = append(points, Point{M: p.Quantity, T: p.ElapsedDays, Loss: p.ObservedLoss})
	}

	out := entity.ShrinkageCoefficients{ProductID: productID, DataPoints: len(points)}
	if len(points) < e.cfg.MinPortions {
		out.Status = entity.FitStatusInsufficientData
		out.Message = fmt.Sprintf("%s: %d de %d", domain.ErrInsufficientData, len(points), e.cfg.MinPortions)
		return out
	}

	fit := Fit(points, e.cfg)
	out.A, out.B, out.C = fit.Coefficients.A, fit.Coefficients.B, fit.Coefficients.C
	out.RMSE = fit.RMSE
	out.Iterations = fit.Iterations
	if fit.Converged {
		out.Status = entity.FitStatusConverged
	} else {
		out.Status = entity.FitStatusFailed
		out.Message = fmt.Sprintf("%s: %s", domain.ErrFitNonConvergence, fit.Reason)
	}
	return out
}

// CalibrateAll calibra cada producto en paralelo (hasta workers a la vez) y devuelve
// los resultados ordenados por producto. El fallo de uno no afecta a los demás.
func (e *Engine) CalibrateAll(ctx context.Context, portionsByProduct map[string][]entity.Portion, workers int) ([]entity.ShrinkageCoefficients, error) {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	out := make([]entity.ShrinkageCoefficients, 0, len(portionsByProduct))
	for productID, portions := range portionsByProduct {
		productID, portions := productID, portions
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := e.Calibrate(productID, portions)
			mu.Lock()
			out = append(out, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
