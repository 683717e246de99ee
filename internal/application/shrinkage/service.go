package shrinkage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/merma-api/internal/application/dto"
	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/calibration"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/forecast"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/domain/repository"
	"github.com/jhoicas/merma-api/pkg/logger"
)

// Options parámetros del servicio.
type Options struct {
	Ledger                ledger.Options
	Calibration           calibration.Config
	Forecast              forecast.Options
	DefaultStrategy       forecast.Strategy
	Workers               int
	KeepPreviousOnFailure bool
	AuditExcessThreshold  decimal.Decimal
}

// Deps puertos que usa el servicio.
type Deps struct {
	Products     repository.ProductRepository
	Batches      repository.BatchRepository
	Coefficients repository.CoefficientRepository
	Calculations repository.CalculationRepository
	Tx           TxRunner
	Log          *logger.Logger
	Metrics      Metrics // opcional
}

// Service orquesta ledger, calibración y pronóstico sobre el almacenamiento.
type Service struct {
	deps        Deps
	opts        Options
	registry    *Registry
	calibration *calibration.Engine
	forecast    *forecast.Engine
	log         *logger.Logger
	now         func() time.Time
}

// NewService construye el servicio.
func NewService(deps Deps, opts Options) (*Service, error) {
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = forecast.StrategyWeighted
	}
	if _, err := opts.DefaultStrategy.Evaluator(opts.Forecast); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	cal, err := calibration.NewEngine(opts.Calibration)
	if err != nil {
		return nil, err
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	return &Service{
		deps:        deps,
		opts:        opts,
		registry:    NewRegistry(deps.Batches, opts.Ledger),
		calibration: cal,
		forecast:    forecast.NewEngine(opts.Forecast),
		log:         log.Component("shrinkage"),
		now:         time.Now,
	}, nil
}

// WithClock fija el reloj (pruebas).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.forecast = s.forecast.WithClock(now)
	return s
}

func (s *Service) requireProduct(ctx context.Context, productID string) error {
	p, err := s.deps.Products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: producto %s", domain.ErrNotFound, productID)
	}
	return nil
}

// ApplyMovements aplica movimientos al ledger del producto y persiste el resultado.
// Un ValidationError deja el ledger y el almacenamiento sin cambios.
func (s *Service) ApplyMovements(ctx context.Context, productID string, movements []entity.Movement) (*dto.LedgerStateResponse, error) {
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	for i := range movements {
		if movements[i].ID == "" {
			movements[i].ID = uuid.New().String()
		}
	}

	var res *ledger.Result
	var totals ledger.Totals
	err := s.registry.Update(ctx, productID, func(current *ledger.Ledger) (*ledger.Ledger, error) {
		work, err := ledger.Restore(current.Snapshot(), s.opts.Ledger)
		if err != nil {
			return nil, err
		}
		res, err = work.Apply(movements)
		if err != nil {
			s.deps.Metrics.MovementsRejected()
			return nil, err
		}
		err = s.deps.Tx.Run(ctx, func(movRepo repository.MovementRepository, batchRepo repository.BatchRepository) error {
			if err := movRepo.CreateMany(ctx, movements); err != nil {
				return err
			}
			return batchRepo.SaveSnapshot(ctx, work.Snapshot())
		})
		if err != nil {
			return nil, fmt.Errorf("persistir movimientos de %s: %w", productID, err)
		}
		totals = work.Totals()
		return work, nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("product_id", productID).Int("movements", len(movements)).Msg("movimientos rechazados")
		return nil, err
	}

	applied := make(map[string]int)
	for _, m := range movements {
		applied[m.Type]++
	}
	for typ, n := range applied {
		s.deps.Metrics.MovementsApplied(typ, n)
	}
	for _, ev := range res.Events {
		s.deps.Metrics.ReconciliationEvent()
		s.log.Warn().
			Str("product_id", productID).
			Str("external_batch", ev.ExternalBatchID).
			Str("shortfall", ev.Shortfall.String()).
			Str("absorbed", ev.Absorbed.String()).
			Bool("reused", ev.Reused).
			Msg("venta sin saldo conocido: lote externo")
	}
	s.log.Info().Str("product_id", productID).Int("applied", res.Applied).Msg("movimientos aplicados")

	return &dto.LedgerStateResponse{
		ProductID: productID,
		Applied:   res.Applied,
		Batches:   dto.BatchesFromEntity(res.Batches),
		Events:    dto.EventsFromEntity(res.Events),
		Totals:    dto.TotalsFromLedger(totals),
	}, nil
}

// Ledger devuelve el estado actual del ledger con todos sus eventos.
func (s *Service) Ledger(ctx context.Context, productID string) (*dto.LedgerStateResponse, error) {
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	var out *dto.LedgerStateResponse
	err := s.registry.View(ctx, productID, func(l *ledger.Ledger) error {
		out = &dto.LedgerStateResponse{
			ProductID: productID,
			Batches:   dto.BatchesFromEntity(l.Batches()),
			Events:    dto.EventsFromEntity(l.Events()),
			Totals:    dto.TotalsFromLedger(l.Totals()),
		}
		return nil
	})
	return out, err
}

// Reconciliations enumera los eventos de conciliación del producto.
func (s *Service) Reconciliations(ctx context.Context, productID string) ([]entity.ReconciliationEvent, error) {
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	var out []entity.ReconciliationEvent
	err := s.registry.View(ctx, productID, func(l *ledger.Ledger) error {
		out = l.Events()
		return nil
	})
	return out, err
}

// Audit revisa saldos negativos, excesivos y lotes externos del producto.
func (s *Service) Audit(ctx context.Context, productID string) (*ledger.AuditReport, error) {
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	var out ledger.AuditReport
	err := s.registry.View(ctx, productID, func(l *ledger.Ledger) error {
		out = l.Audit(s.opts.AuditExcessThreshold)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out.NegativeBatches) > 0 || !out.ConservationHold {
		s.log.Error().Str("product_id", productID).Int("negative", len(out.NegativeBatches)).Bool("conservation", out.ConservationHold).Msg("auditoría con inconsistencias")
	}
	return &out, nil
}

// AuditAll audita todos los productos con estado.
func (s *Service) AuditAll(ctx context.Context) ([]ledger.AuditReport, error) {
	ids, err := s.deps.Batches.ListProductIDs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]ledger.AuditReport, 0, len(ids))
	for _, id := range ids {
		err := s.registry.View(ctx, id, func(l *ledger.Ledger) error {
			out = append(out, l.Audit(s.opts.AuditExcessThreshold))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Calibrate ajusta los coeficientes de un producto con sus porciones y los guarda.
// Un resultado FAILED o INSUFFICIENT_DATA no pisa coeficientes convergidos previos si
// KeepPreviousOnFailure está activo; el resultado se devuelve igual.
func (s *Service) Calibrate(ctx context.Context, productID string) (entity.ShrinkageCoefficients, error) {
	if err := s.requireProduct(ctx, productID); err != nil {
		return entity.ShrinkageCoefficients{}, err
	}
	portions, err := s.portions(ctx, productID)
	if err != nil {
		return entity.ShrinkageCoefficients{}, err
	}
	start := time.Now()
	c := s.calibration.Calibrate(productID, portions)
	s.deps.Metrics.CalibrationFinished(c.Status, c.Iterations, time.Since(start))

	c.RunID = uuid.New().String()
	c.CalibratedAt = s.now().UTC()
	if err := s.storeCoefficients(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}

// CalibrateAll calibra cada producto con estado, en paralelo. El fallo de uno no bloquea al resto.
func (s *Service) CalibrateAll(ctx context.Context) (map[string]entity.ShrinkageCoefficients, error) {
	ids, err := s.deps.Batches.ListProductIDs(ctx)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[string][]entity.Portion, len(ids))
	for _, id := range ids {
		p, err := s.portions(ctx, id)
		if err != nil {
			return nil, err
		}
		byProduct[id] = p
	}

	start := time.Now()
	results, err := s.calibration.CalibrateAll(ctx, byProduct, s.opts.Workers)
	if err != nil {
		return nil, err
	}
	var perProduct time.Duration
	if len(results) > 0 {
		perProduct = time.Since(start) / time.Duration(len(results))
	}

	runID := uuid.New().String()
	now := s.now().UTC()
	out := make(map[string]entity.ShrinkageCoefficients, len(results))
	for _, c := range results {
		s.deps.Metrics.CalibrationFinished(c.Status, c.Iterations, perProduct)
		c.RunID = runID
		c.CalibratedAt = now
		if err := s.storeCoefficients(ctx, c); err != nil {
			s.log.Error().Err(err).Str("product_id", c.ProductID).Msg("no se guardaron coeficientes")
		}
		out[c.ProductID] = c
	}
	s.log.Info().Str("run_id", runID).Int("products", len(out)).Msg("calibración completa")
	return out, nil
}

func (s *Service) portions(ctx context.Context, productID string) ([]entity.Portion, error) {
	var out []entity.Portion
	err := s.registry.View(ctx, productID, func(l *ledger.Ledger) error {
		out = l.Portions()
		return nil
	})
	return out, err
}

func (s *Service) storeCoefficients(ctx context.Context, c entity.ShrinkageCoefficients) error {
	ev := s.log.Info()
	if !c.Usable() {
		ev = s.log.Warn()
	}
	ev.Str("product_id", c.ProductID).
		Str("status", c.Status).
		Float64("a", c.A).Float64("b", c.B).Float64("c", c.C).
		Float64("rmse", c.RMSE).
		Int("points", c.DataPoints).
		Int("iterations", c.Iterations).
		Str("message", c.Message).
		Msg("calibración")

	if !c.Usable() && s.opts.KeepPreviousOnFailure {
		prev, err := s.deps.Coefficients.Get(ctx, c.ProductID)
		if err != nil {
			return err
		}
		if prev != nil && prev.Usable() {
			s.log.Warn().Str("product_id", c.ProductID).Str("kept_run", prev.RunID).Msg("se conservan coeficientes anteriores")
			return nil
		}
	}
	return s.deps.Coefficients.Save(ctx, c)
}

// Coefficients lista los coeficientes vigentes.
func (s *Service) Coefficients(ctx context.Context) ([]entity.ShrinkageCoefficients, error) {
	return s.deps.Coefficients.List(ctx)
}

// Calculations devuelve el historial de pronósticos del producto, más reciente primero.
func (s *Service) Calculations(ctx context.Context, productID string, limit int) ([]entity.ShrinkageCalculation, error) {
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.deps.Calculations.ListByProduct(ctx, productID, limit)
}

// ResolveStrategy interpreta el nombre de estrategia; vacío = la estrategia por defecto.
func (s *Service) ResolveStrategy(name string) (forecast.Strategy, error) {
	if name == "" {
		return s.opts.DefaultStrategy, nil
	}
	return forecast.ParseStrategy(name)
}

// Forecast pronostica la merma de los lotes activos del producto a la fecha asOf (cero = ahora).
func (s *Service) Forecast(ctx context.Context, productID, strategy string, asOf time.Time) ([]entity.ShrinkageCalculation, error) {
	st, err := s.ResolveStrategy(strategy)
	if err != nil {
		return nil, err
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	c, err := s.deps.Coefficients.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	snapshot := forecast.Snapshot{}
	if c != nil {
		snapshot[productID] = *c
	}

	var states []ledger.BatchState
	err = s.registry.View(ctx, productID, func(l *ledger.Ledger) error {
		states = l.StateAt(asOf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	calcs, err := s.forecast.Forecast(productID, states, snapshot, st, asOf)
	if err != nil {
		return nil, err
	}
	return calcs, s.publish(ctx, st, calcs)
}

// ForecastAll pronostica todos los productos con estado contra una sola copia de los coeficientes.
func (s *Service) ForecastAll(ctx context.Context, strategy string, asOf time.Time) ([]entity.ShrinkageCalculation, error) {
	st, err := s.ResolveStrategy(strategy)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	coeffs, err := s.deps.Coefficients.List(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := forecast.NewSnapshot(coeffs)

	ids, err := s.deps.Batches.ListProductIDs(ctx)
	if err != nil {
		return nil, err
	}
	statesByProduct := make(map[string][]ledger.BatchState, len(ids))
	for _, id := range ids {
		err := s.registry.View(ctx, id, func(l *ledger.Ledger) error {
			statesByProduct[id] = l.StateAt(asOf)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	calcs, err := s.forecast.ForecastAll(ctx, statesByProduct, snapshot, st, asOf, s.opts.Workers)
	if err != nil {
		return nil, err
	}
	return calcs, s.publish(ctx, st, calcs)
}

func (s *Service) publish(ctx context.Context, st forecast.Strategy, calcs []entity.ShrinkageCalculation) error {
	skipped := 0
	for _, c := range calcs {
		s.deps.Metrics.ForecastComputed(string(st), c.Status)
		if c.Status == entity.CalculationSkipped {
			skipped++
		}
	}
	if skipped > 0 {
		s.log.Warn().Str("strategy", string(st)).Int("skipped", skipped).Msg("lotes sin coeficientes utilizables")
	}
	if len(calcs) == 0 {
		return nil
	}
	if err := s.deps.Calculations.SaveAll(ctx, calcs); err != nil {
		return fmt.Errorf("guardar cálculos: %w", err)
	}
	return nil
}
