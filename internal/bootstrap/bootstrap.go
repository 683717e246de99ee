// Package bootstrap arma repositorios, servicio y casos de uso según la configuración.
// Lo comparten el servidor HTTP y la CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/merma-api/internal/application/auth"
	"github.com/jhoicas/merma-api/internal/application/shrinkage"
	"github.com/jhoicas/merma-api/internal/application/usecase"
	"github.com/jhoicas/merma-api/internal/domain/calibration"
	"github.com/jhoicas/merma-api/internal/domain/forecast"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/domain/repository"
	"github.com/jhoicas/merma-api/internal/infrastructure/bolt"
	"github.com/jhoicas/merma-api/internal/infrastructure/memory"
	"github.com/jhoicas/merma-api/internal/infrastructure/metrics"
	"github.com/jhoicas/merma-api/internal/infrastructure/postgres"
	"github.com/jhoicas/merma-api/pkg/config"
	"github.com/jhoicas/merma-api/pkg/logger"
)

// App componentes listos para usar. Close libera el almacenamiento.
type App struct {
	Products  *usecase.ProductUseCase
	Shrinkage *shrinkage.Service
	Auth      *auth.AuthUseCase
	Movements repository.MovementRepository
	Close     func()
}

// ServiceOptions traduce la configuración a las opciones del servicio.
func ServiceOptions(cfg config.ShrinkageConfig, audit config.AuditConfig) (shrinkage.Options, error) {
	st, err := forecast.ParseStrategy(cfg.DefaultStrategy)
	if err != nil {
		return shrinkage.Options{}, err
	}
	return shrinkage.Options{
		Ledger: ledger.Options{ExternalElapsed: cfg.ExternalElapsed},
		Calibration: calibration.Config{
			MinPortions:   cfg.MinPortions,
			MaxIterations: cfg.MaxIterations,
			Tolerance:     cfg.Tolerance,
			Bounds: calibration.Bounds{
				A: calibration.Range{Min: cfg.AMin, Max: cfg.AMax},
				B: calibration.Range{Min: cfg.BMin, Max: cfg.BMax},
				C: calibration.Range{Min: cfg.CMin, Max: cfg.CMax},
			},
		},
		Forecast:              forecast.Options{IncludeUnsold: cfg.PortionIncludeUnsold},
		DefaultStrategy:       st,
		Workers:               cfg.Workers,
		KeepPreviousOnFailure: cfg.KeepPreviousOnFailure,
		AuditExcessThreshold:  decimal.NewFromFloat(audit.ExcessThreshold),
	}, nil
}

// New abre el almacenamiento elegido en cfg.Storage.Driver y construye la aplicación.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	opts, err := ServiceOptions(cfg.Shrinkage, cfg.Audit)
	if err != nil {
		return nil, err
	}

	var (
		deps      shrinkage.Deps
		movements repository.MovementRepository
		closeFn   = func() {}
	)
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		applied, err := postgres.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migraciones: %w", err)
		}
		if len(applied) > 0 {
			log.Info().Strs("migrations", applied).Msg("migraciones aplicadas")
		}
		movements = postgres.NewMovementRepository(pool)
		deps = shrinkage.Deps{
			Products:     postgres.NewProductRepository(pool),
			Batches:      postgres.NewBatchRepository(pool),
			Coefficients: postgres.NewCoefficientRepository(pool),
			Calculations: postgres.NewCalculationRepository(pool),
			Tx:           postgres.NewTxRunner(pool),
		}
		closeFn = pool.Close

	case config.StorageBolt:
		db, err := bolt.Open(cfg.Storage.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("abrir %s: %w", cfg.Storage.BoltPath, err)
		}
		movements = bolt.NewMovementRepository(db)
		deps = shrinkage.Deps{
			Products:     bolt.NewProductRepository(db),
			Batches:      bolt.NewBatchRepository(db),
			Coefficients: bolt.NewCoefficientRepository(db),
			Calculations: bolt.NewCalculationRepository(db),
			Tx:           bolt.NewTxRunner(db),
		}
		closeFn = func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("cerrar bolt")
			}
		}

	case config.StorageMemory:
		store := memory.NewStore()
		movs := memory.NewMovementStore()
		movements = movs
		deps = shrinkage.Deps{
			Products:     store,
			Batches:      store,
			Coefficients: memory.NewCoefficientStore(),
			Calculations: memory.NewCalculationStore(),
			Tx:           memory.TxRunner{Movements: movs, Batches: store},
		}

	default:
		return nil, fmt.Errorf("driver de almacenamiento %q no soportado", cfg.Storage.Driver)
	}
	deps.Log = log
	deps.Metrics = metrics.Recorder{}

	svc, err := shrinkage.NewService(deps, opts)
	if err != nil {
		closeFn()
		return nil, err
	}
	log.Info().Str("storage", cfg.Storage.Driver).Str("strategy", string(opts.DefaultStrategy)).Int("workers", opts.Workers).Msg("servicio de merma listo")

	return &App{
		Products:  usecase.NewProductUseCase(deps.Products),
		Shrinkage: svc,
		Auth: auth.NewAuthUseCase(auth.JWTConfig{
			Secret:     cfg.JWT.Secret,
			ExpMinutes: cfg.JWT.Expiration,
			Issuer:     cfg.JWT.Issuer,
		}),
		Movements: movements,
		Close:     closeFn,
	}, nil
}
