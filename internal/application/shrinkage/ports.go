package shrinkage

import (
	"context"
	"time"

	"github.com/jhoicas/merma-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de almacenamiento, pasando repositorios
// atados a esa transacción. Garantiza que el registro de movimientos y el snapshot del ledger
// se guarden juntos.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		movRepo repository.MovementRepository,
		batchRepo repository.BatchRepository,
	) error) error
}

// Metrics recibe los eventos del servicio que se exponen como métricas.
type Metrics interface {
	MovementsApplied(movementType string, n int)
	MovementsRejected()
	ReconciliationEvent()
	CalibrationFinished(status string, iterations int, elapsed time.Duration)
	ForecastComputed(strategy, status string)
}

// NopMetrics descarta todo.
type NopMetrics struct{}

func (NopMetrics) MovementsApplied(string, int) {}
func (NopMetrics) MovementsRejected() {}
func (NopMetrics) ReconciliationEvent() {}
func (NopMetrics) CalibrationFinished(string, int, time.Duration) {}
func (NopMetrics) ForecastComputed(string, string) {}
