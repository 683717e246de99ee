package repository

import (
	"context"

	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// CalculationRepository agrega resultados de pronóstico; los registros no se modifican.
type CalculationRepository interface {
	SaveAll(ctx context.Context, calcs []entity.ShrinkageCalculation) error
	ListByProduct(ctx context.Context, productID string, limit int) ([]entity.ShrinkageCalculation, error)
}
