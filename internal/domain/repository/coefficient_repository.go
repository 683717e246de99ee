package repository

import (
	"context"

	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// CoefficientRepository guarda los coeficientes vigentes por producto (reemplazo al escribir).
type CoefficientRepository interface {
	Get(ctx context.Context, productID string) (*entity.ShrinkageCoefficients, error)
	Save(ctx context.Context, coeffs entity.ShrinkageCoefficients) error
	List(ctx context.Context) ([]entity.ShrinkageCoefficients, error)
}
