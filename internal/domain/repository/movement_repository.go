package repository

import (
	"context"
	"time"

	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// MovementRepository guarda el registro de movimientos aceptados por el ledger.
type MovementRepository interface {
	CreateMany(ctx context.Context, movements []entity.Movement) error
	ListByProduct(ctx context.Context, productID string, from, to *time.Time) ([]entity.Movement, error)
}
