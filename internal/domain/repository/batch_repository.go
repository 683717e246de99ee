package repository

import (
	"context"

	"github.com/jhoicas/merma-api/internal/domain/ledger"
)

// BatchRepository persiste el estado del ledger por producto (lotes, ventas, ajustes y conciliaciones)
// para reanudar entre corridas. LoadSnapshot devuelve (nil, nil) si el producto no tiene estado.
type BatchRepository interface {
	LoadSnapshot(ctx context.Context, productID string) (*ledger.Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot ledger.Snapshot) error
	ListProductIDs(ctx context.Context) ([]string, error)
}
