package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/repository"
)

var _ repository.MovementRepository = (*MovementRepo)(nil)

// MovementRepo es el registro de movimientos ingeridos (usable con pool o tx).
type MovementRepo struct {
	q Querier
}

// NewMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

// CreateMany inserta los movimientos con COPY, conservando el orden de entrada.
func (r *MovementRepo) CreateMany(ctx context.Context, movements []entity.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(movements))
	for _, m := range movements {
		id := m.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{
			id, m.ProductID, m.WarehouseID, m.Date, m.Type, m.Quantity, m.BatchRef, m.AdjustmentMode, m.Document,
		})
	}
	_, err := r.q.CopyFrom(ctx,
		pgx.Identifier{"movements"},
		[]string{"id", "product_id", "warehouse_id", "date", "type", "quantity", "batch_ref", "adjustment_mode", "document"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return mapPgError("copy movements", err)
	}
	return nil
}

// ListByProduct lista los movimientos de un producto en un rango de fechas, en orden de ingesta.
func (r *MovementRepo) ListByProduct(ctx context.Context, productID string, from, to *time.Time) ([]entity.Movement, error) {
	query := `
		SELECT id, product_id, warehouse_id, date, type, quantity, batch_ref, adjustment_mode, document
		FROM movements WHERE product_id = $1`
	args := []any{productID}
	pos := 2
	if from != nil {
		query += fmt.Sprintf(" AND date >= $%d", pos)
		args = append(args, *from)
		pos++
	}
	if to != nil {
		query += fmt.Sprintf(" AND date <= $%d", pos)
		args = append(args, *to)
	}
	query += " ORDER BY seq"

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()
	var list []entity.Movement
	for rows.Next() {
		var m entity.Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.Date, &m.Type, &m.Quantity,
			&m.BatchRef, &m.AdjustmentMode, &m.Document); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Date = m.Date.UTC()
		list = append(list, m)
	}
	return list, rows.Err()
}
