package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/repository"
)

var (
	_ repository.CoefficientRepository = (*CoefficientRepo)(nil)
	_ repository.CalculationRepository = (*CalculationRepo)(nil)
)

const coefficientColumns = `product_id, a, b, c, status, rmse, data_points, iterations, run_id, calibrated_at, message`

// CoefficientRepo guarda los coeficientes vigentes, uno por producto.
type CoefficientRepo struct {
	q Querier
}

// NewCoefficientRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCoefficientRepository(q Querier) *CoefficientRepo {
	return &CoefficientRepo{q: q}
}

func scanCoefficients(row pgx.Row) (entity.ShrinkageCoefficients, error) {
	var c entity.ShrinkageCoefficients
	err := row.Scan(&c.ProductID, &c.A, &c.B, &c.C, &c.Status, &c.RMSE, &c.DataPoints, &c.Iterations,
		&c.RunID, &c.CalibratedAt, &c.Message)
	c.CalibratedAt = c.CalibratedAt.UTC()
	return c, err
}

// Get devuelve (nil, nil) si el producto nunca se calibró.
func (r *CoefficientRepo) Get(ctx context.Context, productID string) (*entity.ShrinkageCoefficients, error) {
	c, err := scanCoefficients(r.q.QueryRow(ctx,
		`SELECT `+coefficientColumns+` FROM shrinkage_coefficients WHERE product_id = $1`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get coefficients: %w", err)
	}
	return &c, nil
}

// Save reemplaza los coeficientes del producto.
func (r *CoefficientRepo) Save(ctx context.Context, c entity.ShrinkageCoefficients) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO shrinkage_coefficients (`+coefficientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (product_id) DO UPDATE SET
			a = EXCLUDED.a, b = EXCLUDED.b, c = EXCLUDED.c, status = EXCLUDED.status,
			rmse = EXCLUDED.rmse, data_points = EXCLUDED.data_points, iterations = EXCLUDED.iterations,
			run_id = EXCLUDED.run_id, calibrated_at = EXCLUDED.calibrated_at, message = EXCLUDED.message`,
		c.ProductID, c.A, c.B, c.C, c.Status, c.RMSE, c.DataPoints, c.Iterations, c.RunID, c.CalibratedAt, c.Message)
	if err != nil {
		return fmt.Errorf("upsert coefficients: %w", err)
	}
	return nil
}

// List devuelve todos los coeficientes ordenados por producto.
func (r *CoefficientRepo) List(ctx context.Context) ([]entity.ShrinkageCoefficients, error) {
	rows, err := r.q.Query(ctx, `SELECT `+coefficientColumns+` FROM shrinkage_coefficients ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("list coefficients: %w", err)
	}
	defer rows.Close()
	var list []entity.ShrinkageCoefficients
	for rows.Next() {
		c, err := scanCoefficients(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coefficients: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

var calculationColumns = []string{
	"product_id", "batch_id", "is_external", "strategy", "status", "skip_reason", "period_start", "period_end",
	"elapsed_days", "initial_balance", "movements_total", "final_balance", "calculated_shrinkage",
	"actual_shrinkage", "shrinkage_percentage", "variance", "expected_remaining", "calculated_at",
}

// CalculationRepo agrega cálculos de pronóstico; nunca actualiza filas existentes.
type CalculationRepo struct {
	q Querier
}

// NewCalculationRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCalculationRepository(q Querier) *CalculationRepo {
	return &CalculationRepo{q: q}
}

// SaveAll inserta los cálculos con COPY.
func (r *CalculationRepo) SaveAll(ctx context.Context, calcs []entity.ShrinkageCalculation) error {
	if len(calcs) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(calcs))
	for _, c := range calcs {
		rows = append(rows, []any{
			c.ProductID, c.BatchID, c.IsExternal, c.Strategy, c.Status, c.SkipReason, c.PeriodStart, c.PeriodEnd,
			c.ElapsedDays, c.InitialBalance, c.MovementsTotal, c.FinalBalance, c.CalculatedShrinkage,
			c.ActualShrinkage, c.ShrinkagePercentage, c.Variance, c.ExpectedRemaining, c.CalculatedAt,
		})
	}
	if _, err := r.q.CopyFrom(ctx, pgx.Identifier{"shrinkage_calculations"}, calculationColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy calculations: %w", err)
	}
	return nil
}

// ListByProduct devuelve los cálculos más recientes primero (limit <= 0 = todos).
func (r *CalculationRepo) ListByProduct(ctx context.Context, productID string, limit int) ([]entity.ShrinkageCalculation, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.q.Query(ctx, `
		SELECT product_id, batch_id, is_external, strategy, status, skip_reason, period_start, period_end,
			elapsed_days, initial_balance, movements_total, final_balance, calculated_shrinkage,
			actual_shrinkage, shrinkage_percentage, variance, expected_remaining, calculated_at
		FROM shrinkage_calculations WHERE product_id = $1 ORDER BY id DESC LIMIT $2`, productID, lim)
	if err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}
	defer rows.Close()
	var list []entity.ShrinkageCalculation
	for rows.Next() {
		var c entity.ShrinkageCalculation
		if err := rows.Scan(&c.ProductID, &c.BatchID, &c.IsExternal, &c.Strategy, &c.Status, &c.SkipReason,
			&c.PeriodStart, &c.PeriodEnd, &c.ElapsedDays, &c.InitialBalance, &c.MovementsTotal, &c.FinalBalance,
			&c.CalculatedShrinkage, &c.ActualShrinkage, &c.ShrinkagePercentage, &c.Variance,
			&c.ExpectedRemaining, &c.CalculatedAt); err != nil {
			return nil, fmt.Errorf("scan calculation: %w", err)
		}
		c.PeriodStart, c.PeriodEnd, c.CalculatedAt = c.PeriodStart.UTC(), c.PeriodEnd.UTC(), c.CalculatedAt.UTC()
		list = append(list, c)
	}
	return list, rows.Err()
}
