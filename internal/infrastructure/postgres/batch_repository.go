package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/domain/repository"
)

var _ repository.BatchRepository = (*BatchRepo)(nil)

// BatchRepo persiste el snapshot del ledger: lotes, porciones de venta, ajustes y conciliaciones.
type BatchRepo struct {
	q Querier
}

// NewBatchRepository construye el adaptador. SaveSnapshot reemplaza varias tablas, así que
// debe recibir una tx (ver TxRunner).
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

// LoadSnapshot devuelve (nil, nil) si el producto todavía no tiene estado.
func (r *BatchRepo) LoadSnapshot(ctx context.Context, productID string) (*ledger.Snapshot, error) {
	var last *time.Time
	err := r.q.QueryRow(ctx, `SELECT last_date FROM ledger_state WHERE product_id = $1`, productID).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger state: %w", err)
	}
	snap := &ledger.Snapshot{ProductID: productID}
	if last != nil {
		snap.LastDate = last.UTC()
	}

	if snap.Batches, err = r.batches(ctx, productID); err != nil {
		return nil, err
	}
	if snap.Sales, err = r.sales(ctx, productID); err != nil {
		return nil, err
	}
	if snap.Adjustments, err = r.adjustments(ctx, productID); err != nil {
		return nil, err
	}
	if snap.Events, err = r.events(ctx, productID); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *BatchRepo) batches(ctx context.Context, productID string) ([]entity.Batch, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, warehouse_id, arrival_date, sequence, initial_qty, remaining_qty, sold_qty, adjusted_qty, is_external
		FROM batches WHERE product_id = $1 ORDER BY sequence`, productID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()
	var list []entity.Batch
	for rows.Next() {
		var b entity.Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.WarehouseID, &b.ArrivalDate, &b.Sequence,
			&b.Initial, &b.Remaining, &b.Sold, &b.Adjusted, &b.IsExternal); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.ArrivalDate = b.ArrivalDate.UTC()
		list = append(list, b)
	}
	return list, rows.Err()
}

func (r *BatchRepo) sales(ctx context.Context, productID string) ([]entity.Sale, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, batch_id, date, quantity, document, external
		FROM batch_sales WHERE product_id = $1 ORDER BY position`, productID)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()
	var list []entity.Sale
	for rows.Next() {
		var s entity.Sale
		if err := rows.Scan(&s.ID, &s.ProductID, &s.BatchID, &s.Date, &s.Quantity, &s.Document, &s.External); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		s.Date = s.Date.UTC()
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *BatchRepo) adjustments(ctx context.Context, productID string) ([]entity.Adjustment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT batch_id, date, delta, document
		FROM batch_adjustments WHERE product_id = $1 ORDER BY position`, productID)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()
	var list []entity.Adjustment
	for rows.Next() {
		var a entity.Adjustment
		if err := rows.Scan(&a.BatchID, &a.Date, &a.Delta, &a.Document); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		a.Date = a.Date.UTC()
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *BatchRepo) events(ctx context.Context, productID string) ([]entity.ReconciliationEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, external_batch_id, date, shortfall, absorbed, sale_document, reused
		FROM reconciliation_events WHERE product_id = $1 ORDER BY position`, productID)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation events: %w", err)
	}
	defer rows.Close()
	var list []entity.ReconciliationEvent
	for rows.Next() {
		var e entity.ReconciliationEvent
		if err := rows.Scan(&e.ID, &e.ProductID, &e.ExternalBatchID, &e.Date, &e.Shortfall, &e.Absorbed, &e.SaleDocument, &e.Reused); err != nil {
			return nil, fmt.Errorf("scan reconciliation event: %w", err)
		}
		e.Date = e.Date.UTC()
		list = append(list, e)
	}
	return list, rows.Err()
}

// SaveSnapshot reemplaza el estado persistido del producto por s.
func (r *BatchRepo) SaveSnapshot(ctx context.Context, s ledger.Snapshot) error {
	var last *time.Time
	if !s.LastDate.IsZero() {
		last = &s.LastDate
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO ledger_state (product_id, last_date, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (product_id) DO UPDATE SET last_date = EXCLUDED.last_date, updated_at = now()`,
		s.ProductID, last)
	if err != nil {
		return fmt.Errorf("upsert ledger state: %w", err)
	}
	for _, table := range []string{"batches", "batch_sales", "batch_adjustments", "reconciliation_events"} {
		if _, err := r.q.Exec(ctx, "DELETE FROM "+table+" WHERE product_id = $1", s.ProductID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	batchRows := make([][]any, 0, len(s.Batches))
	for _, b := range s.Batches {
		batchRows = append(batchRows, []any{b.ID, s.ProductID, b.WarehouseID, b.ArrivalDate, b.Sequence,
			b.Initial, b.Remaining, b.Sold, b.Adjusted, b.IsExternal})
	}
	saleRows := make([][]any, 0, len(s.Sales))
	for i, sale := range s.Sales {
		saleRows = append(saleRows, []any{sale.ID, s.ProductID, sale.BatchID, sale.Date, sale.Quantity, sale.Document, sale.External, i})
	}
	adjRows := make([][]any, 0, len(s.Adjustments))
	for i, a := range s.Adjustments {
		adjRows = append(adjRows, []any{s.ProductID, a.BatchID, a.Date, a.Delta, a.Document, i})
	}
	eventRows := make([][]any, 0, len(s.Events))
	for i, e := range s.Events {
		eventRows = append(eventRows, []any{e.ID, s.ProductID, e.ExternalBatchID, e.Date, e.Shortfall, e.Absorbed, e.SaleDocument, e.Reused, i})
	}

	copies := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"batches", []string{"id", "product_id", "warehouse_id", "arrival_date", "sequence", "initial_qty", "remaining_qty", "sold_qty", "adjusted_qty", "is_external"}, batchRows},
		{"batch_sales", []string{"id", "product_id", "batch_id", "date", "quantity", "document", "external", "position"}, saleRows},
		{"batch_adjustments", []string{"product_id", "batch_id", "date", "delta", "document", "position"}, adjRows},
		{"reconciliation_events", []string{"id", "product_id", "external_batch_id", "date", "shortfall", "absorbed", "sale_document", "reused", "position"}, eventRows},
	}
	for _, c := range copies {
		if len(c.rows) == 0 {
			continue
		}
		if _, err := r.q.CopyFrom(ctx, pgx.Identifier{c.table}, c.columns, pgx.CopyFromRows(c.rows)); err != nil {
			return fmt.Errorf("copy %s: %w", c.table, err)
		}
	}
	return nil
}

// ListProductIDs lista los productos con estado de ledger.
func (r *BatchRepo) ListProductIDs(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT product_id FROM ledger_state ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("list ledger products: %w", err)
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
