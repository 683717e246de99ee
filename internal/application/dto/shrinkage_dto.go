package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
)

// MovementRequest un movimiento en el body de POST /api/products/:id/movements.
type MovementRequest struct {
	ID             string           `json:"id"`
	WarehouseID    string           `json:"warehouse_id"`
	Date           time.Time        `json:"date" validate:"required"`
	Type           string           `json:"type" validate:"required,oneof=RECEIPT SALE ADJUSTMENT"`
	Quantity       *decimal.Decimal `json:"quantity" validate:"required"`
	BatchRef       string           `json:"batch_ref,omitempty"`
	AdjustmentMode string           `json:"adjustment_mode,omitempty" validate:"omitempty,oneof=OFFSET SET"`
	Document       string           `json:"document,omitempty"`
}

// ApplyMovementsRequest body de POST /api/products/:id/movements.
type ApplyMovementsRequest struct {
	Movements []MovementRequest `json:"movements" validate:"required,min=1,dive"`
}

// ToEntity convierte el request al movimiento del producto productID.
func (m MovementRequest) ToEntity(productID string) entity.Movement {
	qty := decimal.Zero
	if m.Quantity != nil {
		qty = *m.Quantity
	}
	return entity.Movement{
		ID:             m.ID,
		ProductID:      productID,
		WarehouseID:    m.WarehouseID,
		Date:           m.Date,
		Type:           m.Type,
		Quantity:       qty,
		BatchRef:       m.BatchRef,
		AdjustmentMode: m.AdjustmentMode,
		Document:       m.Document,
	}
}

// BatchResponse saldo de un lote.
type BatchResponse struct {
	ID          string          `json:"id"`
	ArrivalDate time.Time       `json:"arrival_date"`
	Initial     decimal.Decimal `json:"initial_qty"`
	Sold        decimal.Decimal `json:"sold_qty"`
	Adjusted    decimal.Decimal `json:"adjusted_qty"`
	Remaining   decimal.Decimal `json:"remaining_qty"`
	IsExternal  bool            `json:"is_external"`
}

// ReconciliationResponse evento de conciliación.
type ReconciliationResponse struct {
	ID              string          `json:"id"`
	ExternalBatchID string          `json:"external_batch_id"`
	Date            time.Time       `json:"date"`
	Shortfall       decimal.Decimal `json:"shortfall"`
	Absorbed        decimal.Decimal `json:"absorbed"`
	SaleDocument    string          `json:"sale_document,omitempty"`
	Reused          bool            `json:"reused"`
}

// TotalsResponse totales del producto.
type TotalsResponse struct {
	Received  decimal.Decimal `json:"received"`
	External  decimal.Decimal `json:"external"`
	Sold      decimal.Decimal `json:"sold"`
	Adjusted  decimal.Decimal `json:"adjusted"`
	Remaining decimal.Decimal `json:"remaining"`
}

// LedgerStateResponse estado del ledger; Events son los de la última llamada cuando viene de un POST.
type LedgerStateResponse struct {
	ProductID string                   `json:"product_id"`
	Applied   int                      `json:"applied"`
	Batches   []BatchResponse          `json:"batches"`
	Events    []ReconciliationResponse `json:"reconciliation_events"`
	Totals    TotalsResponse           `json:"totals"`
}

// CoefficientsResponse coeficientes calibrados.
type CoefficientsResponse struct {
	ProductID    string    `json:"product_id"`
	A            float64   `json:"a"`
	B            float64   `json:"b"`
	C            float64   `json:"c"`
	Status       string    `json:"fit_status"`
	RMSE         float64   `json:"rmse"`
	DataPoints   int       `json:"data_points"`
	Iterations   int       `json:"iterations"`
	RunID        string    `json:"run_id"`
	CalibratedAt time.Time `json:"calibrated_at"`
	Message      string    `json:"message,omitempty"`
}

// CalculationResponse resultado de pronóstico de un lote.
type CalculationResponse struct {
	ProductID           string          `json:"product_id"`
	BatchID             string          `json:"batch_id"`
	IsExternal          bool            `json:"is_external"`
	Strategy            string          `json:"strategy"`
	Status              string          `json:"status"`
	SkipReason          string          `json:"skip_reason,omitempty"`
	PeriodStart         time.Time       `json:"period_start"`
	PeriodEnd           time.Time       `json:"period_end"`
	ElapsedDays         int             `json:"elapsed_days"`
	InitialBalance      decimal.Decimal `json:"initial_balance"`
	MovementsTotal      decimal.Decimal `json:"movements_total"`
	FinalBalance        decimal.Decimal `json:"final_balance"`
	CalculatedShrinkage decimal.Decimal `json:"calculated_shrinkage"`
	ActualShrinkage     decimal.Decimal `json:"actual_shrinkage"`
	ShrinkagePercentage decimal.Decimal `json:"shrinkage_percentage"`
	Variance            decimal.Decimal `json:"variance"`
	ExpectedRemaining   decimal.Decimal `json:"expected_remaining"`
	CalculatedAt        time.Time       `json:"calculated_at"`
}

// AuditResponse hallazgos de auditoría de un producto.
type AuditResponse struct {
	ProductID        string                   `json:"product_id"`
	NegativeBatches  []BatchResponse          `json:"negative_batches"`
	ExcessBatches    []BatchResponse          `json:"excess_batches"`
	ExternalBatches  []BatchResponse          `json:"external_batches"`
	Events           []ReconciliationResponse `json:"reconciliation_events"`
	Totals           TotalsResponse           `json:"totals"`
	ConservationHold bool                     `json:"conservation_holds"`
}

// BatchesFromEntity convierte lotes.
func BatchesFromEntity(bs []entity.Batch) []BatchResponse {
	out := make([]BatchResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, BatchResponse{
			ID:          b.ID,
			ArrivalDate: b.ArrivalDate,
			Initial:     b.Initial,
			Sold:        b.Sold,
			Adjusted:    b.Adjusted,
			Remaining:   b.Remaining,
			IsExternal:  b.IsExternal,
		})
	}
	return out
}

// EventsFromEntity convierte eventos de conciliación.
func EventsFromEntity(evs []entity.ReconciliationEvent) []ReconciliationResponse {
	out := make([]ReconciliationResponse, 0, len(evs))
	for _, e := range evs {
		out = append(out, ReconciliationResponse{
			ID:              e.ID,
			ExternalBatchID: e.ExternalBatchID,
			Date:            e.Date,
			Shortfall:       e.Shortfall,
			Absorbed:        e.Absorbed,
			SaleDocument:    e.SaleDocument,
			Reused:          e.Reused,
		})
	}
	return out
}

// CoefficientsFromEntity convierte coeficientes.
func CoefficientsFromEntity(c entity.ShrinkageCoefficients) CoefficientsResponse {
	return CoefficientsResponse{
		ProductID:    c.ProductID,
		A:            c.A,
		B:            c.B,
		C:            c.C,
		Status:       c.Status,
		RMSE:         c.RMSE,
		DataPoints:   c.DataPoints,
		Iterations:   c.Iterations,
		RunID:        c.RunID,
		CalibratedAt: c.CalibratedAt,
		Message:      c.Message,
	}
}

// CalculationsFromEntity convierte cálculos.
func CalculationsFromEntity(cs []entity.ShrinkageCalculation) []CalculationResponse {
	out := make([]CalculationResponse, 0, len(cs))
	for _, c := range cs {
		out = append(out, CalculationResponse{
			ProductID:           c.ProductID,
			BatchID:             c.BatchID,
			IsExternal:          c.IsExternal,
			Strategy:            c.Strategy,
			Status:              c.Status,
			SkipReason:          c.SkipReason,
			PeriodStart:         c.PeriodStart,
			PeriodEnd:           c.PeriodEnd,
			ElapsedDays:         c.ElapsedDays,
			InitialBalance:      c.InitialBalance,
			MovementsTotal:      c.MovementsTotal,
			FinalBalance:        c.FinalBalance,
			CalculatedShrinkage: c.CalculatedShrinkage,
			ActualShrinkage:     c.ActualShrinkage,
			ShrinkagePercentage: c.ShrinkagePercentage,
			Variance:            c.Variance,
			ExpectedRemaining:   c.ExpectedRemaining,
			CalculatedAt:        c.CalculatedAt,
		})
	}
	return out
}

// AuditFromReport convierte un informe de auditoría.
func AuditFromReport(r ledger.AuditReport) AuditResponse {
	return AuditResponse{
		ProductID:        r.ProductID,
		NegativeBatches:  BatchesFromEntity(r.NegativeBatches),
		ExcessBatches:    BatchesFromEntity(r.ExcessBatches),
		ExternalBatches:  BatchesFromEntity(r.ExternalBatches),
		Events:           EventsFromEntity(r.Events),
		Totals:           TotalsFromLedger(r.Totals),
		ConservationHold: r.ConservationHold,
	}
}

// TotalsFromLedger convierte los totales del ledger.
func TotalsFromLedger(t ledger.Totals) TotalsResponse {
	return TotalsResponse{
		Received:  t.Received,
		External:  t.External,
		Sold:      t.Sold,
		Adjusted:  t.Adjusted,
		Remaining: t.Remaining,
	}
}
