package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/shrinkage"
)

// BatchState es un lote reconstruido a una fecha de corte, con sus ventas hasta esa fecha.
type BatchState struct {
	Batch entity.Batch
	Sales []entity.Sale
}

// StateAt reproduce el ledger hasta asOf (inclusive): lotes llegados hasta esa fecha,
// con Sold, Adjusted y Remaining calculados solo con ventas y ajustes no posteriores.
func (l *Ledger) StateAt(asOf time.Time) []BatchState {
	salesByBatch := make(map[string][]entity.Sale)
	for _, s := range l.sales {
		if !s.Date.After(asOf) {
			salesByBatch[s.BatchID] = append(salesByBatch[s.BatchID], s)
		}
	}
	adjByBatch := make(map[string]decimal.Decimal)
	for _, a := range l.adjustments {
		if !a.Date.After(asOf) {
			adjByBatch[a.BatchID] = adjByBatch[a.BatchID].Add(a.Delta)
		}
	}

	var out []BatchState
	for _, b := range l.ordered() {
		if b.ArrivalDate.After(asOf) {
			continue
		}
		st := *b
		st.Sold = decimal.Zero
		for _, s := range salesByBatch[b.ID] {
			st.Sold = st.Sold.Add(s.Quantity)
		}
		if b.IsExternal {
			// el lote externo crece con cada faltante; su inicial es lo vendido hasta la fecha
			st.Initial = st.Sold
		}
		st.Adjusted = adjByBatch[b.ID]
		st.Remaining = st.Initial.Sub(st.Sold).Add(st.Adjusted)
		out = append(out, BatchState{Batch: st, Sales: salesByBatch[b.ID]})
	}
	return out
}

// Portions devuelve las porciones de calibración: una por venta de cada lote cerrado.
// La merma contada del lote (ajustes netos negativos) se reparte entre sus ventas en
// proporción a la cantidad vendida. Los lotes externos siguen Options.ExternalElapsed.
func (l *Ledger) Portions() []entity.Portion {
	salesByBatch := make(map[string][]entity.Sale)
	for _, s := range l.sales {
		salesByBatch[s.BatchID] = append(salesByBatch[s.BatchID], s)
	}

	var out []entity.Portion
	for _, b := range l.ordered() {
		sales := salesByBatch[b.ID]
		if !b.Closed() || len(sales) == 0 {
			continue
		}
		if b.IsExternal && l.opts.ExternalElapsed != ExternalZero {
			continue
		}
		if b.Sold.IsZero() {
			continue
		}
		loss := b.WriteDown()
		for _, s := range sales {
			t := 0.0
			if !b.IsExternal {
				t = float64(shrinkage.ElapsedDays(b.ArrivalDate, s.Date))
			}
			share := loss.Mul(s.Quantity).Div(b.Sold)
			out = append(out, entity.Portion{
				ProductID:    l.productID,
				BatchID:      b.ID,
				SaleID:       s.ID,
				Quantity:     s.Quantity.InexactFloat64(),
				ElapsedDays:  t,
				ObservedLoss: share.InexactFloat64(),
			})
		}
	}
	return out
}

// Snapshot es el estado persistible de un ledger para reanudar entre corridas.
type Snapshot struct {
	ProductID   string
	Batches     []entity.Batch
	Sales       []entity.Sale
	Adjustments []entity.Adjustment
	Events      []entity.ReconciliationEvent
	LastDate    time.Time
}

// Snapshot copia el estado actual.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		ProductID:   l.productID,
		Batches:     l.Batches(),
		Sales:       l.Sales(),
		Adjustments: l.Adjustments(),
		Events:      l.Events(),
		LastDate:    l.lastDate,
	}
}

// Restore reconstruye un ledger desde un snapshot persistido. Las fechas quedan en UTC.
func Restore(s Snapshot, opts Options) (*Ledger, error) {
	l := New(s.ProductID, opts)
	for i := range s.Batches {
		b := s.Batches[i]
		b.ArrivalDate = b.ArrivalDate.UTC()
		if b.ProductID != s.ProductID {
			return nil, fmt.Errorf("snapshot: lote %s pertenece a %s", b.ID, b.ProductID)
		}
		if _, dup := l.byID[b.ID]; dup {
			return nil, fmt.Errorf("snapshot: lote %s duplicado", b.ID)
		}
		if b.Remaining.IsNegative() || !b.Remaining.Equal(b.Initial.Sub(b.Sold).Add(b.Adjusted)) {
			return nil, fmt.Errorf("snapshot: lote %s con saldo inconsistente", b.ID)
		}
		l.batches = append(l.batches, &b)
		l.byID[b.ID] = &b
		if b.Sequence > l.seq {
			l.seq = b.Sequence
		}
		if b.IsExternal {
			l.externalSeq++
		}
	}
	for _, sale := range s.Sales {
		sale.Date = sale.Date.UTC()
		l.sales = append(l.sales, sale)
	}
	for _, a := range s.Adjustments {
		a.Date = a.Date.UTC()
		l.adjustments = append(l.adjustments, a)
	}
	for _, e := range s.Events {
		e.Date = e.Date.UTC()
		l.events = append(l.events, e)
	}
	l.saleSeq = len(s.Sales)
	if !s.LastDate.IsZero() {
		l.lastDate = s.LastDate.UTC()
	}
	return l, nil
}

// AuditReport reúne los hallazgos de auditoría de saldos de un producto.
type AuditReport struct {
	ProductID        string
	NegativeBatches  []entity.Batch
	ExcessBatches    []entity.Batch
	ExternalBatches  []entity.Batch
	Events           []entity.ReconciliationEvent
	Totals           Totals
	ConservationHold bool
}

// Audit revisa saldos negativos, saldos por encima de excessThreshold (cero = sin control),
// lotes externos y la conservación Σremaining = Σinitial − Σsold + Σadjusted.
func (l *Ledger) Audit(excessThreshold decimal.Decimal) AuditReport {
	r := AuditReport{ProductID: l.productID, Events: l.Events(), Totals: l.Totals(), ConservationHold: true}
	for _, b := range l.ordered() {
		if b.Remaining.IsNegative() {
			r.NegativeBatches = append(r.NegativeBatches, *b)
		}
		if excessThreshold.IsPositive() && b.Remaining.GreaterThan(excessThreshold) {
			r.ExcessBatches = append(r.ExcessBatches, *b)
		}
		if b.IsExternal {
			r.ExternalBatches = append(r.ExternalBatches, *b)
		}
		if !b.Remaining.Equal(b.Initial.Sub(b.Sold).Add(b.Adjusted)) {
			r.ConservationHold = false
		}
	}
	t := r.Totals
	if !t.Remaining.Equal(t.Received.Add(t.External).Sub(t.Sold).Add(t.Adjusted)) {
		r.ConservationHold = false
	}
	return r
}
