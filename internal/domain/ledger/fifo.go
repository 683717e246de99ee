package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// available devuelve los lotes con saldo en orden de consumo.
// Con external=false solo lotes conocidos; con true solo externos.
func (l *Ledger) available(external bool) []*entity.Batch {
	var out []*entity.Batch
	for _, b := range l.ordered() {
		if b.IsExternal == external && b.Remaining.IsPositive() {
			out = append(out, b)
		}
	}
	return out
}

// applySale consume lotes conocidos en FIFO. Lo que exceda su saldo es faltante:
// primero lo cubre el stock de lotes externos y el resto va a un lote externo del día.
func (l *Ledger) applySale(m entity.Movement) error {
	pending := m.Quantity

	if m.BatchRef != "" {
		b, ok := l.byID[m.BatchRef]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownBatch, m.BatchRef)
		}
		if !b.IsExternal {
			pending = pending.Sub(l.deplete(b, pending, m))
		}
	}
	for _, b := range l.available(false) {
		if !pending.IsPositive() {
			break
		}
		pending = pending.Sub(l.deplete(b, pending, m))
	}
	if !pending.IsPositive() {
		return nil
	}

	shortfall := pending
	var lastExternal string
	if m.BatchRef != "" {
		if b := l.byID[m.BatchRef]; b.IsExternal {
			if took := l.deplete(b, pending, m); took.IsPositive() {
				pending = pending.Sub(took)
				lastExternal = b.ID
			}
		}
	}
	for _, b := range l.available(true) {
		if !pending.IsPositive() {
			break
		}
		pending = pending.Sub(l.deplete(b, pending, m))
		lastExternal = b.ID
	}
	l.reconcile(m, shortfall, shortfall.Sub(pending), lastExternal)
	return nil
}

// deplete consume hasta want del lote b y registra la porción de venta. Devuelve lo consumido.
func (l *Ledger) deplete(b *entity.Batch, want decimal.Decimal, m entity.Movement) decimal.Decimal {
	take := decimal.Min(want, b.Remaining)
	if !take.IsPositive() {
		return decimal.Zero
	}
	b.Remaining = b.Remaining.Sub(take)
	b.Sold = b.Sold.Add(take)
	l.recordSale(b, take, m)
	return take
}

func (l *Ledger) recordSale(b *entity.Batch, qty decimal.Decimal, m entity.Movement) {
	l.saleSeq++
	l.sales = append(l.sales, entity.Sale{
		ID:        fmt.Sprintf("%s-S%05d", l.productID, l.saleSeq),
		ProductID: l.productID,
		BatchID:   b.ID,
		Date:      m.Date,
		Quantity:  qty,
		Document:  m.Document,
		External:  b.IsExternal,
	})
}

// reconcile registra el evento del faltante. Lo no absorbido se carga a un lote externo
// fechado el día de la venta; si ya existe uno de ese día se reutiliza aumentando su cantidad inicial.
func (l *Ledger) reconcile(m entity.Movement, shortfall, absorbed decimal.Decimal, lastExternal string) {
	rest := shortfall.Sub(absorbed)
	if !rest.IsPositive() {
		l.events = append(l.events, entity.ReconciliationEvent{
			ID:              fmt.Sprintf("%s-R%04d", l.productID, len(l.events)+1),
			ProductID:       l.productID,
			ExternalBatchID: lastExternal,
			Date:            m.Date,
			Shortfall:       shortfall,
			Absorbed:        absorbed,
			SaleDocument:    m.Document,
			Reused:          true,
		})
		return
	}

	var ext *entity.Batch
	for _, b := range l.batches {
		if b.IsExternal && sameDay(b.ArrivalDate, m.Date) {
			ext = b
			break
		}
	}
	reused := ext != nil
	if ext == nil {
		l.seq++
		l.externalSeq++
		ext = &entity.Batch{
			ID:          fmt.Sprintf("EXT-%s-%d", l.productID, l.externalSeq),
			ProductID:   l.productID,
			WarehouseID: m.WarehouseID,
			ArrivalDate: m.Date,
			Sequence:    l.seq,
			Initial:     decimal.Zero,
			Remaining:   decimal.Zero,
			Sold:        decimal.Zero,
			Adjusted:    decimal.Zero,
			IsExternal:  true,
		}
		l.batches = append(l.batches, ext)
		l.byID[ext.ID] = ext
	}
	ext.Initial = ext.Initial.Add(rest)
	ext.Sold = ext.Sold.Add(rest)
	l.recordSale(ext, rest, m)

	l.events = append(l.events, entity.ReconciliationEvent{
		ID:              fmt.Sprintf("%s-R%04d", l.productID, len(l.events)+1),
		ProductID:       l.productID,
		ExternalBatchID: ext.ID,
		Date:            m.Date,
		Shortfall:       shortfall,
		Absorbed:        absorbed,
		SaleDocument:    m.Document,
		Reused:          reused,
	})
}

func (l *Ledger) applyAdjustment(m entity.Movement) error {
	if m.AdjustmentMode == entity.AdjustmentSet {
		return l.applyCount(m)
	}
	return l.applyOffset(m, m.Quantity)
}

// applyCount convierte una cantidad contada en un delta contra el lote o el total del producto.
func (l *Ledger) applyCount(m entity.Movement) error {
	current := decimal.Zero
	if m.BatchRef != "" {
		b, ok := l.byID[m.BatchRef]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownBatch, m.BatchRef)
		}
		current = b.Remaining
	} else {
		current = l.Totals().Remaining
	}
	delta := m.Quantity.Sub(current)
	if delta.IsZero() {
		return nil
	}
	return l.applyOffset(m, delta)
}

func (l *Ledger) applyOffset(m entity.Movement, delta decimal.Decimal) error {
	if delta.IsPositive() {
		target, err := l.adjustTarget(m.BatchRef)
		if err != nil {
			return err
		}
		l.adjust(target, delta, m)
		return nil
	}

	need := delta.Neg()
	if m.BatchRef != "" {
		b, ok := l.byID[m.BatchRef]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownBatch, m.BatchRef)
		}
		if b.Remaining.LessThan(need) {
			return fmt.Errorf("%w: lote %s tiene %s, ajuste %s", domain.ErrAdjustmentExceedsStock, b.ID, b.Remaining, need)
		}
		l.adjust(b, delta, m)
		return nil
	}

	if total := l.Totals().Remaining; total.LessThan(need) {
		return fmt.Errorf("%w: saldo %s, ajuste %s", domain.ErrAdjustmentExceedsStock, total, need)
	}
	candidates := append(l.available(false), l.available(true)...)
	for _, b := range candidates {
		if !need.IsPositive() {
			break
		}
		take := decimal.Min(need, b.Remaining)
		l.adjust(b, take.Neg(), m)
		need = need.Sub(take)
	}
	return nil
}

// adjustTarget elige el lote que recibe un ajuste positivo: el indicado o el conocido más reciente.
func (l *Ledger) adjustTarget(ref string) (*entity.Batch, error) {
	if ref != "" {
		b, ok := l.byID[ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownBatch, ref)
		}
		return b, nil
	}
	var newest *entity.Batch
	for _, b := range l.ordered() {
		if !b.IsExternal {
			newest = b
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("%w: no hay lotes para recibir el ajuste", domain.ErrUnknownBatch)
	}
	return newest, nil
}

func (l *Ledger) adjust(b *entity.Batch, delta decimal.Decimal, m entity.Movement) {
	b.Adjusted = b.Adjusted.Add(delta)
	b.Remaining = b.Remaining.Add(delta)
	l.adjustments = append(l.adjustments, entity.Adjustment{
		BatchID:  b.ID,
		Date:     m.Date,
		Delta:    delta,
		Document: m.Document,
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
