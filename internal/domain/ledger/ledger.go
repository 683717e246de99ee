// Package ledger mantiene el saldo por lote de un producto aplicando movimientos
// ordenados por fecha con consumo FIFO entre lotes del mismo producto.
//
// Invariantes:
//   - Remaining = Initial - Sold + Adjusted en cada lote y nunca es negativo.
//   - Los lotes conocidos se consumen por (ArrivalDate, Sequence) ascendente.
//   - Los lotes externos van después de todos los conocidos y entre ellos también por FIFO.
//   - Una venta que supera el saldo disponible genera un lote externo y un
//     ReconciliationEvent; nunca se recorta en silencio.
//
// Un Ledger pertenece a un único producto y no es seguro para uso concurrente;
// el llamador serializa Apply (ver application/shrinkage.Registry).
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// Políticas de tiempo transcurrido para porciones de lotes externos.
const (
	ExternalExclude = "exclude" // sin historia previa: no participan en la calibración
	ExternalZero    = "zero"    // se calibran con t = 0 (llegada = fecha de venta)
)

// Options configura un Ledger.
type Options struct {
	ExternalElapsed string
}

// DefaultOptions devuelve las opciones por defecto.
func DefaultOptions() Options {
	return Options{ExternalElapsed: ExternalExclude}
}

// Ledger es el agregado de lotes de un producto.
type Ledger struct {
	productID string
	opts      Options

	batches     []*entity.Batch
	byID        map[string]*entity.Batch
	sales       []entity.Sale
	adjustments []entity.Adjustment
	events      []entity.ReconciliationEvent

	seq         int // último Sequence asignado
	externalSeq int
	saleSeq     int
	lastDate    time.Time
}

// Result resume una llamada a Apply.
type Result struct {
	ProductID string
	Applied   int
	Batches   []entity.Batch               // estado de todos los lotes después de aplicar
	Sales     []entity.Sale                // porciones de venta creadas en esta llamada
	Events    []entity.ReconciliationEvent // conciliaciones creadas en esta llamada
}

// Totals agrega las cantidades del producto.
type Totals struct {
	Received  decimal.Decimal // Σ Initial de lotes conocidos
	External  decimal.Decimal // Σ Initial de lotes externos
	Sold      decimal.Decimal
	Adjusted  decimal.Decimal
	Remaining decimal.Decimal
}

// New crea un ledger vacío para productID.
func New(productID string, opts Options) *Ledger {
	if opts.ExternalElapsed == "" {
		opts.ExternalElapsed = ExternalExclude
	}
	return &Ledger{
		productID: productID,
		opts:      opts,
		byID:      make(map[string]*entity.Batch),
	}
}

// ProductID devuelve el producto del ledger.
func (l *Ledger) ProductID() string { return l.productID }

// LastDate devuelve la fecha del último movimiento aplicado.
func (l *Ledger) LastDate() time.Time { return l.lastDate }

// Apply valida y aplica los movimientos en orden de fecha (estable: orden de entrada).
// La llamada es atómica: ante el primer error el ledger queda sin cambios.
func (l *Ledger) Apply(movements []entity.Movement) (*Result, error) {
	type indexed struct {
		idx int
		mov entity.Movement
	}
	ordered := make([]indexed, len(movements))
	for i, m := range movements {
		if err := l.validate(i, m); err != nil {
			return nil, err
		}
		ordered[i] = indexed{idx: i, mov: m}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].mov.Date.Before(ordered[j].mov.Date)
	})

	work := l.clone()
	salesBefore, eventsBefore := len(work.sales), len(work.events)
	for _, o := range ordered {
		var err error
		switch o.mov.Type {
		case entity.MovementTypeReceipt:
			err = work.applyReceipt(o.mov)
		case entity.MovementTypeSale:
			err = work.applySale(o.mov)
		case entity.MovementTypeAdjustment:
			err = work.applyAdjustment(o.mov)
		}
		if err != nil {
			return nil, wrapValidation(o.idx, o.mov, err)
		}
		work.lastDate = o.mov.Date
	}

	*l = *work
	return &Result{
		ProductID: l.productID,
		Applied:   len(movements),
		Batches:   l.Batches(),
		Sales:     append([]entity.Sale(nil), l.sales[salesBefore:]...),
		Events:    append([]entity.ReconciliationEvent(nil), l.events[eventsBefore:]...),
	}, nil
}

// QuantityScale es la cantidad máxima de decimales de una cantidad; coincide con NUMERIC(18, 6).
const QuantityScale = 6

func (l *Ledger) validate(i int, m entity.Movement) error {
	verr := func(field, reason string, cause error) error {
		return &domain.ValidationError{Index: i, MovementID: m.ID, ProductID: m.ProductID, Field: field, Reason: reason, Err: cause}
	}
	if m.ProductID != l.productID {
		return verr("product_id", fmt.Sprintf("%q no pertenece al ledger %q", m.ProductID, l.productID), domain.ErrUnknownProduct)
	}
	if m.Date.IsZero() {
		return verr("date", "fecha requerida", nil)
	}
	if !l.lastDate.IsZero() && m.Date.Before(l.lastDate) {
		return verr("date", fmt.Sprintf("%s anterior a %s", m.Date.Format(time.DateOnly), l.lastDate.Format(time.DateOnly)), domain.ErrOutOfOrder)
	}
	if !m.Quantity.Equal(m.Quantity.Round(QuantityScale)) {
		return verr("quantity", fmt.Sprintf("%s tiene más de %d decimales", m.Quantity, QuantityScale), nil)
	}
	switch m.Type {
	case entity.MovementTypeReceipt, entity.MovementTypeSale:
		if !m.Quantity.IsPositive() {
			return verr("quantity", m.Quantity.String(), domain.ErrNonPositiveQuantity)
		}
	case entity.MovementTypeAdjustment:
		switch m.AdjustmentMode {
		case "", entity.AdjustmentOffset:
			if m.Quantity.IsZero() {
				return verr("quantity", "delta de ajuste en cero", nil)
			}
		case entity.AdjustmentSet:
			if m.Quantity.IsNegative() {
				return verr("quantity", "cantidad contada negativa", domain.ErrNonPositiveQuantity)
			}
		default:
			return verr("adjustment_mode", m.AdjustmentMode, nil)
		}
	default:
		return verr("type", fmt.Sprintf("tipo %q desconocido", m.Type), nil)
	}
	return nil
}

func wrapValidation(i int, m entity.Movement, err error) error {
	if domain.IsValidation(err) {
		return err
	}
	return &domain.ValidationError{Index: i, MovementID: m.ID, ProductID: m.ProductID, Err: err}
}

func (l *Ledger) applyReceipt(m entity.Movement) error {
	id := m.BatchRef
	if id == "" {
		id = fmt.Sprintf("%s-B%03d", l.productID, l.seq+1)
	}
	if _, exists := l.byID[id]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateBatch, id)
	}
	l.seq++
	b := &entity.Batch{
		ID:          id,
		ProductID:   l.productID,
		WarehouseID: m.WarehouseID,
		ArrivalDate: m.Date,
		Sequence:    l.seq,
		Initial:     m.Quantity,
		Remaining:   m.Quantity,
		Sold:        decimal.Zero,
		Adjusted:    decimal.Zero,
	}
	l.batches = append(l.batches, b)
	l.byID[id] = b
	return nil
}

// Batches devuelve copias de todos los lotes en orden FIFO (conocidos primero, luego externos).
func (l *Ledger) Batches() []entity.Batch {
	out := make([]entity.Batch, 0, len(l.batches))
	for _, b := range l.ordered() {
		out = append(out, *b)
	}
	return out
}

// Batch devuelve una copia del lote id.
func (l *Ledger) Batch(id string) (entity.Batch, bool) {
	b, ok := l.byID[id]
	if !ok {
		return entity.Batch{}, false
	}
	return *b, true
}

// Sales devuelve todas las porciones de venta en orden de aplicación.
func (l *Ledger) Sales() []entity.Sale {
	return append([]entity.Sale(nil), l.sales...)
}

// Adjustments devuelve los ajustes resueltos por lote.
func (l *Ledger) Adjustments() []entity.Adjustment {
	return append([]entity.Adjustment(nil), l.adjustments...)
}

// Events devuelve todos los eventos de conciliación.
func (l *Ledger) Events() []entity.ReconciliationEvent {
	return append([]entity.ReconciliationEvent(nil), l.events...)
}

// Totals suma las cantidades de todos los lotes.
func (l *Ledger) Totals() Totals {
	t := Totals{Received: decimal.Zero, External: decimal.Zero, Sold: decimal.Zero, Adjusted: decimal.Zero, Remaining: decimal.Zero}
	for _, b := range l.batches {
		if b.IsExternal {
			t.External = t.External.Add(b.Initial)
		} else {
			t.Received = t.Received.Add(b.Initial)
		}
		t.Sold = t.Sold.Add(b.Sold)
		t.Adjusted = t.Adjusted.Add(b.Adjusted)
		t.Remaining = t.Remaining.Add(b.Remaining)
	}
	return t
}

// ordered devuelve los lotes conocidos por (llegada, secuencia) seguidos de los externos.
func (l *Ledger) ordered() []*entity.Batch {
	out := append([]*entity.Batch(nil), l.batches...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsExternal != b.IsExternal {
			return !a.IsExternal
		}
		if !a.ArrivalDate.Equal(b.ArrivalDate) {
			return a.ArrivalDate.Before(b.ArrivalDate)
		}
		return a.Sequence < b.Sequence
	})
	return out
}

func (l *Ledger) clone() *Ledger {
	c := &Ledger{
		productID:   l.productID,
		opts:        l.opts,
		batches:     make([]*entity.Batch, 0, len(l.batches)),
		byID:        make(map[string]*entity.Batch, len(l.byID)),
		sales:       append([]entity.Sale(nil), l.sales...),
		adjustments: append([]entity.Adjustment(nil), l.adjustments...),
		events:      append([]entity.ReconciliationEvent(nil), l.events...),
		seq:         l.seq,
		externalSeq: l.externalSeq,
		saleSeq:     l.saleSeq,
		lastDate:    l.lastDate,
	}
	for _, b := range l.batches {
		cp := *b
		c.batches = append(c.batches, &cp)
		c.byID[cp.ID] = &cp
	}
	return c
}
