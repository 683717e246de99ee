package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Batch es un lote de llegada de un producto.
// Remaining = Initial - Sold + Adjusted y nunca es negativo.
type Batch struct {
	ID          string
	ProductID   string
	WarehouseID string
	ArrivalDate time.Time
	Sequence    int // orden de creación dentro del producto; desempata llegadas el mismo día
	Initial     decimal.Decimal
	Remaining   decimal.Decimal
	Sold        decimal.Decimal
	Adjusted    decimal.Decimal // suma con signo de los ajustes aplicados
	IsExternal  bool            // lote sintético creado por conciliación, sin RECEIPT
}

// Closed indica que el lote ya no tiene saldo.
func (b Batch) Closed() bool {
	return b.Remaining.IsZero()
}

// WriteDown devuelve la merma contada del lote (ajustes netos negativos), nunca negativa.
func (b Batch) WriteDown() decimal.Decimal {
	if b.Adjusted.IsNegative() {
		return b.Adjusted.Neg()
	}
	return decimal.Zero
}

// Sale es la porción de una venta que agotó un lote concreto después de la resolución FIFO.
type Sale struct {
	ID        string
	ProductID string
	BatchID   string
	Date      time.Time
	Quantity  decimal.Decimal
	Document  string
	External  bool // la porción se cargó a un lote externo
}

// Adjustment es un ajuste ya resuelto contra un lote.
type Adjustment struct {
	BatchID  string
	Date     time.Time
	Delta    decimal.Decimal
	Document string
}
