package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de movimiento de inventario.
const (
	MovementTypeReceipt    = "RECEIPT"    // entrada de un lote
	MovementTypeSale       = "SALE"       // salida por venta
	MovementTypeAdjustment = "ADJUSTMENT" // ajuste por conteo físico
)

// Modos de ajuste.
const (
	AdjustmentOffset = "OFFSET" // Quantity es un delta con signo
	AdjustmentSet    = "SET"    // Quantity es la cantidad contada
)

// Movement representa un movimiento normalizado proveniente de la ingesta.
// Es inmutable una vez ingerido; el orden por fecha es significativo.
type Movement struct {
	ID             string
	ProductID      string
	WarehouseID    string
	Date           time.Time
	Type           string
	Quantity       decimal.Decimal // > 0 en RECEIPT y SALE; con signo en ADJUSTMENT/OFFSET
	BatchRef       string          // opcional; vacío = resolución FIFO
	AdjustmentMode string          // solo ADJUSTMENT; vacío equivale a OFFSET
	Document       string          // documento fuente (factura, acta de inventario)
}

// IsReceipt, IsSale, IsAdjustment ayudan en los switch de la ingesta.
func (m Movement) IsReceipt() bool    { return m.Type == MovementTypeReceipt }
func (m Movement) IsSale() bool       { return m.Type == MovementTypeSale }
func (m Movement) IsAdjustment() bool { return m.Type == MovementTypeAdjustment }
