package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationEvent registra una venta que superó el saldo de los lotes conocidos.
// No es un error: es una discrepancia de datos que debe poder enumerarse.
// Shortfall es el exceso completo; Absorbed la parte que cubrió stock externo ya existente.
// ExternalBatchID es el lote que recibió el resto, o el último externo consumido si no hubo resto.
type ReconciliationEvent struct {
	ID              string
	ProductID       string
	ExternalBatchID string
	Date            time.Time
	Shortfall       decimal.Decimal
	Absorbed        decimal.Decimal
	SaleDocument    string
	Reused          bool // el lote externo ya existía para esa fecha
}
