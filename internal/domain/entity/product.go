package entity

import "time"

// Product representa una nomenclatura (SKU perecedero) cuyo inventario se sigue por lote de llegada.
type Product struct {
	ID        string
	Name      string
	Group     string // grupo de nomenclatura (ej. "Pescado seco")
	Unit      string // unidad de medida de las cantidades (kg, un)
	CreatedAt time.Time
}
