package entity

// Portion es una venta tratada como cantidad independiente que merma con el tiempo.
// Es la unidad de calibración.
type Portion struct {
	ProductID    string
	BatchID      string
	SaleID       string
	Quantity     float64 // m
	ElapsedDays  float64 // t: días entre la llegada del lote y la venta
	ObservedLoss float64 // merma contada atribuida a la porción
}
