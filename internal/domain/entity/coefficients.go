package entity

import "time"

// Estados del ajuste de coeficientes.
const (
	FitStatusConverged        = "CONVERGED"
	FitStatusFailed           = "FAILED"
	FitStatusInsufficientData = "INSUFFICIENT_DATA"
)

// ShrinkageCoefficients son los coeficientes (a, b, c) calibrados para un producto en una corrida.
type ShrinkageCoefficients struct {
	ProductID    string
	A            float64
	B            float64
	C            float64
	Status       string
	RMSE         float64
	DataPoints   int
	Iterations   int
	RunID        string
	CalibratedAt time.Time
	Message      string // motivo cuando Status != CONVERGED
}

// Usable indica si los coeficientes pueden alimentar un pronóstico.
func (c ShrinkageCoefficients) Usable() bool {
	return c.Status == FitStatusConverged
}
