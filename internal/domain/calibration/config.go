// Package calibration ajusta los coeficientes (a, b, c) de la curva de merma por producto
// con mínimos cuadrados no lineales acotados sobre las porciones de venta del ledger.
package calibration

import (
	"fmt"
	"math"

	"github.com/jhoicas/merma-api/internal/domain/shrinkage"
)

// Range es un intervalo cerrado [Min, Max].
type Range struct {
	Min float64
	Max float64
}

func (r Range) clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

func (r Range) mid() float64 { return (r.Min + r.Max) / 2 }

// Bounds acota cada coeficiente.
type Bounds struct {
	A Range
	B Range
	C Range
}

// Config parametriza el ajuste.
type Config struct {
	MinPortions   int
	MaxIterations int
	Tolerance     float64
	Bounds        Bounds
}

// DefaultConfig devuelve los parámetros por defecto.
func DefaultConfig() Config {
	return Config{
		MinPortions:   3,
		MaxIterations: 200,
		Tolerance:     1e-10,
		Bounds: Bounds{
			A: Range{Min: 0, Max: 0.5},
			B: Range{Min: 0.001, Max: 1},
			C: Range{Min: 0, Max: 0.1},
		},
	}
}

// Validate revisa que las cotas respeten el dominio del modelo (a ≥ 0, b > 0, c ≥ 0).
func (c Config) Validate() error {
	if c.MinPortions < 1 {
		return fmt.Errorf("calibration: min_portions debe ser >= 1")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("calibration: max_iterations debe ser >= 1")
	}
	if !(c.Tolerance > 0) {
		return fmt.Errorf("calibration: tolerance debe ser > 0")
	}
	b := c.Bounds
	for name, r := range map[string]Range{"a": b.A, "b": b.B, "c": b.C} {
		if r.Min > r.Max {
			return fmt.Errorf("calibration: cota de %s invertida [%g, %g]", name, r.Min, r.Max)
		}
	}
	if b.A.Min < 0 || b.C.Min < 0 {
		return fmt.Errorf("calibration: a y c no pueden acotarse por debajo de 0")
	}
	if b.B.Min <= 0 {
		return fmt.Errorf("calibration: b debe acotarse estrictamente por encima de 0")
	}
	return nil
}

// InitialGuess es el punto de partida fijo del ajuste: el centro de cada intervalo.
func (c Config) InitialGuess() shrinkage.Coefficients {
	return shrinkage.Coefficients{A: c.Bounds.A.mid(), B: c.Bounds.B.mid(), C: c.Bounds.C.mid()}
}

func (c Config) clamp(k shrinkage.Coefficients) shrinkage.Coefficients {
	return shrinkage.Coefficients{
		A: c.Bounds.A.clamp(k.A),
		B: c.Bounds.B.clamp(k.B),
		C: c.Bounds.C.clamp(k.C),
	}
}
