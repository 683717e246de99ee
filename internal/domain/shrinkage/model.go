// Package shrinkage define la curva de merma compartida por calibración y pronóstico:
//
//	merma(m, t; a, b, c) = m · [a · (1 − e^(−b·t)) + c]
//
// m es la cantidad base, t los días transcurridos desde la llegada del lote.
// a es la fracción máxima que se suma con el tiempo, b la velocidad de saturación
// y c la merma base independiente del tiempo. Funciones puras, sin estado.
package shrinkage

import (
	"fmt"
	"math"
	"time"
)

// Coefficients agrupa (a, b, c) de un producto.
type Coefficients struct {
	A float64
	B float64
	C float64
}

// Validate exige a ≥ 0, b > 0, c ≥ 0 y valores finitos.
func (k Coefficients) Validate() error {
	for name, v := range map[string]float64{"a": k.A, "b": k.B, "c": k.C} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("coeficiente %s no finito", name)
		}
	}
	if k.A < 0 {
		return fmt.Errorf("a debe ser >= 0 (%g)", k.A)
	}
	if k.B <= 0 {
		return fmt.Errorf("b debe ser > 0 (%g)", k.B)
	}
	if k.C < 0 {
		return fmt.Errorf("c debe ser >= 0 (%g)", k.C)
	}
	return nil
}

// Fraction devuelve la fracción de merma acumulada a los t días: a(1 − e^(−bt)) + c.
func (k Coefficients) Fraction(t float64) float64 {
	if t < 0 {
		t = 0
	}
	return k.A*(1-math.Exp(-k.B*t)) + k.C
}

// Loss devuelve la merma de una cantidad m a los t días.
func (k Coefficients) Loss(m, t float64) float64 {
	return m * k.Fraction(t)
}

// Partials devuelve las derivadas parciales de Loss respecto de a, b y c.
func (k Coefficients) Partials(m, t float64) (da, db, dc float64) {
	if t < 0 {
		t = 0
	}
	e := math.Exp(-k.B * t)
	return m * (1 - e), m * k.A * t * e, m
}

// DailyIncrement es la fracción que se agrega en el día d de almacenamiento.
// El día 0 aporta c; cada día siguiente aporta F(d) − F(d−1).
// La suma de los días 0..T es exactamente Fraction(T).
func (k Coefficients) DailyIncrement(day int) float64 {
	if day <= 0 {
		return k.C
	}
	d := float64(day)
	return k.A * (math.Exp(-k.B*(d-1)) - math.Exp(-k.B*d))
}

// ElapsedDays devuelve los días calendario completos entre from y to (0 si to es anterior).
// Los días se cuentan en UTC, sin importar la zona de cada valor.
func ElapsedDays(from, to time.Time) int {
	f := truncateDay(from)
	t := truncateDay(to)
	if !t.After(f) {
		return 0
	}
	return int(math.Round(t.Sub(f).Hours() / 24))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
