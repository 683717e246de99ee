package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de un cálculo de merma.
const (
	CalculationComputed = "COMPUTED"
	CalculationSkipped  = "SKIPPED"
)

// ShrinkageCalculation es el resultado de pronóstico para un lote. No se muta después de creado.
type ShrinkageCalculation struct {
	ProductID           string
	BatchID             string
	IsExternal          bool
	Strategy            string
	Status              string
	SkipReason          string
	PeriodStart         time.Time
	PeriodEnd           time.Time
	ElapsedDays         int
	InitialBalance      decimal.Decimal
	MovementsTotal      decimal.Decimal // ventas del periodo, con signo negativo
	FinalBalance        decimal.Decimal // saldo contado al cierre del periodo
	CalculatedShrinkage decimal.Decimal // merma por modelo
	ActualShrinkage     decimal.Decimal // Initial + Movements - Final
	ShrinkagePercentage decimal.Decimal // Calculated / Initial * 100
	Variance            decimal.Decimal // Actual - Calculated
	ExpectedRemaining   decimal.Decimal // Initial + Movements - Calculated
	CalculatedAt        time.Time
}
