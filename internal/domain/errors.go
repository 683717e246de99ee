package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound               = errors.New("recurso no encontrado")
	ErrInvalidInput           = errors.New("entrada inválida")
	ErrDuplicate              = errors.New("recurso duplicado")
	ErrUnauthorized           = errors.New("no autorizado")
	ErrForbidden              = errors.New("acceso denegado")
	ErrUnknownProduct         = errors.New("producto desconocido")
	ErrNonPositiveQuantity    = errors.New("la cantidad debe ser positiva")
	ErrAdjustmentExceedsStock = errors.New("el ajuste supera el saldo disponible")
	ErrDuplicateBatch         = errors.New("lote duplicado")
	ErrUnknownBatch           = errors.New("lote desconocido")
	ErrOutOfOrder             = errors.New("movimiento anterior al último aplicado")
	ErrInsufficientData       = errors.New("porciones insuficientes para calibrar")
	ErrFitNonConvergence      = errors.New("el ajuste no convergió")
	ErrMissingCoefficients    = errors.New("coeficientes ausentes o no calibrados")
	ErrUnknownStrategy        = errors.New("estrategia de cálculo desconocida")
)

// ValidationError describe un movimiento mal formado o inconsistente.
// Siempre se devuelve al llamador; nunca se corrige en silencio.
type ValidationError struct {
	Index      int // posición del movimiento en la entrada, -1 si no aplica
	MovementID string
	ProductID  string
	Field      string
	Reason     string
	Err        error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("movimiento %d", e.Index)
	if e.MovementID != "" {
		msg += fmt.Sprintf(" (%s)", e.MovementID)
	}
	if e.Field != "" {
		msg += ", campo " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap permite errors.Is contra la causa concreta y contra ErrInvalidInput.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{e.Err, ErrInvalidInput}
}

// IsValidation indica si err es (o envuelve) un ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
