package dto

// PageRequest paginación del catálogo. Limit 0 = DefaultPageLimit.
type PageRequest struct {
	Limit  int `query:"limit" validate:"min=0,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// DefaultPageLimit tamaño de página cuando no se pide uno.
const DefaultPageLimit = 20

// EffectiveLimit devuelve el límite pedido o el de por defecto.
func (p PageRequest) EffectiveLimit() int {
	if p.Limit == 0 {
		return DefaultPageLimit
	}
	return p.Limit
}

// HistoryRequest límite del historial de cálculos. Limit 0 = DefaultHistoryLimit.
type HistoryRequest struct {
	Limit int `query:"limit" validate:"min=0,max=500"`
}

// DefaultHistoryLimit cálculos devueltos cuando no se pide un límite.
const DefaultHistoryLimit = 50

// EffectiveLimit devuelve el límite pedido o el de por defecto.
func (h HistoryRequest) EffectiveLimit() int {
	if h.Limit == 0 {
		return DefaultHistoryLimit
	}
	return h.Limit
}

// PageResponse metadatos de página en respuestas.
type PageResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total,omitempty"`
}

// ErrorResponse cuerpo de error HTTP. Fields lista los campos inválidos de un request.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
