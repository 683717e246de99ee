// Package csvimport lee exportaciones de movimientos en CSV (UTF-8 o Windows-1251).
//
// La primera fila es la cabecera; los nombres de columna no distinguen mayúsculas:
//
//	product_id, date, type, quantity        obligatorias
//	product_name, warehouse_id, batch_ref,
//	adjustment_mode, document               opcionales
//
// Las fechas aceptan 2006-01-02, 02.01.2006, 02/01/2006 y RFC 3339. Las cantidades
// aceptan coma decimal.
package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// Codificaciones soportadas.
const (
	EncodingAuto        = "auto"
	EncodingUTF8        = "utf-8"
	EncodingWindows1251 = "windows-1251"
)

var dateLayouts = []string{time.DateOnly, "02.01.2006", "02/01/2006", time.RFC3339, "2006-01-02 15:04:05"}

var typeAliases = map[string]string{
	"RECEIPT":    entity.MovementTypeReceipt,
	"IN":         entity.MovementTypeReceipt,
	"ENTRADA":    entity.MovementTypeReceipt,
	"SALE":       entity.MovementTypeSale,
	"OUT":        entity.MovementTypeSale,
	"VENTA":      entity.MovementTypeSale,
	"ADJUSTMENT": entity.MovementTypeAdjustment,
	"AJUSTE":     entity.MovementTypeAdjustment,
}

// Options controla la lectura. Comma = 0 detecta ',' o ';' en la cabecera.
type Options struct {
	Encoding string
	Comma    rune
	Location *time.Location
}

// Result agrupa lo leído del archivo.
type Result struct {
	Movements []entity.Movement
	Products  map[string]string // product_id -> product_name (vacío si la columna no existe)
	Encoding  string            // codificación efectiva
}

// ByProduct agrupa los movimientos por producto, conservando el orden del archivo.
func (r *Result) ByProduct() map[string][]entity.Movement {
	out := make(map[string][]entity.Movement)
	for _, m := range r.Movements {
		out[m.ProductID] = append(out[m.ProductID], m)
	}
	return out
}

// Read decodifica y parsea el CSV completo. Una fila mal formada detiene la lectura con un
// *domain.ValidationError cuyo Index es el número de línea de datos (desde 0).
func Read(r io.Reader, opts Options) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("leer csv: %w", err)
	}
	text, enc, err := decode(raw, opts.Encoding)
	if err != nil {
		return nil, err
	}
	text = bytes.TrimPrefix(text, []byte("\xef\xbb\xbf"))

	comma := opts.Comma
	if comma == 0 {
		comma = detectComma(text)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = comma
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: csv vacío", domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("leer cabecera: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"product_id", "date", "type", "quantity"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: falta la columna %s", domain.ErrInvalidInput, required)
		}
	}

	res := &Result{Products: make(map[string]string), Encoding: enc}
	for line := 0; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("leer fila %d: %w", line, err)
		}
		if blank(rec) {
			continue
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		m, err := parseRow(line, field, loc)
		if err != nil {
			return nil, err
		}
		if _, seen := res.Products[m.ProductID]; !seen || res.Products[m.ProductID] == "" {
			res.Products[m.ProductID] = field("product_name")
		}
		res.Movements = append(res.Movements, m)
	}
	return res, nil
}

func parseRow(line int, field func(string) string, loc *time.Location) (entity.Movement, error) {
	verr := func(name, reason string) error {
		return &domain.ValidationError{Index: line, ProductID: field("product_id"), Field: name, Reason: reason, Err: domain.ErrInvalidInput}
	}
	m := entity.Movement{
		ProductID:      field("product_id"),
		WarehouseID:    field("warehouse_id"),
		BatchRef:       field("batch_ref"),
		AdjustmentMode: strings.ToUpper(field("adjustment_mode")),
		Document:       field("document"),
	}
	if m.ProductID == "" {
		return m, verr("product_id", "vacío")
	}

	date, err := parseDate(field("date"), loc)
	if err != nil {
		return m, verr("date", err.Error())
	}
	m.Date = date

	typ, ok := typeAliases[strings.ToUpper(field("type"))]
	if !ok {
		return m, verr("type", fmt.Sprintf("tipo %q desconocido", field("type")))
	}
	m.Type = typ

	q, err := decimal.NewFromString(strings.ReplaceAll(strings.ReplaceAll(field("quantity"), " ", ""), ",", "."))
	if err != nil {
		return m, verr("quantity", fmt.Sprintf("%q no es un número", field("quantity")))
	}
	m.Quantity = q
	return m, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("fecha %q con formato desconocido", s)
}

// decode convierte raw a UTF-8. En modo auto se asume Windows-1251 si los bytes no son UTF-8 válido.
func decode(raw []byte, encoding string) ([]byte, string, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingAuto:
		if utf8.Valid(raw) {
			return raw, EncodingUTF8, nil
		}
		return decode(raw, EncodingWindows1251)
	case EncodingUTF8, "utf8":
		return raw, EncodingUTF8, nil
	case EncodingWindows1251, "cp1251":
		out, _, err := transform.Bytes(charmap.Windows1251.NewDecoder(), raw)
		if err != nil {
			return nil, "", fmt.Errorf("decodificar windows-1251: %w", err)
		}
		return out, EncodingWindows1251, nil
	}
	return nil, "", fmt.Errorf("%w: codificación %q no soportada", domain.ErrInvalidInput, encoding)
}

func detectComma(text []byte) rune {
	first, _, _ := bytes.Cut(text, []byte("\n"))
	if bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		return ';'
	}
	return ','
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
