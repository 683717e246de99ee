// Package pdf genera el informe de merma en PDF.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Título + estrategia  │  Fecha de corte              │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RESUMEN: lotes calculados / omitidos / merma total          │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Producto | Lote | Días | Inicial | Merma | Final     │
//	│  ─────────────────────────────────────────────────────────  │
//	│  COEFICIENTES: Producto | a | b | c | Estado | RMSE          │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: corrida de calibración + QR                         │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorAlert   = &props.Color{Red: 170, Green: 40, Blue: 40}
)

// Report es el contenido del informe.
type Report struct {
	Title        string
	Strategy     string
	AsOf         time.Time
	Calculations []entity.ShrinkageCalculation
	Coefficients []entity.ShrinkageCoefficients
}

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator genera el informe usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateReport genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateReport(_ context.Context, r Report) ([]byte, error) {
	title := r.Title
	if title == "" {
		title = "Informe de merma"
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(title, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(title, r))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(summaryRow(r.Calculations))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(sectionRow("CÁLCULOS POR LOTE"))
	m.AddRows(calculationHeaderRow())
	m.AddRows(calculationRows(r.Calculations)...)

	if len(r.Coefficients) > 0 {
		m.AddRows(line.NewRow(3))
		m.AddRows(sectionRow("COEFICIENTES VIGENTES"))
		m.AddRows(coefficientHeaderRow())
		m.AddRows(coefficientRows(r.Coefficients)...)
	}

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRows(r.Coefficients)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func headerRow(title string, r Report) core.Row {
	return row.New(16).Add(
		col.New(8).Add(
			text.New(title, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("Estrategia: "+nonEmpty(r.Strategy, "—"), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(4).Add(
			text.New("FECHA DE CORTE", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New(r.AsOf.Format("02/01/2006"), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
		),
	)
}

func summaryRow(calcs []entity.ShrinkageCalculation) core.Row {
	computed, skipped := 0, 0
	total := decimal.Zero
	for _, c := range calcs {
		if c.Status == entity.CalculationSkipped {
			skipped++
			continue
		}
		computed++
		total = total.Add(c.CalculatedShrinkage)
	}
	return row.New(10).Add(
		col.New(4).Add(text.New(fmt.Sprintf("Lotes calculados: %d", computed), props.Text{Size: 9, Top: 2})),
		col.New(4).Add(text.New(fmt.Sprintf("Lotes omitidos: %d", skipped), props.Text{Size: 9, Top: 2, Color: colorAlert})),
		col.New(4).Add(text.New("Merma total: "+total.StringFixed(3), props.Text{
			Style: fontstyle.Bold, Size: 9, Top: 2, Align: align.Right,
		})),
	)
}

func sectionRow(label string) core.Row {
	return row.New(7).Add(col.New(12).Add(
		text.New(label, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
	))
}

func headerCell(label string, size int, a align.Type) core.Col {
	return col.New(size).Add(text.New(label, props.Text{
		Style: fontstyle.Bold, Size: 8, Align: a, Color: colorPrimary, Top: 2, Left: 1, Right: 1,
	}))
}

func cell(value string, size int, a align.Type, color *props.Color) core.Col {
	return col.New(size).Add(text.New(value, props.Text{
		Size: 8, Align: a, Top: 1, Left: 1, Right: 1, Color: color,
	}))
}

func calculationHeaderRow() core.Row {
	return row.New(8).Add(
		headerCell("Producto", 2, align.Left),
		headerCell("Lote", 3, align.Left),
		headerCell("Días", 1, align.Center),
		headerCell("Inicial", 2, align.Right),
		headerCell("Merma", 2, align.Right),
		headerCell("Final", 2, align.Right),
	)
}

// calculationRows: una fila por lote; los omitidos muestran el motivo en lugar de la merma.
func calculationRows(calcs []entity.ShrinkageCalculation) []core.Row {
	rows := make([]core.Row, 0, len(calcs))
	for _, c := range calcs {
		shrink, color := c.CalculatedShrinkage.StringFixed(3), (*props.Color)(nil)
		if c.Status == entity.CalculationSkipped {
			shrink, color = "omitido", colorAlert
		}
		batch := c.BatchID
		if c.IsExternal {
			batch += " (ext)"
		}
		rows = append(rows, row.New(6).Add(
			cell(c.ProductID, 2, align.Left, nil),
			cell(batch, 3, align.Left, nil),
			cell(fmt.Sprintf("%d", c.ElapsedDays), 1, align.Center, nil),
			cell(c.InitialBalance.StringFixed(3), 2, align.Right, nil),
			cell(shrink, 2, align.Right, color),
			cell(c.FinalBalance.StringFixed(3), 2, align.Right, nil),
		))
	}
	return rows
}

func coefficientHeaderRow() core.Row {
	return row.New(8).Add(
		headerCell("Producto", 3, align.Left),
		headerCell("a", 2, align.Right),
		headerCell("b", 2, align.Right),
		headerCell("c", 2, align.Right),
		headerCell("Estado", 2, align.Center),
		headerCell("RMSE", 1, align.Right),
	)
}

func coefficientRows(coeffs []entity.ShrinkageCoefficients) []core.Row {
	rows := make([]core.Row, 0, len(coeffs))
	for _, c := range coeffs {
		var color *props.Color
		if !c.Usable() {
			color = colorAlert
		}
		rows = append(rows, row.New(6).Add(
			cell(c.ProductID, 3, align.Left, nil),
			cell(fmt.Sprintf("%.5f", c.A), 2, align.Right, nil),
			cell(fmt.Sprintf("%.5f", c.B), 2, align.Right, nil),
			cell(fmt.Sprintf("%.5f", c.C), 2, align.Right, nil),
			cell(c.Status, 2, align.Center, color),
			cell(fmt.Sprintf("%.4f", c.RMSE), 1, align.Right, nil),
		))
	}
	return rows
}

// footerRows: identificador de la última corrida de calibración con su QR.
func footerRows(coeffs []entity.ShrinkageCoefficients) []core.Row {
	var runID string
	var at time.Time
	for _, c := range coeffs {
		if c.CalibratedAt.After(at) {
			runID, at = c.RunID, c.CalibratedAt
		}
	}
	if runID == "" {
		return []core.Row{row.New(8).Add(col.New(12).Add(
			text.New("Sin corrida de calibración registrada.", props.Text{Size: 7, Color: colorGray, Top: 2}),
		))}
	}
	return []core.Row{row.New(30).Add(
		col.New(3).Add(code.NewQr(runID, props.Rect{Percent: 95, Center: true})),
		col.New(9).Add(
			text.New("Corrida de calibración: "+runID, props.Text{Size: 8, Top: 4, Left: 3, Color: colorGray}),
			text.New("Calibrada el "+at.Format("02/01/2006 15:04"), props.Text{Size: 8, Top: 10, Left: 3, Color: colorGray}),
		),
	)}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
