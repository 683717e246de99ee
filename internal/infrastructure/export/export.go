// Package export escribe los cálculos de merma en JSON o Markdown.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhoicas/merma-api/internal/application/dto"
	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// Exporter escribe un lote de cálculos en w.
type Exporter interface {
	Export(w io.Writer, calcs []entity.ShrinkageCalculation) error
}

// JSON exporta el arreglo de cálculos con indentación.
type JSON struct{}

func (JSON) Export(w io.Writer, calcs []entity.ShrinkageCalculation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(dto.CalculationsFromEntity(calcs)); err != nil {
		return fmt.Errorf("export json: %w", err)
	}
	return nil
}

// Markdown exporta una tabla con la merma calculada, el saldo contado y la desviación.
type Markdown struct {
	Title string
}

func (m Markdown) Export(w io.Writer, calcs []entity.ShrinkageCalculation) error {
	title := m.Title
	if title == "" {
		title = "Informe de merma"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString("| Producto | Lote | Estrategia | Estado | Días | Saldo inicial | Merma calculada | Saldo final | Desviación |\n")
	b.WriteString("|---|---|---|---|---:|---:|---:|---:|---:|\n")
	skipped := 0
	for _, c := range calcs {
		if c.Status == entity.CalculationSkipped {
			skipped++
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %s | — | %s | — |\n",
				escape(c.ProductID), escape(c.BatchID), c.Strategy, c.Status, c.ElapsedDays,
				c.InitialBalance.StringFixed(3), c.FinalBalance.StringFixed(3))
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %s | %s | %s | %s |\n",
			escape(c.ProductID), escape(c.BatchID), c.Strategy, c.Status, c.ElapsedDays,
			c.InitialBalance.StringFixed(3), c.CalculatedShrinkage.StringFixed(3),
			c.FinalBalance.StringFixed(3), c.Variance.StringFixed(3))
	}
	fmt.Fprintf(&b, "\n*Total de registros: %d (omitidos: %d)*\n", len(calcs), skipped)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("export markdown: %w", err)
	}
	return nil
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// ForPath elige el exportador por la extensión del archivo (.json, .md).
func ForPath(path string) (Exporter, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON{}, nil
	case ".md", ".markdown":
		return Markdown{}, nil
	}
	return nil, fmt.Errorf("extensión de exportación no soportada: %q", filepath.Ext(path))
}

// WriteFile exporta calcs al archivo path con el formato de su extensión.
func WriteFile(path string, calcs []entity.ShrinkageCalculation) error {
	exp, err := ForPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("crear %s: %w", path, err)
	}
	if err := exp.Export(f, calcs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
