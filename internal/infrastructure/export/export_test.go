package export_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/infrastructure/export"
)

func sample() []entity.ShrinkageCalculation {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []entity.ShrinkageCalculation{
		{
			ProductID: "P1", BatchID: "P1-B001", Strategy: "portion", Status: entity.CalculationComputed,
			PeriodStart: at.AddDate(0, 0, -3), PeriodEnd: at, ElapsedDays: 3,
			InitialBalance: decimal.NewFromInt(10), FinalBalance: decimal.NewFromInt(0),
			CalculatedShrinkage: decimal.RequireFromString("0.796597"), Variance: decimal.RequireFromString("-0.796597"),
		},
		{
			ProductID: "P|2", BatchID: "P2-B001", Strategy: "portion", Status: entity.CalculationSkipped,
			SkipReason: "coeficientes ausentes", InitialBalance: decimal.NewFromInt(5), FinalBalance: decimal.NewFromInt(5),
		},
	}
}

func TestJSON_Export(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.JSON{}.Export(&buf, sample()))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "P1", out[0]["product_id"])
	assert.Equal(t, "0.796597", out[0]["calculated_shrinkage"])
	assert.Equal(t, "SKIPPED", out[1]["status"])
	assert.Equal(t, "coeficientes ausentes", out[1]["skip_reason"])
}

func TestMarkdown_Export(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.Markdown{Title: "Corrida marzo"}.Export(&buf, sample()))
	md := buf.String()

	assert.True(t, strings.HasPrefix(md, "# Corrida marzo\n"))
	assert.Contains(t, md, "| P1 | P1-B001 | portion | COMPUTED | 3 | 10.000 | 0.797 | 0.000 | -0.797 |")
	assert.Contains(t, md, `| P\|2 |`)
	assert.Contains(t, md, "*Total de registros: 2 (omitidos: 1)*")
}

func TestWriteFile_PorExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.json", "out.md"} {
		path := filepath.Join(dir, name)
		require.NoError(t, export.WriteFile(path, sample()))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	assert.Error(t, export.WriteFile(filepath.Join(dir, "out.xlsx"), sample()))
}
