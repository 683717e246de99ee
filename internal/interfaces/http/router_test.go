package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/merma-api/internal/application/auth"
	"github.com/jhoicas/merma-api/internal/application/dto"
	"github.com/jhoicas/merma-api/internal/application/shrinkage"
	"github.com/jhoicas/merma-api/internal/application/usecase"
	"github.com/jhoicas/merma-api/internal/domain/calibration"
	"github.com/jhoicas/merma-api/internal/domain/forecast"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/infrastructure/memory"
	"github.com/jhoicas/merma-api/internal/infrastructure/pdf"
	apphttp "github.com/jhoicas/merma-api/internal/interfaces/http"
)

func buildAPI(t *testing.T) *fiber.App {
	t.Helper()
	store := memory.NewStore()
	svc, err := shrinkage.NewService(shrinkage.Deps{
		Products:     store,
		Batches:      store,
		Coefficients: memory.NewCoefficientStore(),
		Calculations: memory.NewCalculationStore(),
		Tx:           memory.TxRunner{Movements: memory.NewMovementStore(), Batches: store},
	}, shrinkage.Options{
		Ledger:                ledger.DefaultOptions(),
		Calibration:           calibration.DefaultConfig(),
		DefaultStrategy:       forecast.StrategyWeighted,
		Workers:               2,
		KeepPreviousOnFailure: true,
	})
	require.NoError(t, err)

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		ProductUC: usecase.NewProductUseCase(store),
		Shrinkage: svc,
		AuthUC:    auth.NewAuthUseCase(auth.JWTConfig{Secret: testJWTSecret, ExpMinutes: testExpMin, Issuer: testIssuer}),
		Reports:   pdf.NewMarotoPDFGenerator(),
		JWTSecret: testJWTSecret,
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, role string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("Authorization", tokenForRole(t, role))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func createProduct(t *testing.T, app *fiber.App, id string) {
	t.Helper()
	resp, _ := call(t, app, http.MethodPost, "/api/products", "admin", dto.CreateProductRequest{ID: id, Name: "Tomate"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

var sampleMovements = map[string]any{
	"movements": []map[string]any{
		{"date": "2024-01-01T08:00:00Z", "type": "RECEIPT", "quantity": "100"},
		{"date": "2024-01-04T08:00:00Z", "type": "SALE", "quantity": "120", "document": "F-1"},
	},
}

func TestRouter_Health(t *testing.T) {
	app := buildAPI(t)
	resp, body := call(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")
}

func TestRouter_Metrics(t *testing.T) {
	app := buildAPI(t)
	call(t, app, http.MethodGet, "/health", "", nil)
	resp, body := call(t, app, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestRouter_APISinToken(t *testing.T) {
	app := buildAPI(t)
	resp, body := call(t, app, http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "MISSING_TOKEN")
}

func TestRouter_Productos(t *testing.T) {
	app := buildAPI(t)
	createProduct(t, app, "P1")

	resp, _ := call(t, app, http.MethodPost, "/api/products", "admin", dto.CreateProductRequest{ID: "P1", Name: "otra vez"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := call(t, app, http.MethodGet, "/api/products/P1", "analyst", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p dto.ProductResponse
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "Tomate", p.Name)

	resp, _ = call(t, app, http.MethodGet, "/api/products/NOPE", "analyst", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, app, http.MethodPost, "/api/products", "analyst", dto.CreateProductRequest{Name: "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "analyst no carga datos")

	resp, body = call(t, app, http.MethodPost, "/api/products", "admin", dto.CreateProductRequest{ID: "P2", Name: strings.Repeat("x", 201)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "VALIDATION")

	resp, _ = call(t, app, http.MethodGet, "/api/products?limit=500", "analyst", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = call(t, app, http.MethodGet, "/api/products?limit=abc", "analyst", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_MovimientosYLedger(t *testing.T) {
	app := buildAPI(t)
	createProduct(t, app, "P1")

	resp, body := call(t, app, http.MethodPost, "/api/products/P1/movements", "operator", sampleMovements)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var state dto.LedgerStateResponse
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Equal(t, 2, state.Applied)
	require.Len(t, state.Events, 1)
	assert.Equal(t, "20", state.Events[0].Shortfall.String())

	resp, body = call(t, app, http.MethodGet, "/api/products/P1/ledger", "analyst", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state = dto.LedgerStateResponse{}
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Len(t, state.Batches, 2)

	resp, body = call(t, app, http.MethodGet, "/api/products/P1/reconciliations", "operator", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var evs []dto.ReconciliationResponse
	require.NoError(t, json.Unmarshal(body, &evs))
	assert.Len(t, evs, 1)

	resp, body = call(t, app, http.MethodGet, "/api/products/P1/audit", "analyst", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var audit dto.AuditResponse
	require.NoError(t, json.Unmarshal(body, &audit))
	assert.Len(t, audit.ExternalBatches, 1)
}

func TestRouter_MovimientoInvalido(t *testing.T) {
	app := buildAPI(t)
	createProduct(t, app, "P1")

	resp, body := call(t, app, http.MethodPost, "/api/products/P1/movements", "operator", map[string]any{
		"movements": []map[string]any{{"date": "2024-01-01T08:00:00Z", "type": "SALE", "quantity": "-3"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "VALIDATION")

	resp, _ = call(t, app, http.MethodPost, "/api/products/P1/movements", "operator", map[string]any{"movements": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, app, http.MethodPost, "/api/products/NOPE/movements", "operator", sampleMovements)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = call(t, app, http.MethodPost, "/api/products/P1/movements", "operator", map[string]any{
		"movements": []map[string]any{{"date": "2024-01-01T08:00:00Z", "type": "TRANSFER"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "VALIDATION")
	assert.Contains(t, string(body), "movements[0].quantity")
	assert.Contains(t, string(body), "movements[0].type")

	resp, body = call(t, app, http.MethodPost, "/api/products/P1/movements", "operator", map[string]any{
		"movements": []map[string]any{{"date": "2024-01-01T08:00:00Z", "type": "RECEIPT", "quantity": "1.0000004"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "más de 6 decimales")
	assert.Contains(t, string(body), "VALIDATION")
}

func TestRouter_CalibracionYPronostico(t *testing.T) {
	app := buildAPI(t)
	createProduct(t, app, "P1")
	resp, _ := call(t, app, http.MethodPost, "/api/products/P1/movements", "operator", sampleMovements)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = call(t, app, http.MethodPost, "/api/products/P1/movements", "operator", map[string]any{
		"movements": []map[string]any{{"date": "2024-01-05T08:00:00Z", "type": "RECEIPT", "quantity": "30"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = call(t, app, http.MethodPost, "/api/products/P1/calibrate", "operator", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := call(t, app, http.MethodPost, "/api/products/P1/calibrate", "analyst", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var coeffs dto.CoefficientsResponse
	require.NoError(t, json.Unmarshal(body, &coeffs))
	assert.Equal(t, "INSUFFICIENT_DATA", coeffs.Status)

	resp, body = call(t, app, http.MethodPost, "/api/calibrations", "analyst", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []dto.CoefficientsResponse
	require.NoError(t, json.Unmarshal(body, &all))
	require.Len(t, all, 1)
	assert.Equal(t, "P1", all[0].ProductID)

	resp, _ = call(t, app, http.MethodPost, "/api/products/P1/forecast?strategy=linear", "analyst", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, app, http.MethodPost, "/api/products/P1/forecast?as_of=ayer", "analyst", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = call(t, app, http.MethodPost, "/api/forecasts?strategy=portion&as_of=2024-01-10", "analyst", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var calcs []dto.CalculationResponse
	require.NoError(t, json.Unmarshal(body, &calcs))
	require.Len(t, calcs, 1, "solo el lote con saldo")
	assert.Equal(t, "portion", calcs[0].Strategy)
	assert.Equal(t, "SKIPPED", calcs[0].Status, "sin coeficientes utilizables")

	resp, body = call(t, app, http.MethodGet, "/api/products/P1/calculations", "operator", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []dto.CalculationResponse
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Len(t, history, 1)
}

func TestRouter_InformePDF(t *testing.T) {
	app := buildAPI(t)
	createProduct(t, app, "P1")
	call(t, app, http.MethodPost, "/api/products/P1/movements", "operator", sampleMovements)

	resp, body := call(t, app, http.MethodGet, "/api/reports/shrinkage?as_of=2024-01-10", "admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestRouter_EmisionDeTokens(t *testing.T) {
	app := buildAPI(t)

	resp, _ := call(t, app, http.MethodPost, "/api/auth/tokens", "analyst", dto.TokenRequest{UserID: "svc", Role: "operator"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := call(t, app, http.MethodPost, "/api/auth/tokens", "admin", dto.TokenRequest{UserID: "svc", Role: "operator"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var tok dto.TokenResponse
	require.NoError(t, json.Unmarshal(body, &tok))
	assert.Equal(t, "operator", tok.Role)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	r, err := app.Test(req, -1)
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode, "el token emitido sirve")

	resp, _ = call(t, app, http.MethodPost, "/api/auth/tokens", "admin", dto.TokenRequest{UserID: "svc", Role: "root"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
