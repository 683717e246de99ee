package http

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/merma-api/internal/application/dto"
	"github.com/jhoicas/merma-api/internal/application/shrinkage"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/infrastructure/pdf"
)

// ReportGenerator genera el PDF del informe de merma.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, r pdf.Report) ([]byte, error)
}

// ShrinkageHandler expone ledger, calibración y pronóstico.
type ShrinkageHandler struct {
	svc     *shrinkage.Service
	reports ReportGenerator
}

// NewShrinkageHandler construye el handler. reports puede ser nil (sin PDF).
func NewShrinkageHandler(svc *shrinkage.Service, reports ReportGenerator) *ShrinkageHandler {
	return &ShrinkageHandler{svc: svc, reports: reports}
}

// parseAsOf acepta YYYY-MM-DD (fin del día UTC) o RFC3339. Vacío = cero (ahora).
func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if d, err := time.Parse(time.DateOnly, raw); err == nil {
		return d.Add(24*time.Hour - time.Nanosecond), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func sortCoefficients(cs []dto.CoefficientsResponse) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].ProductID < cs[j].ProductID })
}

// ApplyMovements godoc
// @Summary      Aplicar movimientos al ledger del producto
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                      true  "ID del producto"
// @Param        body  body  dto.ApplyMovementsRequest   true  "Movimientos ordenados por fecha"
// @Success      200   {object}  dto.LedgerStateResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/products/{id}/movements [post]
func (h *ShrinkageHandler) ApplyMovements(c *fiber.Ctx) error {
	productID := c.Params("id")
	var in dto.ApplyMovementsRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := dto.Validate(in); err != nil {
		return writeError(c, err)
	}
	movs := make([]entity.Movement, 0, len(in.Movements))
	for _, m := range in.Movements {
		movs = append(movs, m.ToEntity(productID))
	}
	out, err := h.svc.ApplyMovements(c.UserContext(), productID, movs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// Ledger godoc
// @Summary      Estado del ledger del producto
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {object}  dto.LedgerStateResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/ledger [get]
func (h *ShrinkageHandler) Ledger(c *fiber.Ctx) error {
	out, err := h.svc.Ledger(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// Reconciliations godoc
// @Summary      Eventos de conciliación del producto
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {array}   dto.ReconciliationResponse
// @Router       /api/products/{id}/reconciliations [get]
func (h *ShrinkageHandler) Reconciliations(c *fiber.Ctx) error {
	evs, err := h.svc.Reconciliations(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.EventsFromEntity(evs))
}

// Audit godoc
// @Summary      Auditoría de saldos del producto
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {object}  dto.AuditResponse
// @Router       /api/products/{id}/audit [get]
func (h *ShrinkageHandler) Audit(c *fiber.Ctx) error {
	r, err := h.svc.Audit(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.AuditFromReport(*r))
}

// AuditAll godoc
// @Summary      Auditoría de todos los productos
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  dto.AuditResponse
// @Router       /api/audit [get]
func (h *ShrinkageHandler) AuditAll(c *fiber.Ctx) error {
	reports, err := h.svc.AuditAll(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.AuditResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, dto.AuditFromReport(r))
	}
	return c.JSON(out)
}

// Calibrate godoc
// @Summary      Calibrar coeficientes de un producto
// @Tags         calibration
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {object}  dto.CoefficientsResponse
// @Router       /api/products/{id}/calibrate [post]
func (h *ShrinkageHandler) Calibrate(c *fiber.Ctx) error {
	coeffs, err := h.svc.Calibrate(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.CoefficientsFromEntity(coeffs))
}

// CalibrateAll godoc
// @Summary      Calibrar todos los productos
// @Tags         calibration
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  dto.CoefficientsResponse
// @Router       /api/calibrations [post]
func (h *ShrinkageHandler) CalibrateAll(c *fiber.Ctx) error {
	results, err := h.svc.CalibrateAll(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.CoefficientsResponse, 0, len(results))
	for _, r := range results {
		out = append(out, dto.CoefficientsFromEntity(r))
	}
	sortCoefficients(out)
	return c.JSON(out)
}

// Coefficients godoc
// @Summary      Coeficientes vigentes
// @Tags         calibration
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  dto.CoefficientsResponse
// @Router       /api/coefficients [get]
func (h *ShrinkageHandler) Coefficients(c *fiber.Ctx) error {
	list, err := h.svc.Coefficients(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.CoefficientsResponse, 0, len(list))
	for _, r := range list {
		out = append(out, dto.CoefficientsFromEntity(r))
	}
	sortCoefficients(out)
	return c.JSON(out)
}

// Forecast godoc
// @Summary      Pronosticar merma de los lotes del producto
// @Tags         forecast
// @Security     Bearer
// @Produce      json
// @Param        id        path   string  true   "ID del producto"
// @Param        strategy  query  string  false  "portion | weighted | compatibility"
// @Param        as_of     query  string  false  "YYYY-MM-DD o RFC3339"
// @Success      200  {array}  dto.CalculationResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/forecast [post]
func (h *ShrinkageHandler) Forecast(c *fiber.Ctx) error {
	asOf, err := parseAsOf(c.Query("as_of"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "as_of inválido"})
	}
	calcs, err := h.svc.Forecast(c.UserContext(), c.Params("id"), c.Query("strategy"), asOf)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.CalculationsFromEntity(calcs))
}

// ForecastAll godoc
// @Summary      Pronosticar merma de todos los productos
// @Tags         forecast
// @Security     Bearer
// @Produce      json
// @Param        strategy  query  string  false  "portion | weighted | compatibility"
// @Param        as_of     query  string  false  "YYYY-MM-DD o RFC3339"
// @Success      200  {array}  dto.CalculationResponse
// @Router       /api/forecasts [post]
func (h *ShrinkageHandler) ForecastAll(c *fiber.Ctx) error {
	asOf, err := parseAsOf(c.Query("as_of"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "as_of inválido"})
	}
	calcs, err := h.svc.ForecastAll(c.UserContext(), c.Query("strategy"), asOf)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.CalculationsFromEntity(calcs))
}

// Calculations godoc
// @Summary      Historial de pronósticos del producto
// @Tags         forecast
// @Security     Bearer
// @Produce      json
// @Param        id     path   string  true   "ID del producto"
// @Param        limit  query  int     false  "Límite"  default(50)
// @Success      200  {array}  dto.CalculationResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/calculations [get]
func (h *ShrinkageHandler) Calculations(c *fiber.Ctx) error {
	var q dto.HistoryRequest
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "limit debe ser entero"})
	}
	if err := dto.Validate(q); err != nil {
		return writeError(c, err)
	}
	calcs, err := h.svc.Calculations(c.UserContext(), c.Params("id"), q.EffectiveLimit())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.CalculationsFromEntity(calcs))
}

// Report godoc
// @Summary      Informe PDF de merma
// @Tags         forecast
// @Security     Bearer
// @Produce      application/pdf
// @Param        strategy  query  string  false  "portion | weighted | compatibility"
// @Param        as_of     query  string  false  "YYYY-MM-DD o RFC3339"
// @Success      200  {file}  binary
// @Router       /api/reports/shrinkage [get]
func (h *ShrinkageHandler) Report(c *fiber.Ctx) error {
	if h.reports == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(dto.ErrorResponse{Code: "NOT_CONFIGURED", Message: "generador de informes no configurado"})
	}
	asOf, err := parseAsOf(c.Query("as_of"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "as_of inválido"})
	}
	ctx := c.UserContext()
	st, err := h.svc.ResolveStrategy(c.Query("strategy"))
	if err != nil {
		return writeError(c, err)
	}
	calcs, err := h.svc.ForecastAll(ctx, string(st), asOf)
	if err != nil {
		return writeError(c, err)
	}
	coeffs, err := h.svc.Coefficients(ctx)
	if err != nil {
		return writeError(c, err)
	}
	if asOf.IsZero() && len(calcs) > 0 {
		asOf = calcs[0].CalculatedAt
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	out, err := h.reports.GenerateReport(ctx, pdf.Report{
		Strategy:     string(st),
		AsOf:         asOf,
		Calculations: calcs,
		Coefficients: coeffs,
	})
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="merma-`+asOf.Format("20060102")+`.pdf"`)
	return c.Send(out)
}
