package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/merma-api/internal/application/auth"
	"github.com/jhoicas/merma-api/internal/application/shrinkage"
	"github.com/jhoicas/merma-api/internal/application/usecase"
	"github.com/jhoicas/merma-api/internal/infrastructure/metrics"
	"github.com/jhoicas/merma-api/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	ProductUC *usecase.ProductUseCase
	Shrinkage *shrinkage.Service
	AuthUC    *auth.AuthUseCase
	Reports   ReportGenerator
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Rutas protegidas (requieren Bearer Token)
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	readers := RequireRole(jwt.RoleAdmin, jwt.RoleAnalyst, jwt.RoleOperator)
	writers := RequireRole(jwt.RoleAdmin, jwt.RoleOperator)
	analysts := RequireRole(jwt.RoleAdmin, jwt.RoleAnalyst)

	// Tokens de servicio (solo admin)
	authHandler := NewAuthHandler(deps.AuthUC)
	api.Post("/auth/tokens", RequireRole(jwt.RoleAdmin), authHandler.IssueToken)

	// Products
	productHandler := NewProductHandler(deps.ProductUC)
	products := api.Group("/products")
	products.Post("/", writers, productHandler.Create)
	products.Get("/", readers, productHandler.List)
	products.Get("/:id", readers, productHandler.GetByID)

	// Ledger, calibración y pronóstico
	h := NewShrinkageHandler(deps.Shrinkage, deps.Reports)
	products.Post("/:id/movements", writers, h.ApplyMovements)
	products.Get("/:id/ledger", readers, h.Ledger)
	products.Get("/:id/reconciliations", readers, h.Reconciliations)
	products.Get("/:id/audit", readers, h.Audit)
	products.Post("/:id/calibrate", analysts, h.Calibrate)
	products.Post("/:id/forecast", analysts, h.Forecast)
	products.Get("/:id/calculations", readers, h.Calculations)

	api.Get("/audit", readers, h.AuditAll)
	api.Post("/calibrations", analysts, h.CalibrateAll)
	api.Get("/coefficients", readers, h.Coefficients)
	api.Post("/forecasts", analysts, h.ForecastAll)
	api.Get("/reports/shrinkage", analysts, h.Report)
}
