// Package metrics registra las métricas Prometheus del servicio.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MovementsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "merma_movements_applied_total",
		Help: "Movimientos aplicados al ledger",
	}, []string{"type"})

	MovementsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "merma_movements_rejected_total",
		Help: "Llamadas de movimientos rechazadas por validación",
	})

	ReconciliationEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "merma_reconciliation_events_total",
		Help: "Ventas que superaron el saldo de los lotes conocidos",
	})

	CalibrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "merma_calibrations_total",
		Help: "Calibraciones por estado",
	}, []string{"status"})

	CalibrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "merma_calibration_duration_seconds",
		Help:    "Duración de la calibración de un producto",
		Buckets: prometheus.DefBuckets,
	})

	CalibrationIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "merma_calibration_iterations",
		Help:    "Iteraciones del ajuste por producto",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500},
	})

	ForecastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "merma_forecasts_total",
		Help: "Cálculos de merma por estrategia y estado",
	}, []string{"strategy", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// Recorder publica los eventos del servicio de merma en los colectores del paquete.
type Recorder struct{}

func (Recorder) MovementsApplied(movementType string, n int) {
	MovementsAppliedTotal.WithLabelValues(movementType).Add(float64(n))
}

func (Recorder) MovementsRejected() { MovementsRejectedTotal.Inc() }

func (Recorder) ReconciliationEvent() { ReconciliationEventsTotal.Inc() }

// CalibrationFinished registra una calibración terminada.
func (Recorder) CalibrationFinished(status string, iterations int, elapsed time.Duration) {
	CalibrationsTotal.WithLabelValues(status).Inc()
	CalibrationIterations.Observe(float64(iterations))
	CalibrationDuration.Observe(elapsed.Seconds())
}

func (Recorder) ForecastComputed(strategy, status string) {
	ForecastsTotal.WithLabelValues(strategy, status).Inc()
}

// Middleware mide latencia y conteo de peticiones por ruta registrada.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		path := c.Route().Path
		labels := []string{c.Method(), path, strconv.Itoa(status)}
		HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		return err
	}
}
