package calibration

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jhoicas/merma-api/internal/domain/shrinkage"
)

const (
	lambdaStart = 1e-3
	lambdaMax   = 1e12
	lambdaMin   = 1e-12
	diagFloor   = 1e-12
)

// Point es una observación (m, t, merma observada).
type Point struct {
	M    float64
	T    float64
	Loss float64
}

// FitResult es el resultado de Fit.
type FitResult struct {
	Coefficients shrinkage.Coefficients // mejor punto visto, siempre dentro de las cotas
	SSR          float64
	RMSE         float64
	Iterations   int
	Converged    bool
	Reason       string // por qué no convergió
}

// Fit minimiza Σ (loss_i − m_i·F(t_i))² con Levenberg–Marquardt proyectado sobre las cotas.
// Es determinista: mismo cfg y mismos puntos producen el mismo resultado.
func Fit(points []Point, cfg Config) FitResult {
	x := cfg.clamp(cfg.InitialGuess())
	ssr := sumSquares(points, x)
	res := FitResult{Coefficients: x, SSR: ssr}
	if ssr == 0 {
		res.Converged = true
		return res.finish(len(points))
	}

	n := len(points)
	J := mat.NewDense(n, 3, nil)
	r := mat.NewVecDense(n, nil)
	var jtj mat.Dense
	var jtr mat.VecDense
	lambda := lambdaStart

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		res.Iterations = iter
		for i, p := range points {
			da, db, dc := x.Partials(p.M, p.T)
			J.SetRow(i, []float64{da, db, dc})
			r.SetVec(i, p.Loss-x.Loss(p.M, p.T))
		}
		jtj.Mul(J.T(), J)
		jtr.MulVec(J.T(), r)

		accepted := false
		for !accepted {
			delta, ok := solveDamped(&jtj, &jtr, lambda)
			if !ok {
				lambda *= 10
				if lambda > lambdaMax {
					res.Reason = "sistema normal singular"
					return res.finish(n)
				}
				continue
			}
			cand := cfg.clamp(shrinkage.Coefficients{
				A: x.A + delta[0],
				B: x.B + delta[1],
				C: x.C + delta[2],
			})
			step := math.Sqrt(sq(cand.A-x.A) + sq(cand.B-x.B) + sq(cand.C-x.C))
			if step < cfg.Tolerance {
				// el paso proyectado se anuló: punto estacionario dentro de las cotas
				res.Converged = true
				return res.finish(n)
			}

			candSSR := sumSquares(points, cand)
			if candSSR < ssr {
				rel := (ssr - candSSR) / math.Max(ssr, math.SmallestNonzeroFloat64)
				x, ssr = cand, candSSR
				res.Coefficients, res.SSR = x, ssr
				lambda = math.Max(lambda/10, lambdaMin)
				accepted = true
				if rel < cfg.Tolerance || ssr == 0 {
					res.Converged = true
					return res.finish(n)
				}
				continue
			}

			lambda *= 10
			if lambda > lambdaMax {
				res.Reason = "el residuo no disminuye"
				return res.finish(n)
			}
		}
	}
	res.Reason = "se alcanzó el máximo de iteraciones"
	return res.finish(n)
}

func (r FitResult) finish(n int) FitResult {
	if n > 0 {
		r.RMSE = math.Sqrt(r.SSR / float64(n))
	}
	return r
}

// solveDamped resuelve (JᵀJ + λ·diag(JᵀJ)) δ = Jᵀr.
func solveDamped(jtj *mat.Dense, jtr *mat.VecDense, lambda float64) ([3]float64, bool) {
	var a mat.Dense
	a.CloneFrom(jtj)
	for k := 0; k < 3; k++ {
		d := jtj.At(k, k)
		a.Set(k, k, d+lambda*math.Max(d, diagFloor))
	}
	var delta mat.VecDense
	if err := delta.SolveVec(&a, jtr); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return [3]float64{}, false
		}
	}
	out := [3]float64{delta.AtVec(0), delta.AtVec(1), delta.AtVec(2)}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return [3]float64{}, false
		}
	}
	return out, true
}

func sumSquares(points []Point, k shrinkage.Coefficients) float64 {
	s := 0.0
	for _, p := range points {
		s += sq(p.Loss - k.Loss(p.M, p.T))
	}
	return s
}

func sq(v float64) float64 { return v * v }
