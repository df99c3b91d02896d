package statmodel

import (
	"fmt"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// quadModel has a separable quadratic log-likelihood
// -0.5 * sum_j c_j * (x_j - m_j)^2, so the L1 path has the closed
// soft-threshold solution x_j = sign(m_j) * max(0, |m_j| - W/c_j)
// with W = nobs * l1wgt_j.
type quadModel struct {
	c    []float64
	m    []float64
	nobs int
}

func (q *quadModel) NumParams() int {
	return len(q.c)
}

func (q *quadModel) NumObs() int {
	return q.nobs
}

func (q *quadModel) LogLike(p Parameter, exact bool) float64 {
	x := p.GetCoeff()
	var f float64
	for j := range x {
		f -= 0.5 * q.c[j] * (x[j] - q.m[j]) * (x[j] - q.m[j])
	}
	return f
}

func (q *quadModel) Score(p Parameter, score []float64) {
	x := p.GetCoeff()
	for j := range x {
		score[j] = -q.c[j] * (x[j] - q.m[j])
	}
}

func (q *quadModel) Hessian(p Parameter, ht HessType, h []float64) {
	nv := len(q.c)
	for j := range h {
		h[j] = 0
	}
	for j := 0; j < nv; j++ {
		h[j*nv+j] = -q.c[j]
	}
}

func (q *quadModel) Focus(j int, coeff, offset []float64) RegFitter {
	return &quadFocus{c: q.c[j], m: q.m[j], nobs: q.nobs}
}

type quadFocus struct {
	c    float64
	m    float64
	nobs int
}

func (q *quadFocus) NumParams() int { return 1 }

func (q *quadFocus) NumObs() int { return q.nobs }

func (q *quadFocus) Xpos() []int { return nil }

func (q *quadFocus) Data() [][]Dtype { return nil }

func (q *quadFocus) LogLike(p Parameter, exact bool) float64 {
	x := p.GetCoeff()[0]
	return -0.5 * q.c * (x - q.m) * (x - q.m)
}

func (q *quadFocus) Score(p Parameter, score []float64) {
	x := p.GetCoeff()[0]
	score[0] = -q.c * (x - q.m)
}

func (q *quadFocus) Hessian(p Parameter, ht HessType, h []float64) {
	h[0] = -q.c
}

func TestFitL1Reg(t *testing.T) {

	model := &quadModel{
		c:    []float64{1, 2, 4},
		m:    []float64{2, -1.5, 0.3},
		nobs: 10,
	}

	// W = 10*0.05 = 0.5 for every coordinate.
	l1wgt := []float64{0.05, 0.05, 0.05}
	par := GenericParameter{params: make([]float64, 3)}
	rp := FitL1Reg(model, par, l1wgt, nil, true)

	expected := []float64{1.5, -1.25, 0.175}
	if !floats.EqualApprox(rp.GetCoeff(), expected, 1e-6) {
		fmt.Printf("Got      %v\n", rp.GetCoeff())
		fmt.Printf("Expected %v\n", expected)
		t.Fail()
	}
}

func TestFitL1RegNoPenalty(t *testing.T) {

	model := &quadModel{
		c:    []float64{1, 2, 4},
		m:    []float64{2, -1.5, 0.3},
		nobs: 10,
	}

	par := GenericParameter{params: make([]float64, 3)}
	rp := FitL1Reg(model, par, []float64{0, 0, 0}, nil, true)

	if !floats.EqualApprox(rp.GetCoeff(), model.m, 1e-6) {
		fmt.Printf("Got      %v\n", rp.GetCoeff())
		fmt.Printf("Expected %v\n", model.m)
		t.Fail()
	}
}

func TestFitL1RegAllZero(t *testing.T) {

	model := &quadModel{
		c:    []float64{1, 2, 4},
		m:    []float64{2, -1.5, 0.3},
		nobs: 10,
	}

	// W = 10 dominates every c_j*|m_j|, everything thresholds to zero.
	l1wgt := []float64{1, 1, 1}
	par := GenericParameter{params: make([]float64, 3)}
	rp := FitL1Reg(model, par, l1wgt, nil, true)

	expected := []float64{0, 0, 0}
	if !floats.Equal(rp.GetCoeff(), expected) {
		fmt.Printf("Got      %v\n", rp.GetCoeff())
		fmt.Printf("Expected %v\n", expected)
		t.Fail()
	}
}
