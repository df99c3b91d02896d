// Test the PH regression log-likelihood and score functions using numeric
// derivatives.  The tests confirm that the analytic score function agrees
// with the numeric derivative of the log-likelihood function.

package duration

import (
	"fmt"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

const (
	tol = 1e-5
)

// A test problem
type difftestprob struct {
	title  string
	data   func(*testing.T) statmodel.Dataset
	time   string
	status string
	xnames []string
	entry  string
	strata string
	params [][]float64
	l2Pen  map[string]float64
}

var diffTests []difftestprob = []difftestprob{
	{
		title:  "single covariate",
		data:   data1,
		time:   "Time",
		status: "Status",
		xnames: []string{"X"},
		params: [][]float64{{0}, {1}, {-1}, {0.5}, {-0.5}},
	},
	{
		title:  "entry times and strata",
		data:   data2,
		time:   "Time",
		status: "Status",
		xnames: []string{"X1", "X2"},
		entry:  "Entry",
		strata: "Stratum",
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}, {-2, 1}},
	},
	{
		title:  "two covariates",
		data:   data3,
		time:   "Time",
		status: "Status",
		xnames: []string{"X1", "X2"},
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}, {2, -1}},
	},
	{
		title:  "L2 penalty",
		data:   data3,
		time:   "Time",
		status: "Status",
		xnames: []string{"X1", "X2"},
		l2Pen:  map[string]float64{"X1": 0.2, "X2": 0.1},
		params: [][]float64{{1, 0}, {0, 1}, {-0.5, 1.3}},
	},
	{
		title:  "stratified simulation",
		data:   simData100,
		time:   "time",
		status: "status",
		xnames: []string{"x1", "x2"},
		strata: "stratum",
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
}

func TestGrad(t *testing.T) {

	for _, dt := range diffTests {

		config := DefaultPHRegConfig()
		config.EntryVar = dt.entry
		config.StrataVar = dt.strata
		config.L2Penalty = dt.l2Pen

		model, err := NewPHReg(dt.data(t), dt.time, dt.status, dt.xnames, config)
		if err != nil {
			t.Fatal(err)
		}

		p := len(dt.params[0])
		ngrad := make([]float64, p)
		score := make([]float64, p)

		loglike := func(x []float64) float64 {
			return model.LogLike(&PHParameter{x}, true)
		}

		fdset := &fd.Settings{
			Formula: fd.Forward,
			Step:    1e-6,
		}

		for _, params := range dt.params {
			fd.Gradient(ngrad, loglike, params, fdset)
			model.Score(&PHParameter{params}, score)
			if !floats.EqualApprox(score, ngrad, tol) {
				fmt.Printf("%s\n", dt.title)
				fmt.Printf("Numerical:  %v\n", ngrad)
				fmt.Printf("Analytical: %v\n", score)
				t.Fail()
			}
		}
	}
}
