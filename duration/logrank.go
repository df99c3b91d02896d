package duration

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

// LogRankResult holds the result of a log-rank test comparing the survival
// distributions of two or more groups.
type LogRankResult struct {

	// The distinct values of the grouping variable, sorted.
	Groups []float64

	// Observed number of events per group.
	Observed []float64

	// Expected number of events per group under the null hypothesis
	// that all groups share one survival distribution.
	Expected []float64

	// The chi-squared statistic.
	Stat float64

	// Degrees of freedom of the reference distribution.
	Df int

	// P-value for the null hypothesis of equal survival distributions.
	PValue float64
}

// LogRank performs a Mantel-Haenszel log-rank test of the null hypothesis
// that all levels of the grouping variable share one survival distribution.
func LogRank(data statmodel.Dataset, timevar, statusvar, groupvar string) (*LogRankResult, error) {

	for _, vn := range []string{timevar, statusvar, groupvar} {
		if data.Pos(vn) == -1 {
			return nil, fmt.Errorf("%w: %s", statmodel.ErrUnknownVariable, vn)
		}
	}

	time := data.Column(timevar)
	status := data.Column(statusvar)
	group := data.Column(groupvar)

	// Identify the groups.
	gix := make(map[float64]int)
	var groups []float64
	for _, g := range group {
		if _, ok := gix[g]; !ok {
			gix[g] = 0
			groups = append(groups, g)
		}
	}
	if len(groups) < 2 {
		return nil, ErrDegenerateGroups
	}
	sort.Float64s(groups)
	for i, g := range groups {
		gix[g] = i
	}
	ng := len(groups)

	// Per-group event and exit counts keyed by time.
	events := make([]map[float64]float64, ng)
	total := make([]map[float64]float64, ng)
	for g := range events {
		events[g] = make(map[float64]float64)
		total[g] = make(map[float64]float64)
	}

	pooled := make(map[float64]bool)
	nevents := 0
	for i, t := range time {
		g := gix[group[i]]
		switch status[i] {
		case 1:
			events[g][t]++
			nevents++
		case 0:
		default:
			return nil, fmt.Errorf("%w: row %d", ErrInvalidStatus, i)
		}
		total[g][t]++
		pooled[t] = true
	}
	if nevents == 0 {
		return nil, ErrNoEvents
	}

	// Sorted distinct times, pooled over groups.
	times := make([]float64, 0, len(pooled))
	for t := range pooled {
		times = append(times, t)
	}
	sort.Float64s(times)

	// Group sizes at risk just before each pooled time.
	nrisk := make([][]float64, ng)
	for g := 0; g < ng; g++ {
		nrisk[g] = make([]float64, len(times))
		for k, t := range times {
			nrisk[g][k] = total[g][t]
		}
		rollback(nrisk[g])
	}

	obs := make([]float64, ng)
	exp := make([]float64, ng)
	vc := make([]float64, ng*ng)

	for k, t := range times {

		var d, n float64
		for g := 0; g < ng; g++ {
			d += events[g][t]
			n += nrisk[g][k]
		}
		if d == 0 {
			continue
		}

		for g := 0; g < ng; g++ {
			obs[g] += events[g][t]
			exp[g] += d * nrisk[g][k] / n
		}

		if n <= 1 {
			continue
		}

		// Hypergeometric variance of the per-group event counts.
		c := d * (n - d) / (n - 1)
		for g := 0; g < ng; g++ {
			pg := nrisk[g][k] / n
			for h := 0; h <= g; h++ {
				u := -c * pg * nrisk[h][k] / n
				if h == g {
					u += c * pg
				}
				vc[g*ng+h] += u
				if h != g {
					vc[h*ng+g] += u
				}
			}
		}
	}

	// Quadratic form over the first ng-1 groups.
	df := ng - 1
	z := make([]float64, df)
	vr := make([]float64, df*df)
	for g := 0; g < df; g++ {
		z[g] = obs[g] - exp[g]
		for h := 0; h < df; h++ {
			vr[g*df+h] = vc[g*ng+h]
		}
	}

	vmat := mat.NewDense(df, df, vr)
	vinv := mat.NewDense(df, df, nil)
	if err := vinv.Inverse(vmat); err != nil {
		return nil, fmt.Errorf("%w: singular covariance in log-rank test", ErrFitFailed)
	}

	var stat float64
	for g := 0; g < df; g++ {
		for h := 0; h < df; h++ {
			stat += z[g] * vinv.At(g, h) * z[h]
		}
	}

	chi2 := distuv.ChiSquared{K: float64(df)}

	return &LogRankResult{
		Groups:   groups,
		Observed: obs,
		Expected: exp,
		Stat:     stat,
		Df:       df,
		PValue:   chi2.Survival(stat),
	}, nil
}
