// Package forest implements a random survival forest for right censored
// outcomes.  Trees are grown on bootstrap samples and split on a two-sample
// log-rank statistic; terminal nodes carry a Nelson-Aalen mortality score.
// Variable importance is available either as the out-of-bag permutation
// concordance drop or as the accumulated split statistic per variable.
package forest

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/duration"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

// ImportanceMethod selects how variable importance is computed.
type ImportanceMethod int

const (
	// ImpPermutation is the out-of-bag permutation importance: for each
	// tree, the drop in out-of-bag concordance when one predictor's
	// out-of-bag values are randomly permuted, averaged over trees.
	ImpPermutation ImportanceMethod = iota

	// ImpSplitStat credits each split's log-rank statistic to the split
	// variable and averages the totals over trees.
	ImpSplitStat
)

// Config defines configuration parameters for growing a survival forest.
type Config struct {

	// NumTrees is the number of trees in the forest.
	NumTrees int

	// MTry is the number of candidate predictors considered at each
	// split.  If zero, ceil(sqrt(p)) is used.
	MTry int

	// MinNodeSize is the minimum number of in-bag cases in a child node.
	MinNodeSize int

	// MaxDepth limits the tree depth.  If zero, depth is unlimited.
	MaxDepth int

	// Importance selects the variable importance method.
	Importance ImportanceMethod

	// Workers is the number of trees grown concurrently.  If zero,
	// GOMAXPROCS workers are used.
	Workers int

	// Log receives progress information, optional.
	Log *log.Logger
}

// DefaultConfig returns a default configuration for a survival forest.
func DefaultConfig() *Config {
	return &Config{
		NumTrees:    500,
		MinNodeSize: 3,
	}
}

// Forest is a grown random survival forest.
type Forest struct {

	// The predictor names, in the order given to Grow.
	predictors []string

	// The predictor columns, parallel to predictors.
	x [][]float64

	time   []float64
	status []float64

	trees []*tree

	config *Config
}

// Grow fits a random survival forest to the given right censored data.  The
// rng drives the bootstrap and split sampling; per-tree seeds are drawn from
// it up front so the forest is deterministic regardless of how many workers
// run.  If no tree finds an admissible split, the forest is returned together
// with ErrNoSplits.
func Grow(data statmodel.Dataset, timevar, statusvar string, predictors []string, config *Config, rng *rand.Rand) (*Forest, error) {

	if config == nil {
		config = DefaultConfig()
	}

	for _, vn := range append([]string{timevar, statusvar}, predictors...) {
		if data.Pos(vn) == -1 {
			return nil, fmt.Errorf("%w: %s", statmodel.ErrUnknownVariable, vn)
		}
	}

	time := data.Column(timevar)
	status := data.Column(statusvar)

	var nevents int
	for i, s := range status {
		switch s {
		case 1:
			nevents++
		case 0:
		default:
			return nil, fmt.Errorf("%w: row %d", duration.ErrInvalidStatus, i)
		}
		if time[i] < 0 {
			return nil, fmt.Errorf("%w: row %d", duration.ErrInvalidTime, i)
		}
	}
	if nevents == 0 {
		return nil, ErrNoEvents
	}

	x := make([][]float64, len(predictors))
	for j, vn := range predictors {
		x[j] = data.Column(vn)
	}

	f := &Forest{
		predictors: predictors,
		x:          x,
		time:       time,
		status:     status,
		trees:      make([]*tree, config.NumTrees),
		config:     config,
	}

	mtry := config.MTry
	if mtry <= 0 {
		mtry = int(math.Ceil(math.Sqrt(float64(len(predictors)))))
	}
	if mtry > len(predictors) {
		mtry = len(predictors)
	}

	// All randomness is drawn from the parent rng before any worker
	// starts, so the result does not depend on scheduling.
	growSeeds := make([]int64, config.NumTrees)
	permSeeds := make([]int64, config.NumTrees)
	for i := range growSeeds {
		growSeeds[i] = rng.Int63()
		permSeeds[i] = rng.Int63()
	}

	workers := config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range f.trees {
		i := i
		g.Go(func() error {
			f.trees[i] = growTree(f, mtry, growSeeds[i], permSeeds[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var nsplits int
	for _, tr := range f.trees {
		nsplits += tr.nsplits
	}
	if config.Log != nil {
		config.Log.Printf("grew %d trees with %d splits in total", len(f.trees), nsplits)
	}
	if nsplits == 0 {
		return f, ErrNoSplits
	}

	return f, nil
}

// Predictors returns the predictor names in the order used by the forest.
func (f *Forest) Predictors() []string {
	return f.predictors
}

// NumTrees returns the number of trees in the forest.
func (f *Forest) NumTrees() int {
	return len(f.trees)
}

// row collects the predictor values of case i into buf.
func (f *Forest) row(i int, buf []float64) []float64 {
	for j := range f.x {
		buf[j] = f.x[j][i]
	}
	return buf
}

// PredictRisk returns the ensemble mortality for a case with the given
// predictor values, averaged over all trees.  Higher values anticipate
// earlier events.
func (f *Forest) PredictRisk(x []float64) float64 {

	if len(x) != len(f.predictors) {
		panic(fmt.Sprintf("forest: %d predictor values for %d predictors", len(x), len(f.predictors)))
	}

	var r float64
	for _, tr := range f.trees {
		r += tr.predict(x)
	}

	return r / float64(len(f.trees))
}

// OOBRisk returns the out-of-bag mortality for every training case: the
// average risk over the trees for which the case was out of bag.  Cases that
// were in bag in every tree get NaN.
func (f *Forest) OOBRisk() []float64 {

	n := len(f.time)
	risk := make([]float64, n)
	cnt := make([]float64, n)
	buf := make([]float64, len(f.predictors))

	for _, tr := range f.trees {
		for _, i := range tr.oob {
			risk[i] += tr.predict(f.row(i, buf))
			cnt[i]++
		}
	}

	for i := range risk {
		if cnt[i] == 0 {
			risk[i] = math.NaN()
		} else {
			risk[i] /= cnt[i]
		}
	}

	return risk
}

// VariableImportance returns one importance score per predictor, in the
// order returned by Predictors, using the configured method.
func (f *Forest) VariableImportance() []float64 {

	if f.config.Importance == ImpSplitStat {
		return f.splitStatImportance()
	}

	return f.permutationImportance()
}

func (f *Forest) splitStatImportance() []float64 {

	vi := make([]float64, len(f.predictors))
	for _, tr := range f.trees {
		for j, s := range tr.splitStat {
			vi[j] += s
		}
	}
	for j := range vi {
		vi[j] /= float64(len(f.trees))
	}

	return vi
}

// permutationImportance computes, for each predictor, the average drop in
// out-of-bag concordance caused by permuting that predictor's out-of-bag
// values, following Breiman's permutation importance adapted to survival
// forests by Ishwaran et al.
func (f *Forest) permutationImportance() []float64 {

	p := len(f.predictors)
	sum := make([]float64, p)
	cnt := make([]float64, p)
	buf := make([]float64, p)

	for _, tr := range f.trees {

		m := len(tr.oob)
		if m < 2 {
			continue
		}

		otime := make([]float64, m)
		ostatus := make([]float64, m)
		for k, i := range tr.oob {
			otime[k] = f.time[i]
			ostatus[k] = f.status[i]
		}

		conc, err := duration.NewConcordance(otime, ostatus)
		if err != nil || conc.NumPairs() == 0 {
			continue
		}

		score := make([]float64, m)
		for k, i := range tr.oob {
			score[k] = tr.predict(f.row(i, buf))
		}
		base := conc.Concordance(score)

		// The permutation rng was seeded when the tree was grown, so
		// the importance is reproducible.
		rng := rand.New(rand.NewSource(tr.permSeed))

		perm := make([]float64, m)
		for j := 0; j < p; j++ {

			if tr.splitStat[j] == 0 {
				// The tree never used this variable, so permuting
				// it cannot change any prediction.
				continue
			}

			for k, i := range tr.oob {
				perm[k] = f.x[j][i]
			}
			rng.Shuffle(m, func(a, b int) {
				perm[a], perm[b] = perm[b], perm[a]
			})

			for k, i := range tr.oob {
				f.row(i, buf)
				buf[j] = perm[k]
				score[k] = tr.predict(buf)
			}

			sum[j] += base - conc.Concordance(score)
			cnt[j]++
		}
	}

	vi := make([]float64, p)
	for j := range vi {
		if cnt[j] > 0 {
			vi[j] = sum[j] / cnt[j]
		}
	}

	return vi
}
