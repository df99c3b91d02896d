package forest

import (
	"math"
	"math/rand"
	"sort"
)

// node is one node of a survival tree.  Interior nodes carry a split,
// terminal nodes carry the Nelson-Aalen mortality of their in-bag cases.
type node struct {
	left  *node
	right *node

	// Split variable (predictor index) and threshold; cases with
	// x <= cut go left.
	xvar int
	cut  float64

	mortality float64
}

func (nd *node) terminal() bool {
	return nd.left == nil
}

// tree is one bootstrap tree of the forest.
type tree struct {
	root *node

	// Bootstrap multiplicity per training case.
	weights []float64

	// Indices of out-of-bag cases.
	oob []int

	// Log-rank split statistic accumulated per predictor.
	splitStat []float64

	nsplits int

	// Seed for the permutation-importance rng.
	permSeed int64
}

// growTree grows one tree on a bootstrap sample drawn with the given seed.
func growTree(f *Forest, mtry int, growSeed, permSeed int64) *tree {

	rng := rand.New(rand.NewSource(growSeed))
	n := len(f.time)

	tr := &tree{
		weights:   make([]float64, n),
		splitStat: make([]float64, len(f.predictors)),
		permSeed:  permSeed,
	}

	for k := 0; k < n; k++ {
		tr.weights[rng.Intn(n)]++
	}

	var inbag []int
	for i, w := range tr.weights {
		if w > 0 {
			inbag = append(inbag, i)
		} else {
			tr.oob = append(tr.oob, i)
		}
	}

	tr.root = tr.grow(f, inbag, mtry, 0, rng)

	return tr
}

// grow recursively splits the cases in idx and returns the subtree root.
func (tr *tree) grow(f *Forest, idx []int, mtry, depth int, rng *rand.Rand) *node {

	nd := &node{}

	if tr.stop(f, idx, depth) {
		nd.mortality = tr.mortality(f, idx)
		return nd
	}

	xvar, cut, stat, ok := tr.bestSplit(f, idx, mtry, rng)
	if !ok {
		nd.mortality = tr.mortality(f, idx)
		return nd
	}

	tr.splitStat[xvar] += stat
	tr.nsplits++

	var left, right []int
	for _, i := range idx {
		if f.x[xvar][i] <= cut {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	nd.xvar = xvar
	nd.cut = cut
	nd.left = tr.grow(f, left, mtry, depth+1, rng)
	nd.right = tr.grow(f, right, mtry, depth+1, rng)

	return nd
}

// stop reports whether the node holding idx must become terminal before any
// split is attempted.
func (tr *tree) stop(f *Forest, idx []int, depth int) bool {

	cfg := f.config

	if cfg.MaxDepth > 0 && depth >= cfg.MaxDepth {
		return true
	}
	if len(idx) < 2*cfg.MinNodeSize {
		return true
	}

	var events float64
	for _, i := range idx {
		events += tr.weights[i] * f.status[i]
	}

	return events == 0
}

// bestSplit searches mtry randomly chosen predictors for the split with the
// largest two-sample log-rank statistic.  Both children must contain at
// least MinNodeSize cases.  The last return value is false when no
// admissible split exists among the sampled predictors.
func (tr *tree) bestSplit(f *Forest, idx []int, mtry int, rng *rand.Rand) (int, float64, float64, bool) {

	var bestVar int
	var bestCut, bestStat float64
	found := false

	cand := rng.Perm(len(f.predictors))[:mtry]

	for _, j := range cand {

		x := f.x[j]

		// Distinct values of the predictor within this node, sorted,
		// giving the midpoint thresholds.
		vals := make([]float64, 0, len(idx))
		for _, i := range idx {
			vals = append(vals, x[i])
		}
		sort.Float64s(vals)
		k := 0
		for i := 1; i < len(vals); i++ {
			if vals[i] != vals[k] {
				k++
				vals[k] = vals[i]
			}
		}
		vals = vals[:k+1]

		for v := 0; v < len(vals)-1; v++ {

			cut := (vals[v] + vals[v+1]) / 2

			stat, ok := tr.logrankStat(f, idx, j, cut)
			if !ok {
				continue
			}

			if !found || stat > bestStat {
				bestVar = j
				bestCut = cut
				bestStat = stat
				found = true
			}
		}
	}

	return bestVar, bestCut, bestStat, found
}

// logrankStat computes the absolute standardized two-sample log-rank
// statistic for splitting idx on predictor j at the given threshold, using
// the bootstrap weights.  The second return value is false when the split is
// inadmissible (a child below MinNodeSize, or zero variance).
func (tr *tree) logrankStat(f *Forest, idx []int, j int, cut float64) (float64, bool) {

	var nl, nr int
	for _, i := range idx {
		if f.x[j][i] <= cut {
			nl++
		} else {
			nr++
		}
	}
	if nl < f.config.MinNodeSize || nr < f.config.MinNodeSize {
		return 0, false
	}

	// Sort the node's cases by time so the risk sets can be walked once.
	ord := make([]int, len(idx))
	copy(ord, idx)
	sort.Slice(ord, func(a, b int) bool {
		return f.time[ord[a]] < f.time[ord[b]]
	})

	// Weighted risk set totals, overall and in the left group.
	var atRisk, atRiskL float64
	for _, i := range ord {
		atRisk += tr.weights[i]
		if f.x[j][i] <= cut {
			atRiskL += tr.weights[i]
		}
	}

	var obs, exp, vr float64

	for a := 0; a < len(ord); {

		t := f.time[ord[a]]

		// All cases tied at this time: weighted events overall and in
		// the left group, and the weight exiting the risk set.
		var d, dl, out, outL float64
		b := a
		for ; b < len(ord) && f.time[ord[b]] == t; b++ {
			i := ord[b]
			w := tr.weights[i]
			out += w
			if f.x[j][i] <= cut {
				outL += w
			}
			if f.status[i] == 1 {
				d += w
				if f.x[j][i] <= cut {
					dl += w
				}
			}
		}

		if d > 0 && atRisk > 1 {
			pl := atRiskL / atRisk
			obs += dl
			exp += d * pl
			vr += d * pl * (1 - pl) * (atRisk - d) / (atRisk - 1)
		}

		atRisk -= out
		atRiskL -= outL
		a = b
	}

	if vr <= 0 {
		return 0, false
	}

	return math.Abs(obs-exp) / math.Sqrt(vr), true
}

// mortality returns the terminal risk score for the cases in idx: the total
// Nelson-Aalen cumulative hazard over the node's event times, computed with
// the bootstrap weights.
func (tr *tree) mortality(f *Forest, idx []int) float64 {

	ord := make([]int, len(idx))
	copy(ord, idx)
	sort.Slice(ord, func(a, b int) bool {
		return f.time[ord[a]] < f.time[ord[b]]
	})

	var atRisk float64
	for _, i := range ord {
		atRisk += tr.weights[i]
	}

	var haz float64
	for a := 0; a < len(ord); {

		t := f.time[ord[a]]

		var d, out float64
		b := a
		for ; b < len(ord) && f.time[ord[b]] == t; b++ {
			i := ord[b]
			out += tr.weights[i]
			if f.status[i] == 1 {
				d += tr.weights[i]
			}
		}

		if d > 0 && atRisk > 0 {
			haz += d / atRisk
		}

		atRisk -= out
		a = b
	}

	return haz
}

// predict walks the tree for one case and returns its terminal mortality.
func (nd *node) walk(x []float64) float64 {
	for !nd.terminal() {
		if x[nd.xvar] <= nd.cut {
			nd = nd.left
		} else {
			nd = nd.right
		}
	}
	return nd.mortality
}

func (tr *tree) predict(x []float64) float64 {
	return tr.root.walk(x)
}
