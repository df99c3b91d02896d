// Package boruta implements the Boruta all-relevant feature selection
// procedure of Kursa and Rudnicki for right censored survival outcomes.
// Every candidate predictor is repeatedly raced against randomized shadow
// copies of the undecided predictors: a predictor whose importance beats the
// best shadow significantly more often than chance is confirmed, one that
// loses significantly more often than chance is rejected, and the rest stay
// tentative.
package boruta

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/forest"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

// Decision is the state of one candidate feature.  A feature starts
// Tentative and moves at most once, to Confirmed or Rejected.
type Decision int

const (
	Tentative Decision = iota
	Confirmed
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Confirmed:
		return "Confirmed"
	case Rejected:
		return "Rejected"
	default:
		return "Tentative"
	}
}

// ImportanceModel scores predictors against a right censored outcome.  The
// returned slice holds one score per predictor, in the given order; real and
// shadow predictors are scored alike.  Implementations must draw all
// randomness from the supplied rng.
type ImportanceModel interface {
	Importances(data statmodel.Dataset, timevar, statusvar string, predictors []string, rng *rand.Rand) ([]float64, error)
}

// Config defines configuration parameters for the relevance filter.
type Config struct {

	// MaxIterations bounds the number of shadow iterations.  Features
	// still undecided when the bound is reached stay Tentative.
	MaxIterations int

	// Alpha is the two-sided significance level of the binomial test.
	Alpha float64

	// Seed initializes the run's random number generator.
	Seed int64

	// Bonferroni applies a Bonferroni correction over the currently
	// undecided features, following the published algorithm's mcAdj.
	Bonferroni bool

	// MinSamples is the smallest admissible number of rows.
	MinSamples int

	// Model scores the predictors.  If nil, a random survival forest
	// with permutation importance is used.
	Model ImportanceModel

	// Forest configures the default model; ignored when Model is set.
	Forest *forest.Config

	// Log receives progress information, optional.
	Log *log.Logger
}

// DefaultConfig returns a default configuration for the relevance filter.
func DefaultConfig() *Config {
	return &Config{
		MaxIterations: 100,
		Alpha:         0.01,
		Bonferroni:    true,
		MinSamples:    10,
	}
}

// IterationRecord holds the importance scores of one shadow iteration.
type IterationRecord struct {

	// Importance per feature, in History.Features order.  Features that
	// were not in the model this iteration (already rejected) hold NaN.
	Importance []float64

	// The largest importance achieved by any shadow feature.
	ShadowMax float64

	// Cumulative hit count per feature at the end of this iteration.
	Hits []int
}

// History accumulates the importance records of a run.
type History struct {

	// The candidate features, in input order.
	Features []string

	Records []IterationRecord
}

// Result is the outcome of a relevance filter run.
type Result struct {

	// Feature names per final decision, each in input order.
	Confirmed []string
	Rejected  []string
	Tentative []string

	// Decision per feature.
	Decisions map[string]Decision

	// The number of shadow iterations that ran.
	Iterations int

	History *History
}

// Summary returns a table of the run's per-feature outcomes.
func (r *Result) Summary() string {

	feats := r.History.Features
	nit := len(r.History.Records)

	dec := make([]string, len(feats))
	hits := make([]float64, len(feats))
	mimp := make([]float64, len(feats))

	for j, f := range feats {
		dec[j] = r.Decisions[f].String()

		var s, n float64
		for _, rec := range r.History.Records {
			if !math.IsNaN(rec.Importance[j]) {
				s += rec.Importance[j]
				n++
			}
		}
		if n > 0 {
			mimp[j] = s / n
		} else {
			mimp[j] = math.NaN()
		}
		if nit > 0 {
			hits[j] = float64(r.History.Records[nit-1].Hits[j])
		}
	}

	fs := func(x interface{}, h string) []string {
		y := x.([]string)
		m := len(h)
		for i := range y {
			if len(y[i]) > m {
				m = len(y[i])
			}
		}
		var z []string
		for i := range y {
			z = append(z, fmt.Sprintf(fmt.Sprintf("%%-%ds", m), y[i]))
		}
		return z
	}

	fn := func(x interface{}, h string) []string {
		y := x.([]float64)
		var z []string
		for i := range y {
			z = append(z, fmt.Sprintf("%12.4f", y[i]))
		}
		return z
	}

	sum := &statmodel.SummaryTable{
		Title:    "Shadow-feature relevance filter",
		ColNames: []string{"Feature   ", "Decision  ", "Hits", "Mean importance"},
		ColFmt:   []statmodel.Fmter{fs, fs, fn, fn},
		Cols:     []interface{}{feats, dec, hits, mimp},
		Top: []string{
			fmt.Sprintf("  Features:   %6d", len(feats)),
			fmt.Sprintf("  Confirmed:  %6d", len(r.Confirmed)),
			fmt.Sprintf("  Iterations: %6d", r.Iterations),
			fmt.Sprintf("  Rejected:   %6d", len(r.Rejected)),
		},
	}

	return sum.String()
}

// Select runs the relevance filter on the named features of the dataset
// against the right censored outcome (timevar, statusvar).  The run is
// deterministic given the seed in the configuration.  If the importance
// model fails, the iterations completed so far are returned together with an
// error wrapping ErrNonConvergent.
func Select(data statmodel.Dataset, timevar, statusvar string, features []string, config *Config) (*Result, error) {

	if config == nil {
		config = DefaultConfig()
	}

	if err := checkInput(data, timevar, statusvar, features, config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == nil {
		model = &ForestModel{Config: config.Forest}
	}

	rng := rand.New(rand.NewSource(config.Seed))

	decisions := make([]Decision, len(features))

	// Constant features carry no importance signal and are rejected
	// before the first iteration.
	for j, f := range features {
		if constant(data.Column(f)) {
			decisions[j] = Rejected
			if config.Log != nil {
				config.Log.Printf("rejecting constant feature %s", f)
			}
		}
	}

	hist := &History{Features: features}
	hits := make([]int, len(features))

	var iter int
	for iter = 0; iter < config.MaxIterations; iter++ {

		var undecided []int
		for j, d := range decisions {
			if d == Tentative {
				undecided = append(undecided, j)
			}
		}
		if len(undecided) == 0 {
			break
		}

		imp, shadowMax, err := runIteration(data, timevar, statusvar, features, decisions, undecided, model, rng)
		if err != nil {
			res := assemble(features, decisions, iter, hist)
			return res, fmt.Errorf("%w: %v", ErrNonConvergent, err)
		}

		// A tie with the best shadow is not a hit.
		for _, j := range undecided {
			if imp[j] > shadowMax {
				hits[j]++
			}
		}

		rec := IterationRecord{
			Importance: imp,
			ShadowMax:  shadowMax,
			Hits:       append([]int(nil), hits...),
		}
		hist.Records = append(hist.Records, rec)

		// Two-sided binomial test of each undecided feature's hit count
		// against p=1/2, optionally Bonferroni-scaled over the features
		// still in play.
		bin := distuv.Binomial{N: float64(iter + 1), P: 0.5}
		adj := 1.0
		if config.Bonferroni {
			adj = float64(len(undecided))
		}

		for _, j := range undecided {
			pHit := adj * (1 - bin.CDF(float64(hits[j]-1)))
			pMiss := adj * bin.CDF(float64(hits[j]))
			switch {
			case pHit < config.Alpha/2:
				decisions[j] = Confirmed
				if config.Log != nil {
					config.Log.Printf("iteration %d: confirmed %s (%d/%d hits)",
						iter+1, features[j], hits[j], iter+1)
				}
			case pMiss < config.Alpha/2:
				decisions[j] = Rejected
				if config.Log != nil {
					config.Log.Printf("iteration %d: rejected %s (%d/%d hits)",
						iter+1, features[j], hits[j], iter+1)
				}
			}
		}
	}

	return assemble(features, decisions, iter, hist), nil
}

// runIteration builds the shadow-augmented dataset, fits the importance
// model and returns the per-feature importances (NaN for features not in the
// model) and the shadow-max threshold.
func runIteration(data statmodel.Dataset, timevar, statusvar string, features []string,
	decisions []Decision, undecided []int, model ImportanceModel, rng *rand.Rand) ([]float64, float64, error) {

	n := data.NumObs()

	// Confirmed features stay in the fit so the ensemble keeps their
	// signal, but only undecided features get shadows and are tested.
	cols := [][]statmodel.Dtype{data.Column(timevar), data.Column(statusvar)}
	names := []string{timevar, statusvar}
	var preds []string
	live := make([]int, 0, len(features))

	for j, f := range features {
		if decisions[j] == Rejected {
			continue
		}
		cols = append(cols, data.Column(f))
		names = append(names, f)
		preds = append(preds, f)
		live = append(live, j)
	}

	for _, j := range undecided {
		f := features[j]
		src := data.Column(f)
		sh := make([]statmodel.Dtype, n)
		for i, k := range rng.Perm(n) {
			sh[i] = src[k]
		}
		sn := "shadow." + f
		cols = append(cols, sh)
		names = append(names, sn)
		preds = append(preds, sn)
	}

	ds, err := statmodel.NewDataset(cols, names)
	if err != nil {
		return nil, 0, err
	}

	scores, err := model.Importances(ds, timevar, statusvar, preds, rng)
	if err != nil {
		return nil, 0, err
	}
	if len(scores) != len(preds) {
		return nil, 0, fmt.Errorf("model returned %d scores for %d predictors", len(scores), len(preds))
	}

	imp := make([]float64, len(features))
	for j := range imp {
		imp[j] = math.NaN()
	}
	for k, j := range live {
		imp[j] = scores[k]
	}

	shadowMax := math.Inf(-1)
	for k := len(live); k < len(preds); k++ {
		if scores[k] > shadowMax {
			shadowMax = scores[k]
		}
	}

	return imp, shadowMax, nil
}

func checkInput(data statmodel.Dataset, timevar, statusvar string, features []string, config *Config) error {

	for _, vn := range []string{timevar, statusvar} {
		if data.Pos(vn) == -1 {
			return fmt.Errorf("%w: %s", statmodel.ErrUnknownVariable, vn)
		}
	}

	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if data.Pos(f) == -1 {
			return fmt.Errorf("%w: %s", statmodel.ErrUnknownVariable, f)
		}
		if seen[f] {
			return fmt.Errorf("%w: %s", statmodel.ErrDuplicateVariable, f)
		}
		seen[f] = true
	}

	if data.NumObs() < config.MinSamples {
		return fmt.Errorf("%w: %d rows, need at least %d",
			ErrInsufficientSamples, data.NumObs(), config.MinSamples)
	}

	var nevents int
	for i, s := range data.Column(statusvar) {
		switch s {
		case 1:
			nevents++
		case 0:
		default:
			return fmt.Errorf("%w: status must be coded 0/1, got %v at row %d",
				statmodel.ErrMisalignedInput, s, i)
		}
	}
	if nevents == 0 {
		return ErrDegenerateOutcome
	}

	return nil
}

func constant(x []statmodel.Dtype) bool {
	for i := 1; i < len(x); i++ {
		if x[i] != x[0] {
			return false
		}
	}
	return true
}

func assemble(features []string, decisions []Decision, iterations int, hist *History) *Result {

	res := &Result{
		Decisions:  make(map[string]Decision, len(features)),
		Iterations: iterations,
		History:    hist,
	}

	for j, f := range features {
		res.Decisions[f] = decisions[j]
		switch decisions[j] {
		case Confirmed:
			res.Confirmed = append(res.Confirmed, f)
		case Rejected:
			res.Rejected = append(res.Rejected, f)
		default:
			res.Tentative = append(res.Tentative, f)
		}
	}

	return res
}
