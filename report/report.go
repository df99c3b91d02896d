// Package report assembles the results of one analysis run into a text
// summary, a machine-readable importance history, and optional plots.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/boruta"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/duration"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

// GroupSurvival is the Kaplan-Meier summary of one risk group.
type GroupSurvival struct {
	Group  string
	N      int
	Events int

	// Median survival time; Reached is false when the curve never
	// falls to one half.
	Median  float64
	Reached bool

	// The step curve, for plotting.
	Times []float64
	Probs []float64
}

// CoxRow is the univariate proportional hazards fit of one confirmed genus.
type CoxRow struct {
	Genus  string
	Coef   float64
	SE     float64
	HR     float64
	LCB    float64
	UCB    float64
	PValue float64
}

// Report is the assembled output of one run.
type Report struct {
	RunID   string
	Created time.Time
	Seed    int64

	Samples int
	Events  int
	Genera  int

	// Genera dropped by the prevalence filter.
	Dropped []string

	Groups  []GroupSurvival
	LogRank *duration.LogRankResult
	Filter  *boruta.Result
	Cox     []CoxRow
}

// New returns an empty report stamped with a fresh run identifier.
func New(seed int64) *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Created: time.Now(),
		Seed:    seed,
	}
}

func fs(x interface{}, h string) []string {
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

func fn(x interface{}, h string) []string {
	y := x.([]float64)
	var z []string
	for i := range y {
		z = append(z, fmt.Sprintf("%10.4f", y[i]))
	}
	return z
}

// String renders the report as sectioned fixed-width text.
func (r *Report) String() string {

	var b strings.Builder

	fmt.Fprintf(&b, "Microbiome biomarker analysis\n")
	fmt.Fprintf(&b, "Run:     %s\n", r.RunID)
	fmt.Fprintf(&b, "Date:    %s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(&b, "Seed:    %d\n", r.Seed)
	fmt.Fprintf(&b, "Samples: %d (%d events)\n", r.Samples, r.Events)
	fmt.Fprintf(&b, "Genera:  %d (%d dropped by prevalence filter)\n\n", r.Genera, len(r.Dropped))

	if len(r.Groups) > 0 {
		b.WriteString(r.groupTable())
		b.WriteString("\n")
	}

	if r.LogRank != nil {
		fmt.Fprintf(&b, "Log-rank test across risk groups: chi2=%.3f on %d df, p=%.4f\n\n",
			r.LogRank.Stat, r.LogRank.Df, r.LogRank.PValue)
	}

	if r.Filter != nil {
		b.WriteString(r.Filter.Summary())
		b.WriteString("\n")
	}

	if len(r.Cox) > 0 {
		b.WriteString(r.coxTable())
	}

	return b.String()
}

func (r *Report) groupTable() string {

	var grp []string
	var n, ev, med []float64

	for _, g := range r.Groups {
		grp = append(grp, g.Group)
		n = append(n, float64(g.N))
		ev = append(ev, float64(g.Events))
		if g.Reached {
			med = append(med, g.Median)
		} else {
			med = append(med, math.NaN())
		}
	}

	sum := &statmodel.SummaryTable{
		Title:    "Kaplan-Meier survival by risk group",
		ColNames: []string{"Group   ", "N", "Events", "Median days"},
		ColFmt:   []statmodel.Fmter{fs, fn, fn, fn},
		Cols:     []interface{}{grp, n, ev, med},
		Top: []string{
			fmt.Sprintf("  Groups:  %6d", len(r.Groups)),
			fmt.Sprintf("  Samples: %6d", r.Samples),
		},
		Msg: []string{"NaN medians: survival never fell below one half"},
	}

	return sum.String()
}

func (r *Report) coxTable() string {

	var genus []string
	var coef, se, hr, lcb, ucb, pv []float64

	for _, c := range r.Cox {
		genus = append(genus, c.Genus)
		coef = append(coef, c.Coef)
		se = append(se, c.SE)
		hr = append(hr, c.HR)
		lcb = append(lcb, c.LCB)
		ucb = append(ucb, c.UCB)
		pv = append(pv, c.PValue)
	}

	sum := &statmodel.SummaryTable{
		Title:    "Univariate Cox regression of confirmed genera",
		ColNames: []string{"Genus   ", "Coefficient", "SE", "HR", "LCB", "UCB", "P-value"},
		ColFmt:   []statmodel.Fmter{fs, fn, fn, fn, fn, fn, fn},
		Cols:     []interface{}{genus, coef, se, hr, lcb, ucb, pv},
		Top: []string{
			fmt.Sprintf("  Genera: %6d", len(r.Cox)),
			"  Ties:  Breslow",
		},
	}

	return sum.String()
}

// WriteFiles writes the report into dir: report.txt, the iteration history
// as importance_history.csv, and when plots is true the survival and
// importance plots as png files.
func (r *Report) WriteFiles(dir string, plots bool) error {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: creating output dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "report.txt"), []byte(r.String()), 0o644); err != nil {
		return fmt.Errorf("report: writing report.txt: %w", err)
	}

	if r.Filter != nil {
		if err := r.writeHistory(filepath.Join(dir, "importance_history.csv")); err != nil {
			return err
		}
	}

	if plots {
		if len(r.Groups) > 0 {
			if err := r.plotSurvival(filepath.Join(dir, "survival_by_risk.png")); err != nil {
				return err
			}
		}
		if r.Filter != nil && len(r.Filter.History.Records) > 0 {
			if err := r.plotImportance(filepath.Join(dir, "importance.png")); err != nil {
				return err
			}
		}
	}

	return nil
}

// writeHistory writes the filter's iteration history in long form.
func (r *Report) writeHistory(path string) error {

	var buf strings.Builder

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"iteration", "feature", "importance", "hits", "shadow_max"}); err != nil {
		return fmt.Errorf("report: writing history: %w", err)
	}

	hist := r.Filter.History
	for it, rec := range hist.Records {
		for j, feat := range hist.Features {
			row := []string{
				strconv.Itoa(it + 1),
				feat,
				strconv.FormatFloat(rec.Importance[j], 'g', -1, 64),
				strconv.Itoa(rec.Hits[j]),
				strconv.FormatFloat(rec.ShadowMax, 'g', -1, 64),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("report: writing history: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("report: writing history: %w", err)
	}

	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("report: writing history: %w", err)
	}

	return nil
}
