package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/boruta"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/duration"
)

func sampleReport() *Report {

	r := New(42)
	r.Samples = 24
	r.Events = 12
	r.Genera = 3
	r.Dropped = []string{"Rothia"}

	r.Groups = []GroupSurvival{
		{Group: "Low", N: 10, Events: 3, Median: 0, Reached: false,
			Times: []float64{100, 300}, Probs: []float64{0.9, 0.7}},
		{Group: "High", N: 14, Events: 9, Median: 250, Reached: true,
			Times: []float64{50, 250, 400}, Probs: []float64{0.8, 0.45, 0.2}},
	}

	r.LogRank = &duration.LogRankResult{
		Groups:   []float64{0, 1},
		Observed: []float64{3, 9},
		Expected: []float64{6, 6},
		Stat:     4.2,
		Df:       1,
		PValue:   0.0404,
	}

	r.Filter = &boruta.Result{
		Confirmed: []string{"Prevotella"},
		Rejected:  []string{"Bacteroides"},
		Decisions: map[string]boruta.Decision{
			"Prevotella":  boruta.Confirmed,
			"Bacteroides": boruta.Rejected,
		},
		Iterations: 9,
		History: &boruta.History{
			Features: []string{"Prevotella", "Bacteroides"},
			Records: []boruta.IterationRecord{
				{Importance: []float64{0.11, 0.01}, ShadowMax: 0.05, Hits: []int{1, 0}},
				{Importance: []float64{0.13, 0.02}, ShadowMax: 0.04, Hits: []int{2, 0}},
			},
		},
	}

	r.Cox = []CoxRow{
		{Genus: "Prevotella", Coef: 1.21, SE: 0.48, HR: 3.35, LCB: 1.28, UCB: 8.77, PValue: 0.012},
	}

	return r
}

func TestReportString(t *testing.T) {

	r := sampleReport()
	s := r.String()

	assert.Contains(t, s, r.RunID)
	assert.Contains(t, s, "Kaplan-Meier survival by risk group")
	assert.Contains(t, s, "Log-rank test across risk groups")
	assert.Contains(t, s, "Shadow-feature relevance filter")
	assert.Contains(t, s, "Univariate Cox regression of confirmed genera")
	assert.Contains(t, s, "Prevotella")
}

func TestWriteFiles(t *testing.T) {

	r := sampleReport()
	dir := t.TempDir()

	require.NoError(t, r.WriteFiles(dir, true))

	for _, name := range []string{"report.txt", "importance_history.csv", "survival_by_risk.png", "importance.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	hist, err := os.ReadFile(filepath.Join(dir, "importance_history.csv"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(hist)), "\n")
	// Header plus 2 iterations x 2 features.
	assert.Len(t, lines, 5)
	assert.Equal(t, "iteration,feature,importance,hits,shadow_max", lines[0])
	assert.Contains(t, lines[1], "Prevotella")
}

func TestWriteFilesNoPlots(t *testing.T) {

	r := sampleReport()
	dir := t.TempDir()

	require.NoError(t, r.WriteFiles(dir, false))

	_, err := os.Stat(filepath.Join(dir, "survival_by_risk.png"))
	assert.True(t, os.IsNotExist(err))
}
