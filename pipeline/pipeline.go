// Package pipeline runs the full biomarker analysis: ingest the cohort
// tables, recode genus abundances to presence/absence, estimate survival by
// risk group, run the shadow-feature relevance filter, and fit a univariate
// Cox model for each confirmed genus.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/boruta"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/cohort"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/duration"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/forest"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/report"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

// Pipeline executes one analysis run.
type Pipeline struct {
	cfg *Config
	log *zap.Logger
}

// New returns a pipeline for the given configuration.  The logger may be
// nil, in which case the pipeline runs silently.
func New(cfg *Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, log: logger}
}

// Run executes every stage and returns the assembled report.  Cancellation
// of the context is honored between stages.
func (p *Pipeline) Run(ctx context.Context) (*report.Report, error) {

	rep := report.New(p.cfg.Filter.Seed)

	co, err := p.loadCohort(ctx)
	if err != nil {
		return nil, err
	}
	rep.Samples = co.NumSamples()
	rep.Events = co.NumEvents()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	co.PresenceAbsence(p.cfg.PresenceThreshold)
	rep.Dropped = co.FilterPrevalence(p.cfg.MinPrevalence)
	rep.Genera = len(co.Genera)
	p.log.Info("recoded cohort",
		zap.Int("genera", len(co.Genera)),
		zap.Int("dropped", len(rep.Dropped)),
		zap.Duration("elapsed", time.Since(start)))

	ds, err := co.Dataset()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.survivalByRisk(co, rep); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.relevanceFilter(ds, co.Genera, rep); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.coxPerGenus(ds, rep); err != nil {
		return nil, err
	}

	return rep, nil
}

func (p *Pipeline) loadCohort(ctx context.Context) (*cohort.Cohort, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	clf, err := os.Open(p.cfg.Clinical)
	if err != nil {
		return nil, fmt.Errorf("open clinical table: %w", err)
	}
	defer clf.Close()

	cl, err := cohort.ReadClinical(clf, nil)
	if err != nil {
		return nil, err
	}

	cmf, err := os.Open(p.cfg.Community)
	if err != nil {
		return nil, fmt.Errorf("open community table: %w", err)
	}
	defer cmf.Close()

	cm, err := cohort.ReadCommunity(cmf, nil)
	if err != nil {
		return nil, err
	}

	co, err := cohort.Merge(cl, cm)
	if err != nil {
		return nil, err
	}

	p.log.Info("loaded cohort",
		zap.Int("samples", co.NumSamples()),
		zap.Int("events", co.NumEvents()),
		zap.Int("genera", len(co.Genera)),
		zap.Duration("elapsed", time.Since(start)))

	return co, nil
}

// survivalByRisk estimates a Kaplan-Meier curve per risk group and runs the
// log-rank comparison across groups.
func (p *Pipeline) survivalByRisk(co *cohort.Cohort, rep *report.Report) error {

	start := time.Now()

	groups := make(map[string][]int)
	for i, label := range co.RiskLabels {
		groups[label] = append(groups[label], i)
	}

	for _, label := range cohort.RiskLevels {

		idx := groups[label]
		if len(idx) == 0 {
			continue
		}

		tm := make([]statmodel.Dtype, len(idx))
		status := make([]statmodel.Dtype, len(idx))
		var events int
		for k, i := range idx {
			tm[k] = co.Time[i]
			status[k] = co.Status[i]
			if co.Status[i] == 1 {
				events++
			}
		}

		gs := report.GroupSurvival{
			Group:  label,
			N:      len(idx),
			Events: events,
		}

		if events > 0 {
			gds, err := statmodel.NewDataset([][]statmodel.Dtype{tm, status}, []string{"Time", "Status"})
			if err != nil {
				return err
			}
			sf, err := duration.NewSurvfuncRight(gds, "Time", "Status", nil)
			if err != nil {
				return err
			}
			gs.Times = sf.Time()
			gs.Probs = sf.SurvProb()
			gs.Median, gs.Reached = sf.Median()
		}

		rep.Groups = append(rep.Groups, gs)
	}

	ds, err := co.Dataset()
	if err != nil {
		return err
	}

	lr, err := duration.LogRank(ds, "Time", "Status", "RiskGroup")
	switch {
	case err == nil:
		rep.LogRank = lr
	default:
		// A single-group or all-censored cohort has no comparison to
		// make; the report simply omits the test.
		p.log.Warn("skipping log-rank test", zap.Error(err))
	}

	p.log.Info("estimated survival by risk group",
		zap.Int("groups", len(rep.Groups)),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}

func (p *Pipeline) relevanceFilter(ds statmodel.Dataset, genera []string, rep *report.Report) error {

	start := time.Now()

	fcfg := forest.DefaultConfig()
	fcfg.NumTrees = p.cfg.Filter.Trees
	if p.cfg.Filter.Importance == "splitstat" {
		fcfg.Importance = forest.ImpSplitStat
	}

	bcfg := boruta.DefaultConfig()
	bcfg.MaxIterations = p.cfg.Filter.MaxIterations
	bcfg.Alpha = p.cfg.Filter.Alpha
	bcfg.Seed = p.cfg.Filter.Seed
	bcfg.Forest = fcfg
	bcfg.Log = zap.NewStdLog(p.log)

	res, err := boruta.Select(ds, "Time", "Status", genera, bcfg)
	if err != nil {
		if res == nil || !errors.Is(err, boruta.ErrNonConvergent) {
			return err
		}
		// Keep the iterations that completed; the report marks the
		// remaining features tentative.
		p.log.Warn("relevance filter stopped early", zap.Error(err))
	}
	rep.Filter = res

	p.log.Info("ran relevance filter",
		zap.Int("iterations", res.Iterations),
		zap.Strings("confirmed", res.Confirmed),
		zap.Int("rejected", len(res.Rejected)),
		zap.Int("tentative", len(res.Tentative)),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}

// coxPerGenus fits a univariate proportional hazards model for each genus
// the filter confirmed.
func (p *Pipeline) coxPerGenus(ds statmodel.Dataset, rep *report.Report) error {

	start := time.Now()

	for _, genus := range rep.Filter.Confirmed {

		cfg := duration.DefaultPHRegConfig()
		cfg.Log = zap.NewStdLog(p.log)
		if p.cfg.Cox.StratifyByRisk {
			cfg.StrataVar = "RiskGroup"
		}
		if p.cfg.Cox.Ridge > 0 {
			cfg.L2Penalty = map[string]float64{genus: p.cfg.Cox.Ridge}
		}

		ph, err := duration.NewPHReg(ds, "Time", "Status", []string{genus}, cfg)
		if err != nil {
			return fmt.Errorf("cox model for %s: %w", genus, err)
		}

		rslt, err := ph.Fit()
		if err != nil {
			return fmt.Errorf("cox fit for %s: %w", genus, err)
		}

		coef := rslt.Params()[0]
		row := report.CoxRow{
			Genus: genus,
			Coef:  coef,
			HR:    math.Exp(coef),
		}
		if se := rslt.StdErr(); se != nil {
			row.SE = se[0]
			row.LCB = math.Exp(coef - 2*se[0])
			row.UCB = math.Exp(coef + 2*se[0])
			row.PValue = rslt.PValues()[0]
		}

		rep.Cox = append(rep.Cox, row)
	}

	p.log.Info("fit Cox models",
		zap.Int("genera", len(rep.Cox)),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}
