package duration

import (
	"fmt"
	"math"
	"sort"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

// SurvfuncRight uses the method of Kaplan and Meier to estimate the
// survival distribution based on (possibly) right censored data.
type SurvfuncRight struct {

	// The data used to perform the estimation.
	data statmodel.Dataset

	// The name of the variable containing the minimum of the
	// event time and censoring time.
	timeVar string

	// The name of a variable containing the status indicator,
	// which is 1 if the event occurred at the time given by
	// timeVar, and 0 otherwise.
	statusVar string

	// The name of a variable containing case weights, optional.
	weightVar string

	// The name of a variable containing entry times, optional.
	entryVar string

	// Times at which events occur, sorted.
	times []float64

	// Number of events at each time in times.
	nEvents []float64

	// Number of people at risk just before each time in times.
	nRisk []float64

	// The estimated survival function evaluated at each time in times.
	survProb []float64

	// The standard errors for the estimates in survProb.
	survProbSE []float64

	events map[float64]float64
	total  map[float64]float64
	entry  map[float64]float64

	timepos   int
	statuspos int
	weightpos int
	entrypos  int
}

// SurvfuncConfig defines configuration parameters for a survival function.
type SurvfuncConfig struct {

	// WeightVar is the name of a case weight variable, optional.
	WeightVar string

	// EntryVar is the name of an entry time variable, optional.
	// Entry times must precede the event or censoring time.
	EntryVar string
}

// NewSurvfuncRight estimates the survival function for the given
// right-censored data.  The config argument may be nil, in which case
// weights and entry times are not used.
func NewSurvfuncRight(data statmodel.Dataset, timevar, statusvar string, config *SurvfuncConfig) (*SurvfuncRight, error) {

	sf := &SurvfuncRight{
		data:      data,
		timeVar:   timevar,
		statusVar: statusvar,
	}

	if config != nil {
		sf.weightVar = config.WeightVar
		sf.entryVar = config.EntryVar
	}

	if err := sf.init(); err != nil {
		return nil, err
	}
	if err := sf.scanData(); err != nil {
		return nil, err
	}
	sf.eventstats()
	sf.compress()
	sf.fit()

	return sf, nil
}

// Time returns the times at which the survival function changes.
func (sf *SurvfuncRight) Time() []float64 {
	return sf.times
}

// NumRisk returns the number of people at risk at each time point
// where the survival function changes.
func (sf *SurvfuncRight) NumRisk() []float64 {
	return sf.nRisk
}

// NumEvents returns the number of events at each time point where the
// survival function changes.
func (sf *SurvfuncRight) NumEvents() []float64 {
	return sf.nEvents
}

// SurvProb returns the estimated survival probabilities at the points
// where the survival function changes.
func (sf *SurvfuncRight) SurvProb() []float64 {
	return sf.survProb
}

// SurvProbSE returns the standard errors of the estimated survival
// probabilities at the points where the survival function changes.
func (sf *SurvfuncRight) SurvProbSE() []float64 {
	return sf.survProbSE
}

// Quantile returns the smallest observed time at which the estimated
// survival probability is less than or equal to 1-p.  The second
// return value is false if the survival curve never falls that far.
func (sf *SurvfuncRight) Quantile(p float64) (float64, bool) {

	q := 1 - p
	for i, s := range sf.survProb {
		if s <= q {
			return sf.times[i], true
		}
	}

	return 0, false
}

// Median returns the estimated median survival time.  The second
// return value is false if the survival curve never falls to 1/2.
func (sf *SurvfuncRight) Median() (float64, bool) {
	return sf.Quantile(0.5)
}

func (sf *SurvfuncRight) init() error {

	sf.events = make(map[float64]float64)
	sf.total = make(map[float64]float64)
	sf.entry = make(map[float64]float64)

	sf.timepos = sf.data.Pos(sf.timeVar)
	sf.statuspos = sf.data.Pos(sf.statusVar)
	sf.weightpos = -1
	sf.entrypos = -1

	if sf.timepos == -1 {
		return fmt.Errorf("%w: time variable %s", statmodel.ErrUnknownVariable, sf.timeVar)
	}
	if sf.statuspos == -1 {
		return fmt.Errorf("%w: status variable %s", statmodel.ErrUnknownVariable, sf.statusVar)
	}
	if sf.weightVar != "" {
		sf.weightpos = sf.data.Pos(sf.weightVar)
		if sf.weightpos == -1 {
			return fmt.Errorf("%w: weight variable %s", statmodel.ErrUnknownVariable, sf.weightVar)
		}
	}
	if sf.entryVar != "" {
		sf.entrypos = sf.data.Pos(sf.entryVar)
		if sf.entrypos == -1 {
			return fmt.Errorf("%w: entry variable %s", statmodel.ErrUnknownVariable, sf.entryVar)
		}
	}

	return nil
}

func (sf *SurvfuncRight) scanData() error {

	da := sf.data.Data()
	time := da[sf.timepos]
	status := da[sf.statuspos]

	var weight, entry []float64
	if sf.weightpos != -1 {
		weight = da[sf.weightpos]
	}
	if sf.entrypos != -1 {
		entry = da[sf.entrypos]
	}

	for i, t := range time {

		w := float64(1)
		if weight != nil {
			w = weight[i]
			if w <= 0 {
				return fmt.Errorf("%w: row %d", ErrInvalidWeight, i)
			}
		}

		if status[i] == 1 {
			sf.events[t] += w
		} else if status[i] != 0 {
			return fmt.Errorf("%w: row %d", ErrInvalidStatus, i)
		}
		sf.total[t] += w

		if entry != nil {
			if entry[i] >= t {
				return fmt.Errorf("%w: row %d", ErrInvalidEntry, i)
			}
			sf.entry[entry[i]] += w
		}
	}

	return nil
}

func rollback(x []float64) {
	var z float64
	for i := len(x) - 1; i >= 0; i-- {
		z += x[i]
		x[i] = z
	}
}

func (sf *SurvfuncRight) eventstats() {

	// Get the sorted distinct times (event or censoring)
	sf.times = make([]float64, len(sf.total))
	var i int
	for t := range sf.total {
		sf.times[i] = t
		i++
	}
	sort.Float64s(sf.times)

	// Get the weighted event count and risk set size at each time
	// point (in same order as times).
	sf.nEvents = make([]float64, len(sf.times))
	sf.nRisk = make([]float64, len(sf.times))
	for i, t := range sf.times {
		sf.nEvents[i] = sf.events[t]
		sf.nRisk[i] = sf.total[t]
	}
	rollback(sf.nRisk)

	// Adjust for entry times
	if sf.entrypos != -1 {
		entry := make([]float64, len(sf.times))
		for t, w := range sf.entry {
			ii := sort.SearchFloat64s(sf.times, t)
			if ii == len(sf.times) || t < sf.times[ii] {
				ii--
			}
			if ii >= 0 {
				entry[ii] += w
			}
		}
		rollback(entry)
		for i := 0; i < len(sf.nRisk); i++ {
			sf.nRisk[i] -= entry[i]
		}
	}
}

// compress removes times where no events occurred.
func (sf *SurvfuncRight) compress() {

	var ix []int
	for i := 0; i < len(sf.times); i++ {
		// Only retain events, except for the last point,
		// which is retained even if there are no events.
		if sf.nEvents[i] > 0 || i == len(sf.times)-1 {
			ix = append(ix, i)
		}
	}

	if len(ix) < len(sf.times) {
		for i, j := range ix {
			sf.times[i] = sf.times[j]
			sf.nEvents[i] = sf.nEvents[j]
			sf.nRisk[i] = sf.nRisk[j]
		}
		sf.times = sf.times[0:len(ix)]
		sf.nEvents = sf.nEvents[0:len(ix)]
		sf.nRisk = sf.nRisk[0:len(ix)]
	}
}

func (sf *SurvfuncRight) fit() {

	sf.survProb = make([]float64, len(sf.times))
	x := float64(1)
	for i := range sf.times {
		x *= 1 - sf.nEvents[i]/sf.nRisk[i]
		sf.survProb[i] = x
	}

	// Greenwood standard errors in the unweighted case.  With case
	// weights the Greenwood form is not valid, so a conservative
	// variance based on the weighted counts is used instead.
	sf.survProbSE = make([]float64, len(sf.times))
	x = 0
	if sf.weightpos == -1 {
		for i := range sf.times {
			d := sf.nEvents[i]
			n := sf.nRisk[i]
			x += d / (n * (n - d))
			sf.survProbSE[i] = math.Sqrt(x) * sf.survProb[i]
		}
	} else {
		for i := range sf.times {
			d := sf.nEvents[i]
			n := sf.nRisk[i]
			x += d / (n * n)
			sf.survProbSE[i] = math.Sqrt(x)
		}
	}
}
