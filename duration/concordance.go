package duration

import (
	"fmt"
	"math"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

// Concordance calculates Harrell's concordance index for a risk score
// relative to right censored survival times.  All usable pairs are
// enumerated exactly, so the result is deterministic.  A pair (i, j) is
// usable when subject i has an event strictly before subject j's event
// or censoring time, or when i has an event at the same time that j is
// censored.
type Concordance struct {
	time   []float64
	status []float64

	// Usable pairs, the first index is the subject with the earlier
	// event.
	pairs [][2]int
}

// NewConcordance enumerates the usable pairs for the given survival
// outcome.  The same Concordance value can score many candidate risk
// vectors.
func NewConcordance(time, status []float64) (*Concordance, error) {

	if len(time) != len(status) {
		return nil, fmt.Errorf("%w: %d times but %d status values",
			statmodel.ErrMisalignedInput, len(time), len(status))
	}

	c := &Concordance{
		time:   time,
		status: status,
	}

	n := len(time)
	for i := 0; i < n; i++ {
		if status[i] != 1 {
			continue
		}
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			if time[i] < time[j] || (time[i] == time[j] && status[j] == 0) {
				c.pairs = append(c.pairs, [2]int{i, j})
			}
		}
	}

	return c, nil
}

// NumPairs returns the number of usable pairs.
func (c *Concordance) NumPairs() int {
	return len(c.pairs)
}

// Concordance returns the concordance index for the given risk scores,
// where a higher score anticipates an earlier event.  Score ties count
// one half.  If there are no usable pairs the result is NaN.
func (c *Concordance) Concordance(score []float64) float64 {

	if len(score) != len(c.time) {
		panic(fmt.Sprintf("Concordance: %d scores for %d subjects\n", len(score), len(c.time)))
	}

	if len(c.pairs) == 0 {
		return math.NaN()
	}

	var conc float64
	for _, pr := range c.pairs {
		switch {
		case score[pr[0]] > score[pr[1]]:
			conc++
		case score[pr[0]] == score[pr[1]]:
			conc += 0.5
		}
	}

	return conc / float64(len(c.pairs))
}
