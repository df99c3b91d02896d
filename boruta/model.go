package boruta

import (
	"math/rand"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/forest"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

// ForestModel scores predictors with a random survival forest.  It is the
// default importance model of the relevance filter.
type ForestModel struct {

	// Config configures the forest.  If nil, forest defaults are used.
	Config *forest.Config
}

// Importances grows a forest on the given predictors and returns the
// configured variable importance for each of them.
func (fm *ForestModel) Importances(data statmodel.Dataset, timevar, statusvar string, predictors []string, rng *rand.Rand) ([]float64, error) {

	f, err := forest.Grow(data, timevar, statusvar, predictors, fm.Config, rng)
	if err != nil {
		return nil, err
	}

	return f.VariableImportance(), nil
}
