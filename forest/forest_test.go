package forest

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"go.uber.org/goleak"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func forestData(t *testing.T, cols [][]statmodel.Dtype, names []string) statmodel.Dataset {
	t.Helper()
	ds, err := statmodel.NewDataset(cols, names)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

// signalData has one predictor that separates short from long survival and
// one that is unrelated to the outcome.
func signalData(t *testing.T) statmodel.Dataset {

	n := 40
	time := make([]float64, n)
	status := make([]float64, n)
	x1 := make([]float64, n)
	x2 := make([]float64, n)

	for i := 0; i < n; i++ {
		if i < 20 {
			x1[i] = 1
			time[i] = float64(1 + i%5)
			status[i] = 1
		} else {
			time[i] = float64(10 + i%5)
			if i%3 == 0 {
				status[i] = 1
			}
		}
		x2[i] = float64(i % 2)
	}

	return forestData(t, [][]statmodel.Dtype{time, status, x1, x2},
		[]string{"Time", "Status", "X1", "X2"})
}

func TestGrowDeterminism(t *testing.T) {

	data := signalData(t)

	cfg := DefaultConfig()
	cfg.NumTrees = 100
	cfg.Workers = 4

	var vi [2][]float64
	var oob [2][]float64

	for r := 0; r < 2; r++ {
		f, err := Grow(data, "Time", "Status", []string{"X1", "X2"}, cfg, rand.New(rand.NewSource(42)))
		if err != nil {
			t.Fatal(err)
		}
		vi[r] = f.VariableImportance()
		oob[r] = f.OOBRisk()
	}

	for j := range vi[0] {
		if vi[0][j] != vi[1][j] {
			t.Errorf("importance %d differs between runs: %v != %v", j, vi[0][j], vi[1][j])
		}
	}
	for i := range oob[0] {
		if oob[0][i] != oob[1][i] && !(math.IsNaN(oob[0][i]) && math.IsNaN(oob[1][i])) {
			t.Errorf("OOB risk %d differs between runs: %v != %v", i, oob[0][i], oob[1][i])
		}
	}
}

func TestImportanceSignal(t *testing.T) {

	data := signalData(t)

	cfg := DefaultConfig()
	cfg.NumTrees = 200

	f, err := Grow(data, "Time", "Status", []string{"X1", "X2"}, cfg, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}

	vi := f.VariableImportance()
	if vi[0] <= vi[1] {
		t.Errorf("expected the informative predictor to dominate: got %v", vi)
	}
	if vi[0] <= 0 {
		t.Errorf("informative predictor has nonpositive importance %v", vi[0])
	}
}

func TestSplitStatImportance(t *testing.T) {

	data := signalData(t)

	cfg := DefaultConfig()
	cfg.NumTrees = 100
	cfg.Importance = ImpSplitStat

	f, err := Grow(data, "Time", "Status", []string{"X1", "X2"}, cfg, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}

	vi := f.VariableImportance()
	if vi[0] <= vi[1] {
		t.Errorf("expected the informative predictor to dominate: got %v", vi)
	}
}

func TestPredictRisk(t *testing.T) {

	data := signalData(t)

	f, err := Grow(data, "Time", "Status", []string{"X1", "X2"}, DefaultConfig(), rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}

	// X1=1 cases fail early, so their predicted mortality must exceed
	// that of the X1=0 cases.
	hi := f.PredictRisk([]float64{1, 0})
	lo := f.PredictRisk([]float64{0, 0})
	if hi <= lo {
		t.Errorf("expected risk(x1=1)=%v > risk(x1=0)=%v", hi, lo)
	}
}

func TestGrowNoEvents(t *testing.T) {

	data := forestData(t, [][]statmodel.Dtype{
		{1, 2, 3, 4, 5, 6},
		{0, 0, 0, 0, 0, 0},
		{1, 0, 1, 0, 1, 0},
	}, []string{"Time", "Status", "X"})

	_, err := Grow(data, "Time", "Status", []string{"X"}, DefaultConfig(), rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrNoEvents) {
		t.Errorf("expected ErrNoEvents, got %v", err)
	}
}

func TestGrowNoSplits(t *testing.T) {

	// A constant predictor admits no split, so every tree is a stump.
	data := forestData(t, [][]statmodel.Dtype{
		{1, 2, 3, 4, 5, 6, 7, 8},
		{1, 0, 1, 0, 1, 0, 1, 1},
		{2, 2, 2, 2, 2, 2, 2, 2},
	}, []string{"Time", "Status", "X"})

	cfg := DefaultConfig()
	cfg.NumTrees = 20

	f, err := Grow(data, "Time", "Status", []string{"X"}, cfg, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrNoSplits) {
		t.Errorf("expected ErrNoSplits, got %v", err)
	}
	if f == nil {
		t.Error("expected the stump forest to be returned with the error")
	}
}

func TestGrowUnknownVariable(t *testing.T) {

	data := signalData(t)

	_, err := Grow(data, "Time", "Status", []string{"X9"}, DefaultConfig(), rand.New(rand.NewSource(1)))
	if !errors.Is(err, statmodel.ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
}
