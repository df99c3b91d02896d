// Package cohort loads the clinical and microbial community tables of a
// study cohort, joins them on sample identifier, and recodes the genus
// abundances into the presence/absence predictors used by the survival
// models and the relevance filter.
package cohort

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/statmodel"
)

// RiskLevels is the ordered clinical risk scale.  The ordinal code of a
// level is its index here.
var RiskLevels = []string{"Low", "Intermediate", "High", "Advanced"}

// ClinicalSchema names the columns of a clinical table.
type ClinicalSchema struct {
	ID        string
	RiskGroup string
	Time      string
	Status    string
}

// DefaultClinicalSchema returns the column names used by the study's
// clinical tables.
func DefaultClinicalSchema() *ClinicalSchema {
	return &ClinicalSchema{
		ID:        "sample_id",
		RiskGroup: "risk_group",
		Time:      "days_to_event",
		Status:    "progressed",
	}
}

// CommunitySchema names the identifier column of a community table; every
// other column is taken to be a genus.
type CommunitySchema struct {
	ID string
}

// DefaultCommunitySchema returns the column names used by the study's
// community tables.
func DefaultCommunitySchema() *CommunitySchema {
	return &CommunitySchema{ID: "sample_id"}
}

// Clinical holds one row per sample of outcome data.
type Clinical struct {
	IDs    []string
	Risk   []string
	Time   []float64
	Status []float64
}

// Community holds per-sample relative abundances, one column per genus, as
// percentages.
type Community struct {
	IDs    []string
	Genera []string

	// Abund[j] is the abundance column of Genera[j].
	Abund [][]float64
}

// Cohort is the inner join of a clinical and a community table, in clinical
// row order.
type Cohort struct {
	IDs        []string
	RiskLabels []string

	// Risk is the ordinal code of each sample's risk group.
	Risk []float64

	Time   []float64
	Status []float64

	Genera []string

	// Values[j] is the genus column of Genera[j]; abundances until
	// PresenceAbsence recodes them to 0/1.
	Values [][]float64
}

func riskCode(label string) (float64, bool) {
	for i, l := range RiskLevels {
		if l == label {
			return float64(i), true
		}
	}
	return 0, false
}

// header locates the required columns in a header row and returns their
// positions keyed by name.
func header(row []string, required []string) (map[string]int, error) {

	pos := make(map[string]int, len(row))
	for j, c := range row {
		if _, ok := pos[c]; ok {
			return nil, fmt.Errorf("%w: duplicate column %s", ErrBadHeader, c)
		}
		pos[c] = j
	}

	for _, c := range required {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrBadHeader, c)
		}
	}

	return pos, nil
}

// ReadClinical parses a clinical CSV table.  The schema may be nil, in which
// case the default column names are used.
func ReadClinical(r io.Reader, schema *ClinicalSchema) (*Clinical, error) {

	if schema == nil {
		schema = DefaultClinicalSchema()
	}

	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cohort: reading clinical table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty clinical table", ErrBadHeader)
	}

	pos, err := header(rows[0], []string{schema.ID, schema.RiskGroup, schema.Time, schema.Status})
	if err != nil {
		return nil, err
	}

	cl := &Clinical{}
	seen := make(map[string]bool)

	for i, row := range rows[1:] {

		id := row[pos[schema.ID]]
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSample, id)
		}
		seen[id] = true

		risk := row[pos[schema.RiskGroup]]
		if _, ok := riskCode(risk); !ok {
			return nil, fmt.Errorf("%w: %q at row %d", ErrUnknownRiskGroup, risk, i+2)
		}

		tm, err := strconv.ParseFloat(row[pos[schema.Time]], 64)
		if err != nil || tm < 0 {
			return nil, fmt.Errorf("%w: column %s at row %d", ErrBadValue, schema.Time, i+2)
		}

		st, err := strconv.ParseFloat(row[pos[schema.Status]], 64)
		if err != nil || (st != 0 && st != 1) {
			return nil, fmt.Errorf("%w: column %s at row %d", ErrBadValue, schema.Status, i+2)
		}

		cl.IDs = append(cl.IDs, id)
		cl.Risk = append(cl.Risk, risk)
		cl.Time = append(cl.Time, tm)
		cl.Status = append(cl.Status, st)
	}

	return cl, nil
}

// ReadCommunity parses a community CSV table.  Every column other than the
// identifier is a genus whose values are percentage abundances.
func ReadCommunity(r io.Reader, schema *CommunitySchema) (*Community, error) {

	if schema == nil {
		schema = DefaultCommunitySchema()
	}

	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cohort: reading community table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty community table", ErrBadHeader)
	}

	pos, err := header(rows[0], []string{schema.ID})
	if err != nil {
		return nil, err
	}
	idpos := pos[schema.ID]

	cm := &Community{}
	var gpos []int
	for j, c := range rows[0] {
		if j == idpos {
			continue
		}
		cm.Genera = append(cm.Genera, c)
		gpos = append(gpos, j)
	}
	cm.Abund = make([][]float64, len(cm.Genera))

	seen := make(map[string]bool)
	for i, row := range rows[1:] {

		id := row[idpos]
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSample, id)
		}
		seen[id] = true
		cm.IDs = append(cm.IDs, id)

		for k, j := range gpos {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: column %s at row %d", ErrBadValue, cm.Genera[k], i+2)
			}
			if v < 0 || v > 100 {
				return nil, fmt.Errorf("%w: column %s at row %d", ErrAbundanceRange, cm.Genera[k], i+2)
			}
			cm.Abund[k] = append(cm.Abund[k], v)
		}
	}

	return cm, nil
}

// Merge joins a clinical and a community table on sample identifier, keeping
// the clinical row order so the outcome stays aligned with the predictors.
// The identifiers must pair one to one.
func Merge(cl *Clinical, cm *Community) (*Cohort, error) {

	cmix := make(map[string]int, len(cm.IDs))
	for i, id := range cm.IDs {
		cmix[id] = i
	}

	if len(cm.IDs) != len(cl.IDs) {
		return nil, fmt.Errorf("%w: %d clinical vs %d community samples",
			ErrSampleMismatch, len(cl.IDs), len(cm.IDs))
	}

	co := &Cohort{
		IDs:        append([]string(nil), cl.IDs...),
		RiskLabels: append([]string(nil), cl.Risk...),
		Time:       append([]float64(nil), cl.Time...),
		Status:     append([]float64(nil), cl.Status...),
		Genera:     append([]string(nil), cm.Genera...),
		Risk:       make([]float64, len(cl.IDs)),
		Values:     make([][]float64, len(cm.Genera)),
	}

	for i, id := range cl.IDs {
		code, _ := riskCode(cl.Risk[i])
		co.Risk[i] = code
		if _, ok := cmix[id]; !ok {
			return nil, fmt.Errorf("%w: %s has no community row", ErrSampleMismatch, id)
		}
	}

	for j := range cm.Genera {
		col := make([]float64, len(cl.IDs))
		for i, id := range cl.IDs {
			col[i] = cm.Abund[j][cmix[id]]
		}
		co.Values[j] = col
	}

	return co, nil
}

// PresenceAbsence recodes every genus column in place: abundance strictly
// above the threshold percentage becomes 1, anything else 0.
func (c *Cohort) PresenceAbsence(threshold float64) {
	for _, col := range c.Values {
		for i, v := range col {
			if v > threshold {
				col[i] = 1
			} else {
				col[i] = 0
			}
		}
	}
}

// FilterPrevalence drops every genus present (nonzero) in fewer than min
// samples and returns the dropped names.
func (c *Cohort) FilterPrevalence(min int) []string {

	var dropped []string
	var keepG []string
	var keepV [][]float64

	for j, col := range c.Values {
		var n int
		for _, v := range col {
			if v != 0 {
				n++
			}
		}
		if n < min {
			dropped = append(dropped, c.Genera[j])
		} else {
			keepG = append(keepG, c.Genera[j])
			keepV = append(keepV, col)
		}
	}

	c.Genera = keepG
	c.Values = keepV

	return dropped
}

// Dataset assembles the cohort into a statmodel dataset with Time, Status
// and RiskGroup columns followed by one column per genus.
func (c *Cohort) Dataset() (statmodel.Dataset, error) {

	cols := [][]statmodel.Dtype{c.Time, c.Status, c.Risk}
	names := []string{"Time", "Status", "RiskGroup"}

	for j, g := range c.Genera {
		cols = append(cols, c.Values[j])
		names = append(names, g)
	}

	return statmodel.NewDataset(cols, names)
}

// NumSamples returns the number of samples in the cohort.
func (c *Cohort) NumSamples() int {
	return len(c.IDs)
}

// NumEvents returns the number of samples whose event was observed.
func (c *Cohort) NumEvents() int {
	var n int
	for _, s := range c.Status {
		if s == 1 {
			n++
		}
	}
	return n
}
