package statmodel

import "fmt"

// Dataset holds a rectangular data set in column-major form together with one
// name per column.  The columns are shared, not copied, so the caller must not
// modify them after construction.
type Dataset struct {
	data  [][]Dtype
	names []string
	pos   map[string]int
}

// NewDataset constructs a Dataset from columns and their names.  All columns
// must have the same length and every name must be distinct and non-empty.
func NewDataset(data [][]Dtype, names []string) (Dataset, error) {

	if len(data) == 0 {
		return Dataset{}, fmt.Errorf("%w: no columns", ErrMisalignedInput)
	}

	if len(data) != len(names) {
		return Dataset{}, fmt.Errorf("%w: %d columns but %d names",
			ErrMisalignedInput, len(data), len(names))
	}

	n := len(data[0])
	pos := make(map[string]int, len(names))
	for j, na := range names {
		if na == "" {
			return Dataset{}, fmt.Errorf("%w: column %d has an empty name",
				ErrMisalignedInput, j)
		}
		if _, ok := pos[na]; ok {
			return Dataset{}, fmt.Errorf("%w: %s", ErrDuplicateVariable, na)
		}
		pos[na] = j

		if len(data[j]) != n {
			return Dataset{}, fmt.Errorf("%w: column %s has %d rows, expected %d",
				ErrMisalignedInput, na, len(data[j]), n)
		}
	}

	return Dataset{data: data, names: names, pos: pos}, nil
}

// Names returns the column names.
func (ds Dataset) Names() []string {
	return ds.names
}

// Data returns the data columns.
func (ds Dataset) Data() [][]Dtype {
	return ds.data
}

// NumObs returns the number of rows in the dataset.
func (ds Dataset) NumObs() int {
	if len(ds.data) == 0 {
		return 0
	}
	return len(ds.data[0])
}

// NumVar returns the number of columns in the dataset.
func (ds Dataset) NumVar() int {
	return len(ds.data)
}

// Pos returns the position of the named column, or -1 if there is no such
// column.
func (ds Dataset) Pos(name string) int {
	j, ok := ds.pos[name]
	if !ok {
		return -1
	}
	return j
}

// Column returns the named column, or nil if there is no such column.
func (ds Dataset) Column(name string) []Dtype {
	j, ok := ds.pos[name]
	if !ok {
		return nil
	}
	return ds.data[j]
}

// Subset returns a dataset holding only the named columns, in the given
// order.  The columns are shared with the receiver.
func (ds Dataset) Subset(names []string) (Dataset, error) {

	data := make([][]Dtype, len(names))
	for j, na := range names {
		k, ok := ds.pos[na]
		if !ok {
			return Dataset{}, fmt.Errorf("%w: %s", ErrUnknownVariable, na)
		}
		data[j] = ds.data[k]
	}

	return NewDataset(data, names)
}

// WithColumn returns a dataset extended by one additional named column.  The
// existing columns are shared with the receiver.
func (ds Dataset) WithColumn(name string, vals []Dtype) (Dataset, error) {

	if len(vals) != ds.NumObs() {
		return Dataset{}, fmt.Errorf("%w: column %s has %d rows, expected %d",
			ErrMisalignedInput, name, len(vals), ds.NumObs())
	}

	data := make([][]Dtype, len(ds.data), len(ds.data)+1)
	copy(data, ds.data)
	data = append(data, vals)

	names := make([]string, len(ds.names), len(ds.names)+1)
	copy(names, ds.names)
	names = append(names, name)

	return NewDataset(data, names)
}
