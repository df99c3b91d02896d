package statmodel

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestDataset(t *testing.T) {

	names, da := data1()
	ds, err := NewDataset(da, names)
	if err != nil {
		t.Fatal(err)
	}

	if ds.NumObs() != 7 || ds.NumVar() != 3 {
		t.Fail()
	}

	if ds.Pos("x2") != 2 || ds.Pos("z") != -1 {
		t.Fail()
	}

	if !floats.Equal(ds.Column("x2"), da[2]) {
		t.Fail()
	}
	if ds.Column("z") != nil {
		t.Fail()
	}
}

func TestDatasetMisaligned(t *testing.T) {

	// Ragged columns
	da := [][]Dtype{
		{1, 2, 3},
		{1, 2},
	}
	_, err := NewDataset(da, []string{"a", "b"})
	if !errors.Is(err, ErrMisalignedInput) {
		t.Errorf("got %v, expected ErrMisalignedInput", err)
	}

	// Name count does not match column count
	da = [][]Dtype{
		{1, 2, 3},
	}
	_, err = NewDataset(da, []string{"a", "b"})
	if !errors.Is(err, ErrMisalignedInput) {
		t.Errorf("got %v, expected ErrMisalignedInput", err)
	}

	_, err = NewDataset(nil, nil)
	if !errors.Is(err, ErrMisalignedInput) {
		t.Errorf("got %v, expected ErrMisalignedInput", err)
	}
}

func TestDatasetDuplicate(t *testing.T) {

	da := [][]Dtype{
		{1, 2, 3},
		{4, 5, 6},
	}
	_, err := NewDataset(da, []string{"a", "a"})
	if !errors.Is(err, ErrDuplicateVariable) {
		t.Errorf("got %v, expected ErrDuplicateVariable", err)
	}
}

func TestDatasetSubset(t *testing.T) {

	names, da := data1()
	ds, err := NewDataset(da, names)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := ds.Subset([]string{"x2", "y"})
	if err != nil {
		t.Fatal(err)
	}
	if sub.NumVar() != 2 || sub.Pos("x2") != 0 || sub.Pos("y") != 1 {
		t.Fail()
	}

	_, err = ds.Subset([]string{"y", "q"})
	if !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("got %v, expected ErrUnknownVariable", err)
	}
}

func TestDatasetWithColumn(t *testing.T) {

	names, da := data1()
	ds, err := NewDataset(da, names)
	if err != nil {
		t.Fatal(err)
	}

	z := []Dtype{1, 0, 1, 0, 1, 0, 1}
	ds2, err := ds.WithColumn("z", z)
	if err != nil {
		t.Fatal(err)
	}
	if ds2.NumVar() != 4 || !floats.Equal(ds2.Column("z"), z) {
		t.Fail()
	}

	// The receiver is unchanged.
	if ds.NumVar() != 3 || ds.Pos("z") != -1 {
		t.Fail()
	}

	_, err = ds.WithColumn("w", []Dtype{1, 2})
	if !errors.Is(err, ErrMisalignedInput) {
		t.Errorf("got %v, expected ErrMisalignedInput", err)
	}

	_, err = ds.WithColumn("y", z)
	if !errors.Is(err, ErrDuplicateVariable) {
		t.Errorf("got %v, expected ErrDuplicateVariable", err)
	}
}
