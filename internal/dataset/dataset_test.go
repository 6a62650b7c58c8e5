package dataset

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Dataset {
	return &Dataset{
		Columns: []string{"region", "product", "amount"},
		Rows: [][]string{
			{"EMEA", "widget", "10.5"},
			{"APAC", "gadget", "3"},
			{"EMEA", "gadget", ""},
		},
	}
}

func TestColumnLookup(t *testing.T) {
	ds := sample()

	assert.Equal(t, 0, ds.ColumnIndex("region"))
	assert.Equal(t, 2, ds.ColumnIndex("amount"))
	assert.Equal(t, -1, ds.ColumnIndex("missing"))
	assert.True(t, ds.HasColumn("product"))
	assert.False(t, ds.HasColumn("price"))

	rows, cols := ds.Shape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
}

func TestFloat(t *testing.T) {
	ds := sample()

	v, ok := ds.Float(0, 2)
	require.True(t, ok)
	assert.Equal(t, 10.5, v)

	_, ok = ds.Float(2, 2) // empty cell
	assert.False(t, ok)

	_, ok = ds.Float(0, 1) // text cell
	assert.False(t, ok)

	// The NaN sentinel survives a format/parse cycle.
	nan, ok := (&Dataset{Columns: []string{"x"}, Rows: [][]string{{FormatNumber(math.NaN())}}}).Float(0, 0)
	require.True(t, ok)
	assert.True(t, math.IsNaN(nan))
}

func TestSelectSharesRowsAndKeepsOrder(t *testing.T) {
	ds := sample()
	sub := ds.Select([]int{2, 0})

	require.Equal(t, 2, len(sub.Rows))
	assert.Equal(t, "gadget", sub.Value(0, "product"))
	assert.Equal(t, "widget", sub.Value(1, "product"))
	assert.Equal(t, ds.Columns, sub.Columns)
}

func TestCloneIsDeep(t *testing.T) {
	ds := sample()
	clone := ds.Clone()
	clone.Rows[0][0] = "AMER"

	assert.Equal(t, "EMEA", ds.Rows[0][0])
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "10.5", FormatNumber(10.5))
	assert.Equal(t, "3", FormatNumber(3))
	assert.Equal(t, "NaN", FormatNumber(math.NaN()))
	assert.Equal(t, "-0.25", FormatNumber(-0.25))
}

func TestCSVRoundTrip(t *testing.T) {
	ds := sample()

	var buf bytes.Buffer
	require.NoError(t, ds.WriteCSV(&buf))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, ds.Columns, got.Columns)
	assert.Equal(t, ds.Rows, got.Rows)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty")

	_, err = ReadCSV(strings.NewReader("a,b\n1\n"))
	assert.ErrorContains(t, err, "cells")
}

func TestAppendRow(t *testing.T) {
	ds := New("a", "b")
	require.NoError(t, ds.AppendRow([]string{"1", "2"}))
	assert.Error(t, ds.AppendRow([]string{"1"}))
}
