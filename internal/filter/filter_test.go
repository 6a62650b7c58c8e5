package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastep-labs/datastep/internal/dataset"
	"github.com/datastep-labs/datastep/pkg/core"
)

func numbers(vals ...string) *dataset.Dataset {
	ds := &dataset.Dataset{Columns: []string{"value"}}
	for _, v := range vals {
		ds.Rows = append(ds.Rows, []string{v})
	}
	return ds
}

func column(ds *dataset.Dataset, name string) []string {
	idx := ds.ColumnIndex(name)
	out := make([]string, 0, len(ds.Rows))
	for r := range ds.Rows {
		out = append(out, ds.Cell(r, idx))
	}
	return out
}

func fp(v float64) *float64 { return &v }

func applyNumericFilter(t *testing.T, ds *dataset.Dataset, nf *core.NumericFilter) *dataset.Dataset {
	t.Helper()
	out, err := Apply(ds, &core.FilterConfig{Numeric: nf}, nil)
	require.NoError(t, err)
	return out
}

func TestCategoryFilter(t *testing.T) {
	ds := &dataset.Dataset{
		Columns: []string{"region", "product", "amount"},
		Rows: [][]string{
			{"EMEA", "widget", "10"},
			{"APAC", "widget", "20"},
			{"EMEA", "gadget", "30"},
			{"AMER", "gadget", "40"},
		},
	}

	out, err := Apply(ds, &core.FilterConfig{Category: &core.CategoryFilter{
		Allow: map[string][]string{
			"region":  {"EMEA", "APAC"},
			"product": {"widget"},
		},
	}}, nil)
	require.NoError(t, err)

	// AND across columns, OR within a list.
	assert.Equal(t, [][]string{{"EMEA", "widget", "10"}, {"APAC", "widget", "20"}}, out.Rows)
	assert.Equal(t, ds.Columns, out.Columns)
}

func TestCategoryFilterUnknownColumn(t *testing.T) {
	ds := numbers("1")
	_, err := Apply(ds, &core.FilterConfig{Category: &core.CategoryFilter{
		Allow: map[string][]string{"nope": {"x"}},
	}}, nil)

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), `unknown column "nope"`)
}

func TestRangeBounds(t *testing.T) {
	// Spec fixture: min=10 inclusive, max=20 exclusive on [5,10,15,20,25]
	// keeps [10,15].
	ds := numbers("5", "10", "15", "20", "25")
	out := applyNumericFilter(t, ds, &core.NumericFilter{
		Column:     "value",
		FilterType: TypeRange,
		Min:        fp(10),
		Max:        fp(20),
		IncludeMin: true,
		IncludeMax: false,
	})
	assert.Equal(t, []string{"10", "15"}, column(out, "value"))
}

func TestRangeContradictoryBounds(t *testing.T) {
	_, err := Apply(numbers("1"), &core.FilterConfig{Numeric: &core.NumericFilter{
		Column: "value", FilterType: TypeRange, Min: fp(20), Max: fp(10),
	}}, nil)

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "contradictory bounds")
}

func TestRangeSingleBound(t *testing.T) {
	ds := numbers("5", "10", "15")
	out := applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "value", FilterType: TypeRange, Min: fp(10), IncludeMin: false,
	})
	assert.Equal(t, []string{"15"}, column(out, "value"))
}

func TestTopKStableTieBreak(t *testing.T) {
	// Spec fixture: top_k=2 on [3,1,4,1,5] keeps [5,4]; ties on equal
	// values keep the first occurrence.
	ds := numbers("3", "1", "4", "1", "5")
	out := applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "value", FilterType: TypeTopK, K: 2,
	})
	assert.Equal(t, []string{"5", "4"}, column(out, "value"))

	// Tie on the boundary: top_k=2 on [7,3,7,7] must keep rows 0 and 2.
	tied := numbers("7", "3", "7", "7")
	out = applyNumericFilter(t, tied, &core.NumericFilter{
		Column: "value", FilterType: TypeTopK, K: 2,
	})
	require.Equal(t, 2, len(out.Rows))
	assert.Equal(t, []string{"7", "7"}, column(out, "value"))
}

func TestBottomK(t *testing.T) {
	ds := numbers("3", "1", "4", "1", "5")
	out := applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "value", FilterType: TypeBottomK, K: 2,
	})
	// Both 1s tie for the minimum; first occurrences win in order.
	assert.Equal(t, []string{"1", "1"}, column(out, "value"))
}

func TestThresholdPredicates(t *testing.T) {
	ds := numbers("1", "2", "3", "4")

	tests := []struct {
		filterType string
		value      float64
		want       []string
	}{
		{TypeEquals, 2, []string{"2"}},
		{TypeNotEquals, 2, []string{"1", "3", "4"}},
		{TypeGreaterThan, 2, []string{"3", "4"}},
		{TypeGreaterOrEqual, 2, []string{"2", "3", "4"}},
		{TypeLessThan, 2, []string{"1"}},
		{TypeLessOrEqual, 2, []string{"1", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.filterType, func(t *testing.T) {
			out := applyNumericFilter(t, ds, &core.NumericFilter{
				Column: "value", FilterType: tt.filterType, Value: fp(tt.value),
			})
			assert.Equal(t, tt.want, column(out, "value"))
		})
	}
}

func TestTextPredicates(t *testing.T) {
	ds := &dataset.Dataset{
		Columns: []string{"name"},
		Rows:    [][]string{{"alpha"}, {"beta"}, {"alphabet"}, {""}},
	}

	tests := []struct {
		filterType string
		text       string
		want       []string
	}{
		{TypeContains, "pha", []string{"alpha", "alphabet"}},
		{TypeNotContains, "pha", []string{"beta", ""}},
		{TypeStartsWith, "al", []string{"alpha", "alphabet"}},
		{TypeEndsWith, "a", []string{"alpha", "beta"}},
		{TypeNotStartsWith, "al", []string{"beta", ""}},
		{TypeNotEndsWith, "a", []string{"alphabet", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.filterType, func(t *testing.T) {
			out := applyNumericFilter(t, ds, &core.NumericFilter{
				Column: "name", FilterType: tt.filterType, Text: tt.text,
			})
			assert.Equal(t, tt.want, column(out, "name"))
		})
	}
}

func TestNullPredicates(t *testing.T) {
	ds := &dataset.Dataset{Columns: []string{"v"}, Rows: [][]string{{"1"}, {""}, {"2"}}}

	out := applyNumericFilter(t, ds, &core.NumericFilter{Column: "v", FilterType: TypeIsNull})
	assert.Equal(t, []string{""}, column(out, "v"))

	out = applyNumericFilter(t, ds, &core.NumericFilter{Column: "v", FilterType: TypeIsNotNull})
	assert.Equal(t, []string{"1", "2"}, column(out, "v"))
}

func TestMembershipPredicates(t *testing.T) {
	ds := numbers("10", "10.0", "20", "30")

	out := applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "value", FilterType: TypeIsIn, Values: []string{"10", "30"},
	})
	// "10.0" matches "10" numerically.
	assert.Equal(t, []string{"10", "10.0", "30"}, column(out, "value"))

	out = applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "value", FilterType: TypeIsNotIn, Values: []string{"10"},
	})
	assert.Equal(t, []string{"20", "30"}, column(out, "value"))
}

func TestPercentPredicates(t *testing.T) {
	ds := numbers("1", "2", "3", "4", "5", "6", "7", "8", "9", "10")

	out := applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "value", FilterType: TypeTopPercent, Percent: fp(20),
	})
	assert.Equal(t, []string{"10", "9"}, column(out, "value"))

	out = applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "value", FilterType: TypeBottomPercent, Percent: fp(25),
	})
	assert.Equal(t, []string{"1", "2", "3"}, column(out, "value"))
}

func TestMeanMedianPredicates(t *testing.T) {
	ds := numbers("1", "2", "3", "4", "10")

	out := applyNumericFilter(t, ds, &core.NumericFilter{Column: "value", FilterType: TypeAboveMean})
	assert.Equal(t, []string{"10"}, column(out, "value")) // mean = 4

	out = applyNumericFilter(t, ds, &core.NumericFilter{Column: "value", FilterType: TypeBelowMean})
	assert.Equal(t, []string{"1", "2", "3"}, column(out, "value"))

	out = applyNumericFilter(t, ds, &core.NumericFilter{Column: "value", FilterType: TypeAboveMedian})
	assert.Equal(t, []string{"4", "10"}, column(out, "value")) // median = 3

	out = applyNumericFilter(t, ds, &core.NumericFilter{Column: "value", FilterType: TypeBelowMedian})
	assert.Equal(t, []string{"1", "2"}, column(out, "value"))
}

func TestBetweenPercentiles(t *testing.T) {
	ds := numbers("1", "2", "3", "4", "5", "6", "7", "8", "9", "10")

	out := applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "value", FilterType: TypeBetweenPercentiles,
		LowerPct: fp(30), UpperPct: fp(70),
	})
	assert.Equal(t, []string{"3", "4", "5", "6", "7"}, column(out, "value"))

	_, err := Apply(ds, &core.FilterConfig{Numeric: &core.NumericFilter{
		Column: "value", FilterType: TypeBetweenPercentiles,
		LowerPct: fp(70), UpperPct: fp(30),
	}}, nil)
	assert.ErrorContains(t, err, "contradictory bounds")
}

func TestOutsideRange(t *testing.T) {
	ds := numbers("5", "10", "15", "20", "25")
	out := applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "value", FilterType: TypeOutsideRange,
		Min: fp(10), Max: fp(20), IncludeMin: true, IncludeMax: true,
	})
	assert.Equal(t, []string{"5", "25"}, column(out, "value"))
}

func TestNonNumericRowsNeverMatchNumericPredicates(t *testing.T) {
	ds := &dataset.Dataset{Columns: []string{"v"}, Rows: [][]string{{"1"}, {"oops"}, {"3"}}}
	out := applyNumericFilter(t, ds, &core.NumericFilter{
		Column: "v", FilterType: TypeGreaterThan, Value: fp(0),
	})
	assert.Equal(t, []string{"1", "3"}, column(out, "v"))
}

func TestUnknownFilterType(t *testing.T) {
	_, err := Apply(numbers("1"), &core.FilterConfig{Numeric: &core.NumericFilter{
		Column: "value", FilterType: "sideways",
	}}, nil)

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), `unknown filter type "sideways"`)
}

func TestTableFilterSemiJoin(t *testing.T) {
	ds := &dataset.Dataset{
		Columns: []string{"region", "product", "amount"},
		Rows: [][]string{
			{"EMEA", "widget", "10"},
			{"APAC", "widget", "20"},
			{"EMEA", "gadget", "30"},
		},
	}
	lookup := &dataset.Dataset{
		Columns: []string{"region", "total"},
		Rows:    [][]string{{"EMEA", "40"}},
	}

	out, err := Apply(ds, &core.FilterConfig{Table: &core.TableFilter{
		Enabled: true, SourceStep: "step-1", Keys: []string{"region"},
	}}, lookup)
	require.NoError(t, err)
	assert.Equal(t, []string{"widget", "gadget"}, column(out, "product"))
}

func TestTableFilterMissingLookup(t *testing.T) {
	_, err := Apply(numbers("1"), &core.FilterConfig{Table: &core.TableFilter{
		Enabled: true, SourceStep: "step-1", Keys: []string{"value"},
	}}, nil)
	assert.ErrorContains(t, err, "reference step result not available")
}

func TestKindsApplyInFixedOrder(t *testing.T) {
	// Category narrows to EMEA first; top_k then ranks within EMEA only.
	ds := &dataset.Dataset{
		Columns: []string{"region", "amount"},
		Rows: [][]string{
			{"EMEA", "10"},
			{"APAC", "99"},
			{"EMEA", "30"},
			{"EMEA", "20"},
		},
	}

	out, err := Apply(ds, &core.FilterConfig{
		Category: &core.CategoryFilter{Allow: map[string][]string{"region": {"EMEA"}}},
		Numeric:  &core.NumericFilter{Column: "amount", FilterType: TypeTopK, K: 1},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"EMEA", "30"}}, out.Rows)
}

func TestFilterTypesClosedSet(t *testing.T) {
	assert.Len(t, FilterTypes(), 27)
}
