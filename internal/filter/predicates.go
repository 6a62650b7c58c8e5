package filter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/datastep-labs/datastep/internal/dataset"
	"github.com/datastep-labs/datastep/pkg/core"
)

// The closed numeric-filter predicate set. Value predicates decide per
// row; rank predicates need the whole column (ranking, percentiles, mean,
// median) and are resolved against the rows surviving earlier kinds.
const (
	TypeEquals             = "equals"
	TypeNotEquals          = "not_equals"
	TypeGreaterThan        = "greater_than"
	TypeGreaterOrEqual     = "greater_or_equal"
	TypeLessThan           = "less_than"
	TypeLessOrEqual        = "less_or_equal"
	TypeRange              = "range"
	TypeOutsideRange       = "outside_range"
	TypeIsIn               = "is_in"
	TypeIsNotIn            = "is_not_in"
	TypeContains           = "contains"
	TypeNotContains        = "not_contains"
	TypeStartsWith         = "starts_with"
	TypeEndsWith           = "ends_with"
	TypeNotStartsWith      = "not_starts_with"
	TypeNotEndsWith        = "not_ends_with"
	TypeIsNull             = "is_null"
	TypeIsNotNull          = "is_not_null"
	TypeTopK               = "top_k"
	TypeBottomK            = "bottom_k"
	TypeTopPercent         = "top_percent"
	TypeBottomPercent      = "bottom_percent"
	TypeAboveMean          = "above_mean"
	TypeBelowMean          = "below_mean"
	TypeAboveMedian        = "above_median"
	TypeBelowMedian        = "below_median"
	TypeBetweenPercentiles = "between_percentiles"
)

// FilterTypes lists every supported numeric filter predicate.
func FilterTypes() []string {
	return []string{
		TypeEquals, TypeNotEquals, TypeGreaterThan, TypeGreaterOrEqual,
		TypeLessThan, TypeLessOrEqual, TypeRange, TypeOutsideRange,
		TypeIsIn, TypeIsNotIn, TypeContains, TypeNotContains,
		TypeStartsWith, TypeEndsWith, TypeNotStartsWith, TypeNotEndsWith,
		TypeIsNull, TypeIsNotNull, TypeTopK, TypeBottomK,
		TypeTopPercent, TypeBottomPercent, TypeAboveMean, TypeBelowMean,
		TypeAboveMedian, TypeBelowMedian, TypeBetweenPercentiles,
	}
}

func applyNumeric(ds *dataset.Dataset, indices []int, nf *core.NumericFilter) ([]int, error) {
	col := ds.ColumnIndex(nf.Column)
	if col < 0 {
		return nil, &core.ConfigError{Field: "filter.numeric.column", Reason: fmt.Sprintf("unknown column %q", nf.Column)}
	}

	switch nf.FilterType {
	case TypeEquals, TypeNotEquals, TypeGreaterThan, TypeGreaterOrEqual, TypeLessThan, TypeLessOrEqual:
		if nf.Value == nil {
			return nil, missingParam(nf.FilterType, "value")
		}
		return keepNumeric(ds, indices, col, func(v float64) bool {
			return compareThreshold(nf.FilterType, v, *nf.Value)
		}), nil

	case TypeRange, TypeOutsideRange:
		if nf.Min == nil && nf.Max == nil {
			return nil, missingParam(nf.FilterType, "min or max")
		}
		if nf.Min != nil && nf.Max != nil && *nf.Min > *nf.Max {
			return nil, &core.ConfigError{
				Field:  "filter.numeric",
				Reason: fmt.Sprintf("contradictory bounds: min %v > max %v", *nf.Min, *nf.Max),
			}
		}
		inside := func(v float64) bool { return inRange(v, nf) }
		if nf.FilterType == TypeRange {
			return keepNumeric(ds, indices, col, inside), nil
		}
		return keepNumeric(ds, indices, col, func(v float64) bool { return !inside(v) }), nil

	case TypeIsIn, TypeIsNotIn:
		if len(nf.Values) == 0 {
			return nil, missingParam(nf.FilterType, "values")
		}
		set := make(map[string]struct{}, len(nf.Values))
		for _, v := range nf.Values {
			set[normalizeNumericText(v)] = struct{}{}
		}
		want := nf.FilterType == TypeIsIn
		return keepText(ds, indices, col, func(raw string) bool {
			_, ok := set[normalizeNumericText(raw)]
			return ok == want
		}), nil

	case TypeContains, TypeNotContains, TypeStartsWith, TypeEndsWith, TypeNotStartsWith, TypeNotEndsWith:
		if nf.Text == "" {
			return nil, missingParam(nf.FilterType, "text")
		}
		return keepText(ds, indices, col, func(raw string) bool {
			return matchText(nf.FilterType, raw, nf.Text)
		}), nil

	case TypeIsNull:
		return keepText(ds, indices, col, func(raw string) bool { return raw == "" }), nil
	case TypeIsNotNull:
		return keepText(ds, indices, col, func(raw string) bool { return raw != "" }), nil

	case TypeTopK, TypeBottomK:
		if nf.K < 1 {
			return nil, &core.ConfigError{Field: "filter.numeric.k", Reason: "k must be at least 1"}
		}
		return rankExtremes(ds, indices, col, nf.K, nf.FilterType == TypeTopK), nil

	case TypeTopPercent, TypeBottomPercent:
		if nf.Percent == nil || *nf.Percent <= 0 || *nf.Percent > 100 {
			return nil, &core.ConfigError{Field: "filter.numeric.percent", Reason: "percent must be in (0, 100]"}
		}
		parsable := parsableRows(ds, indices, col)
		k := int(math.Ceil(float64(len(parsable)) * *nf.Percent / 100))
		return rankExtremes(ds, indices, col, k, nf.FilterType == TypeTopPercent), nil

	case TypeAboveMean, TypeBelowMean:
		mean, ok := columnMean(ds, indices, col)
		if !ok {
			return indices[:0], nil
		}
		above := nf.FilterType == TypeAboveMean
		return keepNumeric(ds, indices, col, func(v float64) bool {
			return (v > mean) == above && v != mean
		}), nil

	case TypeAboveMedian, TypeBelowMedian:
		median, ok := columnPercentile(ds, indices, col, 50)
		if !ok {
			return indices[:0], nil
		}
		above := nf.FilterType == TypeAboveMedian
		return keepNumeric(ds, indices, col, func(v float64) bool {
			return (v > median) == above && v != median
		}), nil

	case TypeBetweenPercentiles:
		if nf.LowerPct == nil || nf.UpperPct == nil {
			return nil, missingParam(nf.FilterType, "lower_percentile and upper_percentile")
		}
		lo, hi := *nf.LowerPct, *nf.UpperPct
		if lo < 0 || hi > 100 || lo > hi {
			return nil, &core.ConfigError{
				Field:  "filter.numeric",
				Reason: fmt.Sprintf("contradictory bounds: percentiles [%v, %v]", lo, hi),
			}
		}
		low, okLo := columnPercentile(ds, indices, col, lo)
		high, okHi := columnPercentile(ds, indices, col, hi)
		if !okLo || !okHi {
			return indices[:0], nil
		}
		return keepNumeric(ds, indices, col, func(v float64) bool {
			return v >= low && v <= high
		}), nil
	}

	return nil, &core.ConfigError{
		Field:  "filter.numeric.filter_type",
		Reason: fmt.Sprintf("unknown filter type %q", nf.FilterType),
	}
}

func missingParam(filterType, param string) error {
	return &core.ConfigError{
		Field:  "filter.numeric",
		Reason: fmt.Sprintf("%s filter requires %s", filterType, param),
	}
}

func compareThreshold(filterType string, v, threshold float64) bool {
	switch filterType {
	case TypeEquals:
		return v == threshold
	case TypeNotEquals:
		return v != threshold
	case TypeGreaterThan:
		return v > threshold
	case TypeGreaterOrEqual:
		return v >= threshold
	case TypeLessThan:
		return v < threshold
	case TypeLessOrEqual:
		return v <= threshold
	}
	return false
}

func inRange(v float64, nf *core.NumericFilter) bool {
	if nf.Min != nil {
		if nf.IncludeMin {
			if v < *nf.Min {
				return false
			}
		} else if v <= *nf.Min {
			return false
		}
	}
	if nf.Max != nil {
		if nf.IncludeMax {
			if v > *nf.Max {
				return false
			}
		} else if v >= *nf.Max {
			return false
		}
	}
	return true
}

func matchText(filterType, raw, text string) bool {
	switch filterType {
	case TypeContains:
		return strings.Contains(raw, text)
	case TypeNotContains:
		return !strings.Contains(raw, text)
	case TypeStartsWith:
		return strings.HasPrefix(raw, text)
	case TypeEndsWith:
		return strings.HasSuffix(raw, text)
	case TypeNotStartsWith:
		return !strings.HasPrefix(raw, text)
	case TypeNotEndsWith:
		return !strings.HasSuffix(raw, text)
	}
	return false
}

// normalizeNumericText lets "10" and "10.0" membership-match in is_in
// without changing non-numeric text.
func normalizeNumericText(raw string) string {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return dataset.FormatNumber(v)
	}
	return raw
}

// keepNumeric filters indices by a numeric predicate. Rows whose cell does
// not parse as a number never match.
func keepNumeric(ds *dataset.Dataset, indices []int, col int, pred func(float64) bool) []int {
	kept := make([]int, 0, len(indices))
	for _, row := range indices {
		if v, ok := ds.Float(row, col); ok && pred(v) {
			kept = append(kept, row)
		}
	}
	return kept
}

func keepText(ds *dataset.Dataset, indices []int, col int, pred func(string) bool) []int {
	kept := make([]int, 0, len(indices))
	for _, row := range indices {
		if pred(ds.Cell(row, col)) {
			kept = append(kept, row)
		}
	}
	return kept
}

func parsableRows(ds *dataset.Dataset, indices []int, col int) []int {
	out := make([]int, 0, len(indices))
	for _, row := range indices {
		if _, ok := ds.Float(row, col); ok {
			out = append(out, row)
		}
	}
	return out
}

// rankExtremes keeps the k most extreme rows by the target column, output
// in rank order. Ties break stably: on equal values the row that occurs
// first in the original order wins and ranks first.
func rankExtremes(ds *dataset.Dataset, indices []int, col int, k int, top bool) []int {
	ranked := parsableRows(ds, indices, col)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, _ := ds.Float(ranked[i], col)
		b, _ := ds.Float(ranked[j], col)
		if top {
			return a > b
		}
		return a < b
	})

	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

func columnMean(ds *dataset.Dataset, indices []int, col int) (float64, bool) {
	var sum float64
	var n int
	for _, row := range indices {
		if v, ok := ds.Float(row, col); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// columnPercentile computes the nearest-rank percentile of the parsable
// values in a column.
func columnPercentile(ds *dataset.Dataset, indices []int, col int, pct float64) (float64, bool) {
	var values []float64
	for _, row := range indices {
		if v, ok := ds.Float(row, col); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	sort.Float64s(values)

	rank := int(math.Ceil(pct / 100 * float64(len(values))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(values) {
		rank = len(values)
	}
	return values[rank-1], true
}
