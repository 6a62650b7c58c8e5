// Package aggregate implements the grouping engine: rows are grouped by
// an ordered axis tuple and reduced to one wide-format row per group, one
// output column per declared metric. Arithmetic metrics combine earlier
// metrics elementwise across the per-group series.
package aggregate

import (
	"fmt"
	"math"
	"strings"

	"github.com/datastep-labs/datastep/internal/dataset"
	"github.com/datastep-labs/datastep/pkg/core"
)

// Aggregation methods. The basic reducers take a single input column as
// subject; the arithmetic operators take metrics declared earlier in the
// same config.
const (
	MethodSum   = "sum"
	MethodMean  = "mean"
	MethodCount = "count"
	MethodMax   = "max"
	MethodMin   = "min"
	OpAdd       = "+"
	OpSubtract  = "-"
	OpMultiply  = "*"
	OpDivide    = "/"
)

// group is one distinct axis tuple with the rows that share it.
type group struct {
	key  []string
	rows []int
}

// Apply groups ds by cfg.Axis and computes cfg.Columns in declaration
// order. The output columns are the axis columns followed by the metrics,
// both in declared order — deterministic for any valid config.
func Apply(ds *dataset.Dataset, cfg *core.AggregationConfig) (*dataset.Dataset, error) {
	if cfg == nil {
		return nil, &core.ConfigError{Field: "aggregate", Reason: "missing aggregate payload"}
	}

	axisCols := make([]int, len(cfg.Axis))
	for i, a := range cfg.Axis {
		if axisCols[i] = ds.ColumnIndex(a); axisCols[i] < 0 {
			return nil, &core.ConfigError{Field: "aggregate.axis", Reason: fmt.Sprintf("unknown column %q", a)}
		}
	}

	groups := groupRows(ds, axisCols)

	// Per-metric series: one value per group, keyed by metric name so
	// arithmetic metrics can reference what came before them.
	series := make(map[string][]float64, len(cfg.Columns))
	order := make([]string, 0, len(cfg.Columns))

	for i, metric := range cfg.Columns {
		if _, dup := series[metric.Name]; dup {
			return nil, &core.ConfigError{
				Field:  fmt.Sprintf("aggregate.columns[%d].name", i),
				Reason: fmt.Sprintf("duplicate metric name %q", metric.Name),
			}
		}

		values, err := computeMetric(ds, groups, metric, i, series)
		if err != nil {
			return nil, err
		}
		series[metric.Name] = values
		order = append(order, metric.Name)
	}

	out := &dataset.Dataset{Columns: append(append([]string(nil), cfg.Axis...), order...)}
	for gi, g := range groups {
		row := make([]string, 0, len(out.Columns))
		row = append(row, g.key...)
		for _, name := range order {
			row = append(row, dataset.FormatNumber(series[name][gi]))
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// groupRows buckets row indices by axis tuple, preserving first-occurrence
// group order. Tuple equality is exact cell equality, no fuzzy matching.
func groupRows(ds *dataset.Dataset, axisCols []int) []group {
	var groups []group
	index := make(map[string]int)

	for r := range ds.Rows {
		parts := make([]string, len(axisCols))
		for i, c := range axisCols {
			parts[i] = ds.Cell(r, c)
		}
		key := strings.Join(parts, "\x1f")

		gi, seen := index[key]
		if !seen {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, group{key: parts})
		}
		groups[gi].rows = append(groups[gi].rows, r)
	}
	return groups
}

func computeMetric(ds *dataset.Dataset, groups []group, metric core.Metric, pos int, series map[string][]float64) ([]float64, error) {
	switch metric.Method {
	case MethodSum, MethodMean, MethodCount, MethodMax, MethodMin:
		if len(metric.Subject) != 1 {
			return nil, &core.ConfigError{
				Field:  fmt.Sprintf("aggregate.columns[%d].subject", pos),
				Reason: fmt.Sprintf("%s takes exactly one subject column, got %d", metric.Method, len(metric.Subject)),
			}
		}
		col := ds.ColumnIndex(metric.Subject[0])
		if col < 0 {
			return nil, &core.ConfigError{
				Field:  fmt.Sprintf("aggregate.columns[%d].subject", pos),
				Reason: fmt.Sprintf("unknown subject %q", metric.Subject[0]),
			}
		}
		values := make([]float64, len(groups))
		for gi, g := range groups {
			values[gi] = reduce(ds, g.rows, col, metric.Method)
		}
		return values, nil

	case OpAdd, OpSubtract, OpMultiply, OpDivide:
		if len(metric.Subject) < 2 {
			return nil, &core.ConfigError{
				Field:  fmt.Sprintf("aggregate.columns[%d].subject", pos),
				Reason: fmt.Sprintf("%s takes at least two operands, got %d", metric.Method, len(metric.Subject)),
			}
		}
		operands := make([][]float64, len(metric.Subject))
		for i, name := range metric.Subject {
			// Operands reference metrics declared earlier in the list;
			// forward or self references are unresolvable by construction.
			prior, ok := series[name]
			if !ok {
				return nil, &core.ConfigError{
					Field:  fmt.Sprintf("aggregate.columns[%d].subject", pos),
					Reason: fmt.Sprintf("unknown subject %q: operands must name a metric declared earlier in the column list", name),
				}
			}
			operands[i] = prior
		}
		values := make([]float64, len(groups))
		for gi := range groups {
			acc := operands[0][gi]
			for _, op := range operands[1:] {
				acc = arith(metric.Method, acc, op[gi])
			}
			values[gi] = acc
		}
		return values, nil
	}

	return nil, &core.ConfigError{
		Field:  fmt.Sprintf("aggregate.columns[%d].method", pos),
		Reason: fmt.Sprintf("unknown method %q", metric.Method),
	}
}

// reduce computes a basic aggregate over a group's rows. Cells that do not
// parse as numbers are skipped; count counts all rows in the group.
func reduce(ds *dataset.Dataset, rows []int, col int, method string) float64 {
	if method == MethodCount {
		return float64(len(rows))
	}

	var sum float64
	var n int
	best := math.NaN()
	for _, r := range rows {
		v, ok := ds.Float(r, col)
		if !ok {
			continue
		}
		sum += v
		n++
		switch method {
		case MethodMax:
			if math.IsNaN(best) || v > best {
				best = v
			}
		case MethodMin:
			if math.IsNaN(best) || v < best {
				best = v
			}
		}
	}

	switch method {
	case MethodSum:
		return sum
	case MethodMean:
		if n == 0 {
			return math.NaN()
		}
		return sum / float64(n)
	case MethodMax, MethodMin:
		return best
	}
	return math.NaN()
}

// arith applies one binary operation. Division by zero yields NaN, the
// engine-wide sentinel, never an error.
func arith(op string, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSubtract:
		return a - b
	case OpMultiply:
		return a * b
	case OpDivide:
		if b == 0 {
			return math.NaN()
		}
		return a / b
	}
	return math.NaN()
}
