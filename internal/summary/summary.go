// Package summary implements the summary engine: scalar formulas reduced
// over the whole dataset, plus an optional chart-ready payload. The input
// dataset passes through unchanged as the step's result; the engine never
// renders anything.
package summary

import (
	"fmt"
	"math"
	"strconv"

	"github.com/datastep-labs/datastep/internal/dataset"
	"github.com/datastep-labs/datastep/pkg/core"
)

// Formula methods. Reducers take one column subject; operators take two
// or more subjects naming earlier formulas or numeric literals; arithmetic
// evaluates a restricted infix expression over earlier formula names.
const (
	MethodSum        = "sum"
	MethodMean       = "mean"
	MethodCount      = "count"
	MethodMax        = "max"
	MethodMin        = "min"
	MethodArithmetic = "arithmetic"
)

// Graph types accepted in a chart spec.
var graphTypes = map[string]struct{}{
	"bar":     {},
	"line":    {},
	"pie":     {},
	"area":    {},
	"scatter": {},
}

// Output is the summary engine's result: the computed formulas and, when
// a chart was requested, the structured series/layout payload.
type Output struct {
	Formulas []core.FormulaResult
	Chart    *core.ChartPayload
}

// Apply computes cfg's formulas in declaration order and builds the chart
// payload when one is configured.
func Apply(ds *dataset.Dataset, cfg *core.SummaryConfig) (*Output, error) {
	if cfg == nil {
		return nil, &core.ConfigError{Field: "summary", Reason: "missing summary payload"}
	}

	out := &Output{}
	scalars := make(map[string]float64, len(cfg.Formulas))

	for i, f := range cfg.Formulas {
		if _, dup := scalars[f.Name]; dup {
			return nil, &core.ConfigError{
				Field:  fmt.Sprintf("summary.formulas[%d].name", i),
				Reason: fmt.Sprintf("duplicate formula name %q", f.Name),
			}
		}
		value, err := computeFormula(ds, f, i, scalars)
		if err != nil {
			return nil, err
		}
		scalars[f.Name] = value
		out.Formulas = append(out.Formulas, core.FormulaResult{
			Formula: f.Name,
			Value:   value,
			Unit:    f.Unit,
		})
	}

	if cfg.Chart != nil {
		chart, err := buildChart(ds, cfg.Chart)
		if err != nil {
			return nil, err
		}
		out.Chart = chart
	}
	return out, nil
}

func computeFormula(ds *dataset.Dataset, f core.Formula, pos int, scalars map[string]float64) (float64, error) {
	field := func(suffix string) string {
		return fmt.Sprintf("summary.formulas[%d].%s", pos, suffix)
	}

	switch f.Method {
	case MethodSum, MethodMean, MethodCount, MethodMax, MethodMin:
		if len(f.Subject) != 1 {
			return 0, &core.ConfigError{
				Field:  field("subject"),
				Reason: fmt.Sprintf("%s takes exactly one subject column, got %d", f.Method, len(f.Subject)),
			}
		}
		col := ds.ColumnIndex(f.Subject[0])
		if col < 0 {
			return 0, &core.ConfigError{Field: field("subject"), Reason: fmt.Sprintf("unknown column %q", f.Subject[0])}
		}
		return reduceColumn(ds, col, f.Method), nil

	case "+", "-", "*", "/":
		if len(f.Subject) < 2 {
			return 0, &core.ConfigError{
				Field:  field("subject"),
				Reason: fmt.Sprintf("%s takes at least two operands, got %d", f.Method, len(f.Subject)),
			}
		}
		acc, err := resolveScalar(f.Subject[0], scalars, field)
		if err != nil {
			return 0, err
		}
		for _, name := range f.Subject[1:] {
			b, err := resolveScalar(name, scalars, field)
			if err != nil {
				return 0, err
			}
			acc = applyOp(f.Method, acc, b)
		}
		return acc, nil

	case MethodArithmetic:
		if f.Expression == "" {
			return 0, &core.ConfigError{Field: field("expression"), Reason: "arithmetic formula requires an expression"}
		}
		value, err := evalExpression(f.Expression, scalars)
		if err != nil {
			return 0, &core.ConfigError{Field: field("expression"), Reason: err.Error()}
		}
		return value, nil
	}

	return 0, &core.ConfigError{Field: field("method"), Reason: fmt.Sprintf("unknown method %q", f.Method)}
}

// resolveScalar resolves an operand to an earlier formula's value or a
// numeric literal.
func resolveScalar(name string, scalars map[string]float64, field func(string) string) (float64, error) {
	if v, ok := scalars[name]; ok {
		return v, nil
	}
	if v, err := strconv.ParseFloat(name, 64); err == nil {
		return v, nil
	}
	return 0, &core.ConfigError{
		Field:  field("subject"),
		Reason: fmt.Sprintf("unknown operand %q: operands must name an earlier formula or a number", name),
	}
}

func applyOp(op string, a, b float64) float64 {
	switch op {
	case "+":
		return a + b
	case "-":
		return a - b
	case "*":
		return a * b
	case "/":
		if b == 0 {
			return math.NaN()
		}
		return a / b
	}
	return math.NaN()
}

// reduceColumn reduces a whole column to one scalar. Non-numeric cells are
// skipped; count counts all rows.
func reduceColumn(ds *dataset.Dataset, col int, method string) float64 {
	if method == MethodCount {
		return float64(len(ds.Rows))
	}

	var sum float64
	var n int
	best := math.NaN()
	for r := range ds.Rows {
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

// buildChart emits one series per y-axis binding: point labels come from
// the x-axis column, values from the bound column.
func buildChart(ds *dataset.Dataset, spec *core.ChartSpec) (*core.ChartPayload, error) {
	if _, ok := graphTypes[spec.GraphType]; !ok {
		return nil, &core.ConfigError{Field: "summary.chart.graph_type", Reason: fmt.Sprintf("unknown graph type %q", spec.GraphType)}
	}
	xCol := ds.ColumnIndex(spec.XAxis)
	if xCol < 0 {
		return nil, &core.ConfigError{Field: "summary.chart.x_axis", Reason: fmt.Sprintf("unknown column %q", spec.XAxis)}
	}

	payload := &core.ChartPayload{
		GraphType:  spec.GraphType,
		Title:      spec.Title,
		XAxisTitle: spec.XAxis,
	}
	if len(spec.YAxis) == 1 {
		payload.YAxisTitle = spec.YAxis[0]
	}

	for _, yName := range spec.YAxis {
		yCol := ds.ColumnIndex(yName)
		if yCol < 0 {
			return nil, &core.ConfigError{Field: "summary.chart.y_axis", Reason: fmt.Sprintf("unknown column %q", yName)}
		}

		series := core.Series{Name: yName, Points: make([]core.Point, 0, len(ds.Rows))}
		for r := range ds.Rows {
			v, ok := ds.Float(r, yCol)
			if !ok {
				v = math.NaN()
			}
			series.Points = append(series.Points, core.Point{
				Label: ds.Cell(r, xCol),
				Value: v,
			})
		}
		payload.Series = append(payload.Series, series)
	}
	return payload, nil
}
