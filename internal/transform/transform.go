// Package transform implements the column-transform engine: an ordered
// list of operations that add or modify columns, each applied against the
// cumulative result of the previous ones, so later operations can use
// columns created earlier in the same step.
package transform

import (
	"fmt"
	"math"
	"strconv"

	"github.com/datastep-labs/datastep/internal/dataset"
	"github.com/datastep-labs/datastep/pkg/core"
)

// Operation types: axes are categorical columns, subjects numeric ones.
// add_* requires the target column to be new; modify_* requires it to
// already exist.
const (
	OpAddAxis       = "add_axis"
	OpModifyAxis    = "modify_axis"
	OpAddSubject    = "add_subject"
	OpModifySubject = "modify_subject"
)

// Calculation modes.
const (
	CalcConstant = "constant"
	CalcCopy     = "copy"
	CalcFormula  = "formula"
	CalcMapping  = "mapping"
)

// Apply runs the operations strictly in order and returns the transformed
// dataset. The input is never mutated.
func Apply(ds *dataset.Dataset, cfg *core.TransformConfig) (*dataset.Dataset, error) {
	if cfg == nil {
		return nil, &core.ConfigError{Field: "transform", Reason: "missing transform payload"}
	}

	out := ds.Clone()
	for i, op := range cfg.Operations {
		if err := applyOp(out, op, i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOp(ds *dataset.Dataset, op core.TransformOp, pos int) error {
	field := func(suffix string) string {
		return fmt.Sprintf("transform.operations[%d].%s", pos, suffix)
	}

	exists := ds.HasColumn(op.Target)
	switch op.Type {
	case OpAddAxis, OpAddSubject:
		if exists {
			return &core.ConfigError{Field: field("target"), Reason: fmt.Sprintf("column %q already exists", op.Target)}
		}
	case OpModifyAxis, OpModifySubject:
		if !exists {
			return &core.ConfigError{Field: field("target"), Reason: fmt.Sprintf("unknown column %q", op.Target)}
		}
	default:
		return &core.ConfigError{Field: field("operation_type"), Reason: fmt.Sprintf("unknown operation type %q", op.Type)}
	}

	values, err := computeValues(ds, op, field)
	if err != nil {
		return err
	}

	if exists {
		col := ds.ColumnIndex(op.Target)
		for r := range ds.Rows {
			ds.Rows[r][col] = values[r]
		}
		return nil
	}

	ds.Columns = append(ds.Columns, op.Target)
	for r := range ds.Rows {
		ds.Rows[r] = append(ds.Rows[r], values[r])
	}
	return nil
}

// computeValues produces the target column's new value for every row.
func computeValues(ds *dataset.Dataset, op core.TransformOp, field func(string) string) ([]string, error) {
	calc := op.Calculation
	values := make([]string, len(ds.Rows))

	switch calc.Mode {
	case CalcConstant:
		for r := range values {
			values[r] = calc.Constant
		}
		return values, nil

	case CalcCopy:
		from := ds.ColumnIndex(calc.From)
		if from < 0 {
			return nil, &core.ConfigError{Field: field("calculation.from"), Reason: fmt.Sprintf("unknown column %q", calc.From)}
		}
		for r := range values {
			values[r] = ds.Cell(r, from)
		}
		return values, nil

	case CalcFormula:
		return formulaValues(ds, calc, field)

	case CalcMapping:
		if len(calc.Mapping) == 0 {
			return nil, &core.ConfigError{Field: field("calculation.mapping"), Reason: "mapping dictionary is empty"}
		}
		col := ds.ColumnIndex(op.Target)
		if col < 0 {
			return nil, &core.ConfigError{Field: field("calculation"), Reason: "mapping requires an existing target column"}
		}
		for r := range values {
			current := ds.Cell(r, col)
			if mapped, ok := calc.Mapping[current]; ok {
				values[r] = mapped
			} else {
				// Unmapped values pass through unchanged rather than being
				// dropped or blanked.
				values[r] = current
			}
		}
		return values, nil
	}

	return nil, &core.ConfigError{Field: field("calculation.mode"), Reason: fmt.Sprintf("unknown calculation mode %q", calc.Mode)}
}

// formulaValues evaluates one arithmetic operator per row over the named
// operands. Each operand is an existing column name or a numeric literal.
func formulaValues(ds *dataset.Dataset, calc core.Calculation, field func(string) string) ([]string, error) {
	switch calc.Operator {
	case "+", "-", "*", "/":
	default:
		return nil, &core.ConfigError{Field: field("calculation.operator"), Reason: fmt.Sprintf("unknown operator %q", calc.Operator)}
	}
	if len(calc.Operands) < 2 {
		return nil, &core.ConfigError{Field: field("calculation.operands"), Reason: "formula requires at least two operands"}
	}

	type operand struct {
		col     int
		literal float64
	}
	operands := make([]operand, len(calc.Operands))
	for i, raw := range calc.Operands {
		if col := ds.ColumnIndex(raw); col >= 0 {
			operands[i] = operand{col: col}
			continue
		}
		lit, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &core.ConfigError{
				Field:  field("calculation.operands"),
				Reason: fmt.Sprintf("operand %q is neither a column nor a number", raw),
			}
		}
		operands[i] = operand{col: -1, literal: lit}
	}

	resolve := func(r int, o operand) float64 {
		if o.col < 0 {
			return o.literal
		}
		v, ok := ds.Float(r, o.col)
		if !ok {
			return math.NaN()
		}
		return v
	}

	values := make([]string, len(ds.Rows))
	for r := range ds.Rows {
		acc := resolve(r, operands[0])
		for _, o := range operands[1:] {
			b := resolve(r, o)
			switch calc.Operator {
			case "+":
				acc += b
			case "-":
				acc -= b
			case "*":
				acc *= b
			case "/":
				if b == 0 {
					acc = math.NaN()
				} else {
					acc /= b
				}
			}
		}
		values[r] = dataset.FormatNumber(acc)
	}
	return values, nil
}
