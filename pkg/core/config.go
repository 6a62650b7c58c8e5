package core

import "fmt"

// StepConfig is the discriminated payload of a step. Exactly one variant
// must be set, and it must match the step's type; Validate enforces this
// at the entry boundary so engine code never sees a mismatched payload.
type StepConfig struct {
	Filter    *FilterConfig      `json:"filter,omitempty"`
	Aggregate *AggregationConfig `json:"aggregate,omitempty"`
	Transform *TransformConfig   `json:"transform,omitempty"`
	Summary   *SummaryConfig     `json:"summary,omitempty"`
}

// Validate checks that the config carries exactly the variant matching t
// and that the variant's required fields are present. Column existence is
// checked later by the engines against the resolved input dataset.
func (c StepConfig) Validate(t StepType) error {
	set := 0
	if c.Filter != nil {
		set++
	}
	if c.Aggregate != nil {
		set++
	}
	if c.Transform != nil {
		set++
	}
	if c.Summary != nil {
		set++
	}
	if set != 1 {
		return &ConfigError{Reason: fmt.Sprintf("config must carry exactly one payload, got %d", set)}
	}

	switch t {
	case StepTypeFilter:
		if c.Filter == nil {
			return &ConfigError{Reason: "filter step requires a filter payload"}
		}
		return c.Filter.validate()
	case StepTypeAggregate:
		if c.Aggregate == nil {
			return &ConfigError{Reason: "aggregate step requires an aggregate payload"}
		}
		return c.Aggregate.validate()
	case StepTypeTransform:
		if c.Transform == nil {
			return &ConfigError{Reason: "transform step requires a transform payload"}
		}
		return c.Transform.validate()
	case StepTypeSummary:
		if c.Summary == nil {
			return &ConfigError{Reason: "summary step requires a summary payload"}
		}
		return c.Summary.validate()
	}
	return &ConfigError{Reason: fmt.Sprintf("unknown step type: %q", t)}
}

// FilterConfig combines up to three filter kinds, applied in fixed order:
// category, then numeric, then table. All are optional but at least one
// must be present.
type FilterConfig struct {
	Category *CategoryFilter `json:"category,omitempty"`
	Numeric  *NumericFilter  `json:"numeric,omitempty"`
	Table    *TableFilter    `json:"table,omitempty"`
}

func (f *FilterConfig) validate() error {
	if f.Category == nil && f.Numeric == nil && (f.Table == nil || !f.Table.Enabled) {
		return &ConfigError{Field: "filter", Reason: "at least one filter kind must be set"}
	}
	if f.Category != nil && len(f.Category.Allow) == 0 {
		return &ConfigError{Field: "filter.category", Reason: "allow-list is empty"}
	}
	if f.Numeric != nil {
		if f.Numeric.Column == "" {
			return &ConfigError{Field: "filter.numeric.column", Reason: "target column is required"}
		}
		if f.Numeric.FilterType == "" {
			return &ConfigError{Field: "filter.numeric.filter_type", Reason: "filter type is required"}
		}
	}
	if f.Table != nil && f.Table.Enabled {
		if f.Table.SourceStep == "" {
			return &ConfigError{Field: "filter.table.source_step", Reason: "reference step is required"}
		}
		if len(f.Table.Keys) == 0 {
			return &ConfigError{Field: "filter.table.keys", Reason: "at least one key column is required"}
		}
	}
	return nil
}

// CategoryFilter keeps rows whose value in every listed column appears in
// that column's allow-list. AND across columns, OR within a list.
type CategoryFilter struct {
	Allow map[string][]string `json:"allow"`
}

// NumericFilter applies one named predicate to a target column. Which
// parameter fields are consulted depends on FilterType; the filter engine
// owns the predicate name set and parameter validation.
type NumericFilter struct {
	Column     string   `json:"column"`
	FilterType string   `json:"filter_type"`
	Value      *float64 `json:"value,omitempty"`
	Values     []string `json:"values,omitempty"`
	Text       string   `json:"text,omitempty"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	IncludeMin bool     `json:"include_min,omitempty"`
	IncludeMax bool     `json:"include_max,omitempty"`
	K          int      `json:"k,omitempty"`
	Percent    *float64 `json:"percent,omitempty"`
	LowerPct   *float64 `json:"lower_percentile,omitempty"`
	UpperPct   *float64 `json:"upper_percentile,omitempty"`
}

// TableFilter restricts rows to those whose key-column tuple also appears
// in another step's current result (semi-join). Disabled by default.
type TableFilter struct {
	Enabled    bool     `json:"enabled"`
	SourceStep string   `json:"source_step"`
	Keys       []string `json:"keys"`
}

// AggregationConfig groups rows by the axis tuple and computes one output
// column per metric, in declaration order.
type AggregationConfig struct {
	Axis    []string `json:"axis"`
	Columns []Metric `json:"columns"`
}

func (a *AggregationConfig) validate() error {
	if len(a.Axis) == 0 {
		return &ConfigError{Field: "aggregate.axis", Reason: "at least one group-by column is required"}
	}
	if len(a.Columns) == 0 {
		return &ConfigError{Field: "aggregate.columns", Reason: "at least one metric is required"}
	}
	for i, m := range a.Columns {
		if m.Name == "" {
			return &ConfigError{Field: fmt.Sprintf("aggregate.columns[%d].name", i), Reason: "metric name is required"}
		}
		if len(m.Subject) == 0 {
			return &ConfigError{Field: fmt.Sprintf("aggregate.columns[%d].subject", i), Reason: "metric subject is required"}
		}
		if m.Method == "" {
			return &ConfigError{Field: fmt.Sprintf("aggregate.columns[%d].method", i), Reason: "metric method is required"}
		}
	}
	return nil
}

// Metric defines one output column of an aggregation. Basic methods
// (sum, mean, count, max, min) take a single input column as subject;
// arithmetic methods (+ - * /) take two or more subjects, each naming a
// metric declared earlier in the same list.
type Metric struct {
	Name    string   `json:"name"`
	Subject []string `json:"subject"`
	Method  string   `json:"method"`
}

// TransformConfig applies an ordered list of column operations. Each
// operation sees the cumulative effect of the ones before it, so later
// operations may reference columns created earlier in the same step.
type TransformConfig struct {
	Operations []TransformOp `json:"operations"`
}

func (t *TransformConfig) validate() error {
	if len(t.Operations) == 0 {
		return &ConfigError{Field: "transform.operations", Reason: "at least one operation is required"}
	}
	for i, op := range t.Operations {
		if op.Target == "" {
			return &ConfigError{Field: fmt.Sprintf("transform.operations[%d].target", i), Reason: "target column is required"}
		}
		if op.Type == "" {
			return &ConfigError{Field: fmt.Sprintf("transform.operations[%d].operation_type", i), Reason: "operation type is required"}
		}
		if op.Calculation.Mode == "" {
			return &ConfigError{Field: fmt.Sprintf("transform.operations[%d].calculation.mode", i), Reason: "calculation mode is required"}
		}
	}
	return nil
}

// TransformOp adds or modifies one column ("axis" for categorical,
// "subject" for numeric) through a single calculation.
type TransformOp struct {
	Type        string      `json:"operation_type"`
	Target      string      `json:"target"`
	Calculation Calculation `json:"calculation"`
}

// Calculation is the value rule of a transform operation. Mode selects
// which fields apply: constant (Constant), copy (From), formula
// (Operator + Operands), mapping (Mapping).
type Calculation struct {
	Mode     string            `json:"mode"`
	Constant string            `json:"constant,omitempty"`
	From     string            `json:"from,omitempty"`
	Operator string            `json:"operator,omitempty"`
	Operands []string          `json:"operands,omitempty"`
	Mapping  map[string]string `json:"mapping,omitempty"`
}

// SummaryConfig computes scalar formulas over the whole dataset and
// optionally a chart payload.
type SummaryConfig struct {
	Formulas []Formula  `json:"formulas"`
	Chart    *ChartSpec `json:"chart,omitempty"`
}

func (s *SummaryConfig) validate() error {
	if len(s.Formulas) == 0 && s.Chart == nil {
		return &ConfigError{Field: "summary", Reason: "at least one formula or a chart is required"}
	}
	for i, f := range s.Formulas {
		if f.Name == "" {
			return &ConfigError{Field: fmt.Sprintf("summary.formulas[%d].name", i), Reason: "formula name is required"}
		}
		if f.Method == "" {
			return &ConfigError{Field: fmt.Sprintf("summary.formulas[%d].method", i), Reason: "formula method is required"}
		}
	}
	if s.Chart != nil {
		if s.Chart.GraphType == "" {
			return &ConfigError{Field: "summary.chart.graph_type", Reason: "graph type is required"}
		}
		if s.Chart.XAxis == "" {
			return &ConfigError{Field: "summary.chart.x_axis", Reason: "x axis column is required"}
		}
		if len(s.Chart.YAxis) == 0 {
			return &ConfigError{Field: "summary.chart.y_axis", Reason: "at least one y axis column is required"}
		}
	}
	return nil
}

// Formula is one scalar reducer. Reducer methods (sum, mean, count, max,
// min) take a single column subject; arithmetic operators (+ - * /) take
// two or more subjects naming earlier formulas or numeric literals; the
// "arithmetic" method evaluates Expression over earlier formula names.
type Formula struct {
	Name       string   `json:"name"`
	Method     string   `json:"method"`
	Subject    []string `json:"subject,omitempty"`
	Expression string   `json:"expression,omitempty"`
	Unit       string   `json:"unit,omitempty"`
}

// ChartSpec binds dataset columns to chart axes. One series is produced
// per YAxis entry; the engine emits the structured payload only.
type ChartSpec struct {
	GraphType string   `json:"graph_type"`
	XAxis     string   `json:"x_axis"`
	YAxis     []string `json:"y_axis"`
	Title     string   `json:"title,omitempty"`
}
