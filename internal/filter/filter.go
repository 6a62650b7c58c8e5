// Package filter implements the row-filtering engine. A filter step
// combines up to three kinds, applied in fixed order: a category filter
// (per-column allow-lists), a numeric filter (one of the named predicates
// over a target column), and a table filter (semi-join against another
// step's result). The output keeps the input's columns and a row subset.
package filter

import (
	"fmt"
	"strings"

	"github.com/datastep-labs/datastep/internal/dataset"
	"github.com/datastep-labs/datastep/pkg/core"
)

// Apply runs the configured filter kinds over ds and returns the surviving
// rows as a new dataset. lookup is the referenced step's result for the
// table filter; it may be nil when the table filter is disabled.
func Apply(ds *dataset.Dataset, cfg *core.FilterConfig, lookup *dataset.Dataset) (*dataset.Dataset, error) {
	if cfg == nil {
		return nil, &core.ConfigError{Field: "filter", Reason: "missing filter payload"}
	}

	indices := make([]int, len(ds.Rows))
	for i := range indices {
		indices[i] = i
	}

	var err error
	if cfg.Category != nil {
		indices, err = applyCategory(ds, indices, cfg.Category)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Numeric != nil {
		indices, err = applyNumeric(ds, indices, cfg.Numeric)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Table != nil && cfg.Table.Enabled {
		indices, err = applyTable(ds, indices, cfg.Table, lookup)
		if err != nil {
			return nil, err
		}
	}

	return ds.Select(indices), nil
}

// applyCategory keeps rows whose value in every constrained column is in
// that column's allow-list: AND across columns, OR within a list.
func applyCategory(ds *dataset.Dataset, indices []int, cat *core.CategoryFilter) ([]int, error) {
	type constraint struct {
		col     int
		allowed map[string]struct{}
	}

	constraints := make([]constraint, 0, len(cat.Allow))
	for column, values := range cat.Allow {
		idx := ds.ColumnIndex(column)
		if idx < 0 {
			return nil, &core.ConfigError{Field: "filter.category", Reason: fmt.Sprintf("unknown column %q", column)}
		}
		allowed := make(map[string]struct{}, len(values))
		for _, v := range values {
			allowed[v] = struct{}{}
		}
		constraints = append(constraints, constraint{col: idx, allowed: allowed})
	}

	kept := indices[:0]
	for _, row := range indices {
		pass := true
		for _, c := range constraints {
			if _, ok := c.allowed[ds.Cell(row, c.col)]; !ok {
				pass = false
				break
			}
		}
		if pass {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

// applyTable keeps rows whose key-column tuple appears in the lookup
// dataset (semi-join). Both sides must carry every key column.
func applyTable(ds *dataset.Dataset, indices []int, tbl *core.TableFilter, lookup *dataset.Dataset) ([]int, error) {
	if lookup == nil {
		return nil, &core.ConfigError{Field: "filter.table", Reason: "reference step result not available"}
	}

	ownCols := make([]int, len(tbl.Keys))
	refCols := make([]int, len(tbl.Keys))
	for i, key := range tbl.Keys {
		if ownCols[i] = ds.ColumnIndex(key); ownCols[i] < 0 {
			return nil, &core.ConfigError{Field: "filter.table.keys", Reason: fmt.Sprintf("unknown column %q", key)}
		}
		if refCols[i] = lookup.ColumnIndex(key); refCols[i] < 0 {
			return nil, &core.ConfigError{Field: "filter.table.keys", Reason: fmt.Sprintf("column %q not present in reference step result", key)}
		}
	}

	seen := make(map[string]struct{}, len(lookup.Rows))
	for r := range lookup.Rows {
		seen[keyTuple(lookup, r, refCols)] = struct{}{}
	}

	kept := indices[:0]
	for _, row := range indices {
		if _, ok := seen[keyTuple(ds, row, ownCols)]; ok {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

// keyTuple joins key cells with an unlikely separator so multi-column keys
// compare as tuples, not concatenations.
func keyTuple(ds *dataset.Dataset, row int, cols []int) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = ds.Cell(row, c)
	}
	return strings.Join(parts, "\x1f")
}
