package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastep-labs/datastep/internal/dataframe"
	"github.com/datastep-labs/datastep/internal/state"
	"github.com/datastep-labs/datastep/internal/testutil"
	"github.com/datastep-labs/datastep/pkg/core"
)

const salesCSV = `region,product,revenue,cost
north,widget,100,40
south,widget,50,30
north,gadget,150,60
south,gadget,30,20
`

func newTestEngine(t *testing.T, opts ...func(*Config)) (*Engine, *core.Session) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.csv"), []byte(salesCSV), 0o644))

	store := state.NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		Store:  store,
		Frames: dataframe.NewLocalStore(dir, testutil.NewTestLogger(t)),
		Logger: testutil.NewTestLogger(t),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	eng, err := New(cfg)
	require.NoError(t, err)

	session, err := eng.CreateSession(context.Background(), "sales analysis", "sales.csv")
	require.NoError(t, err)
	return eng, session
}

func greaterThan(column string, v float64) core.StepConfig {
	return core.StepConfig{
		Filter: &core.FilterConfig{
			Numeric: &core.NumericFilter{Column: column, FilterType: "greater_than", Value: &v},
		},
	}
}

func addFilter(t *testing.T, eng *Engine, sessionID, name, source string, cfg core.StepConfig) *core.Step {
	t.Helper()
	step, err := eng.AddStep(context.Background(), sessionID, AddStepRequest{
		Type:   core.StepTypeFilter,
		Name:   name,
		Source: source,
		Config: cfg,
	})
	require.NoError(t, err)
	return step
}

func TestExecuteFilterStep(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	step := addFilter(t, eng, session.ID, "big revenue", "", greaterThan("revenue", 60))

	result, err := eng.ExecuteStep(ctx, step.ID, false)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, core.StepStatusCompleted, result.Outcomes[0].Status)
	assert.Equal(t, 2, result.Outcomes[0].RowCount)

	got, err := eng.Store().GetStep(step.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StepStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 2, got.Result.RowCount)
	assert.Equal(t, []string{"region", "product", "revenue", "cost"}, got.Result.Columns)
	assert.NotEmpty(t, got.Result.ResultPath)
}

func TestExecuteChainWithCascade(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	a := addFilter(t, eng, session.ID, "keep all", "", greaterThan("revenue", 0))
	b, err := eng.AddStep(ctx, session.ID, AddStepRequest{
		Type:   core.StepTypeAggregate,
		Name:   "revenue by region",
		Source: a.ID,
		Config: core.StepConfig{
			Aggregate: &core.AggregationConfig{
				Axis:    []string{"region"},
				Columns: []core.Metric{{Name: "total", Subject: []string{"revenue"}, Method: "sum"}},
			},
		},
	})
	require.NoError(t, err)

	result, err := eng.ExecuteStep(ctx, a.ID, true)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, a.ID, result.Outcomes[0].StepID)
	assert.Equal(t, b.ID, result.Outcomes[1].StepID)
	assert.Equal(t, []string{a.ID, b.ID}, result.Completed())

	got, err := eng.Store().GetStep(b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StepStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 2, got.Result.RowCount)
	assert.Equal(t, []string{"region", "total"}, got.Result.Columns)
}

func TestSourceNotResolved(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	a := addFilter(t, eng, session.ID, "upstream", "", greaterThan("revenue", 0))
	b := addFilter(t, eng, session.ID, "downstream", a.ID, greaterThan("cost", 0))

	_, err := eng.ExecuteStep(ctx, b.ID, false)
	var srcErr *core.SourceNotResolvedError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, b.ID, srcErr.StepID)
	assert.Equal(t, a.ID, srcErr.Source)

	got, err := eng.Store().GetStep(b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StepStatusFailed, got.Status)
}

func TestCascadePartialFailure(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	a := addFilter(t, eng, session.ID, "good", "", greaterThan("revenue", 60))
	// Statically valid config that fails at execution time: the column
	// does not exist in the dataset.
	b := addFilter(t, eng, session.ID, "bad", a.ID, greaterThan("missing", 1))

	result, err := eng.ExecuteStep(ctx, a.ID, true)

	var casErr *core.CascadeError
	require.ErrorAs(t, err, &casErr)
	assert.Equal(t, b.ID, casErr.FailedStepID)
	assert.Equal(t, []string{a.ID}, casErr.Completed)

	var cfgErr *core.ConfigError
	assert.ErrorAs(t, casErr.Err, &cfgErr)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, core.StepStatusCompleted, result.Outcomes[0].Status)
	assert.Equal(t, core.StepStatusFailed, result.Outcomes[1].Status)

	// No rollback: the completed step keeps its new result.
	gotA, err := eng.Store().GetStep(a.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StepStatusCompleted, gotA.Status)
	require.NotNil(t, gotA.Result)

	gotB, err := eng.Store().GetStep(b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StepStatusFailed, gotB.Status)
	assert.NotEmpty(t, gotB.Error)
}

func TestSnapshotRoundTrip(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	a := addFilter(t, eng, session.ID, "first", "", greaterThan("revenue", 60))
	addFilter(t, eng, session.ID, "second", a.ID, greaterThan("cost", 25))

	before, err := eng.ListSteps(ctx, session.ID)
	require.NoError(t, err)
	var wantDefs []core.StepDefinition
	for _, s := range before {
		wantDefs = append(wantDefs, s.Definition())
	}

	snap, err := eng.SaveSnapshot(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Seq)

	// Mutate and execute after the snapshot; the revert must restore the
	// exact structural state regardless.
	_, err = eng.ExecuteStep(ctx, a.ID, true)
	require.NoError(t, err)
	_, err = eng.UpdateStepConfig(ctx, a.ID, greaterThan("revenue", 120), false)
	require.NoError(t, err)
	_, err = eng.DeleteStep(ctx, before[1].ID, false)
	require.NoError(t, err)

	require.NoError(t, eng.Revert(ctx, session.ID, snap.Seq))

	after, err := eng.ListSteps(ctx, session.ID)
	require.NoError(t, err)
	var gotDefs []core.StepDefinition
	for _, s := range after {
		gotDefs = append(gotDefs, s.Definition())
		assert.Equal(t, core.StepStatusPending, s.Status)
		assert.Nil(t, s.Result)
	}
	assert.Equal(t, wantDefs, gotDefs)
}

func TestDeleteWithoutCascade(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	a := addFilter(t, eng, session.ID, "upstream", "", greaterThan("revenue", 0))
	b := addFilter(t, eng, session.ID, "downstream", a.ID, greaterThan("cost", 25))
	c := addFilter(t, eng, session.ID, "tail", "", greaterThan("cost", 0))

	_, err := eng.ExecuteStep(ctx, a.ID, true)
	require.NoError(t, err)

	result, err := eng.DeleteStep(ctx, a.ID, false)
	require.NoError(t, err)
	assert.Nil(t, result)

	// The dependent is demoted, annotated, and re-pointed at the deleted
	// step's own source. Its stale result stays visible.
	gotB, err := eng.Store().GetStep(b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StepStatusPending, gotB.Status)
	assert.Contains(t, gotB.Error, "deleted")
	assert.Equal(t, core.SourceOriginal, gotB.Source)
	assert.NotNil(t, gotB.Result)

	// Positions renumber contiguously.
	steps, err := eng.ListSteps(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, b.ID, steps[0].ID)
	assert.Equal(t, 0, steps[0].Position)
	assert.Equal(t, c.ID, steps[1].ID)
	assert.Equal(t, 1, steps[1].Position)
}

func TestDeleteWithCascadeReexecutesDependents(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	a := addFilter(t, eng, session.ID, "upstream", "", greaterThan("revenue", 60))
	b := addFilter(t, eng, session.ID, "downstream", a.ID, greaterThan("cost", 25))

	_, err := eng.ExecuteStep(ctx, a.ID, true)
	require.NoError(t, err)

	result, err := eng.DeleteStep(ctx, a.ID, true)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, b.ID, result.Outcomes[0].StepID)
	assert.Equal(t, core.StepStatusCompleted, result.Outcomes[0].Status)

	// Re-pointed at the original dataset: cost > 25 now keeps 3 of 4 rows.
	gotB, err := eng.Store().GetStep(b.ID)
	require.NoError(t, err)
	require.NotNil(t, gotB.Result)
	assert.Equal(t, 3, gotB.Result.RowCount)
}

func TestUpdateConfigDemotesDependents(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	a := addFilter(t, eng, session.ID, "upstream", "", greaterThan("revenue", 60))
	b := addFilter(t, eng, session.ID, "downstream", a.ID, greaterThan("cost", 25))

	_, err := eng.ExecuteStep(ctx, a.ID, true)
	require.NoError(t, err)

	result, err := eng.UpdateStepConfig(ctx, a.ID, greaterThan("revenue", 120), false)
	require.NoError(t, err)
	assert.Nil(t, result)

	for _, id := range []string{a.ID, b.ID} {
		got, err := eng.Store().GetStep(id)
		require.NoError(t, err)
		assert.Equal(t, core.StepStatusPending, got.Status)
		assert.NotNil(t, got.Result, "stale result must stay visible")
	}
}

func TestUpdateConfigWithCascade(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	a := addFilter(t, eng, session.ID, "upstream", "", greaterThan("revenue", 60))
	b := addFilter(t, eng, session.ID, "downstream", a.ID, greaterThan("cost", 25))

	_, err := eng.ExecuteStep(ctx, a.ID, true)
	require.NoError(t, err)

	result, err := eng.UpdateStepConfig(ctx, a.ID, greaterThan("revenue", 120), true)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, []string{a.ID, b.ID}, result.Completed())

	// revenue > 120 keeps one row; cost > 25 keeps its cost=60.
	gotB, err := eng.Store().GetStep(b.ID)
	require.NoError(t, err)
	require.NotNil(t, gotB.Result)
	assert.Equal(t, 1, gotB.Result.RowCount)
}

func TestMoveStepInvariant(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	a := addFilter(t, eng, session.ID, "a", "", greaterThan("revenue", 0))
	b := addFilter(t, eng, session.ID, "b", a.ID, greaterThan("cost", 0))
	c := addFilter(t, eng, session.ID, "c", "", greaterThan("cost", 10))

	// Moving the source after its dependent breaks the forward-only chain.
	err := eng.MoveStep(ctx, a.ID, 1)
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	// Moving an independent step is fine.
	require.NoError(t, eng.MoveStep(ctx, c.ID, 0))

	steps, err := eng.ListSteps(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, []string{steps[0].ID, steps[1].ID, steps[2].ID})
	for i, s := range steps {
		assert.Equal(t, i, s.Position)
	}

	err = eng.MoveStep(ctx, a.ID, 5)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSummaryStepPassthrough(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	step, err := eng.AddStep(ctx, session.ID, AddStepRequest{
		Type: core.StepTypeSummary,
		Name: "totals",
		Config: core.StepConfig{
			Summary: &core.SummaryConfig{
				Formulas: []core.Formula{
					{Name: "total_revenue", Method: "sum", Subject: []string{"revenue"}, Unit: "usd"},
				},
				Chart: &core.ChartSpec{GraphType: "bar", XAxis: "region", YAxis: []string{"revenue"}},
			},
		},
	})
	require.NoError(t, err)

	_, err = eng.ExecuteStep(ctx, step.ID, false)
	require.NoError(t, err)

	got, err := eng.Store().GetStep(step.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, 4, got.Result.RowCount, "summary passes the dataset through unchanged")
	require.Len(t, got.Result.Formulas, 1)
	assert.Equal(t, "total_revenue", got.Result.Formulas[0].Formula)
	assert.InDelta(t, 330, got.Result.Formulas[0].Value, 1e-9)
	assert.Equal(t, "usd", got.Result.Formulas[0].Unit)
	require.NotNil(t, got.Result.Chart)
	assert.Equal(t, "bar", got.Result.Chart.GraphType)
	require.Len(t, got.Result.Chart.Series, 1)
	assert.Len(t, got.Result.Chart.Series[0].Points, 4)
}

func TestTableFilterResolvesReferenceStep(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	north, err := eng.AddStep(ctx, session.ID, AddStepRequest{
		Type: core.StepTypeFilter,
		Name: "north only",
		Config: core.StepConfig{
			Filter: &core.FilterConfig{
				Category: &core.CategoryFilter{Allow: map[string][]string{"region": {"north"}}},
			},
		},
	})
	require.NoError(t, err)
	_, err = eng.ExecuteStep(ctx, north.ID, false)
	require.NoError(t, err)

	semi, err := eng.AddStep(ctx, session.ID, AddStepRequest{
		Type: core.StepTypeFilter,
		Name: "matching regions",
		Config: core.StepConfig{
			Filter: &core.FilterConfig{
				Table: &core.TableFilter{Enabled: true, SourceStep: north.ID, Keys: []string{"region"}},
			},
		},
	})
	require.NoError(t, err)

	result, err := eng.ExecuteStep(ctx, semi.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Outcomes[0].RowCount)
}

func TestExecutionTimeout(t *testing.T) {
	eng, session := newTestEngine(t, func(cfg *Config) {
		cfg.Timeout = time.Nanosecond
	})
	ctx := context.Background()

	step := addFilter(t, eng, session.ID, "slow", "", greaterThan("revenue", 0))

	_, err := eng.ExecuteStep(ctx, step.ID, false)
	var toErr *core.TimeoutError
	require.ErrorAs(t, err, &toErr)
	assert.Equal(t, step.ID, toErr.StepID)
}

func TestAddStepValidation(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	var cfgErr *core.ConfigError

	_, err := eng.AddStep(ctx, session.ID, AddStepRequest{
		Type: "explode", Name: "x", Config: greaterThan("revenue", 0),
	})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = eng.AddStep(ctx, session.ID, AddStepRequest{
		Type: core.StepTypeAggregate, Name: "x", Config: greaterThan("revenue", 0),
	})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = eng.AddStep(ctx, session.ID, AddStepRequest{
		Type: core.StepTypeFilter, Name: "x", Source: "nope", Config: greaterThan("revenue", 0),
	})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = eng.AddStep(ctx, session.ID, AddStepRequest{
		Type: core.StepTypeFilter, Config: greaterThan("revenue", 0),
	})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestOverview(t *testing.T) {
	eng, session := newTestEngine(t)
	ctx := context.Background()

	step := addFilter(t, eng, session.ID, "big revenue", "", greaterThan("revenue", 60))
	_, err := eng.ExecuteStep(ctx, step.ID, false)
	require.NoError(t, err)

	ov, err := eng.Overview(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, ov.SessionID)
	assert.Equal(t, 4, ov.RowCount)
	assert.Equal(t, 4, ov.ColumnCount)
	assert.Equal(t, []string{"region", "product", "revenue", "cost"}, ov.Columns)
	require.Len(t, ov.Steps, 1)
	assert.Equal(t, core.StepStatusCompleted, ov.Steps[0].Status)
}
